// SPDX-License-Identifier: MPL-2.0

package wsconn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testBufSize = 4096

// echoServer upgrades every request to a WebSocket and bounces every
// binary frame it receives straight back.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := Accept(w, r)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		go func() {
			ctx := context.Background()
			buf := make([]byte, testBufSize)
			for {
				n, err := c.ReadFrame(ctx, buf)
				if err != nil {
					return
				}
				if _, err := c.WriteFrame(buf[:n]); err != nil {
					return
				}
			}
		}()
	}))
}

func dialWs(t *testing.T, srv *httptest.Server) FrameConn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + srv.URL[len("http"):]
	conn, err := Dial(ctx, url)
	require.NoError(t, err)
	return conn
}

func TestRoundTrip(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	conn := dialWs(t, srv)
	defer conn.Close()

	want := []byte("hello over websocket")
	_, err := conn.WriteFrame(want)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	buf := make([]byte, testBufSize)
	n, err := conn.ReadFrame(ctx, buf)
	require.NoError(t, err)
	require.Equal(t, want, buf[:n])
}

func TestManyFramesPreserveOrder(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	conn := dialWs(t, srv)
	defer conn.Close()

	const n = 50
	for i := 0; i < n; i++ {
		_, err := conn.WriteFrame([]byte{byte(i)})
		require.NoErrorf(t, err, "send %d", i)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	buf := make([]byte, testBufSize)
	for i := 0; i < n; i++ {
		got, err := conn.ReadFrame(ctx, buf)
		require.NoErrorf(t, err, "recv %d", i)
		require.Equalf(t, 1, got, "frame %d length", i)
		require.Equalf(t, byte(i), buf[0], "frame %d", i)
	}
}

func TestCloseUnblocksRead(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	conn := dialWs(t, srv)

	done := make(chan error, 1)
	go func() {
		buf := make([]byte, testBufSize)
		_, err := conn.ReadFrame(context.Background(), buf)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	conn.Close()

	select {
	case err := <-done:
		require.Error(t, err, "expected an error from ReadFrame after Close")
	case <-time.After(5 * time.Second):
		t.Fatalf("ReadFrame did not unblock after Close")
	}
}

func TestReadFrameRespectsContext(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	conn := dialWs(t, srv)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	buf := make([]byte, testBufSize)
	_, err := conn.ReadFrame(ctx, buf)
	require.Equal(t, context.DeadlineExceeded, err)
}

func TestReadFrameTooLarge(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	conn := dialWs(t, srv)
	defer conn.Close()

	_, err := conn.WriteFrame(make([]byte, 16))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	tiny := make([]byte, 4)
	_, err = conn.ReadFrame(ctx, tiny)
	require.ErrorIs(t, err, ErrFrameTooLarge)
}
