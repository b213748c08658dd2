// SPDX-License-Identifier: MIT
//
// shas-relay is a minimal demo composition root: it accepts WebSocket
// connections, runs the Noise_IX_25519_ChaChaPoly_BLAKE2s responder
// handshake against each, and relays decoded application payloads between
// connected peers. The accept -> handshake -> register -> pump shape is
// grounded on original_source/server/src/connection_handle.rs's
// run(), re-expressed with goroutines and channels instead of
// async_std/futures::select, and using noiseconf/peers/wsconn/payload
// instead of snow/tide_websockets/serde_cbor.
package main

import (
	"context"
	"crypto/rand"
	"flag"
	"log/slog"
	"net/http"
	"os"

	"github.com/dungph/shas/noise"
	"github.com/dungph/shas/noiseconf"
	"github.com/dungph/shas/payload"
	"github.com/dungph/shas/peers"
	"github.com/dungph/shas/wsconn"
)

func main() {
	var (
		configPath = flag.String("config", "shas.yaml", "path to the identity/peer config file")
		listenAddr = flag.String("listen", "127.0.0.1:7443", "address to listen for WebSocket connections on")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := noiseconf.Load(*configPath)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	staticKey, err := cfg.StaticKey()
	if err != nil {
		logger.Error("decode static key", "error", err)
		os.Exit(1)
	}

	registry := peers.New()

	slog.SetDefault(logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/shas", func(w http.ResponseWriter, r *http.Request) {
		conn, err := wsconn.Accept(w, r)
		if err != nil {
			logger.Error("accept websocket", "error", err)
			return
		}
		go serveConnection(r.Context(), logger, staticKey, conn, registry)
	})

	logger.Info("listening", "addr", *listenAddr)
	if err := http.ListenAndServe(*listenAddr, mux); err != nil {
		logger.Error("serve", "error", err)
		os.Exit(1)
	}
}

// maxFrameSize bounds how large a single WebSocket frame this relay will
// accept; it must be able to hold the largest expected payload plus the
// transport AEAD's 16-byte tag.
const maxFrameSize = 64 * 1024

func serveConnection(ctx context.Context, logger *slog.Logger, staticKey [noise.DHLen]byte, conn wsconn.FrameConn, registry *peers.Registry) {
	defer conn.Close()

	transport, err := respond(ctx, conn, staticKey)
	if err != nil {
		logger.Warn("handshake failed", "error", err)
		return
	}

	remote := transport.RemoteStatic()
	logger.Info("peer connected", "remote", remote)

	outbound := make(chan []byte, 32)
	id := registry.Register(remote, outbound)
	defer registry.Unregister(remote, id)

	greeting, err := payload.Encode(payload.ConnectionAccepted())
	if err != nil {
		logger.Error("encode greeting", "error", err)
		return
	}
	outbound <- greeting

	done := make(chan struct{})
	go pumpOutbound(logger, conn, transport, outbound, done)
	pumpInbound(ctx, logger, conn, transport, remote, registry)
	close(done)
}

// respond drives the two-flight IX responder handshake over conn.
func respond(ctx context.Context, conn wsconn.FrameConn, staticKey [noise.DHLen]byte) (noise.Transport, error) {
	var ephemeral [noise.DHLen]byte
	if _, err := rand.Read(ephemeral[:]); err != nil {
		return noise.Transport{}, err
	}

	resp1 := noise.Responder(ephemeral, staticKey, nil)

	msg1 := make([]byte, maxFrameSize)
	n1, err := conn.ReadFrame(ctx, msg1)
	if err != nil {
		return noise.Transport{}, err
	}

	_, resp2, err := resp1.ReadMessage(msg1[:n1], nil)
	if err != nil {
		return noise.Transport{}, err
	}

	out := make([]byte, 96)
	n, transport, err := resp2.WriteMessage(nil, out)
	if err != nil {
		return noise.Transport{}, err
	}
	if _, err := conn.WriteFrame(out[:n]); err != nil {
		return noise.Transport{}, err
	}
	return transport, nil
}

func pumpOutbound(logger *slog.Logger, conn wsconn.FrameConn, transport noise.Transport, outbound <-chan []byte, done <-chan struct{}) {
	for {
		select {
		case frame, ok := <-outbound:
			if !ok {
				return
			}
			ciphertext := make([]byte, len(frame)+noise.TagSize)
			if _, err := transport.WriteMessage(frame, ciphertext); err != nil {
				logger.Error("encrypt outbound frame", "error", err)
				return
			}
			if _, err := conn.WriteFrame(ciphertext); err != nil {
				logger.Warn("send outbound frame", "error", err)
				return
			}
		case <-done:
			return
		}
	}
}

func pumpInbound(ctx context.Context, logger *slog.Logger, conn wsconn.FrameConn, transport noise.Transport, remote [noise.DHLen]byte, registry *peers.Registry) {
	buf := make([]byte, maxFrameSize)
	for {
		n, err := conn.ReadFrame(ctx, buf)
		if err != nil {
			logger.Info("peer disconnected", "remote", remote, "error", err)
			return
		}
		ciphertext := buf[:n]

		if len(ciphertext) < noise.TagSize {
			logger.Warn("undersized inbound frame", "remote", remote)
			continue
		}
		plaintext := make([]byte, len(ciphertext)-noise.TagSize)
		if _, err := transport.ReadMessage(ciphertext, plaintext); err != nil {
			logger.Warn("decrypt inbound frame", "remote", remote, "error", err)
			return
		}

		msg, err := payload.Decode(plaintext)
		if err != nil {
			logger.Warn("decode payload", "remote", remote, "error", err)
			continue
		}

		if msg.Kind == payload.KindRelay {
			forwarded, err := payload.Encode(payload.NewRelay(remote, msg.Relay.Dest, msg.Relay.Dat))
			if err != nil {
				logger.Error("re-encode relay payload", "error", err)
				continue
			}
			if err := registry.Send(msg.Relay.Dest, forwarded); err != nil {
				logger.Warn("relay to unknown peer", "dest", msg.Relay.Dest, "error", err)
			}
		}
	}
}
