// SPDX-License-Identifier: MIT
//
// shas-bench measures handshake and transport throughput, adapted from
// the teacher's benchmark/reference/main.go: the same urfave/cli
// subcommand shape, HdrHistogram latency recording, cheggaaa/pb progress
// bar and go-multierror error aggregation, but driving noise.Initiator /
// noise.Responder in memory, handing each flight's bytes straight to the
// peer stage, instead of the teacher's TLS-over-TCP HTTP harness (it
// measures the noise package itself, not a network path — see DESIGN.md).
package main

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/cheggaaa/pb/v3"
	"github.com/hashicorp/go-multierror"
	"github.com/urfave/cli/v2"

	"github.com/dungph/shas/noise"
)

const (
	defaultHandshakes = 10000
	defaultFrames     = 100000
	defaultFrameSize  = 1200
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	app := &cli.App{
		Name:  "shas-bench",
		Usage: "Benchmark Noise_IX_25519_ChaChaPoly_BLAKE2s handshakes and transport framing",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "handshakes", Value: defaultHandshakes, Usage: "number of handshakes to run"},
			&cli.IntFlag{Name: "frames", Value: defaultFrames, Usage: "number of transport frames to encrypt/decrypt"},
			&cli.IntFlag{Name: "frame-size", Value: defaultFrameSize, Usage: "plaintext size of each transport frame"},
			&cli.IntFlag{Name: "concurrency", Value: 8, Usage: "number of concurrent workers"},
		},
		Action: func(c *cli.Context) error {
			if err := runHandshakeBenchmark(logger, c.Int("handshakes"), c.Int("concurrency")); err != nil {
				return fmt.Errorf("handshake benchmark: %w", err)
			}
			if err := runTransportBenchmark(logger, c.Int("frames"), c.Int("frame-size"), c.Int("concurrency")); err != nil {
				return fmt.Errorf("transport benchmark: %w", err)
			}
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error("benchmark failed", "error", err)
		os.Exit(1)
	}
}

func randomKey() [noise.DHLen]byte {
	var k [noise.DHLen]byte
	if _, err := rand.Read(k[:]); err != nil {
		panic(err)
	}
	return k
}

func oneHandshake() error {
	ie, is, re, rs := randomKey(), randomKey(), randomKey(), randomKey()

	init1 := noise.Initiator(ie, is, nil)
	resp1 := noise.Responder(re, rs, nil)

	msg1 := make([]byte, 64)
	n1, init2, err := init1.WriteMessage(nil, msg1)
	if err != nil {
		return fmt.Errorf("flight1 write: %w", err)
	}

	_, resp2, err := resp1.ReadMessage(msg1[:n1], nil)
	if err != nil {
		return fmt.Errorf("flight1 read: %w", err)
	}

	msg2 := make([]byte, 96)
	n2, _, err := resp2.WriteMessage(nil, msg2)
	if err != nil {
		return fmt.Errorf("flight2 write: %w", err)
	}

	if _, _, err := init2.ReadMessage(msg2[:n2], nil); err != nil {
		return fmt.Errorf("flight2 read: %w", err)
	}
	return nil
}

func runHandshakeBenchmark(logger *slog.Logger, count, concurrency int) error {
	logger.Info("running handshake benchmark", "count", count, "concurrency", concurrency)

	var errsMu sync.Mutex
	var errs *multierror.Error

	var durationsMu sync.Mutex
	durations := hdrhistogram.New(1, time.Minute.Microseconds(), 3)

	bar := pb.StartNew(count)
	defer bar.Finish()

	jobs := make(chan struct{}, count)
	for i := 0; i < count; i++ {
		jobs <- struct{}{}
	}
	close(jobs)

	var wg sync.WaitGroup
	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				t0 := time.Now()
				err := oneHandshake()
				elapsed := time.Since(t0)
				bar.Increment()

				if err != nil {
					errsMu.Lock()
					errs = multierror.Append(errs, err)
					errsMu.Unlock()
					continue
				}

				durationsMu.Lock()
				_ = durations.RecordValue(elapsed.Microseconds())
				durationsMu.Unlock()
			}
		}()
	}
	wg.Wait()
	total := time.Since(start)

	if errs != nil {
		return errs.ErrorOrNil()
	}

	fmt.Printf("handshakes: %d in %.2fs (%.0f/s)\n", count, total.Seconds(), float64(count)/total.Seconds())
	fmt.Printf("  median: %dus  p95: %dus  p99: %dus  max: %dus\n",
		durations.ValueAtQuantile(50), durations.ValueAtQuantile(95),
		durations.ValueAtQuantile(99), durations.Max())
	return nil
}

func runTransportBenchmark(logger *slog.Logger, count, frameSize, concurrency int) error {
	logger.Info("running transport benchmark", "frames", count, "frameSize", frameSize, "concurrency", concurrency)

	ie, is, re, rs := randomKey(), randomKey(), randomKey(), randomKey()
	init1 := noise.Initiator(ie, is, nil)
	resp1 := noise.Responder(re, rs, nil)

	msg1 := make([]byte, 64)
	n1, init2, err := init1.WriteMessage(nil, msg1)
	if err != nil {
		return err
	}
	_, resp2, err := resp1.ReadMessage(msg1[:n1], nil)
	if err != nil {
		return err
	}
	msg2 := make([]byte, 96)
	n2, respT, err := resp2.WriteMessage(nil, msg2)
	if err != nil {
		return err
	}
	var initT noise.Transport
	if _, initT, err = init2.ReadMessage(msg2[:n2], nil); err != nil {
		return err
	}

	plaintext := make([]byte, frameSize)
	if _, err := rand.Read(plaintext); err != nil {
		return err
	}

	bar := pb.StartNew(count)
	defer bar.Finish()

	start := time.Now()
	out := make([]byte, frameSize+noise.TagSize)
	recovered := make([]byte, frameSize)
	for i := 0; i < count; i++ {
		if _, err := initT.WriteMessage(plaintext, out); err != nil {
			return fmt.Errorf("frame %d encrypt: %w", i, err)
		}
		if _, err := respT.ReadMessage(out, recovered); err != nil {
			return fmt.Errorf("frame %d decrypt: %w", i, err)
		}
		bar.Increment()
	}
	elapsed := time.Since(start)

	mbPerSec := float64(count*frameSize) / elapsed.Seconds() / (1 << 20)
	fmt.Printf("transport: %d frames of %d bytes in %.2fs (%.1f MB/s)\n", count, frameSize, elapsed.Seconds(), mbPerSec)
	return nil
}
