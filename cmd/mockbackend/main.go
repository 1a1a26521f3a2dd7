// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package main runs a fake Lingshu backend for trying the client without
// a GPU. It echoes every prompt back as a stream.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/lingshu-tui/internal/logging"
	"github.com/jeranaias/lingshu-tui/internal/mockbackend"
)

var (
	addr       string
	loaded     bool
	gpuName    string
	chunkDelay time.Duration
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "mockbackend",
	Short: "Serve a fake Lingshu backend",
	Long: `mockbackend serves the Lingshu HTTP API with an echo model: every prompt
comes back as "You said: <prompt>", streamed word by word.

  mockbackend --loaded --chunk-delay 80ms
  lingshu --backend http://127.0.0.1:5000`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&addr, "addr", "127.0.0.1:5000", "listen address")
	flags.BoolVar(&loaded, "loaded", false, "start with the model loaded")
	flags.StringVar(&gpuName, "gpu", "", "GPU name to report (empty reports no GPU)")
	flags.DurationVar(&chunkDelay, "chunk-delay", 50*time.Millisecond, "pause between streamed chunks")
	flags.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}

func run(cmd *cobra.Command, _ []string) error {
	closer, err := logging.Configure(logging.Options{Level: logLevel})
	if err != nil {
		return err
	}
	defer closer.Close()
	logger := logging.With("mockbackend")

	opts := []mockbackend.Option{
		mockbackend.WithModelLoaded(loaded),
		mockbackend.WithChunkDelay(chunkDelay),
	}
	if gpuName != "" {
		opts = append(opts, mockbackend.WithGPU(gpuName))
	}

	logger.Info("listening", "addr", addr, "loaded", loaded, "chunk_delay", chunkDelay)
	err = mockbackend.New(opts...).Start(cmd.Context(), addr)
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	logger.Info("stopped")
	return err
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
