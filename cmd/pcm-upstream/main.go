// ABOUTME: Entry point for the reference PCM upstream
// ABOUTME: Streams a WAV, MP3, FLAC file or a click track to gateway connections
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Resonate-Protocol/beatgate/internal/config"
	"github.com/Resonate-Protocol/beatgate/internal/logging"
	"github.com/Resonate-Protocol/beatgate/internal/source"
	"github.com/Resonate-Protocol/beatgate/internal/upstream"
	"github.com/Resonate-Protocol/beatgate/internal/version"
	"go.uber.org/zap"
)

var (
	addr        = flag.String("addr", ":5000", "Listen address")
	audioFile   = flag.String("file", "", "Audio file to stream (WAV, MP3, FLAC). If not specified, plays a click track")
	bpm         = flag.Float64("bpm", 120, "Click track tempo when no file is given")
	frames      = flag.Int("frames", upstream.DefaultFramesPerChunk, "Frames per binary chunk")
	noPace      = flag.Bool("no-pace", false, "Stream as fast as possible instead of in real time")
	debug       = flag.Bool("debug", false, "Enable debug logging")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	logCfg := config.Default().Logging
	logCfg.Format = "console"
	if *debug {
		logCfg.Level = "debug"
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	open := func() (source.Source, error) {
		if *audioFile == "" {
			return source.NewClickSource(source.ClickConfig{BPM: *bpm}), nil
		}
		return source.Open(*audioFile)
	}

	// Fail fast on an unreadable file instead of on first connection
	probe, err := open()
	if err != nil {
		logger.Fatal("failed to open source", zap.Error(err))
	}
	logger.Info("source ready",
		zap.String("title", probe.Title()),
		zap.String("format", probe.Format().String()),
	)
	_ = probe.Close()

	srv := &http.Server{
		Addr: *addr,
		Handler: upstream.New(upstream.Config{
			OpenSource:     open,
			FramesPerChunk: *frames,
			Realtime:       !*noPace,
			Logger:         logger,
		}),
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("shutting down", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	logger.Info("upstream listening", zap.String("addr", *addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("upstream stopped")
}
