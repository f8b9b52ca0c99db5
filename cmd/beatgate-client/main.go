// ABOUTME: Command-line client for the beatgate gateway
// ABOUTME: Connects directly or via mDNS, logs each tempo estimate and optionally plays the audio
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Resonate-Protocol/beatgate/internal/config"
	"github.com/Resonate-Protocol/beatgate/internal/discovery"
	"github.com/Resonate-Protocol/beatgate/internal/logging"
	"github.com/Resonate-Protocol/beatgate/internal/version"
	"github.com/Resonate-Protocol/beatgate/pkg/audio/decode"
	"github.com/Resonate-Protocol/beatgate/pkg/audio/output"
	"github.com/Resonate-Protocol/beatgate/pkg/protocol"
	"go.uber.org/zap"
)

var (
	serverAddr      = flag.String("server", "", "Gateway address host:port (skip mDNS)")
	path            = flag.String("path", "/", "Gateway WebSocket path")
	discoverTimeout = flag.Duration("discover-timeout", 10*time.Second, "How long to browse mDNS for a gateway")
	play            = flag.Bool("play", false, "Play the relayed audio")
	volume          = flag.Int("volume", 100, "Playback volume (0-100)")
	limit           = flag.Int("n", 0, "Stop after this many results (0 for no limit)")
	debug           = flag.Bool("debug", false, "Enable debug logging")
	showVersion     = flag.Bool("version", false, "Print version and exit")
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

	addr, wsPath := *serverAddr, *path
	if addr == "" {
		server := discover(logger)
		if server == nil {
			logger.Fatal("no gateway found", zap.Duration("timeout", *discoverTimeout))
		}
		addr, wsPath = server.Addr(), server.Path
	}

	client := protocol.NewClient(protocol.Config{
		ServerAddr: addr,
		Path:       wsPath,
		Logger:     logger,
	})
	if err := client.Connect(); err != nil {
		logger.Fatal("failed to connect", zap.Error(err))
	}
	defer client.Close()

	format := client.Format()
	decoder, err := decode.NewPCM(format)
	if err != nil && *play {
		logger.Fatal("cannot play stream", zap.String("format", format.String()), zap.Error(err))
	}

	var out *output.Oto
	if *play {
		out = output.NewOto(logger)
		out.SetVolume(*volume)
		if err := out.Open(format.SampleRate, format.Channels); err != nil {
			logger.Fatal("failed to open audio output", zap.Error(err))
		}
		defer out.Close()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	received := 0
	for {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, closing", zap.String("signal", sig.String()))
			_ = client.Shutdown("client exit")
			<-client.Done()
			return
		case frame, ok := <-client.Results:
			if !ok {
				if err := client.Err(); err != nil {
					logger.Fatal("connection ended", zap.Error(err))
				}
				logger.Info("stream ended", zap.Int("results", received))
				return
			}
			received++
			logger.Info("tempo",
				zap.Int("window", received),
				zap.Float64("bpm", frame.BPM),
				zap.Int("pcm_bytes", len(frame.PCM)),
			)

			if out != nil {
				samples, err := decoder.Decode(frame.PCM)
				if err != nil {
					logger.Warn("failed to decode window", zap.Error(err))
				} else if err := out.Write(samples); err != nil {
					logger.Warn("playback failed", zap.Error(err))
				}
			}

			if *limit > 0 && received >= *limit {
				_ = client.Shutdown("done")
				<-client.Done()
				return
			}
		}
	}
}

// discover browses mDNS and returns the first gateway found, or nil on timeout
func discover(logger *zap.Logger) *discovery.ServerInfo {
	mgr := discovery.NewManager(discovery.Config{Logger: logger})
	defer mgr.Stop()

	logger.Info("browsing for gateways", zap.String("service", discovery.ServiceType))
	mgr.Browse()

	select {
	case server := <-mgr.Servers():
		return server
	case <-time.After(*discoverTimeout):
		return nil
	}
}
