// ABOUTME: Gateway server accepting client WebSocket sessions
// ABOUTME: Dials the upstream per connection, runs a relay session and serves health and metrics
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Resonate-Protocol/beatgate/internal/analysis"
	"github.com/Resonate-Protocol/beatgate/internal/config"
	"github.com/Resonate-Protocol/beatgate/internal/discovery"
	"github.com/Resonate-Protocol/beatgate/internal/metrics"
	"github.com/Resonate-Protocol/beatgate/internal/session"
	"github.com/Resonate-Protocol/beatgate/internal/version"
	cws "github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server represents the gateway
type Server struct {
	config   *config.Config
	logger   *zap.Logger
	analyzer analysis.Analyzer
	serverID string

	// WebSocket upgrader for the client-facing leg
	upgrader websocket.Upgrader

	// HTTP server
	httpServer *http.Server
	mux        *http.ServeMux

	// Live sessions
	sessions   map[string]*session.Session
	sessionsMu sync.RWMutex

	// mDNS discovery
	mdnsManager *discovery.Manager

	// TUI
	tui       *ServerTUI
	startTime time.Time

	// Control
	ctx        context.Context // cancelled to end every live session
	cancel     context.CancelFunc
	stopChan   chan struct{}
	stopOnce   sync.Once
	shutdownMu sync.RWMutex
	isShutdown bool
	wg         sync.WaitGroup
}

// New creates a gateway. The analyzer is shared by every session.
func New(cfg *config.Config, analyzer analysis.Analyzer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		config:   cfg,
		logger:   logger,
		analyzer: analyzer,
		serverID: uuid.New().String(),
		mux:      http.NewServeMux(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin != "" {
					logger.Debug("accepting WebSocket from origin", zap.String("origin", origin))
				}
				return true
			},
		},
		sessions:  make(map[string]*session.Session),
		startTime: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
		stopChan:  make(chan struct{}),
	}

	s.mux.HandleFunc("/healthz", s.handleHealth)
	if cfg.Metrics.Enabled {
		s.mux.Handle(cfg.Metrics.Path, promhttp.Handler())
	}
	s.mux.HandleFunc(cfg.Server.Path, s.handleWebSocket)

	return s
}

// Handler returns the HTTP handler serving sessions, health and metrics
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves until Stop is called, the TUI quits or the listener fails
func (s *Server) Start() error {
	if s.config.Server.UseTUI {
		s.tui = NewServerTUI(s.config.Server.Name, s.config.Server.ListenAddr, s.config.Upstream.URL)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.tui.Start(); err != nil {
				s.logger.Error("TUI failed", zap.Error(err))
			}
		}()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.refreshTUI()
		}()
	}

	s.logger.Info("gateway starting",
		zap.String("name", s.config.Server.Name),
		zap.String("id", s.serverID),
		zap.String("version", version.Version),
		zap.String("listen", s.config.Server.ListenAddr),
		zap.String("upstream", s.config.Upstream.URL))

	listener, err := net.Listen("tcp", s.config.Server.ListenAddr)
	if err != nil {
		s.Stop()
		s.shutdown()
		return fmt.Errorf("failed to listen on %s: %w", s.config.Server.ListenAddr, err)
	}

	if s.config.Server.EnableMDNS {
		s.mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Server.Name,
			Port:        listenerPort(listener),
			Path:        s.config.Server.Path,
			Logger:      s.logger,
		})
		if err := s.mdnsManager.Advertise(); err != nil {
			s.logger.Warn("failed to start mDNS advertisement", zap.Error(err))
		}
	}

	s.httpServer = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	s.logger.Info("WebSocket gateway listening", zap.String("addr", listener.Addr().String()))

	var serverErr error
	var tuiQuitChan <-chan struct{}
	if s.tui != nil {
		tuiQuitChan = s.tui.QuitChan()
	}

	select {
	case <-s.stopChan:
		s.logger.Info("gateway shutting down")
	case <-tuiQuitChan:
		s.logger.Info("TUI quit requested, shutting down")
	case err := <-errChan:
		s.logger.Error("HTTP server error", zap.Error(err))
		serverErr = err
	}

	s.Stop()
	s.shutdown()

	if serverErr != nil {
		return fmt.Errorf("HTTP server failed: %w", serverErr)
	}
	return nil
}

func (s *Server) shutdown() {
	// Reject new connections
	s.shutdownMu.Lock()
	s.isShutdown = true
	s.shutdownMu.Unlock()

	if s.tui != nil {
		s.tui.Stop()
	}
	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}

	// Hijacked connections are not tracked by the HTTP server; end them here.
	s.cancel()

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Warn("HTTP server shutdown error", zap.Error(err))
		}
	}

	s.wg.Wait()
	s.logger.Info("gateway stopped cleanly")
}

// Stop asks Start to return
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// Close ends every live session and waits for them. Used when the gateway is
// served through Handler rather than Start.
func (s *Server) Close() {
	s.Stop()
	s.shutdownMu.Lock()
	s.isShutdown = true
	s.shutdownMu.Unlock()
	s.cancel()
	s.wg.Wait()
}

// SessionCount returns the number of live sessions
func (s *Server) SessionCount() int {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()
	return len(s.sessions)
}

// handleWebSocket dials the upstream, upgrades the client and runs a session.
// The upstream is dialed first so a failed dial is reported as a plain HTTP
// error and no session is exposed to the client.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	if s.isShutdown {
		s.shutdownMu.RUnlock()
		http.Error(w, "gateway shutting down", http.StatusServiceUnavailable)
		return
	}
	s.wg.Add(1)
	s.shutdownMu.RUnlock()
	defer s.wg.Done()

	logger := s.logger.With(zap.String("remote", r.RemoteAddr))

	dialCtx, cancel := context.WithTimeout(s.ctx, s.config.Upstream.DialTimeout)
	upstream, _, err := cws.Dial(dialCtx, s.config.Upstream.URL, nil)
	cancel()
	if err != nil {
		metrics.UpstreamDialFailuresTotal.Inc()
		logger.Warn("upstream dial failed", zap.String("upstream", s.config.Upstream.URL), zap.Error(err))
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
		return
	}
	upstream.SetReadLimit(s.config.Upstream.ReadLimit)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied with an HTTP error
		logger.Warn("WebSocket upgrade error", zap.Error(err))
		upstream.Close(cws.StatusGoingAway, "client upgrade failed")
		return
	}

	id := uuid.New().String()
	sess, err := session.New(id, r.RemoteAddr, conn, upstream, s.analyzer, s.sessionConfig(), s.logger)
	if err != nil {
		logger.Error("failed to create session", zap.Error(err))
		conn.Close()
		upstream.CloseNow()
		return
	}

	s.sessionsMu.Lock()
	s.sessions[id] = sess
	s.sessionsMu.Unlock()
	metrics.SessionsTotal.Inc()
	metrics.ActiveSessions.Inc()
	s.updateTUI()

	err = sess.Run(s.ctx)

	s.sessionsMu.Lock()
	delete(s.sessions, id)
	s.sessionsMu.Unlock()
	metrics.ActiveSessions.Dec()
	metrics.SessionEndsTotal.WithLabelValues(session.Outcome(err)).Inc()
	s.updateTUI()
}

func (s *Server) sessionConfig() session.Config {
	return session.Config{
		WindowSize:     s.config.Window.WindowSize,
		SlideSize:      s.config.Window.SlideSize,
		PCMCapacity:    s.config.Window.PCMCapacity,
		WindowCapacity: s.config.Window.WindowCapacity,
		WriteTimeout:   s.config.Server.WriteTimeout,
		PingInterval:   s.config.Server.PingInterval,
	}
}

type healthResponse struct {
	Status         string  `json:"status"`
	ID             string  `json:"id"`
	Version        string  `json:"version"`
	ActiveSessions int     `json:"active_sessions"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	s.shutdownMu.RLock()
	if s.isShutdown {
		status = "shutting_down"
	}
	s.shutdownMu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(healthResponse{
		Status:         status,
		ID:             s.serverID,
		Version:        version.Version,
		ActiveSessions: s.SessionCount(),
		UptimeSeconds:  time.Since(s.startTime).Seconds(),
	})
}

func listenerPort(l net.Listener) int {
	_, port, err := net.SplitHostPort(l.Addr().String())
	if err != nil {
		return 0
	}
	p, _ := strconv.Atoi(port)
	return p
}
