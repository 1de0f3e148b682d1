package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"hovertrail.io/engine/protocol"
)

// HealthService is the service name reported by the gRPC health server.
const HealthService = "hovertrail.Game"

const shutdownTimeout = 5 * time.Second

// Server wraps a Game with its HTTP/WebSocket front end and a gRPC health
// service.
type Server struct {
	Game *Game

	cfg    Config
	logger *slog.Logger
	health *health.Server
	ws     *wsHandler

	mu      sync.Mutex
	addr    net.Addr
	cancel  context.CancelFunc
	stopped chan error
}

func NewServer(cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	game := NewGame(cfg, logger.With("component", "game"))
	return &Server{
		Game:   game,
		cfg:    cfg,
		logger: logger,
		health: health.NewServer(),
		ws:     newWSHandler(game, logger.With("component", "ws")),
	}
}

// Handler returns the HTTP routes: /ws, /stats, /dashboard, /schema,
// /healthz and /ping, plus the static client when StaticDir is set.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  slog.NewLogLogger(s.logger.Handler(), slog.LevelDebug),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))

	r.Handle("/ws", s.ws)
	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		HandleStats(s.Game, w, r)
	})
	r.Get("/dashboard", HandleDashboard)
	r.Get("/schema", func(w http.ResponseWriter, r *http.Request) {
		b, err := protocol.SchemaJSON()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/schema+json")
		w.Write(b)
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if st := s.Game.State(); st != StateRunning {
			http.Error(w, st.String(), http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	})
	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	if s.cfg.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(s.cfg.StaticDir)))
	}
	return r
}

// Run listens on the configured addresses and serves until ctx is cancelled
// or the game loop fails.
func (s *Server) Run(ctx context.Context) error {
	httpLn, grpcLn, err := s.listen()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.addr = httpLn.Addr()
	s.mu.Unlock()
	return s.serve(ctx, httpLn, grpcLn)
}

// Start runs the server in the background. Use Stop to shut it down. A
// server that was stopped starts again with a fresh game.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrAlreadyStarted
	}
	httpLn, grpcLn, err := s.listen()
	if err != nil {
		return err
	}
	if s.Game.State() != StateIdle {
		s.Game = NewGame(s.cfg, s.logger.With("component", "game"))
		s.ws = newWSHandler(s.Game, s.logger.With("component", "ws"))
	}
	s.addr = httpLn.Addr()
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.stopped = make(chan error, 1)
	go func() { s.stopped <- s.serve(ctx, httpLn, grpcLn) }()
	return nil
}

// Stop shuts down a server started with Start and waits for it to exit.
// Stopping a server that is not running is a no-op.
func (s *Server) Stop() error {
	s.mu.Lock()
	cancel, stopped := s.cancel, s.stopped
	s.cancel, s.stopped = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	return <-stopped
}

// Running reports whether the current game loop is running.
func (s *Server) Running() bool {
	return s.game().State() == StateRunning
}

// Addr is the bound HTTP address, nil before the server is listening.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// GetStatsJSON returns the current game stats as a JSON string.
func (s *Server) GetStatsJSON() string {
	b, _ := json.Marshal(s.game().GetStats())
	return string(b)
}

func (s *Server) game() *Game {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Game
}

// listen opens both listeners without touching s.mu.
func (s *Server) listen() (httpLn, grpcLn net.Listener, err error) {
	httpLn, err = net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return nil, nil, fmt.Errorf("listen http: %w", err)
	}
	if s.cfg.GRPCAddr != "" {
		grpcLn, err = net.Listen("tcp", s.cfg.GRPCAddr)
		if err != nil {
			httpLn.Close()
			return nil, nil, fmt.Errorf("listen grpc: %w", err)
		}
	}
	return httpLn, grpcLn, nil
}

// serve owns both listeners. grpcLn may be nil.
func (s *Server) serve(ctx context.Context, httpLn, grpcLn net.Listener) error {
	eg, ctx := errgroup.WithContext(ctx)

	httpSrv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	var grpcSrv *grpc.Server
	if grpcLn != nil {
		grpcSrv = grpc.NewServer()
		healthpb.RegisterHealthServer(grpcSrv, s.health)
	}
	s.health.Resume()
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(HealthService, healthpb.HealthCheckResponse_SERVING)
	s.logStartup(httpLn.Addr(), grpcLn)

	eg.Go(func() error {
		err := s.Game.Run(ctx)
		s.health.Shutdown()
		return err
	})
	eg.Go(func() error {
		if err := httpSrv.Serve(httpLn); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	if grpcSrv != nil {
		eg.Go(func() error {
			if err := grpcSrv.Serve(grpcLn); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc: %w", err)
			}
			return nil
		})
	}
	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if grpcSrv != nil {
			grpcSrv.Stop()
		}
		return httpSrv.Shutdown(shutdownCtx)
	})

	err := eg.Wait()
	s.logger.Info("server stopped", "err", err)
	return err
}

func (s *Server) logStartup(httpAddr net.Addr, grpcLn net.Listener) {
	attrs := []any{
		"version", s.cfg.Version,
		"http", httpAddr.String(),
		"ws", fmt.Sprintf("ws://%s/ws", httpAddr),
		"dashboard", fmt.Sprintf("http://%s/dashboard", httpAddr),
	}
	if grpcLn != nil {
		attrs = append(attrs, "grpc", grpcLn.Addr().String())
	}
	if s.cfg.StaticDir != "" {
		attrs = append(attrs, "static", s.cfg.StaticDir)
	}
	s.logger.Info("hovertrail server starting", attrs...)
}
