package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-settings/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-settings/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-settings/internal/settings"
)

const gracefulShutdownTimeout = 10 * time.Second

// Runner serialises registry access. *settings.Queue satisfies it.
type Runner interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// History reads the change log. *settings.SQLiteChangeLog satisfies it.
type History interface {
	Recent(ctx context.Context, key string, limit int) ([]settings.ChangeRecord, error)
}

// AttributeFunc runs fn with registry changes attributed to source.
// It is called on the queue.
type AttributeFunc func(source string, fn func() error) error

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Logger   *logging.Logger
	Registry *settings.Registry
	Queue    Runner

	// History is optional; without it the history route answers 404.
	History History

	// Attribute is optional; without it changes keep whatever source the
	// registry's change hook assigns by default.
	Attribute AttributeFunc

	Version string
}

// Server is the HTTP and WebSocket API of a settings node. Handlers reach
// the registry only through the queue.
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	registry  *settings.Registry
	queue     Runner
	history   History
	attribute AttributeFunc
	version   string
	startTime time.Time
	server    *http.Server
	addr      net.Addr
	hub       *Hub
	cancel    context.CancelFunc // stops the hub
}

// New validates deps and builds an unstarted server.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if deps.Registry == nil {
		return nil, errors.New("settings registry is required")
	}
	if deps.Queue == nil {
		return nil, errors.New("registry queue is required")
	}

	attribute := deps.Attribute
	if attribute == nil {
		attribute = func(_ string, fn func() error) error { return fn() }
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		registry:  deps.Registry,
		queue:     deps.Queue,
		history:   deps.History,
		attribute: attribute,
		version:   deps.Version,
		startTime: time.Now(),
		hub:       NewHub(deps.Config.WebSocket, deps.Logger),
	}, nil
}

// SetAttribute sets how the server attributes its registry changes.
// The daemon calls it once the change hook owner (remote bridge or journal)
// exists, since that is created after the server. Call it before Start.
func (s *Server) SetAttribute(fn AttributeFunc) {
	if fn == nil {
		return
	}
	s.attribute = fn
}

// Start binds the listener, so address errors surface here, then serves
// in the background and runs the WebSocket hub until ctx ends or Close.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)))
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}

	hubCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.hub.Run(hubCtx)

	read := seconds(s.cfg.Timeouts.Read)
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       read,
		ReadHeaderTimeout: read,
		WriteTimeout:      seconds(s.cfg.Timeouts.Write),
		IdleTimeout:       seconds(s.cfg.Timeouts.Idle),
	}
	s.addr = ln.Addr()

	tls := s.cfg.TLS
	s.logger.Info("API server listening", "address", s.addr.String(), "tls", tls.Enabled)
	go func() {
		var err error
		if tls.Enabled {
			err = s.server.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = s.server.Serve(ln)
		}
		if !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server stopped", "error", err)
		}
	}()
	return nil
}

// Addr is the bound listener address, nil before Start.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Close stops the hub and shuts the server down, giving in-flight
// requests up to gracefulShutdownTimeout. It is a no-op before Start.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	s.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()
	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck fails until Start has succeeded.
func (s *Server) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("api health check: %w", err)
	}
	if s.server == nil {
		return errors.New("api server not started")
	}
	return nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// Hub returns the server's WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// NotifyChange broadcasts a value change to WebSocket subscribers.
//
// It reads the registry, so it must run where registry changes run: install
// it as an observer of the registry's change hook.
func (s *Server) NotifyChange(id uint16, key, source string) {
	st, ok := s.registry.Lookup(id)
	if !ok {
		return
	}
	s.hub.Broadcast(ChannelSettingChanged, key, ChangeEvent{
		ID:     id,
		Key:    key,
		Type:   st.Type().String(),
		Value:  textValue(s.registry, st),
		Source: source,
	})
}
