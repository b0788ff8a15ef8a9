// Package gateway exposes a Router's stream over HTTP and WebSocket.
//
// Clients publish into broker topics, long-poll for the first delivery of
// an id, follow an id live over a WebSocket, or read the last value
// recorded for an id.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/time/rate"

	"github.com/miladsoleymani/idflow/core"
	"github.com/miladsoleymani/idflow/prefs"
)

// Router is the part of a *core.Router the gateway uses.
type Router interface {
	Publish(ctx context.Context, topic string, msg core.Message) error
	Stream() *core.Stream[core.Delivery]
	// CorrelationHeader names the header published messages carry their
	// id in.
	CorrelationHeader() string
}

// Config configures a Server. Zero fields take defaults.
type Config struct {
	Addr string `yaml:"addr"`

	// RateLimit is publishes per second per client host. Zero disables it.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`

	// TakeTimeout bounds /v1/take when the request has no timeout.
	TakeTimeout time.Duration `yaml:"take_timeout"`
	// MaxTakeTimeout caps the timeout a client may ask for.
	MaxTakeTimeout time.Duration `yaml:"max_take_timeout"`

	LastValueTTL time.Duration `yaml:"last_value_ttl"`
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 1
	}
	if c.TakeTimeout <= 0 {
		c.TakeTimeout = 30 * time.Second
	}
	if c.MaxTakeTimeout <= 0 {
		c.MaxTakeTimeout = 5 * time.Minute
	}
	if c.LastValueTTL <= 0 {
		c.LastValueTTL = 10 * time.Minute
	}
	return c
}

// Server serves the gateway endpoints.
type Server struct {
	log    *slog.Logger
	router Router
	store  *prefs.Store
	cfg    Config

	last     *ttlcache.Cache[string, Entry]
	limiters *ttlcache.Cache[string, *rate.Limiter]
	upgrader websocket.Upgrader
	stats    func() any
	mux      *http.ServeMux
}

// Entry is a delivery as the gateway reports it.
type Entry struct {
	ID      string            `json:"id"`
	Topic   string            `json:"topic"`
	Value   []byte            `json:"value"`
	Headers map[string]string `json:"headers,omitempty"`
	At      time.Time         `json:"at"`
}

func newEntry(m core.Tagged[core.Delivery]) Entry {
	return Entry{
		ID:      m.ID,
		Topic:   m.Payload.Topic,
		Value:   m.Payload.Message.Value(),
		Headers: m.Payload.Message.Headers(),
		At:      time.Now().UTC(),
	}
}

// New creates a Server. store may be nil, in which case last values live
// only in memory.
func New(log *slog.Logger, router Router, store *prefs.Store, cfg Config) *Server {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	cfg = cfg.withDefaults()

	s := &Server{
		log:    log,
		router: router,
		store:  store,
		cfg:    cfg,
		last: ttlcache.New(
			ttlcache.WithTTL[string, Entry](cfg.LastValueTTL),
			ttlcache.WithDisableTouchOnHit[string, Entry](),
		),
		limiters: ttlcache.New(
			ttlcache.WithTTL[string, *rate.Limiter](time.Minute),
		),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				log.Debug("WebSocket CheckOrigin called", "origin", r.Header.Get("Origin"), "host", r.Host)
				return true
			},
		},
		mux: http.NewServeMux(),
	}
	s.stats = func() any {
		return map[string]any{"published": router.Stream().Published()}
	}

	s.mux.Handle("POST /v1/publish/{topic}", s.rateLimit(http.HandlerFunc(s.publishHandler)))
	s.mux.HandleFunc("GET /v1/take/{id}", s.takeHandler)
	s.mux.HandleFunc("GET /v1/last/{id}", s.lastHandler)
	s.mux.HandleFunc("GET /v1/ws/{id}", s.wsHandler)
	s.mux.HandleFunc("GET /v1/stats", s.statsHandler)

	return s
}

// SetStats replaces what /v1/stats reports. fn must be safe for
// concurrent use.
func (s *Server) SetStats(fn func() any) {
	s.stats = fn
}

// Handler returns the gateway's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run serves on the configured address and records last values until ctx
// is cancelled, then shuts the server down.
func (s *Server) Run(ctx context.Context) error {
	sub := s.router.Stream().Subscribe()

	go s.last.Start()
	defer s.last.Stop()
	go s.limiters.Start()
	defer s.limiters.Stop()

	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- s.record(ctx, sub)
	}()
	go func() {
		s.log.Info("Gateway listening", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("idflow/gateway: serve: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("idflow/gateway: shutdown: %w", err)
	}
	return runErr
}

// Record keeps the last value of every id until ctx is cancelled or the
// stream is closed.
func (s *Server) Record(ctx context.Context) error {
	return s.record(ctx, s.router.Stream().Subscribe())
}

func (s *Server) record(ctx context.Context, sub *core.Subscription[core.Delivery]) error {
	err := sub.Each(ctx, func(m core.Tagged[core.Delivery]) error {
		rec := newEntry(m)
		s.last.Set(m.ID, rec, ttlcache.DefaultTTL)

		if s.store == nil {
			return nil
		}
		b, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := s.store.Set(lastKey(m.ID), b); err != nil {
			s.log.Warn("Could not persist last value", "id", m.ID, "err", err)
		}
		return nil
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// lookup returns the last value recorded for id.
func (s *Server) lookup(id string) (Entry, bool, error) {
	if item := s.last.Get(id); item != nil {
		return item.Value(), true, nil
	}
	if s.store == nil {
		return Entry{}, false, nil
	}

	b, err := s.store.Get(lastKey(id))
	if errors.Is(err, prefs.ErrNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}

	var rec Entry
	if err := json.Unmarshal(b, &rec); err != nil {
		return Entry{}, false, fmt.Errorf("idflow/gateway: decode last value for %q: %w", id, err)
	}
	return rec, true, nil
}

func lastKey(id string) string {
	return "last/" + id
}
