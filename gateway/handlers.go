package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/miladsoleymani/idflow/core"
	"github.com/miladsoleymani/idflow/httpx"
)

// IDHeader carries the correlation id of a published message.
const IDHeader = "X-Correlation-ID"

const maxBodySize = 1 << 20

// clientHost identifies the caller for rate limiting.
func clientHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) limiter(host string) *rate.Limiter {
	limit := rate.Limit(s.cfg.RateLimit)
	if s.cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	item, _ := s.limiters.GetOrSet(host, rate.NewLimiter(limit, s.cfg.RateBurst))
	return item.Value()
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := clientHost(r)
		if !s.limiter(host).Allow() {
			s.log.Warn("Rate limit exceeded", "path", r.URL.Path, "client", host)
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) publishHandler(w http.ResponseWriter, r *http.Request) {
	topic := r.PathValue("topic")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "could not read body", http.StatusBadRequest)
		return
	}

	id := r.Header.Get(IDHeader)
	if id == "" {
		id = uuid.NewString()
	}

	headers := httpx.Flatten(httpx.SafeHeaders(r.Header))
	delete(headers, http.CanonicalHeaderKey(IDHeader))
	headers[s.router.CorrelationHeader()] = id

	if err := s.router.Publish(r.Context(), topic, core.NewMessage(nil, body, headers)); err != nil {
		s.log.Error("Publish failed", "topic", topic, "id", id, "err", err)
		status := http.StatusBadGateway
		if errors.Is(err, core.ErrBrokerClosed) {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, err.Error(), status)
		return
	}

	host, _ := httpx.ParseHost(r.Host)
	s.log.Debug("Published", "topic", topic, "id", id, "host", host)
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

func (s *Server) takeHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	timeout := s.cfg.TakeTimeout
	if v := r.URL.Query().Get("timeout"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			http.Error(w, "invalid timeout", http.StatusBadRequest)
			return
		}
		timeout = min(d, s.cfg.MaxTakeTimeout)
	}

	// Attach before waiting so a delivery racing the request is seen.
	sub := s.router.Stream().Subscribe()

	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	m, err := sub.Take(ctx, func(got string, _ core.Delivery) bool { return got == id })
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, newEntry(m))
	case errors.Is(err, context.DeadlineExceeded):
		http.Error(w, http.StatusText(http.StatusGatewayTimeout), http.StatusGatewayTimeout)
	case errors.Is(err, core.ErrClosed):
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
	default:
		// Client went away.
		s.log.Debug("Take abandoned", "id", id, "err", err)
	}
}

func (s *Server) lastHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	rec, ok, err := s.lookup(id)
	if err != nil {
		s.log.Error("Last value lookup failed", "id", id, "err", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) statsHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.stats())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
