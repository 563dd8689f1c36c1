package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/portunus-id/portunus"
	"github.com/portunus-id/portunus/internal/ids"
)

const requestIDHeader = "X-Request-ID"

// Observer receives one sample per served request.
type Observer interface {
	ObserveHTTP(method, route string, status int, elapsed time.Duration)
}

// OutcomeConfig configures [LogOutcome].
type OutcomeConfig struct {
	Log      *zap.Logger
	Observer Observer
	// TrustProxy takes the client IP from the first X-Forwarded-For entry.
	TrustProxy bool
}

type outcomeContextKey struct{}

type outcome struct {
	mu   sync.Mutex
	user string
}

// NoteUser records who a request acted for so the outcome line names them.
// It is a no-op outside LogOutcome.
func NoteUser(ctx context.Context, email string) {
	o, ok := ctx.Value(outcomeContextKey{}).(*outcome)
	if !ok {
		return
	}
	o.mu.Lock()
	o.user = email
	o.mu.Unlock()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

// LogOutcome logs one line per request with the event name, status, client
// IP, acting user and duration, and feeds the Observer. It also assigns a
// request ID and stores the client IP on the request context for the
// engine.
func LogOutcome(cfg OutcomeConfig, event string) func(http.Handler) http.Handler {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get(requestIDHeader)
			if requestID == "" || len(requestID) > 64 {
				requestID = ids.RequestID()
			}
			w.Header().Set(requestIDHeader, requestID)

			ip := ClientIP(r, cfg.TrustProxy)
			o := &outcome{}
			ctx := context.WithValue(r.Context(), outcomeContextKey{}, o)
			ctx = portunus.WithClientIP(ctx, ip)
			ctx = portunus.WithRequestID(ctx, requestID)

			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r.WithContext(ctx))
			if rec.status == 0 {
				rec.status = http.StatusOK
			}
			elapsed := time.Since(start)

			o.mu.Lock()
			user := o.user
			o.mu.Unlock()

			fields := []zap.Field{
				zap.String("event_type", event),
				zap.Int("status_code", rec.status),
				zap.String("ip", ip),
				zap.String("request_id", requestID),
				zap.Duration("duration", elapsed),
			}
			if user != "" {
				fields = append(fields, zap.String("user", user))
			}
			switch {
			case rec.status >= 500:
				log.Error("request failed", fields...)
			case rec.status >= 400:
				log.Warn("request rejected", fields...)
			default:
				log.Info("request served", fields...)
			}

			if cfg.Observer != nil {
				cfg.Observer.ObserveHTTP(r.Method, routeTemplate(r), rec.status, elapsed)
			}
		})
	}
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// ClientIP returns the request's client address without the port.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
				return ip.String()
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
