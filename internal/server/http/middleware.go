package httpserver

import (
	"context"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/and161185/pill-monitor/internal/errs"
	"github.com/and161185/pill-monitor/internal/limiter"
)

// TokenVerifier validates bearer tokens and returns their subject.
type TokenVerifier interface {
	Verify(raw string) (string, error)
}

type ctxKey string

const subjectKey ctxKey = "pillmon.subject"

// WithSubject stores the authenticated subject in ctx.
func WithSubject(ctx context.Context, sub string) context.Context {
	return context.WithValue(ctx, subjectKey, sub)
}

// SubjectFromCtx returns the authenticated subject.
func SubjectFromCtx(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(subjectKey).(string)
	return s, ok && s != ""
}

func bearerToken(authHeader string) string {
	parts := strings.SplitN(strings.TrimSpace(authHeader), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func clientKey(r *http.Request) []byte {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return limiter.HashIP(host)
}

// Auth rejects requests without a valid bearer token. Websocket clients that cannot set
// headers may pass the token as the access_token query parameter. With a non-nil lim,
// clients that keep failing are blocked for a while; limiter errors do not block.
func Auth(v TokenVerifier, lim limiter.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := clientKey(r)
			if lim != nil {
				if ok, retry, err := lim.Allow(ctx, key); err == nil && !ok {
					w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())+1))
					writeError(w, errs.ErrRateLimited)
					return
				}
			}

			raw := bearerToken(r.Header.Get("Authorization"))
			if raw == "" {
				raw = r.URL.Query().Get("access_token")
			}
			sub, err := v.Verify(raw)
			if raw == "" || err != nil {
				if lim != nil {
					_, _, _ = lim.Failure(ctx, key)
				}
				writeError(w, errs.ErrUnauthorized)
				return
			}
			if lim != nil {
				_ = lim.Success(ctx, key)
			}
			next.ServeHTTP(w, r.WithContext(WithSubject(ctx, sub)))
		})
	}
}

// Logging writes one structured line per request, metadata only.
func Logging(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			sub, _ := SubjectFromCtx(r.Context())
			log.Info("http",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("dur", time.Since(start)),
				zap.String("remote", r.RemoteAddr),
				zap.String("request_id", chimw.GetReqID(r.Context())),
				zap.String("subject", sub),
			)
		})
	}
}

// Recover turns panics into 500 responses and logs the stack.
func Recover(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					log.Error("panic",
						zap.Any("reason", rec),
						zap.ByteString("stack", debug.Stack()),
						zap.String("path", r.URL.Path),
					)
					http.Error(w, "internal", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
