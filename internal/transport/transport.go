// Package transport holds the client-side http.RoundTripper middleware the
// API client is built on.
package transport

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"sharedledger.org/internal/ids"
	"sharedledger.org/internal/obs"
)

const (
	RequestIDHeader = "X-Request-ID"
	ClientIDHeader  = "X-Client-ID"
)

// RoundTripperFunc adapts a function to http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// Middleware wraps a RoundTripper.
type Middleware func(http.RoundTripper) http.RoundTripper

// Chain wraps base so that mws[0] sees the request first.
func Chain(base http.RoundTripper, mws ...Middleware) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	for i := len(mws) - 1; i >= 0; i-- {
		base = mws[i](base)
	}
	return base
}

// RequestID stamps each request with a ULID unless one is already set.
func RequestID() Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if req.Header.Get(RequestIDHeader) != "" {
				return next.RoundTrip(req)
			}
			r := req.Clone(req.Context())
			r.Header.Set(RequestIDHeader, ids.NewRequestID())
			return next.RoundTrip(r)
		})
	}
}

// ClientID identifies this client process on every request.
func ClientID(id string) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			r := req.Clone(req.Context())
			r.Header.Set(ClientIDHeader, id)
			return next.RoundTrip(r)
		})
	}
}

// RateLimit blocks until the token bucket admits the request or its
// context ends. A non-positive perSecond disables limiting.
func RateLimit(perSecond float64, burst int) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		if perSecond <= 0 {
			return next
		}
		if burst < 1 {
			burst = 1
		}
		lim := rate.NewLimiter(rate.Limit(perSecond), burst)
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if err := lim.Wait(req.Context()); err != nil {
				return nil, err
			}
			return next.RoundTrip(req)
		})
	}
}

// Observe records per-request metrics and a debug log line.
func Observe(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = obs.Logger()
	}
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			path := obs.CanonicalPath(req.URL.Path)
			start := time.Now()
			resp, err := next.RoundTrip(req)
			elapsed := time.Since(start)

			status := "error"
			if resp != nil {
				status = strconv.Itoa(resp.StatusCode)
			}
			obs.ClientRequests.WithLabelValues(req.Method, path, status).Inc()
			obs.ClientRequestDuration.WithLabelValues(req.Method, path).Observe(elapsed.Seconds())

			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.String("path", path),
				zap.String("status", status),
				zap.Duration("elapsed", elapsed),
				zap.String("request_id", req.Header.Get(RequestIDHeader)),
			}
			if err != nil {
				logger.Warn("api.request", append(fields, zap.Error(err))...)
			} else {
				logger.Debug("api.request", fields...)
			}
			return resp, err
		})
	}
}

// Bearer adds an Authorization header from a static token. An empty token
// leaves requests untouched.
func Bearer(token string) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		if token == "" {
			return next
		}
		return &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   next,
		}
	}
}
