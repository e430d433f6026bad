package api

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/okian/pinnacle/pkg/metrics"
	"golang.org/x/time/rate"
)

// HTTP status code constants.
const (
	statusBadRequest      = 400
	statusNotFound        = 404
	statusTooManyRequests = 429
	statusInternalError   = 500
)

const (
	limiterIdleTTL  = 10 * time.Minute
	limiterCapacity = 10_000
)

// MetricsMiddleware wraps HTTP handlers to record Prometheus metrics.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		durationMs := float64(time.Since(start).Milliseconds())
		statusCodeStr := strconv.Itoa(wrapped.statusCode)

		metrics.RecordHTTPRequest(endpoint, r.Method, statusCodeStr)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, statusCodeStr, durationMs)

		if wrapped.statusCode >= statusBadRequest {
			metrics.RecordErrorByComponent("http", getErrorType(wrapped.statusCode))
		}
	}
}

// getErrorType returns a standardized error type based on HTTP status code.
func getErrorType(statusCode int) string {
	switch {
	case statusCode >= statusInternalError:
		return "server_error"
	case statusCode == statusTooManyRequests:
		return "rate_limit"
	case statusCode == statusNotFound:
		return "not_found"
	case statusCode >= statusBadRequest:
		return "client_error"
	default:
		return "unknown"
	}
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("failed to write response: %w", err)
	}
	return n, nil
}

// ipRateLimiter keeps one token bucket per client IP. Buckets of idle
// clients expire so the table stays bounded. Forwarding headers name the
// client only when the peer is a trusted proxy.
type ipRateLimiter struct {
	limit    rate.Limit
	burst    int
	trusted  []netip.Prefix
	limiters *ttlcache.Cache[string, *rate.Limiter]
}

func newIPRateLimiter(perMinute int, trusted []netip.Prefix) *ipRateLimiter {
	return &ipRateLimiter{
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   perMinute,
		trusted: trusted,
		limiters: ttlcache.New(
			ttlcache.WithTTL[string, *rate.Limiter](limiterIdleTTL),
			ttlcache.WithCapacity[string, *rate.Limiter](limiterCapacity),
		),
	}
}

func (l *ipRateLimiter) allow(ip string) bool {
	if item := l.limiters.Get(ip); item != nil {
		return item.Value().Allow()
	}
	item, _ := l.limiters.GetOrSet(ip, rate.NewLimiter(l.limit, l.burst))
	return item.Value().Allow()
}

// Middleware rejects requests over the per-IP rate with 429. A nil limiter
// lets every request through.
func (l *ipRateLimiter) Middleware(next http.HandlerFunc) http.HandlerFunc {
	if l == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(l.clientIP(r)) {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, codeRateLimited, ErrRateLimited)
			return
		}
		next(w, r)
	}
}

// clientIP returns the peer address unless the peer is a trusted proxy. Then
// X-Forwarded-For is walked from the right and the first untrusted hop wins,
// falling back to X-Real-IP.
func (l *ipRateLimiter) clientIP(r *http.Request) string {
	peer := remoteIP(r)
	addr, err := netip.ParseAddr(peer)
	if err != nil || !l.isTrusted(addr) {
		return peer
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				break
			}
			if !l.isTrusted(hop) || i == 0 {
				return hop.Unmap().String()
			}
		}
	}
	if xr, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return xr.Unmap().String()
	}
	return peer
}

func (l *ipRateLimiter) isTrusted(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range l.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
