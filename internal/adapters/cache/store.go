// Package cache provides the key/value store used for lead deduplication and
// short-lived read caching.
//
// Backends may fail. Store wraps a Backend and never does: every call is
// bounded by a timeout, and an unreachable, slow or missing backend reads as
// absent and silently skips writes. Callers therefore keep working with zero
// caching.
package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/okian/pinnacle/pkg/logger"
	"github.com/okian/pinnacle/pkg/metrics"
)

const defaultOpTimeout = 250 * time.Millisecond

// Backend is a raw key/value store with per-entry TTL.
type Backend interface {
	Exists(ctx context.Context, key string) (bool, error)
	// Get reports ok=false when the key is absent or expired.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Ping(ctx context.Context) error
	Close() error
}

// Store is the degrade-gracefully cache contract consumed by the core.
type Store struct {
	backend Backend
	timeout time.Duration
	logger  logger.Logger
}

// New wraps backend. A nil backend yields a disabled cache.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		timeout: defaultOpTimeout,
		logger:  logger.Get().Named("cache"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Disabled returns a Store that caches nothing.
func Disabled(opts ...Option) *Store {
	return New(nil, opts...)
}

// Enabled reports whether a backend is configured.
func (s *Store) Enabled() bool {
	return s != nil && s.backend != nil
}

// Exists reports whether key is present. Failures read as absent.
func (s *Store) Exists(ctx context.Context, key string) bool {
	if !s.Enabled() {
		metrics.RecordCacheOperation("exists", "disabled", 0)
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	ok, err := s.backend.Exists(ctx, key)
	if err != nil {
		s.absorb(ctx, "exists", key, err, start)
		return false
	}
	s.record("exists", hitOrMiss(ok), start)
	return ok
}

// Get returns the value stored under key. Failures read as absent.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool) {
	if !s.Enabled() {
		metrics.RecordCacheOperation("get", "disabled", 0)
		return nil, false
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	v, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		s.absorb(ctx, "get", key, err, start)
		return nil, false
	}
	s.record("get", hitOrMiss(ok), start)
	return v, ok
}

// SetWithTTL stores value under key for ttl. Failures are logged and skipped.
func (s *Store) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if !s.Enabled() {
		metrics.RecordCacheOperation("set", "disabled", 0)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	if err := s.backend.SetWithTTL(ctx, key, value, ttl); err != nil {
		s.absorb(ctx, "set", key, err, start)
		return
	}
	s.record("set", "ok", start)
}

// GetJSON decodes the value under key into dst using strict JSON decoding.
// Content that does not match dst's schema is reported as a miss.
func (s *Store) GetJSON(ctx context.Context, key string, dst any) bool {
	raw, ok := s.Get(ctx, key)
	if !ok {
		return false
	}
	if err := DecodeStrict(raw, dst); err != nil {
		s.logger.Warn(ctx, "discarding undecodable cache entry",
			logger.String("key", key),
			logger.Error(err),
		)
		metrics.RecordErrorByComponent("cache", "decode")
		return false
	}
	return true
}

// SetJSON encodes v and stores it under key for ttl.
func (s *Store) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) {
	if !s.Enabled() {
		metrics.RecordCacheOperation("set", "disabled", 0)
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		s.logger.Error(ctx, "cache value not encodable", logger.String("key", key), logger.Error(err))
		metrics.RecordErrorByComponent("cache", "encode")
		return
	}
	s.SetWithTTL(ctx, key, raw, ttl)
}

// Ping checks the backend. Unlike the data operations it returns the error,
// for startup diagnostics.
func (s *Store) Ping(ctx context.Context) error {
	if !s.Enabled() {
		return ErrDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.backend.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	return nil
}

// Close releases the backend.
func (s *Store) Close() error {
	if !s.Enabled() {
		return nil
	}
	return s.backend.Close()
}

func (s *Store) absorb(ctx context.Context, op, key string, err error, start time.Time) {
	reason := "error"
	if errors.Is(err, context.DeadlineExceeded) {
		reason = "timeout"
	}
	metrics.RecordCacheOperation(op, reason, msSince(start))
	metrics.RecordErrorByComponent("cache", reason)
	s.logger.Warn(ctx, "cache unavailable, continuing without it",
		logger.String("op", op),
		logger.String("key", key),
		logger.Error(err),
	)
}

func (s *Store) record(op, result string, start time.Time) {
	metrics.RecordCacheOperation(op, result, msSince(start))
}

func hitOrMiss(ok bool) string {
	if ok {
		return "hit"
	}
	return "miss"
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}

// DecodeStrict unmarshals exactly one JSON value into dst, rejecting unknown
// fields and trailing data.
func DecodeStrict(raw []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return ErrTrailingData
	}
	return nil
}
