package cache_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/okian/pinnacle/internal/adapters/cache"
	"github.com/okian/pinnacle/internal/domain/model"
	"github.com/okian/pinnacle/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// blockingBackend never answers before the caller's deadline.
type blockingBackend struct{}

func (blockingBackend) Exists(ctx context.Context, _ string) (bool, error) {
	<-ctx.Done()
	return false, ctx.Err()
}

func (blockingBackend) Get(ctx context.Context, _ string) ([]byte, bool, error) {
	<-ctx.Done()
	return nil, false, ctx.Err()
}

func (blockingBackend) SetWithTTL(ctx context.Context, _ string, _ []byte, _ time.Duration) error {
	<-ctx.Done()
	return ctx.Err()
}

func (blockingBackend) Ping(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (blockingBackend) Close() error { return nil }

func TestStoreWithMemoryBackend(t *testing.T) {
	Convey("Given a store over the in-process backend", t, func() {
		backend := cache.NewMemoryBackend()
		store := cache.New(backend)
		ctx := context.Background()
		Reset(func() { _ = store.Close() })

		Convey("When a value is written", func() {
			store.SetWithTTL(ctx, "k", []byte("v"), time.Minute)

			Convey("Then it is present and readable", func() {
				So(store.Exists(ctx, "k"), ShouldBeTrue)
				v, ok := store.Get(ctx, "k")
				So(ok, ShouldBeTrue)
				So(string(v), ShouldEqual, "v")
			})
		})

		Convey("When a value outlives its TTL", func() {
			store.SetWithTTL(ctx, "short", []byte("v"), 20*time.Millisecond)
			time.Sleep(60 * time.Millisecond)

			Convey("Then it reads as absent", func() {
				So(store.Exists(ctx, "short"), ShouldBeFalse)
				_, ok := store.Get(ctx, "short")
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When a key was never written", func() {
			So(store.Exists(ctx, "missing"), ShouldBeFalse)
		})

		Convey("When a dedup key is followed by many other writes", func() {
			store.SetWithTTL(ctx, "lead_a@b.com", []byte("{}"), time.Hour)
			for i := range 5000 {
				store.SetWithTTL(ctx, fmt.Sprintf("lead_%d@b.com", i), []byte("{}"), time.Hour)
			}

			Convey("Then the first key survives until its TTL", func() {
				So(store.Exists(ctx, "lead_a@b.com"), ShouldBeTrue)
				So(backend.Len(), ShouldEqual, 5001)
			})
		})

		Convey("When a returned value is mutated", func() {
			store.SetWithTTL(ctx, "k", []byte("abc"), time.Minute)
			v, _ := store.Get(ctx, "k")
			v[0] = 'x'

			Convey("Then the cached value is unchanged", func() {
				again, _ := store.Get(ctx, "k")
				So(string(again), ShouldEqual, "abc")
			})
		})
	})
}

func TestStoreWithRedisBackend(t *testing.T) {
	Convey("Given a store over Redis", t, func() {
		mr := miniredis.RunT(t)
		store := cache.New(cache.NewRedisBackend(cache.RedisConfig{Addr: mr.Addr()}))
		ctx := context.Background()
		Reset(func() { _ = store.Close() })

		So(store.Ping(ctx), ShouldBeNil)

		Convey("When a lead key is written with a one hour TTL", func() {
			store.SetWithTTL(ctx, "lead_a@x.com", []byte(`{}`), time.Hour)

			Convey("Then Redis holds it under lead_<email> with that TTL", func() {
				So(mr.Exists("lead_a@x.com"), ShouldBeTrue)
				So(mr.TTL("lead_a@x.com"), ShouldEqual, time.Hour)
				So(store.Exists(ctx, "lead_a@x.com"), ShouldBeTrue)
			})

			Convey("Then it expires once the TTL elapses", func() {
				mr.FastForward(time.Hour + time.Second)
				So(store.Exists(ctx, "lead_a@x.com"), ShouldBeFalse)
			})
		})

		Convey("When a key is absent", func() {
			_, ok := store.Get(ctx, "nope")
			So(ok, ShouldBeFalse)
		})

		Convey("When Redis goes away", func() {
			store.SetWithTTL(ctx, "k", []byte("v"), time.Minute)
			mr.Close()

			Convey("Then reads report absent and writes are skipped without error", func() {
				So(store.Exists(ctx, "k"), ShouldBeFalse)
				_, ok := store.Get(ctx, "k")
				So(ok, ShouldBeFalse)
				So(func() { store.SetWithTTL(ctx, "k2", []byte("v"), time.Minute) }, ShouldNotPanic)
			})
		})
	})
}

func TestStoreDegradation(t *testing.T) {
	ctx := context.Background()

	Convey("Given a store whose Redis is unreachable", t, func() {
		store := cache.New(
			cache.NewRedisBackend(cache.RedisConfig{Addr: "127.0.0.1:1", Timeout: 50 * time.Millisecond}),
			cache.WithTimeout(50*time.Millisecond),
			cache.WithLogger(logger.Discard()),
		)
		Reset(func() { _ = store.Close() })

		Convey("Then every read is absent and Ping reports unavailability", func() {
			So(store.Exists(ctx, "k"), ShouldBeFalse)
			_, ok := store.Get(ctx, "k")
			So(ok, ShouldBeFalse)
			store.SetWithTTL(ctx, "k", []byte("v"), time.Minute)

			err := store.Ping(ctx)
			So(errors.Is(err, cache.ErrUnreachable), ShouldBeTrue)
		})
	})

	Convey("Given a backend that hangs", t, func() {
		store := cache.New(blockingBackend{}, cache.WithTimeout(30*time.Millisecond), cache.WithLogger(logger.Discard()))

		Convey("Then each call returns within the operation timeout", func() {
			start := time.Now()
			So(store.Exists(ctx, "k"), ShouldBeFalse)
			store.SetWithTTL(ctx, "k", []byte("v"), time.Minute)
			_, ok := store.Get(ctx, "k")
			So(ok, ShouldBeFalse)
			So(time.Since(start), ShouldBeLessThan, time.Second)
		})
	})

	Convey("Given a disabled store", t, func() {
		store := cache.Disabled()

		Convey("Then it caches nothing", func() {
			So(store.Enabled(), ShouldBeFalse)
			store.SetWithTTL(ctx, "k", []byte("v"), time.Minute)
			So(store.Exists(ctx, "k"), ShouldBeFalse)
			So(errors.Is(store.Ping(ctx), cache.ErrDisabled), ShouldBeTrue)
			So(store.Close(), ShouldBeNil)
		})
	})
}

func TestStoreJSON(t *testing.T) {
	Convey("Given a store holding JSON records", t, func() {
		backend := cache.NewMemoryBackend()
		store := cache.New(backend, cache.WithLogger(logger.Discard()))
		ctx := context.Background()
		Reset(func() { _ = store.Close() })

		Convey("When a record round trips", func() {
			in := model.LeadRecord{ID: "1", Properties: map[string]any{"email": "a@x.com"}}
			store.SetJSON(ctx, "rec", in, time.Minute)

			var out model.LeadRecord
			So(store.GetJSON(ctx, "rec", &out), ShouldBeTrue)
			So(out.ID, ShouldEqual, "1")
			So(out.Properties["email"], ShouldEqual, "a@x.com")
		})

		Convey("When the cached content has fields outside the schema", func() {
			store.SetWithTTL(ctx, "rec", []byte(`{"id":"1","properties":{},"__class__":"os.system"}`), time.Minute)

			Convey("Then it is treated as a miss", func() {
				var out model.LeadRecord
				So(store.GetJSON(ctx, "rec", &out), ShouldBeFalse)
			})
		})

		Convey("When the cached content is not JSON", func() {
			store.SetWithTTL(ctx, "rec", []byte(`[{'id': '1'}]`), time.Minute)
			var out []model.LeadRecord
			So(store.GetJSON(ctx, "rec", &out), ShouldBeFalse)
		})

		Convey("When the cached content has trailing data", func() {
			store.SetWithTTL(ctx, "rec", []byte(`{"id":"1","properties":{}} {}`), time.Minute)
			var out model.LeadRecord
			So(store.GetJSON(ctx, "rec", &out), ShouldBeFalse)
		})
	})
}
