package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	app "github.com/okian/pinnacle/internal/app"
	"github.com/okian/pinnacle/internal/config"
	"github.com/okian/pinnacle/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestMainConfiguration(t *testing.T) {
	convey.Convey("Given configuration from the environment", t, func() {
		t.Setenv("PINNACLE_ADDR", ":8080")
		t.Setenv("PINNACLE_QUEUE_SIZE", "1000")
		t.Setenv("PINNACLE_WORKER_COUNT", "4")
		t.Setenv("PINNACLE_CACHE_BACKEND", "memory")

		convey.Convey("Then configuration should be loadable", func() {
			cfg, err := config.Load(context.Background())
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 1000)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, 4)
			convey.So(cfg.CacheBackend, convey.ShouldEqual, config.CacheBackendMemory)
		})
	})

	convey.Convey("Given an invalid listen address", t, func() {
		t.Setenv("PINNACLE_ADDR", "")

		convey.Convey("Then configuration loading should fail", func() {
			cfg, err := config.Load(context.Background())
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(cfg, convey.ShouldBeNil)
		})
	})
}

func TestMainHandler(t *testing.T) {
	convey.Convey("Given a started service behind the main handler", t, func() {
		ctx := context.Background()
		cfg := config.New()
		cfg.CacheBackend = config.CacheBackendMemory
		cfg.QuoteDir = t.TempDir()
		svc := app.New(cfg, app.WithLogger(logger.Discard()))
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer svc.Stop()

		h := newHandler(ctx, cfg, svc, logger.Discard())
		do := func(method, path, body string) *httptest.ResponseRecorder {
			req := httptest.NewRequest(method, path, strings.NewReader(body))
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			return w
		}

		convey.Convey("Then the docs routes are served", func() {
			convey.So(do(http.MethodGet, "/api-docs", "").Code, convey.ShouldEqual, http.StatusOK)
			convey.So(do(http.MethodGet, "/openapi.yaml", "").Code, convey.ShouldEqual, http.StatusOK)
		})

		convey.Convey("Then a quote round trip works end to end", func() {
			w := do(http.MethodPost, "/api/quotes", `{"contact_id":"42","items":[["Widget",19.99],["Gadget",5]]}`)
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(w.Body.String(), convey.ShouldContainSubstring, "Quote generated")

			w = do(http.MethodGet, "/api/quotes", "")
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(w.Body.String(), convey.ShouldContainSubstring, `"version":1`)
		})

		convey.Convey("Then a repeated lead is reported as already synced", func() {
			body := `{"first_name":"A","last_name":"B","email":"a@b.com"}`
			convey.So(do(http.MethodPost, "/api/leads", body).Body.String(), convey.ShouldContainSubstring, `"status":"synced"`)
			convey.So(do(http.MethodPost, "/api/leads", body).Body.String(), convey.ShouldContainSubstring, "already synced")
		})

		convey.Convey("Then the stats endpoint reports the running service", func() {
			w := do(http.MethodGet, "/stats", "")
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(w.Body.String(), convey.ShouldContainSubstring, `"started":true`)
		})
	})
}

func TestMainMetricsUpdaters(t *testing.T) {
	convey.Convey("Given the background metric updaters", t, func() {
		convey.Convey("Then the system updater returns when its context ends", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			convey.So(func() { startSystemMetricsUpdater(ctx) }, convey.ShouldNotPanic)
		})

		convey.Convey("Then the service updater tolerates a stopped service", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			svc := app.New(nil)
			convey.So(func() { startServiceMetricsUpdater(ctx, svc) }, convey.ShouldNotPanic)
		})

		convey.Convey("Then a system metrics update does not panic", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
		})
	})
}
