package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/okian/pinnacle/internal/adapters/http/api"
	"github.com/okian/pinnacle/internal/domain/apperr"
	"github.com/okian/pinnacle/internal/domain/leads"
	"github.com/okian/pinnacle/internal/domain/model"
	"github.com/okian/pinnacle/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// mockDependencies records calls and returns canned results.
type mockDependencies struct {
	mu sync.Mutex

	seen        map[string]string
	lastLead    model.Lead
	lastItems   []model.Item
	lastContact string
	activities  []model.Activity

	quotes    map[string]model.Quote
	createErr error
	listErr   error
}

func newMockDependencies() *mockDependencies {
	return &mockDependencies{seen: map[string]string{}, quotes: map[string]model.Quote{}}
}

func (m *mockDependencies) IngestLead(_ context.Context, lead model.Lead) (leads.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLead = lead
	if lead.FirstName == "" || lead.LastName == "" || lead.Email == "" {
		return leads.Result{}, apperr.Validation("leads.ingest", "first_name, last_name and email are required")
	}
	if id, ok := m.seen[lead.Email]; ok {
		return leads.Result{Status: leads.StatusDuplicate, ID: id}, nil
	}
	id := "lead-" + lead.Email
	m.seen[lead.Email] = id
	return leads.Result{Status: leads.StatusSynced, ID: id}, nil
}

func (m *mockDependencies) ListLeads(context.Context) ([]model.LeadRecord, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return []model.LeadRecord{leads.SampleLead()}, nil
}

func (m *mockDependencies) CreateQuote(_ context.Context, contactID string, items []model.Item) (model.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastContact = contactID
	m.lastItems = items
	if m.createErr != nil {
		return model.Quote{}, m.createErr
	}
	if contactID == "" || len(items) == 0 {
		return model.Quote{}, apperr.Validation("quotes.create", "contact_id and items are required")
	}
	q := model.Quote{ID: "q1", ContactID: contactID, Items: items, Version: 1, Filename: "quote_" + contactID + "_q1.pdf"}
	m.quotes[q.ID] = q
	return q, nil
}

func (m *mockDependencies) ReviseQuote(_ context.Context, id string, items []model.Item) (model.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[id]
	if !ok {
		return model.Quote{}, apperr.WrapKind("quotes.revise", apperr.ErrNotFound, errors.New("quote "+id+" not found"))
	}
	q.Items = items
	q.Version++
	m.quotes[id] = q
	return q, nil
}

func (m *mockDependencies) GetQuote(_ context.Context, id string) (model.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[id]
	if !ok {
		return model.Quote{}, apperr.NewKind("quotes.get", apperr.ErrNotFound)
	}
	return q, nil
}

func (m *mockDependencies) ListQuotes(context.Context) ([]model.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Quote
	for _, q := range m.quotes {
		out = append(out, q)
	}
	return out, nil
}

func (m *mockDependencies) OpenArtifact(_ context.Context, filename string) (io.ReadCloser, error) {
	if filename == "quote_42_q1.pdf" {
		return io.NopCloser(strings.NewReader("%PDF-1.3 fake")), nil
	}
	if strings.HasPrefix(filename, ".") {
		return nil, apperr.Validation("render.open", "invalid artifact filename")
	}
	return nil, apperr.NewKind("render.open", apperr.ErrNotFound)
}

func (m *mockDependencies) ScheduleActivity(_ context.Context, a model.Activity) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ContactID == "" || a.Date == "" || a.Type == "" {
		return "", apperr.Validation("activity.schedule", "contact_id, date and type are required")
	}
	m.activities = append(m.activities, a)
	return "act-1", nil
}

type mockStatsProvider struct {
	stats map[string]interface{}
}

func (m *mockStatsProvider) GetStats() map[string]interface{} {
	return m.stats
}

func newRouter(deps api.Dependencies, opts ...api.Option) chi.Router {
	opts = append([]api.Option{api.WithLogger(logger.Discard())}, opts...)
	r := api.NewRouter(nil)
	api.NewServer(deps, &mockStatsProvider{stats: map[string]interface{}{"started": true}}, opts...).
		Register(context.Background(), r)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader = http.NoBody
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func postLeadVia(r http.Handler, forwardedFor string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/leads",
		strings.NewReader(`{"first_name":"A","last_name":"B","email":"a@b.com"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", forwardedFor)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)
	return out
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		r := newRouter(newMockDependencies())

		Convey("Then the health endpoint serves metrics", func() {
			w := do(r, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then the stats endpoint serves JSON", func() {
			w := do(r, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["started"], ShouldEqual, true)
		})

		Convey("Then a preflight request is answered with CORS headers", func() {
			req := httptest.NewRequest(http.MethodOptions, "/api/leads", http.NoBody)
			req.Header.Set("Origin", "http://localhost:3000")
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			So(w.Header().Get("Access-Control-Allow-Origin"), ShouldEqual, "*")
		})

		Convey("Then an unknown method is rejected", func() {
			w := do(r, http.MethodDelete, "/api/quotes", "")
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestLeadsEndpoints(t *testing.T) {
	Convey("Given the leads endpoints", t, func() {
		deps := newMockDependencies()
		r := newRouter(deps)
		body := `{"first_name":"A","last_name":"B","email":"a@b.com","company":"Acme"}`

		Convey("When a lead is posted twice", func() {
			first := do(r, http.MethodPost, "/api/leads", body)
			second := do(r, http.MethodPost, "/api/leads", body)

			Convey("Then the first is synced and the second already synced", func() {
				So(first.Code, ShouldEqual, http.StatusOK)
				f := decode(first)
				So(f["message"], ShouldEqual, "Lead synced")
				So(f["status"], ShouldEqual, leads.StatusSynced)
				So(f["id"], ShouldEqual, "lead-a@b.com")

				So(second.Code, ShouldEqual, http.StatusOK)
				s := decode(second)
				So(s["message"], ShouldContainSubstring, "already synced")
				So(s["status"], ShouldEqual, leads.StatusDuplicate)
			})

			Convey("Then extra properties reach the service", func() {
				So(deps.lastLead.Properties["company"], ShouldEqual, "Acme")
			})
		})

		Convey("When required fields are missing", func() {
			w := do(r, http.MethodPost, "/api/leads", `{"first_name":"A"}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decode(w)["code"], ShouldEqual, "validation_error")
		})

		Convey("When the body is not a JSON object", func() {
			for _, b := range []string{"", "null", "[1,2]", "{", `{"a":1} {"b":2}`} {
				w := do(r, http.MethodPost, "/api/leads", b)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decode(w)["code"], ShouldEqual, "bad_request")
			}
		})

		Convey("When leads are listed", func() {
			w := do(r, http.MethodGet, "/api/leads", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var records []model.LeadRecord
			So(json.Unmarshal(w.Body.Bytes(), &records), ShouldBeNil)
			So(records, ShouldHaveLength, 1)
			So(records[0].Properties["email"], ShouldEqual, "arnold@example.com")
		})

		Convey("When listing fails without a known kind", func() {
			deps.listErr = errors.New("secret connection string leaked")
			w := do(r, http.MethodGet, "/api/leads", "")

			Convey("Then an internal error is reported without the cause", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				out := decode(w)
				So(out["code"], ShouldEqual, "internal_error")
				So(out["message"], ShouldNotContainSubstring, "secret")
			})
		})
	})
}

func TestIngestRateLimit(t *testing.T) {
	Convey("Given an ingest limit of two per minute", t, func() {
		r := newRouter(newMockDependencies(), api.WithIngestRate(2))

		Convey("When a client posts three leads", func() {
			var codes []int
			for _, email := range []string{"x@a.com", "y@a.com", "z@a.com"} {
				w := do(r, http.MethodPost, "/api/leads", `{"first_name":"A","last_name":"B","email":"`+email+`"}`)
				codes = append(codes, w.Code)
			}

			Convey("Then the third is rate limited", func() {
				So(codes, ShouldResemble, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests})
			})
		})

		Convey("When one peer rotates X-Forwarded-For", func() {
			var codes []int
			for _, fwd := range []string{"198.51.100.1", "198.51.100.2", "198.51.100.3"} {
				w := postLeadVia(r, fwd)
				codes = append(codes, w.Code)
			}

			Convey("Then the headers are ignored and the third is rate limited", func() {
				So(codes, ShouldResemble, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests})
			})

			Convey("Then the rejection is counted by the metrics endpoint", func() {
				w := do(r, http.MethodGet, "/healthz", "")
				So(w.Body.String(), ShouldContainSubstring, `endpoint="leads",method="POST",status_code="429"`)
			})
		})

		Convey("Then reads are not limited", func() {
			for i := 0; i < 5; i++ {
				So(do(r, http.MethodGet, "/api/leads", "").Code, ShouldEqual, http.StatusOK)
			}
		})
	})
}

func TestIngestRateLimitBehindProxy(t *testing.T) {
	Convey("Given an ingest limit behind a trusted proxy", t, func() {
		// httptest requests arrive from 192.0.2.1.
		r := newRouter(newMockDependencies(),
			api.WithIngestRate(2),
			api.WithTrustedProxies([]netip.Prefix{netip.MustParsePrefix("192.0.2.0/24")}),
		)

		Convey("When distinct clients are forwarded", func() {
			var codes []int
			for _, fwd := range []string{"198.51.100.1", "198.51.100.2", "198.51.100.3"} {
				codes = append(codes, postLeadVia(r, fwd).Code)
			}

			Convey("Then each gets its own bucket", func() {
				So(codes, ShouldResemble, []int{http.StatusOK, http.StatusOK, http.StatusOK})
			})
		})

		Convey("When a client prepends spoofed hops", func() {
			var codes []int
			for _, fwd := range []string{"10.0.0.1, 203.0.113.9", "10.0.0.2, 203.0.113.9", "10.0.0.3, 203.0.113.9"} {
				codes = append(codes, postLeadVia(r, fwd).Code)
			}

			Convey("Then the hop added by the proxy is the key", func() {
				So(codes, ShouldResemble, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests})
			})
		})
	})
}

func TestQuotesEndpoints(t *testing.T) {
	Convey("Given the quotes endpoints", t, func() {
		deps := newMockDependencies()
		r := newRouter(deps)

		Convey("When a quote is posted with pair items and a numeric contact id", func() {
			w := do(r, http.MethodPost, "/api/quotes", `{"contact_id":42,"items":[["Widget",19.99],["Gadget",5.00]]}`)

			Convey("Then it is generated", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				out := decode(w)
				So(out["message"], ShouldEqual, "Quote generated")
				So(out["id"], ShouldEqual, "q1")
				So(deps.lastContact, ShouldEqual, "42")
				So(deps.lastItems, ShouldHaveLength, 2)
				So(deps.lastItems[0].Name, ShouldEqual, "Widget")
				So(deps.lastItems[0].Price.StringFixed(2), ShouldEqual, "19.99")
			})

			Convey("Then it can be read, revised and downloaded", func() {
				get := do(r, http.MethodGet, "/api/quotes/q1", "")
				So(get.Code, ShouldEqual, http.StatusOK)
				So(decode(get)["version"], ShouldEqual, float64(1))

				rev := do(r, http.MethodPost, "/api/quotes/revise/q1", `{"items":[{"name":"Widget","price":"19.99"}]}`)
				So(rev.Code, ShouldEqual, http.StatusOK)
				So(decode(rev)["message"], ShouldEqual, "Quote revised")

				list := do(r, http.MethodGet, "/api/quotes", "")
				So(list.Code, ShouldEqual, http.StatusOK)
				var all []model.Quote
				So(json.Unmarshal(list.Body.Bytes(), &all), ShouldBeNil)
				So(all, ShouldHaveLength, 1)
				So(all[0].Version, ShouldEqual, 2)

				art := do(r, http.MethodGet, "/api/quotes/artifacts/quote_42_q1.pdf", "")
				So(art.Code, ShouldEqual, http.StatusOK)
				So(art.Header().Get("Content-Type"), ShouldEqual, "application/pdf")
				So(art.Body.String(), ShouldStartWith, "%PDF-")
			})
		})

		Convey("When a quote has a string contact id and object items", func() {
			w := do(r, http.MethodPost, "/api/quotes", `{"contact_id":"C-7","items":[{"name":"Gizmo","price":1.5}]}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.lastContact, ShouldEqual, "C-7")
		})

		Convey("When input is missing or malformed", func() {
			w := do(r, http.MethodPost, "/api/quotes", `{"contact_id":"42","items":[]}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decode(w)["code"], ShouldEqual, "validation_error")

			for _, b := range []string{`nope`, `[1,2]`, `{"contact_id":"1","items":[["a",1]]} {}`} {
				w = do(r, http.MethodPost, "/api/quotes", b)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decode(w)["code"], ShouldEqual, "bad_request")
			}
		})

		Convey("When a required field has the wrong shape", func() {
			bodies := []string{
				`{"contact_id":true,"items":[["a",1]]}`,
				`{"contact_id":"1","items":[["a"]]}`,
				`{"contact_id":"1","items":[["a","cheap"]]}`,
				`{"contact_id":"1","items":[{"name":"a"}]}`,
				`{"contact_id":"1","items":5}`,
			}
			for _, b := range bodies {
				w := do(r, http.MethodPost, "/api/quotes", b)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decode(w)["code"], ShouldEqual, "validation_error")
			}

			w := do(r, http.MethodPost, "/api/quotes/revise/q1", `{"items":[["a",1,2]]}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decode(w)["code"], ShouldEqual, "validation_error")
		})

		Convey("When rendering fails", func() {
			deps.createErr = apperr.WrapKind("quotes.create", apperr.ErrRender, errors.New("disk full"))
			w := do(r, http.MethodPost, "/api/quotes", `{"contact_id":"42","items":[["a",1]]}`)
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
			So(decode(w)["code"], ShouldEqual, "render_error")
		})

		Convey("When a nonexistent quote is revised or read", func() {
			w := do(r, http.MethodPost, "/api/quotes/revise/missing", `{"items":[["a",1]]}`)
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(decode(w)["code"], ShouldEqual, "not_found")

			w = do(r, http.MethodGet, "/api/quotes/missing", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When an artifact is missing or its name is invalid", func() {
			So(do(r, http.MethodGet, "/api/quotes/artifacts/quote_1_x.pdf", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(r, http.MethodGet, "/api/quotes/artifacts/.hidden.pdf", "").Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestScheduleEndpoint(t *testing.T) {
	Convey("Given the schedule endpoint", t, func() {
		deps := newMockDependencies()
		r := newRouter(deps)

		Convey("When an activity is posted", func() {
			w := do(r, http.MethodPost, "/api/schedule", `{"contact_id":7,"date":"2024-05-01","type":"Call"}`)

			Convey("Then it is scheduled", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w)["message"], ShouldEqual, "Activity scheduled")
				So(deps.activities, ShouldResemble, []model.Activity{{ContactID: "7", Date: "2024-05-01", Type: "Call"}})
			})
		})

		Convey("When a field is missing", func() {
			w := do(r, http.MethodPost, "/api/schedule", `{"contact_id":"7","date":"2024-05-01"}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decode(w)["code"], ShouldEqual, "validation_error")
		})

		Convey("When a field has the wrong type", func() {
			for _, b := range []string{
				`{"contact_id":{},"date":"2024-05-01","type":"Call"}`,
				`{"contact_id":"7","date":20240501,"type":"Call"}`,
			} {
				w := do(r, http.MethodPost, "/api/schedule", b)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decode(w)["code"], ShouldEqual, "validation_error")
			}
			So(deps.activities, ShouldBeEmpty)
		})
	})
}
