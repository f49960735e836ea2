package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/kilimo/internal/config"
	"github.com/hyperjump/kilimo/internal/dataset"
	"github.com/hyperjump/kilimo/internal/models"
	"github.com/hyperjump/kilimo/internal/search"
	"github.com/hyperjump/kilimo/internal/storage"
)

const advisoryCSV = `Customer_id,County,About,Category,Description_Clean,Responses_Clean,Response
c1,Nakuru,crops,maize,how to plant maize,plant maize at onset of rains,r1
c2,Kiambu,livestock,dairy,best feed for dairy cows,napier grass and dairy meal,r2
c3,Kiambu,crops,beans,when to harvest beans,harvest when pods dry,r3
`

type fixture struct {
	srv    *Server
	path   string
	engine *search.Engine
}

func newFixture(t *testing.T, serverCfg config.ServerConfig, load bool) *fixture {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "qa.csv")
	if err := os.WriteFile(path, []byte(advisoryCSV), 0600); err != nil {
		t.Fatal(err)
	}
	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "db.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	engine := search.NewEngine(&dataset.FileSource{Path: path}, store, cfg, zap.NewNop())
	t.Cleanup(func() { _ = engine.Close() })
	srv := NewServer(engine, &serverCfg, zap.NewNop())
	if load {
		if _, err := srv.Reload(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	return &fixture{srv: srv, path: path, engine: engine}
}

func (f *fixture) do(t *testing.T, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	r := httptest.NewRequest(method, target, &buf)
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestHandleHealth(t *testing.T) {
	f := newFixture(t, config.ServerConfig{Port: 8080}, false)
	w := f.do(t, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
}

func TestHandleAsk(t *testing.T) {
	f := newFixture(t, config.ServerConfig{Port: 8080}, true)
	w := f.do(t, http.MethodPost, "/api/v1/ask", map[string]string{"query": "when do I plant maize"})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var resp models.AskResponse
	decode(t, w, &resp)
	if resp.Match == nil || resp.Match.Answer != "plant maize at onset of rains" {
		t.Errorf("unexpected match: %+v", resp.Match)
	}
	if resp.Match.County != "Nakuru" || resp.Match.Row != 2 {
		t.Errorf("record fields: %+v", resp.Match)
	}
}

func TestHandleAsk_Errors(t *testing.T) {
	f := newFixture(t, config.ServerConfig{Port: 8080}, true)
	tests := []struct {
		name    string
		body    interface{}
		raw     string
		status  int
		message string
	}{
		{name: "no match", body: map[string]string{"query": "xyzzy"}, status: http.StatusNotFound, message: "no similar question found"},
		{name: "blank", body: map[string]string{"query": "  "}, status: http.StatusBadRequest},
		{name: "bad json", raw: "{", status: http.StatusBadRequest, message: "invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var w *httptest.ResponseRecorder
			if tt.raw != "" {
				r := httptest.NewRequest(http.MethodPost, "/api/v1/ask", strings.NewReader(tt.raw))
				w = httptest.NewRecorder()
				f.srv.Handler().ServeHTTP(w, r)
			} else {
				w = f.do(t, http.MethodPost, "/api/v1/ask", tt.body)
			}
			if w.Code != tt.status {
				t.Fatalf("status: got %d, want %d (%s)", w.Code, tt.status, w.Body.String())
			}
			if tt.message != "" {
				var out map[string]string
				decode(t, w, &out)
				if out["error"] != tt.message {
					t.Errorf("error: got %q, want %q", out["error"], tt.message)
				}
			}
		})
	}
}

func TestHandleAsk_NotLoaded(t *testing.T) {
	f := newFixture(t, config.ServerConfig{Port: 8080}, false)
	w := f.do(t, http.MethodPost, "/api/v1/ask", map[string]string{"query": "maize"})
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status: got %d", w.Code)
	}
}

func TestHandleAsk_RateLimited(t *testing.T) {
	f := newFixture(t, config.ServerConfig{Port: 8080, AskRateLimit: 0.001, AskBurst: 2}, true)
	codes := make([]int, 3)
	for i := range codes {
		codes[i] = f.do(t, http.MethodPost, "/api/v1/ask", map[string]string{"query": "maize"}).Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("burst should pass: %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("third ask: got %d, want 429", codes[2])
	}
	// Other endpoints are not limited.
	if w := f.do(t, http.MethodGet, "/api/v1/summary", nil); w.Code != http.StatusOK {
		t.Errorf("summary: got %d", w.Code)
	}
}

func TestHandleDashboards(t *testing.T) {
	f := newFixture(t, config.ServerConfig{Port: 8080}, true)

	w := f.do(t, http.MethodGet, "/api/v1/summary", nil)
	var sum models.Summary
	decode(t, w, &sum)
	if sum.TotalQueries != 3 || sum.Counties == nil || *sum.Counties != 2 {
		t.Errorf("summary: %+v", sum)
	}

	w = f.do(t, http.MethodGet, "/api/v1/counties", nil)
	var counties struct {
		Counties []models.ValueCount `json:"counties"`
	}
	decode(t, w, &counties)
	if len(counties.Counties) != 2 || counties.Counties[0].Value != "Kiambu" || counties.Counties[0].Count != 2 {
		t.Errorf("counties: %+v", counties)
	}

	w = f.do(t, http.MethodGet, "/api/v1/counties/Nakuru/records", nil)
	var county struct {
		Records []models.Record `json:"records"`
	}
	decode(t, w, &county)
	if len(county.Records) != 1 {
		t.Errorf("county records: %+v", county)
	}

	w = f.do(t, http.MethodGet, "/api/v1/records?county=Kiambu&about=crops", nil)
	var page models.RecordPage
	decode(t, w, &page)
	if page.Total != 1 || page.Records[0].Category != "beans" {
		t.Errorf("records: %+v", page)
	}

	w = f.do(t, http.MethodGet, "/api/v1/records?q=napier", nil)
	page = models.RecordPage{}
	decode(t, w, &page)
	if page.Total != 1 || page.Records[0].County != "Kiambu" {
		t.Errorf("records q: %+v", page)
	}

	w = f.do(t, http.MethodGet, "/api/v1/records?limit=x", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid limit: got %d", w.Code)
	}

	w = f.do(t, http.MethodGet, "/api/v1/pivot?about=crops,livestock", nil)
	var pivot models.Pivot
	decode(t, w, &pivot)
	if len(pivot.Rows) != 2 || len(pivot.Columns) != 3 {
		t.Errorf("pivot: %+v", pivot)
	}

	w = f.do(t, http.MethodGet, "/api/v1/pivot?county=Turkana", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("empty pivot: got %d", w.Code)
	}

	w = f.do(t, http.MethodGet, "/api/v1/samples?n=2&seed=1", nil)
	var samples struct {
		Responses []string `json:"responses"`
	}
	decode(t, w, &samples)
	if len(samples.Responses) != 2 {
		t.Errorf("samples: %+v", samples)
	}

	w = f.do(t, http.MethodGet, "/api/v1/filters", nil)
	var filters search.FilterOptions
	decode(t, w, &filters)
	if len(filters.About) != 2 || len(filters.County) != 2 {
		t.Errorf("filters: %+v", filters)
	}
}

func TestHandleStatus(t *testing.T) {
	f := newFixture(t, config.ServerConfig{Port: 8080}, true)
	w := f.do(t, http.MethodGet, "/api/v1/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var st models.Status
	decode(t, w, &st)
	if st.Records != 3 || st.Corpus != 3 || st.Vocabulary == 0 {
		t.Errorf("status: %+v", st)
	}
	if st.Source != f.path {
		t.Errorf("source: got %s, want %s", st.Source, f.path)
	}
	if st.DiskUsageBytes == nil || *st.DiskUsageBytes <= 0 {
		t.Errorf("disk usage: %v", st.DiskUsageBytes)
	}
}

func TestHandleReloadAndAsks(t *testing.T) {
	f := newFixture(t, config.ServerConfig{Port: 8080}, true)

	w := f.do(t, http.MethodPost, "/api/v1/reload", nil)
	var out map[string]bool
	decode(t, w, &out)
	if out["changed"] {
		t.Error("unchanged file should not rebuild")
	}

	updated := advisoryCSV + "c4,Meru,crops,potatoes,potato blight treatment,use certified seed,r4\n"
	if err := os.WriteFile(f.path, []byte(updated), 0600); err != nil {
		t.Fatal(err)
	}
	w = f.do(t, http.MethodPost, "/api/v1/reload", nil)
	out = nil
	decode(t, w, &out)
	if !out["changed"] {
		t.Error("modified file should rebuild")
	}

	w = f.do(t, http.MethodPost, "/api/v1/ask", map[string]string{"query": "potato blight"})
	if w.Code != http.StatusOK {
		t.Fatalf("ask after reload: %d", w.Code)
	}

	if err := os.Remove(f.path); err != nil {
		t.Fatal(err)
	}
	w = f.do(t, http.MethodPost, "/api/v1/reload", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("reload of missing file: got %d", w.Code)
	}

	w = f.do(t, http.MethodGet, "/api/v1/asks?limit=5", nil)
	var asks struct {
		Asks []models.AskLogEntry `json:"asks"`
	}
	decode(t, w, &asks)
	if len(asks.Asks) != 1 || asks.Asks[0].Outcome != models.OutcomeMatched {
		t.Errorf("asks: %+v", asks)
	}
}

func TestHandleMetrics(t *testing.T) {
	f := newFixture(t, config.ServerConfig{Port: 8080}, true)
	f.do(t, http.MethodPost, "/api/v1/ask", map[string]string{"query": "maize"})
	f.do(t, http.MethodPost, "/api/v1/ask", map[string]string{"query": "xyzzy"})

	w := f.do(t, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		`kilimo_asks_total{outcome="matched"} 1`,
		`kilimo_asks_total{outcome="no_match"} 1`,
		`kilimo_reloads_total{result="changed"} 1`,
		`kilimo_dataset_records 3`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	f := newFixture(t, config.ServerConfig{Host: "127.0.0.1", Port: 0}, false)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- f.srv.Run(ctx) }()
	cancel()
	if err := <-errCh; err != nil {
		t.Errorf("Run: %v", err)
	}
}
