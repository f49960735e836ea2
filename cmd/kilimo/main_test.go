package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/hyperjump/kilimo/internal/config"
	"github.com/hyperjump/kilimo/internal/dataset"
	"github.com/hyperjump/kilimo/internal/models"
	"github.com/hyperjump/kilimo/internal/search"
	"github.com/hyperjump/kilimo/internal/storage"
)

func TestArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after question are moved first",
			args:     []string{"how to plant maize", "-limit", "3"},
			expected: []string{"-limit", "3", "how to plant maize"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-limit", "3", "how to plant maize"},
			expected: []string{"-limit", "3", "how to plant maize"},
		},
		{
			name:     "question only returns unchanged",
			args:     []string{"how to plant maize"},
			expected: []string{"how to plant maize"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "multiple positionals then flags",
			args:     []string{"dairy", "feed", "-output", "json"},
			expected: []string{"-output", "json", "dairy", "feed"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := argsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("argsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuildAskQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"armyworm"}, "armyworm"},
		{"multiple words", []string{"fall", "armyworm"}, "fall armyworm"},
		{"single quoted phrase", []string{"fall armyworm"}, "fall armyworm"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildAskQuery(tt.args)
			if got != tt.expected {
				t.Errorf("buildAskQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestImportName(t *testing.T) {
	if got := importName("advisory-2024", "./qa.xlsx"); got != "advisory-2024" {
		t.Errorf("importName with -as = %q", got)
	}
	if got := importName("  ", "./data/../qa.xlsx"); got != "qa.xlsx" {
		t.Errorf("importName default = %q", got)
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: "localhost"
  port: 8080
storage:
  database_path: "test.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s (canon %s), want %s (canon %s)", resolved, resolvedCanon, configPath, configPathCanon)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "test.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
}

func TestBuildSource(t *testing.T) {
	t.Run("file", func(t *testing.T) {
		cfg := &config.Config{Dataset: config.DatasetConfig{Source: config.SourceFile, Path: "/srv/qa.csv", Sheet: "Queries"}}
		config.ApplyDefaults(cfg)
		src, err := buildSource(cfg, nil)
		if err != nil {
			t.Fatal(err)
		}
		fs, ok := src.(*dataset.FileSource)
		if !ok {
			t.Fatalf("source type = %T", src)
		}
		if fs.Path != "/srv/qa.csv" || fs.Sheet != "Queries" || fs.Columns.Question != "Description_Clean" {
			t.Errorf("file source = %+v", fs)
		}
	})
	t.Run("object", func(t *testing.T) {
		cfg := &config.Config{Dataset: config.DatasetConfig{
			Source: config.SourceObject,
			Object: config.ObjectConfig{Endpoint: "localhost:9000", Bucket: "advisory", Key: "qadatav2.xlsx", AccessKeyID: "k", SecretAccessKey: "s"},
		}}
		src, err := buildSource(cfg, nil)
		if err != nil {
			t.Fatal(err)
		}
		if src.Name() != "s3://advisory/qadatav2.xlsx" {
			t.Errorf("object source name = %s", src.Name())
		}
	})
	t.Run("database without storage", func(t *testing.T) {
		cfg := &config.Config{Dataset: config.DatasetConfig{Source: config.SourceDatabase, Path: "advisory"}}
		if _, err := buildSource(cfg, nil); err == nil {
			t.Error("expected error when no storage is configured")
		}
	})
	t.Run("unknown", func(t *testing.T) {
		cfg := &config.Config{Dataset: config.DatasetConfig{Source: "ftp"}}
		if _, err := buildSource(cfg, nil); err == nil {
			t.Error("expected error for unknown source")
		}
	})
}

const sampleCSV = "Description_Clean,Responses_Clean,County\n" +
	"how to plant maize,plant maize at the onset of rains,Nakuru\n" +
	"best feed for dairy cows,use napier grass and concentrates,Kiambu\n"

func writeConfig(t *testing.T, dir, extra string) string {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "qa.csv"), []byte(sampleCSV), 0600); err != nil {
		t.Fatal(err)
	}
	configPath := filepath.Join(dir, "config.yaml")
	content := "dataset:\n  path: \"./qa.csv\"\nstorage:\n  database_path: \"./kilimo.db\"\n" + extra
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return configPath
}

func TestWithEngine_directAsk(t *testing.T) {
	configPath := writeConfig(t, t.TempDir(), "")

	resp, err := withEngine(configPath, func(ctx context.Context, c *Components) (*models.AskResponse, error) {
		return c.Engine.Ask(ctx, &models.AskQuery{Query: "when should I plant maize"})
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Match == nil || resp.Match.Answer != "plant maize at the onset of rains" {
		t.Errorf("match = %+v", resp.Match)
	}

	counts, err := withEngine(configPath, func(_ context.Context, c *Components) ([]models.ValueCount, error) {
		return c.Engine.Counties()
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(counts) != 2 {
		t.Errorf("counties = %+v", counts)
	}
}

func TestWithEngine_missingDataset(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, dir, "")
	if err := os.Remove(filepath.Join(dir, "qa.csv")); err != nil {
		t.Fatal(err)
	}
	_, err := withEngine(configPath, func(_ context.Context, c *Components) (*models.Summary, error) {
		return c.Engine.Summary()
	})
	if !errors.Is(err, dataset.ErrSourceNotFound) {
		t.Errorf("err = %v, want ErrSourceNotFound", err)
	}
}

func TestImportThenServeFromDatabase(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "qa.csv")
	if err := os.WriteFile(csvPath, []byte(sampleCSV), 0600); err != nil {
		t.Fatal(err)
	}
	dbPath := filepath.Join(dir, "kilimo.db")
	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	src := &namedSource{Source: &dataset.FileSource{Path: csvPath}, name: "advisory"}
	n, err := search.Import(context.Background(), src, store)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("imported %d records, want 2", n)
	}
	_ = store.Close()

	configPath := filepath.Join(dir, "config.yaml")
	content := "dataset:\n  source: database\n  path: advisory\nstorage:\n  database_path: \"./kilimo.db\"\n"
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	var listing strings.Builder
	if err := listImports(context.Background(), dbPath, &listing); err != nil {
		t.Fatal(err)
	}
	if listing.String() != "advisory\t2\n" {
		t.Errorf("listImports = %q", listing.String())
	}

	st, err := withEngine(configPath, func(ctx context.Context, c *Components) (*models.Status, error) {
		return c.Engine.Status(ctx)
	})
	if err != nil {
		t.Fatal(err)
	}
	if st.Source != "advisory" || st.Records != 2 || st.Corpus != 2 {
		t.Errorf("status = %+v", st)
	}
}

func TestAskViaHTTP(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/ask" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var q models.AskQuery
		_ = json.NewDecoder(r.Body).Decode(&q)
		if strings.Contains(q.Query, "xyz") {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"no similar question found"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(&models.AskResponse{
			Query: q.Query,
			Match: &models.MatchedAnswer{RecordID: "row:1", Question: "how to plant maize", Answer: "at onset of rains", Score: 0.7},
		})
	}))
	defer ts.Close()

	resp, err := askViaHTTP(ts.URL, &models.AskQuery{Query: "plant maize"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Match == nil || resp.Match.RecordID != "row:1" {
		t.Errorf("match = %+v", resp.Match)
	}

	_, err = askViaHTTP(ts.URL, &models.AskQuery{Query: "xyz"})
	if !errors.Is(err, errNoSimilarQuestion) {
		t.Errorf("err = %v, want errNoSimilarQuestion", err)
	}
}

func TestGetJSON_serverError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"dataset not loaded"}`, http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	var st models.Status
	err := getJSON(ts.URL, "/api/v1/status", &st)
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Errorf("err = %v, want 503", err)
	}
}

func TestCountyRecordsPath(t *testing.T) {
	if got := countyRecordsPath("Trans Nzoia"); got != "/api/v1/counties/Trans%20Nzoia/records" {
		t.Errorf("countyRecordsPath = %s", got)
	}
}
