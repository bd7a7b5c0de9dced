package updater

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/heartmarshall/d2-itemdb-updater/internal/adapter/bungie"
	"github.com/heartmarshall/d2-itemdb-updater/internal/domain"
)

const (
	collEng = "DestinyInventoryItemDefinition_eng"
	collChs = "DestinyInventoryItemDefinition_chs"
)

// itemPayload holds 3 objects and 2 non-object entries.
const itemPayload = `{
	"1": {"hash": 1, "displayProperties": {"name": "Gjallarhorn"}},
	"2": [1, 2],
	"3": {"hash": 3, "displayProperties": {"name": ""}},
	"4": null,
	"5": {"hash": 5}
}`

// fakeBungie is an httptest server with a manifest and one payload per locale code.
type fakeBungie struct {
	srv            *httptest.Server
	manifestHits   atomic.Int32
	definitionHits atomic.Int32
	onManifest     func()
	status         map[string]int
	locales        []string
}

func newFakeBungie(t *testing.T, locales ...string) *fakeBungie {
	t.Helper()

	f := &fakeBungie{status: make(map[string]int), locales: locales}
	mux := http.NewServeMux()

	mux.HandleFunc("/Platform/Destiny2/Manifest/", func(w http.ResponseWriter, _ *http.Request) {
		f.manifestHits.Add(1)
		if f.onManifest != nil {
			f.onManifest()
		}
		paths := make([]string, 0, len(f.locales))
		for _, code := range f.locales {
			paths = append(paths, fmt.Sprintf(`%q: {"DestinyInventoryItemDefinition": "/content/item-%s.json"}`, code, code))
		}
		fmt.Fprintf(w, `{"Response":{"version":"v42","jsonWorldComponentContentPaths":{%s}}}`, strings.Join(paths, ","))
	})

	mux.HandleFunc("/content/", func(w http.ResponseWriter, r *http.Request) {
		f.definitionHits.Add(1)
		code := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/content/item-"), ".json")
		if st, ok := f.status[code]; ok {
			w.WriteHeader(st)
			return
		}
		_, _ = w.Write([]byte(itemPayload))
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeBungie) client() *bungie.Client {
	return bungie.NewClient(bungie.Options{BaseURL: f.srv.URL, Timeout: 5 * time.Second}, nil, newTestLogger())
}

func defaultConfig() Config {
	return Config{
		Locales: domain.DefaultActiveLocales(),
		Entity:  domain.EntityInventoryItem,
	}
}

func TestPipeline_Run_LoadsEveryActiveLocale(t *testing.T) {
	t.Parallel()

	api := newFakeBungie(t, "en", "zh-chs")
	store := newMockStore()
	metrics := &mockMetrics{}

	summary, err := NewPipeline(newTestLogger(), store, api.client(), metrics, defaultConfig()).
		Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, coll := range []string{collEng, collChs} {
		docs, ok := store.collection(coll)
		if !ok {
			t.Fatalf("collection %s missing", coll)
		}
		keys := make([]string, 0, len(docs))
		for _, d := range docs {
			keys = append(keys, d.Key)
		}
		if !slices.Equal(keys, []string{"1", "3", "5"}) {
			t.Errorf("%s keys = %v, want [1 3 5]", coll, keys)
		}
	}

	if summary.HasErrors() {
		t.Errorf("unexpected failures: %+v", summary.Failed())
	}
	if summary.ManifestVersion != "v42" {
		t.Errorf("ManifestVersion = %q", summary.ManifestVersion)
	}
	if len(summary.Locales) != 2 {
		t.Fatalf("len(Locales) = %d, want 2", len(summary.Locales))
	}
	for _, r := range summary.Locales {
		if r.Fetched != 5 || r.Inserted != 3 || r.Skipped != 2 {
			t.Errorf("%s: fetched=%d inserted=%d skipped=%d, want 5/3/2", r.Locale, r.Fetched, r.Inserted, r.Skipped)
		}
	}

	if len(store.runs) != 1 {
		t.Fatalf("recorded runs = %d, want 1", len(store.runs))
	}
	if store.runs[0].ID != summary.RunID || store.runs[0].Failed() {
		t.Errorf("recorded run = %+v", store.runs[0])
	}

	if !metrics.pushCalled || len(metrics.locales) != 2 {
		t.Errorf("metrics: push=%v locales=%d", metrics.pushCalled, len(metrics.locales))
	}
	if metrics.runFailed == nil || *metrics.runFailed {
		t.Error("run should be observed as successful")
	}
}

func TestPipeline_Run_Idempotent(t *testing.T) {
	t.Parallel()

	api := newFakeBungie(t, "en", "zh-chs")
	store := newMockStore()
	p := NewPipeline(newTestLogger(), store, api.client(), nil, defaultConfig())

	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first, _ := store.collection(collEng)
	first = slices.Clone(first)

	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	second, _ := store.collection(collEng)

	if len(first) != len(second) {
		t.Fatalf("second run has %d docs, first %d", len(second), len(first))
	}
	for i := range first {
		if first[i].Key != second[i].Key || string(first[i].Body) != string(second[i].Body) {
			t.Errorf("doc %d differs between runs", i)
		}
	}
}

func TestPipeline_Run_LocaleIsolation(t *testing.T) {
	t.Parallel()

	api := newFakeBungie(t, "en", "zh-chs")
	api.status["zh-chs"] = http.StatusInternalServerError
	store := newMockStore()

	summary, err := NewPipeline(newTestLogger(), store, api.client(), nil, defaultConfig()).
		Run(context.Background())
	if err != nil {
		t.Fatalf("locale failure must not abort the run: %v", err)
	}

	if docs, ok := store.collection(collEng); !ok || len(docs) != 3 {
		t.Errorf("eng collection = %d docs, want 3", len(docs))
	}
	if _, ok := store.collection(collChs); ok {
		t.Error("chs collection should be absent after a failed fetch")
	}

	failed := summary.Failed()
	if len(failed) != 1 || failed[0].Locale != domain.LocaleChineseSimplified {
		t.Fatalf("Failed = %+v, want only chs", failed)
	}
	if !errors.Is(failed[0].Err, domain.ErrNetwork) {
		t.Errorf("chs error = %v, want ErrNetwork", failed[0].Err)
	}
	if len(summary.Succeeded()) != 1 || !summary.HasErrors() {
		t.Errorf("succeeded=%d hasErrors=%v", len(summary.Succeeded()), summary.HasErrors())
	}
	if !store.runs[0].Failed() {
		t.Error("recorded run should be marked failed")
	}
}

func TestPipeline_Run_DropsBeforeAnythingElse(t *testing.T) {
	t.Parallel()

	api := newFakeBungie(t, "en", "zh-chs")
	store := newMockStore()
	store.collections["stale"] = []domain.ItemDocument{{Key: "old"}}

	var droppedBeforeManifest atomic.Bool
	api.onManifest = func() {
		droppedBeforeManifest.Store(slices.Contains(store.calls(), "drop"))
	}

	if _, err := NewPipeline(newTestLogger(), store, api.client(), nil, defaultConfig()).
		Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	calls := store.calls()
	if len(calls) == 0 || calls[0] != "drop" {
		t.Fatalf("first store call = %v, want drop", calls)
	}
	if !droppedBeforeManifest.Load() {
		t.Error("manifest was fetched before the drop")
	}
	if _, ok := store.collection("stale"); ok {
		t.Error("stale collection survived the drop")
	}
}

func TestPipeline_Run_MissingPathAbortsBeforeFetch(t *testing.T) {
	t.Parallel()

	api := newFakeBungie(t, "en", "zh-chs")
	store := newMockStore()

	cfg := defaultConfig()
	cfg.Locales = append(cfg.Locales, domain.LocaleChineseTraditional)

	summary, err := NewPipeline(newTestLogger(), store, api.client(), nil, cfg).Run(context.Background())
	if !errors.Is(err, domain.ErrMissingPath) {
		t.Fatalf("expected ErrMissingPath, got %v", err)
	}
	if n := api.definitionHits.Load(); n != 0 {
		t.Errorf("definition requests = %d, want 0", n)
	}
	for _, c := range store.calls() {
		if strings.HasPrefix(c, "insert:") {
			t.Errorf("unexpected insert after aborted resolution: %v", c)
		}
	}
	if !summary.HasErrors() || len(summary.Locales) != 0 {
		t.Errorf("summary = %+v", summary)
	}
	if len(store.runs) != 1 || store.runs[0].Error == "" {
		t.Error("aborted run should still be recorded with its error")
	}
}

func TestPipeline_Run_ManifestFailureIsFatal(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	source := &stubSource{manifestErr: fmt.Errorf("bungie: %w", domain.ErrNetwork)}
	metrics := &mockMetrics{}

	_, err := NewPipeline(newTestLogger(), store, source, metrics, defaultConfig()).Run(context.Background())
	if !errors.Is(err, domain.ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
	if metrics.runFailed == nil || !*metrics.runFailed {
		t.Error("aborted run should be observed as failed")
	}
}

func TestPipeline_Run_DropFailureIsFatal(t *testing.T) {
	t.Parallel()

	api := newFakeBungie(t, "en", "zh-chs")
	store := newMockStore()
	store.dropErr = fmt.Errorf("mongo: %w", domain.ErrStorage)

	_, err := NewPipeline(newTestLogger(), store, api.client(), nil, defaultConfig()).Run(context.Background())
	if !errors.Is(err, domain.ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
	if api.manifestHits.Load() != 0 {
		t.Error("manifest must not be fetched after a failed drop")
	}
}

func TestPipeline_Run_DryRun(t *testing.T) {
	t.Parallel()

	api := newFakeBungie(t, "en", "zh-chs")
	store := newMockStore()
	cfg := defaultConfig()
	cfg.DryRun = true

	summary, err := NewPipeline(newTestLogger(), store, api.client(), nil, cfg).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls := store.calls(); len(calls) != 0 {
		t.Errorf("dry run touched the store: %v", calls)
	}
	for _, r := range summary.Locales {
		if r.Accepted != 3 || r.Inserted != 0 || r.Skipped != 2 {
			t.Errorf("%s: accepted=%d inserted=%d skipped=%d", r.Locale, r.Accepted, r.Inserted, r.Skipped)
		}
	}
}

func TestPipeline_Run_RecoversLocalePanic(t *testing.T) {
	t.Parallel()

	m, err := bungie.ParseManifest([]byte(`{"Response":{"jsonWorldComponentContentPaths":{
		"en":{"DestinyInventoryItemDefinition":"/en.json"},
		"zh-chs":{"DestinyInventoryItemDefinition":"/chs.json"}}}}`), "https://example.test")
	if err != nil {
		t.Fatal(err)
	}

	source := &stubSource{
		manifest: m,
		payloads: map[string]domain.RawCollection{"eng": {rec("1", `{"hash":1}`)}},
		panicOn:  "chs",
	}
	store := newMockStore()

	summary, err := NewPipeline(newTestLogger(), store, source, nil, defaultConfig()).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	failed := summary.Failed()
	if len(failed) != 1 || !strings.Contains(failed[0].Err.Error(), "panic") {
		t.Fatalf("Failed = %+v, want chs panic", failed)
	}
	if docs, _ := store.collection(collEng); len(docs) != 1 {
		t.Errorf("eng docs = %d, want 1", len(docs))
	}
}

func TestPipeline_Run_BestEffortFinish(t *testing.T) {
	t.Parallel()

	api := newFakeBungie(t, "en")
	store := newMockStore()
	store.recordErr = errBoom
	metrics := &mockMetrics{pushErr: errBoom}

	cfg := defaultConfig()
	cfg.Locales = []domain.Locale{domain.LocaleEnglish}

	summary, err := NewPipeline(newTestLogger(), store, api.client(), metrics, cfg).Run(context.Background())
	if err != nil {
		t.Fatalf("record/push failures must not fail the run: %v", err)
	}
	if summary.HasErrors() {
		t.Errorf("unexpected failures: %+v", summary.Failed())
	}
}

func TestSummary_Record(t *testing.T) {
	t.Parallel()

	s := &Summary{
		StartedAt:  time.Unix(100, 0),
		FinishedAt: time.Unix(160, 0),
		Locales: []LocaleResult{
			{Locale: domain.LocaleEnglish, Collection: collEng, Fetched: 5, Inserted: 3, Skipped: 2, Duration: 1500 * time.Millisecond},
			{Locale: domain.LocaleChineseSimplified, Collection: collChs, Err: errBoom},
		},
	}

	rec := s.Record()
	if rec.Locales[0].Locale != "eng" || rec.Locales[0].DurationMS != 1500 || rec.Locales[0].Error != "" {
		t.Errorf("eng = %+v", rec.Locales[0])
	}
	if rec.Locales[1].Error != "boom" {
		t.Errorf("chs error = %q", rec.Locales[1].Error)
	}
	if !rec.Failed() {
		t.Error("record with a failed locale should report Failed")
	}
	if s.Duration() != time.Minute {
		t.Errorf("Duration = %v", s.Duration())
	}
}
