package updater

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/heartmarshall/d2-itemdb-updater/internal/adapter/bungie"
	"github.com/heartmarshall/d2-itemdb-updater/internal/domain"
)

// mockStore is an in-memory DocumentStore that records calls.
type mockStore struct {
	mu sync.Mutex

	collections map[string][]domain.ItemDocument
	runs        []domain.RunRecord
	callLog     []string

	dropErr   error
	insertErr map[string]error
	countErr  error
	countSkew int64
	recordErr error
}

func newMockStore() *mockStore {
	return &mockStore{
		collections: make(map[string][]domain.ItemDocument),
		insertErr:   make(map[string]error),
	}
}

func (m *mockStore) logCall(name string) {
	m.callLog = append(m.callLog, name)
}

func (m *mockStore) DropDatabase(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logCall("drop")
	if m.dropErr != nil {
		return m.dropErr
	}
	m.collections = make(map[string][]domain.ItemDocument)
	return nil
}

func (m *mockStore) InsertMany(_ context.Context, collection string, docs []domain.ItemDocument) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logCall("insert:" + collection)
	if err := m.insertErr[collection]; err != nil {
		return 0, err
	}
	m.collections[collection] = append(m.collections[collection], docs...)
	return len(docs), nil
}

func (m *mockStore) CountDocuments(_ context.Context, collection string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logCall("count:" + collection)
	if m.countErr != nil {
		return 0, m.countErr
	}
	return int64(len(m.collections[collection])) + m.countSkew, nil
}

func (m *mockStore) RecordRun(_ context.Context, run domain.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logCall("record")
	if m.recordErr != nil {
		return m.recordErr
	}
	m.runs = append(m.runs, run)
	return nil
}

func (m *mockStore) calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.callLog...)
}

func (m *mockStore) collection(name string) ([]domain.ItemDocument, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	docs, ok := m.collections[name]
	return docs, ok
}

// stubSource serves a fixed manifest and per-locale payloads without HTTP.
type stubSource struct {
	manifest    *bungie.Manifest
	manifestErr error
	payloads    map[string]domain.RawCollection
	fetchErr    map[string]error
	panicOn     string
}

func (s *stubSource) FetchManifest(context.Context) (*bungie.Manifest, error) {
	return s.manifest, s.manifestErr
}

func (s *stubSource) FetchDefinitions(_ context.Context, _ string, l domain.Locale) (domain.RawCollection, error) {
	if l.Suffix == s.panicOn {
		panic("decoder exploded")
	}
	if err := s.fetchErr[l.Suffix]; err != nil {
		return nil, err
	}
	return s.payloads[l.Suffix], nil
}

type localeObservation struct {
	locale   string
	inserted int
	failed   bool
}

// mockMetrics records observations.
type mockMetrics struct {
	mu         sync.Mutex
	locales    []localeObservation
	runFailed  *bool
	pushCalled bool
	pushErr    error
}

func (m *mockMetrics) ObserveLocale(locale string, _, inserted, _ int, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locales = append(m.locales, localeObservation{locale: locale, inserted: inserted, failed: err != nil})
}

func (m *mockMetrics) ObserveRun(_ time.Duration, failed bool, _ time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runFailed = &failed
}

func (m *mockMetrics) Push(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pushCalled = true
	return m.pushErr
}

var errBoom = errors.New("boom")
