package importer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ferrow/designvault/internal/database"
	"github.com/ferrow/designvault/internal/events"
)

// testDB creates an isolated in-memory database with the import schema
func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	// A second pool connection would see its own empty in-memory
	// database, so pin the pool to one.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&database.ImportJob{}, &database.ImportLog{}))
	return db
}

// writeTree creates files under a temp dir from relative path -> content
func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

// MockEventBus implements events.EventBus for testing
type MockEventBus struct {
	mu     sync.RWMutex
	events []events.Event
}

func (m *MockEventBus) Publish(ctx context.Context, event events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *MockEventBus) PublishAsync(event events.Event) error {
	return m.Publish(context.Background(), event)
}

func (m *MockEventBus) Subscribe(ctx context.Context, filter events.EventFilter, handler events.EventHandler) (*events.Subscription, error) {
	return nil, nil
}

func (m *MockEventBus) Unsubscribe(subscriptionID string) error { return nil }

func (m *MockEventBus) GetSubscriptions() []*events.Subscription { return nil }

func (m *MockEventBus) GetEvents(filter events.EventFilter, limit, offset int) ([]events.Event, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]events.Event{}, m.events...), int64(len(m.events)), nil
}

func (m *MockEventBus) GetStats() events.EventStats { return events.EventStats{} }

func (m *MockEventBus) Start(ctx context.Context) error { return nil }

func (m *MockEventBus) Stop(ctx context.Context) error { return nil }

func (m *MockEventBus) Health() error { return nil }

// EventTypes returns the types of all published events, in order
func (m *MockEventBus) EventTypes() []events.EventType {
	m.mu.RLock()
	defer m.mu.RUnlock()
	types := make([]events.EventType, len(m.events))
	for i, e := range m.events {
		types[i] = e.Type
	}
	return types
}

// stubLibrary is an in-memory LibraryLookup
type stubLibrary struct {
	mu       sync.Mutex
	byHash   map[string]string // content hash -> design ID
	byPhash  map[uint64]string // phash -> design ID
	hashErr  error
	phashErr error
}

func newStubLibrary() *stubLibrary {
	return &stubLibrary{
		byHash:  make(map[string]string),
		byPhash: make(map[uint64]string),
	}
}

func (s *stubLibrary) FindByHash(contentHash string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hashErr != nil {
		return "", s.hashErr
	}
	return s.byHash[contentHash], nil
}

func (s *stubLibrary) FindByPerceptualHash(phash uint64, minSimilarity int) (string, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phashErr != nil {
		return "", 0, s.phashErr
	}
	bestID, bestScore := "", 0.0
	for stored, id := range s.byPhash {
		score := Similarity(phash, stored)
		if score >= float64(minSimilarity) && score > bestScore {
			bestID, bestScore = id, score
		}
	}
	return bestID, bestScore, nil
}

// stubIngestor records ingested paths and can be programmed to fail
type stubIngestor struct {
	mu         sync.Mutex
	ingested   []string
	failures   map[string]int // path -> remaining transient failures
	permanent  map[string]bool
	inFlight   int
	maxFlight  int
	blockUntil chan struct{} // when set, ingestion waits on this
}

func newStubIngestor() *stubIngestor {
	return &stubIngestor{
		failures:  make(map[string]int),
		permanent: make(map[string]bool),
	}
}

func (s *stubIngestor) IngestFile(ctx context.Context, f *ScannedFile, project *DetectedProject, opts ProcessingOptions) (*IngestResult, error) {
	s.mu.Lock()
	s.inFlight++
	if s.inFlight > s.maxFlight {
		s.maxFlight = s.inFlight
	}
	block := s.blockUntil
	s.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			s.mu.Lock()
			s.inFlight--
			s.mu.Unlock()
			return nil, Transient(ctx.Err())
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight--

	if s.permanent[f.Path] {
		return nil, Permanent(fmt.Errorf("unparseable file %s", f.Path))
	}
	if s.failures[f.Path] > 0 {
		s.failures[f.Path]--
		return nil, Transient(fmt.Errorf("flaky storage for %s", f.Path))
	}

	s.ingested = append(s.ingested, f.Path)
	return &IngestResult{
		DesignID:      fmt.Sprintf("design-%d", len(s.ingested)),
		VersionNumber: 1,
		Steps:         []string{"store", "create"},
	}, nil
}

func (s *stubIngestor) ingestedPaths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.ingested...)
}

func (s *stubIngestor) maxInFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxFlight
}
