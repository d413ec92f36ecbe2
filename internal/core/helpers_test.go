package core

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// ----------------------------------------------------------------------------
// Reference data
// ----------------------------------------------------------------------------

type fakeRefs struct {
	mu        sync.Mutex
	items     map[ReferenceKind][]Reference
	created   []Reference
	listCalls map[ReferenceKind]int
	nextID    int
	createErr error
}

func newFakeRefs(refs ...Reference) *fakeRefs {
	f := &fakeRefs{
		items:     make(map[ReferenceKind][]Reference),
		listCalls: make(map[ReferenceKind]int),
	}
	for _, r := range refs {
		f.items[r.Kind] = append(f.items[r.Kind], r)
	}
	return f
}

func (f *fakeRefs) ListReferences(_ context.Context, kind ReferenceKind) ([]Reference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls[kind]++
	return append([]Reference(nil), f.items[kind]...), nil
}

func (f *fakeRefs) CreateReference(_ context.Context, kind ReferenceKind, name, slug string) (Reference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return Reference{}, f.createErr
	}
	f.nextID++
	ref := Reference{ID: fmt.Sprintf("%s-%d", kind, f.nextID), Kind: kind, Name: name, Slug: slug}
	f.items[kind] = append(f.items[kind], ref)
	f.created = append(f.created, ref)
	return ref, nil
}

func ref(kind ReferenceKind, id, name string) Reference {
	return Reference{ID: id, Kind: kind, Name: name, Slug: Slugify(name)}
}

// ----------------------------------------------------------------------------
// Companies
// ----------------------------------------------------------------------------

type fakeCompanies struct {
	mu        sync.Mutex
	keys      map[string]string
	companies map[string]Company
	updates   []string
	nextID    int
	createErr error
	panicOn   string
}

func newFakeCompanies() *fakeCompanies {
	return &fakeCompanies{
		keys:      make(map[string]string),
		companies: make(map[string]Company),
	}
}

func naturalKey(k NaturalKey) string {
	if k.ExternalID != "" {
		return "ext:" + k.ExternalID
	}
	return "nl:" + strings.ToLower(k.Name) + "|" + k.LocationID
}

// seed registers an existing company.
func (f *fakeCompanies) seed(c Company) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insertLocked(c)
}

func (f *fakeCompanies) insertLocked(c Company) string {
	f.nextID++
	id := fmt.Sprintf("company-%d", f.nextID)
	f.companies[id] = c
	f.keys[naturalKey(NaturalKey{Name: c.Name, LocationID: c.LocationID})] = id
	if c.ExternalID != "" {
		f.keys[naturalKey(NaturalKey{ExternalID: c.ExternalID})] = id
	}
	return id
}

func (f *fakeCompanies) FindCompany(_ context.Context, key NaturalKey) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.keys[naturalKey(key)]
	return id, ok, nil
}

func (f *fakeCompanies) CreateCompany(_ context.Context, c Company) (string, error) {
	if f.panicOn != "" && c.Name == f.panicOn {
		panic("driver exploded")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	return f.insertLocked(c), nil
}

func (f *fakeCompanies) UpdateCompany(_ context.Context, id string, c Company) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.companies[id] = c
	f.updates = append(f.updates, id)
	return nil
}

func (f *fakeCompanies) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.companies)
}

// ----------------------------------------------------------------------------
// Media
// ----------------------------------------------------------------------------

// fakeMedia fails every URL containing "broken".
type fakeMedia struct {
	mu    sync.Mutex
	calls [][]string
}

func (f *fakeMedia) Fetch(_ context.Context, _ string, urls []string) MediaResult {
	f.mu.Lock()
	f.calls = append(f.calls, urls)
	f.mu.Unlock()

	var res MediaResult
	for _, u := range urls {
		if strings.Contains(u, "broken") {
			res.Failed++
		} else {
			res.Downloaded++
		}
	}
	return res
}

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (m *memStore) Put(_ context.Context, key string, r io.Reader, contentType string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	m.types[key] = contentType
	return "mem://" + key, nil
}

type attachment struct {
	companyID, sourceURL, location string
	position                       int
}

type fakeImageRepo struct {
	mu          sync.Mutex
	attachments []attachment
}

func (f *fakeImageRepo) AttachImage(_ context.Context, companyID, sourceURL, location string, position int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attachments = append(f.attachments, attachment{companyID, sourceURL, location, position})
	return nil
}

// ----------------------------------------------------------------------------
// Snapshots
// ----------------------------------------------------------------------------

type fakeSnapshots struct {
	mu         sync.Mutex
	inserted   []Session
	saved      map[string]Session
	saves      int
	unfinished []Session
	panicOnce  bool
	purged     []time.Time
}

func newFakeSnapshots() *fakeSnapshots {
	return &fakeSnapshots{saved: make(map[string]Session)}
}

func (f *fakeSnapshots) InsertSession(_ context.Context, s Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, s)
	return nil
}

func (f *fakeSnapshots) SaveProgress(_ context.Context, s Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOnce {
		f.panicOnce = false
		panic("snapshot store exploded")
	}
	f.saves++
	f.saved[s.ID] = s
	return nil
}

func (f *fakeSnapshots) LoadUnfinished(context.Context) ([]Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unfinished, nil
}

func (f *fakeSnapshots) PurgeFinished(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purged = append(f.purged, cutoff)
	return 2, nil
}

func (f *fakeSnapshots) last(id string) (Session, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.saved[id]
	return s, ok
}

// ----------------------------------------------------------------------------
// Processors and services
// ----------------------------------------------------------------------------

// processorFunc adapts a function to RowProcessor.
type processorFunc func(ctx context.Context, index int, rec Record) RowOutcome

func (f processorFunc) Process(ctx context.Context, index int, rec Record) RowOutcome {
	return f(ctx, index, rec)
}

// nameRequired succeeds for rows with a name and fails the rest.
func nameRequired(_ context.Context, _ int, rec Record) RowOutcome {
	if rec.Get("name") == "" {
		return RowOutcome{Error: "name required"}
	}
	return RowOutcome{Success: true}
}

func fastDriver() DriverConfig {
	return DriverConfig{RowDelay: time.Millisecond, PollInterval: 10 * time.Millisecond}
}

func newTestService(t *testing.T, p RowProcessor, opts ...ServiceOption) *Service {
	t.Helper()
	return newTestServiceWithConfig(t, p, ServiceConfig{Driver: fastDriver(), MaxConcurrent: 4, MaxWait: time.Second}, opts...)
}

func newTestServiceWithConfig(t *testing.T, p RowProcessor, cfg ServiceConfig, opts ...ServiceOption) *Service {
	t.Helper()
	svc := NewService(NewMemoryStore(), func(Settings) RowProcessor { return p }, cfg, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return svc
}

func records(names ...string) []Record {
	recs := make([]Record, len(names))
	for i, n := range names {
		recs[i] = Record{"name": n}
	}
	return recs
}

// waitFor polls until the session reaches status.
func waitFor(t *testing.T, svc *Service, id string, status SessionStatus) Session {
	t.Helper()
	var sess Session
	require.Eventually(t, func() bool {
		var err error
		sess, err = svc.Inspect(id)
		return err == nil && sess.Status == status
	}, 3*time.Second, 2*time.Millisecond, "session never reached %s", status)
	return sess
}

// waitProcessed polls until the session has processed n rows.
func waitProcessed(t *testing.T, svc *Service, id string, n int) Session {
	t.Helper()
	var sess Session
	require.Eventually(t, func() bool {
		var err error
		sess, err = svc.Inspect(id)
		return err == nil && sess.Stats.ProcessedRows >= n
	}, 3*time.Second, 2*time.Millisecond)
	return sess
}
