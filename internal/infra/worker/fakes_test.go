//go:build !integration

package worker

import (
	"context"
	"sync"
	"time"

	"mediaforge/internal/domain"
	"mediaforge/internal/domain/model"
	"mediaforge/internal/domain/ports/adapter"
	"mediaforge/internal/domain/ports/repository"
	"mediaforge/internal/usecase"
)

// --- illustrations ---

type memIllustrations struct {
	mu   sync.Mutex
	rows map[string]*model.Illustration
	// onTransition lets a test interfere between steps.
	onTransition func(from, to model.IllustrationStatus)
}

func newMemIllustrations(rows ...*model.Illustration) *memIllustrations {
	m := &memIllustrations{rows: map[string]*model.Illustration{}}
	for _, r := range rows {
		m.rows[r.ID] = r
	}
	return m
}

func (m *memIllustrations) Create(_ context.Context, _ repository.Tx, il *model.Illustration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *il
	cp.Status = model.IllustrationQueued
	m.rows[il.ID] = &cp
	return nil
}

func (m *memIllustrations) FindByID(_ context.Context, _ repository.Tx, id string) (*model.Illustration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memIllustrations) Transition(_ context.Context, _ repository.Tx, id string, from, to model.IllustrationStatus, patch model.IllustrationPatch) (*model.Illustration, error) {
	if m.onTransition != nil {
		m.onTransition(from, to)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !from.CanTransition(to) {
		return nil, domain.ErrInvalidTransition
	}
	r, ok := m.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if r.Status != from {
		return nil, domain.ErrConflict
	}
	patch.Apply(r)
	r.Status = to
	r.Version++
	cp := *r
	return &cp, nil
}

func (m *memIllustrations) ListStale(context.Context, repository.Tx, model.IllustrationStatus, time.Time, int) ([]*model.Illustration, error) {
	return nil, nil
}

func (m *memIllustrations) get(id string) model.Illustration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.rows[id]
}

// set changes the stored status directly, as a concurrent writer would.
func (m *memIllustrations) set(id string, status model.IllustrationStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[id].Status = status
}

// --- brands ---

type memBrands struct {
	mu   sync.Mutex
	rows map[string]*model.Brand
}

func newMemBrands(rows ...*model.Brand) *memBrands {
	m := &memBrands{rows: map[string]*model.Brand{}}
	for _, r := range rows {
		m.rows[r.ID] = r
	}
	return m
}

func (m *memBrands) Create(_ context.Context, _ repository.Tx, b *model.Brand) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.rows[b.ID] = &cp
	return nil
}

func (m *memBrands) FindByID(_ context.Context, _ repository.Tx, id string) (*model.Brand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memBrands) Transition(_ context.Context, _ repository.Tx, id string, from, to model.BrandStatus, patch model.BrandPatch) (*model.Brand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !from.CanTransition(to) {
		return nil, domain.ErrInvalidTransition
	}
	r, ok := m.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if r.Status != from {
		return nil, domain.ErrConflict
	}
	patch.Apply(r)
	r.Status = to
	r.Version++
	cp := *r
	return &cp, nil
}

func (m *memBrands) ListStale(context.Context, repository.Tx, model.BrandStatus, time.Time, int) ([]*model.Brand, error) {
	return nil, nil
}

func (m *memBrands) get(id string) model.Brand {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.rows[id]
}

// --- ledger ---

type fakeLedger struct {
	usecase.LedgerUseCase
	mu      sync.Mutex
	debits  []usecase.DebitRequest
	seen    map[string]bool
	DebitFn func(req usecase.DebitRequest) error
}

func (l *fakeLedger) Debit(_ context.Context, req usecase.DebitRequest) (*model.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seen == nil {
		l.seen = map[string]bool{}
	}
	if l.seen[req.JobID] {
		return nil, domain.ErrAlreadyDebited
	}
	if l.DebitFn != nil {
		if err := l.DebitFn(req); err != nil {
			return nil, err
		}
	}
	l.seen[req.JobID] = true
	l.debits = append(l.debits, req)
	return &model.LedgerEntry{JobID: req.JobID, Amount: req.Cost, AccountKind: req.Account.Kind}, nil
}

func (l *fakeLedger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.debits)
}

// --- backends ---

type fakeImageBackend struct {
	name  string
	mu    sync.Mutex
	calls []adapter.ImageRequest
	GenFn func(ctx context.Context, req adapter.ImageRequest) (*adapter.ImageResult, error)
}

func (b *fakeImageBackend) Name() string { return b.name }

func (b *fakeImageBackend) Generate(ctx context.Context, req adapter.ImageRequest) (*adapter.ImageResult, error) {
	b.mu.Lock()
	b.calls = append(b.calls, req)
	b.mu.Unlock()
	if b.GenFn != nil {
		return b.GenFn(ctx, req)
	}
	return &adapter.ImageResult{Data: []byte("png"), ContentType: "image/png"}, nil
}

func (b *fakeImageBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

type fakeTrainer struct {
	TrainFn func(ctx context.Context, req adapter.TrainingRequest) (*adapter.TrainingResult, error)
	calls   int
}

func (f *fakeTrainer) Name() string { return "fake-trainer" }

func (f *fakeTrainer) Train(ctx context.Context, req adapter.TrainingRequest) (*adapter.TrainingResult, error) {
	f.calls++
	if f.TrainFn != nil {
		return f.TrainFn(ctx, req)
	}
	return &adapter.TrainingResult{ArtifactPath: "gs://models/" + req.BrandID + "/model.safetensors"}, nil
}

// --- blobs & feed ---

type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	public  map[string]bool
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: map[string][]byte{}, public: map[string]bool{}}
}

func (b *memBlobs) Put(_ context.Context, key string, data []byte, _ string, _ map[string]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
	return nil
}

func (b *memBlobs) MakePublic(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.objects[key]; !ok {
		return domain.ErrNotFound
	}
	b.public[key] = true
	return nil
}

func (b *memBlobs) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.objects[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return d, nil
}

func (b *memBlobs) PublicURL(key string) string { return "https://cdn.test/" + key }

type recordingFeed struct {
	mu      sync.Mutex
	changes []adapter.JobChange
}

func (f *recordingFeed) Notify(_ context.Context, c adapter.JobChange) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = append(f.changes, c)
	return nil
}

func (f *recordingFeed) Subscribe(context.Context, string, string) (<-chan adapter.JobChange, error) {
	return nil, nil
}

func (f *recordingFeed) statuses() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.changes))
	for _, c := range f.changes {
		out = append(out, c.Status)
	}
	return out
}
