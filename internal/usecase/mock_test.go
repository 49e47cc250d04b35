//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"

	"mediaforge/internal/domain"
	"mediaforge/internal/domain/model"
	"mediaforge/internal/domain/ports/adapter"
	"mediaforge/internal/domain/ports/repository"
)

// -----------------------------
// memDB: one in-memory store shared by all repositories. WithTx serializes
// transactions and restores a snapshot when fn fails, which is enough to
// check that rejected operations leave nothing behind.
// -----------------------------

type memDB struct {
	mu   sync.Mutex
	txMu sync.Mutex

	users         map[string]*model.User
	teams         map[string]*model.Team
	entries       map[string]*model.LedgerEntry
	illustrations map[string]*model.Illustration
	brands        map[string]*model.Brand
	outbox        map[string]*model.OutboxMessage

	enqueueErr error
	txCount    int
}

func newMemDB() *memDB {
	return &memDB{
		users:         map[string]*model.User{},
		teams:         map[string]*model.Team{},
		entries:       map[string]*model.LedgerEntry{},
		illustrations: map[string]*model.Illustration{},
		brands:        map[string]*model.Brand{},
		outbox:        map[string]*model.OutboxMessage{},
	}
}

type memSnapshot struct {
	users         map[string]*model.User
	teams         map[string]*model.Team
	entries       map[string]*model.LedgerEntry
	illustrations map[string]*model.Illustration
	brands        map[string]*model.Brand
	outbox        map[string]*model.OutboxMessage
}

func copyMap[T any](in map[string]*T, clone func(*T) *T) map[string]*T {
	out := make(map[string]*T, len(in))
	for k, v := range in {
		out[k] = clone(v)
	}
	return out
}

func cloneTeam(t *model.Team) *model.Team {
	cp := *t
	cp.Members = append([]model.TeamMember(nil), t.Members...)
	return &cp
}

func clone[T any](v *T) *T {
	cp := *v
	return &cp
}

func (db *memDB) snapshot() memSnapshot {
	db.mu.Lock()
	defer db.mu.Unlock()
	return memSnapshot{
		users:         copyMap(db.users, clone[model.User]),
		teams:         copyMap(db.teams, cloneTeam),
		entries:       copyMap(db.entries, clone[model.LedgerEntry]),
		illustrations: copyMap(db.illustrations, clone[model.Illustration]),
		brands:        copyMap(db.brands, clone[model.Brand]),
		outbox:        copyMap(db.outbox, clone[model.OutboxMessage]),
	}
}

func (db *memDB) restore(s memSnapshot) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.users, db.teams, db.entries = s.users, s.teams, s.entries
	db.illustrations, db.brands, db.outbox = s.illustrations, s.brands, s.outbox
}

type memTx struct{}

func (db *memDB) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()
	db.mu.Lock()
	db.txCount++
	db.mu.Unlock()
	snap := db.snapshot()
	if err := fn(ctx, memTx{}); err != nil {
		db.restore(snap)
		return err
	}
	return nil
}

// -----------------------------
// Users & teams
// -----------------------------

type memUsers struct{ db *memDB }

func (r memUsers) Save(_ context.Context, _ repository.Tx, u *model.User) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.users[u.ID] = clone(u)
	return nil
}

func (r memUsers) FindByID(_ context.Context, _ repository.Tx, id string) (*model.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clone(u), nil
}

func (r memUsers) LockByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	if tx == nil {
		return nil, domain.ErrInvalidExecContext
	}
	return r.FindByID(ctx, tx, id)
}

func (r memUsers) UpdateUsage(_ context.Context, _ repository.Tx, id string, used int, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.CreditsUsed = used
	u.LastGenerationAt = &at
	return nil
}

func (r memUsers) SetTeam(_ context.Context, _ repository.Tx, id string, teamID *string, role model.TeamRole) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.TeamID = teamID
	u.TeamRole = role
	return nil
}

type memTeams struct{ db *memDB }

func (r memTeams) Create(_ context.Context, _ repository.Tx, t *model.Team) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.teams[t.ID]; ok {
		return domain.ErrAlreadyExists
	}
	r.db.teams[t.ID] = cloneTeam(t)
	return nil
}

func (r memTeams) FindByID(_ context.Context, _ repository.Tx, id string) (*model.Team, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	t, ok := r.db.teams[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneTeam(t), nil
}

func (r memTeams) LockByID(ctx context.Context, tx repository.Tx, id string) (*model.Team, error) {
	if tx == nil {
		return nil, domain.ErrInvalidExecContext
	}
	return r.FindByID(ctx, tx, id)
}

func (r memTeams) AddMember(_ context.Context, _ repository.Tx, teamID string, m model.TeamMember) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	t, ok := r.db.teams[teamID]
	if !ok {
		return domain.ErrNotFound
	}
	t.Members = append(t.Members, m)
	return nil
}

func (r memTeams) UpdateUsage(_ context.Context, _ repository.Tx, in *model.Team) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	t, ok := r.db.teams[in.ID]
	if !ok {
		return domain.ErrNotFound
	}
	t.Credits = in.Credits
	t.DailyGenerationsUsed = in.DailyGenerationsUsed
	t.DailyLimitResetDate = in.DailyLimitResetDate
	t.LastUsedAt = in.LastUsedAt
	return nil
}

func (r memTeams) UpdateMemberUsage(_ context.Context, _ repository.Tx, teamID, userID string, usage int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	t, ok := r.db.teams[teamID]
	if !ok {
		return domain.ErrNotFound
	}
	m, ok := t.Member(userID)
	if !ok {
		return domain.ErrNotTeamMember
	}
	m.UsageThisMonth = usage
	return nil
}

func (r memTeams) ResetCycle(_ context.Context, _ repository.Tx, teamID string, credits int, next time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	t, ok := r.db.teams[teamID]
	if !ok {
		return domain.ErrNotFound
	}
	t.Credits = credits
	t.BillingCycleStart = t.CreditsResetDate
	t.CreditsResetDate = next
	for i := range t.Members {
		t.Members[i].UsageThisMonth = 0
	}
	return nil
}

func (r memTeams) ListDueForReset(_ context.Context, _ repository.Tx, now time.Time, limit int) ([]string, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var ids []string
	for id, t := range r.db.teams {
		if !t.CreditsResetDate.After(now) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

type memEntries struct{ db *memDB }

func (r memEntries) Append(_ context.Context, _ repository.Tx, e *model.LedgerEntry) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.entries[e.JobID]; ok {
		return domain.ErrAlreadyDebited
	}
	r.db.entries[e.JobID] = clone(e)
	return nil
}

func (r memEntries) FindByJobID(_ context.Context, _ repository.Tx, jobID string) (*model.LedgerEntry, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	e, ok := r.db.entries[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clone(e), nil
}

// -----------------------------
// Job records & outbox
// -----------------------------

type memIllustrations struct{ db *memDB }

func (r memIllustrations) Create(_ context.Context, _ repository.Tx, il *model.Illustration) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	cp := clone(il)
	cp.Status = model.IllustrationQueued
	cp.Version = 1
	r.db.illustrations[il.ID] = cp
	return nil
}

func (r memIllustrations) FindByID(_ context.Context, _ repository.Tx, id string) (*model.Illustration, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	il, ok := r.db.illustrations[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clone(il), nil
}

func (r memIllustrations) Transition(_ context.Context, _ repository.Tx, id string, from, to model.IllustrationStatus, p model.IllustrationPatch) (*model.Illustration, error) {
	if !from.CanTransition(to) {
		return nil, domain.ErrInvalidTransition
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	il, ok := r.db.illustrations[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if il.Status != from {
		return nil, domain.ErrConflict
	}
	p.Apply(il)
	il.Status = to
	il.Version++
	return clone(il), nil
}

func (r memIllustrations) ListStale(_ context.Context, _ repository.Tx, status model.IllustrationStatus, olderThan time.Time, limit int) ([]*model.Illustration, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*model.Illustration
	for _, il := range r.db.illustrations {
		since := il.ProcessingStartedAt
		if status == model.IllustrationQueued {
			since = &il.CreatedAt
		}
		if il.Status != status || since == nil || !since.Before(olderThan) {
			continue
		}
		out = append(out, clone(il))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memBrands struct{ db *memDB }

func (r memBrands) Create(_ context.Context, _ repository.Tx, b *model.Brand) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	cp := clone(b)
	cp.Status = model.BrandPreparing
	cp.Version = 1
	r.db.brands[b.ID] = cp
	return nil
}

func (r memBrands) FindByID(_ context.Context, _ repository.Tx, id string) (*model.Brand, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	b, ok := r.db.brands[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clone(b), nil
}

func (r memBrands) Transition(_ context.Context, _ repository.Tx, id string, from, to model.BrandStatus, p model.BrandPatch) (*model.Brand, error) {
	if !from.CanTransition(to) {
		return nil, domain.ErrInvalidTransition
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	b, ok := r.db.brands[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if b.Status != from {
		return nil, domain.ErrConflict
	}
	p.Apply(b)
	b.Status = to
	b.Version++
	return clone(b), nil
}

func (r memBrands) ListStale(_ context.Context, _ repository.Tx, status model.BrandStatus, olderThan time.Time, limit int) ([]*model.Brand, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*model.Brand
	for _, b := range r.db.brands {
		since := b.TrainingStartedAt
		if status == model.BrandQueued {
			since = &b.CreatedAt
		}
		if b.Status != status || since == nil || !since.Before(olderThan) {
			continue
		}
		out = append(out, clone(b))
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memOutbox struct{ db *memDB }

func (r memOutbox) Enqueue(_ context.Context, _ repository.Tx, m *model.OutboxMessage) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.enqueueErr != nil {
		return r.db.enqueueErr
	}
	r.db.outbox[m.ID] = clone(m)
	return nil
}

func (r memOutbox) MarkDispatched(_ context.Context, _ repository.Tx, id string, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	m, ok := r.db.outbox[id]
	if !ok {
		return domain.ErrNotFound
	}
	m.DispatchedAt = &at
	return nil
}

func (r memOutbox) MarkFailed(_ context.Context, _ repository.Tx, id string, lastErr string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	m, ok := r.db.outbox[id]
	if !ok {
		return domain.ErrNotFound
	}
	m.Attempts++
	m.LastError = lastErr
	return nil
}

func (r memOutbox) ListPending(_ context.Context, _ repository.Tx, olderThan time.Time, limit int) ([]*model.OutboxMessage, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*model.OutboxMessage
	for _, m := range r.db.outbox {
		if m.DispatchedAt == nil && m.CreatedAt.Before(olderThan) {
			out = append(out, clone(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memOutbox) CountPending(_ context.Context, _ repository.Tx) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	n := 0
	for _, m := range r.db.outbox {
		if m.DispatchedAt == nil {
			n++
		}
	}
	return n, nil
}

// -----------------------------
// Adapters
// -----------------------------

type fakePublisher struct {
	mu   sync.Mutex
	sent map[string][][]byte
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, topic string, payload []byte) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	if p.sent == nil {
		p.sent = map[string][][]byte{}
	}
	p.sent[topic] = append(p.sent[topic], payload)
	return "msg-" + topic, nil
}

func (p *fakePublisher) count(topic string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent[topic])
}

type nopFeed struct {
	mu      sync.Mutex
	changes []adapter.JobChange
}

func (f *nopFeed) Notify(_ context.Context, c adapter.JobChange) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = append(f.changes, c)
	return nil
}

func (f *nopFeed) Subscribe(context.Context, string, string) (<-chan adapter.JobChange, error) {
	return nil, errors.New("not supported")
}

// wordMeter counts whitespace-separated words; close enough for limits in tests.
type wordMeter struct{}

func (wordMeter) Count(text string) int {
	n, in := 0, false
	for _, r := range text {
		if r == ' ' || r == '\n' || r == '\t' {
			in = false
			continue
		}
		if !in {
			n++
			in = true
		}
	}
	return n
}

// fixedClock returns a controllable time source.
type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
