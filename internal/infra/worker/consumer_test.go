//go:build !integration

package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"mediaforge/internal/domain/model"
	"mediaforge/internal/infra/redis"

	"github.com/rs/zerolog"
)

type fakeSource struct {
	mu       sync.Mutex
	groupErr int
	batches  [][]redis.StreamMessage
	acked    []string
	groups   []string
}

func (f *fakeSource) EnsureGroup(_ context.Context, group string, topics ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.groupErr > 0 {
		f.groupErr--
		return errors.New("redis down")
	}
	f.groups = append(f.groups, group)
	return nil
}

func (f *fakeSource) ReadGroup(ctx context.Context, _, _ string, _ []string, _ int64, block time.Duration) ([]redis.StreamMessage, error) {
	f.mu.Lock()
	if len(f.batches) > 0 {
		b := f.batches[0]
		f.batches = f.batches[1:]
		f.mu.Unlock()
		return b, nil
	}
	f.mu.Unlock()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(block):
		return nil, nil
	}
}

func (f *fakeSource) Ack(_ context.Context, _ string, m redis.StreamMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, m.ID)
	return nil
}

type fullOncePool struct {
	mu     sync.Mutex
	full   int
	tasks  int
	called chan struct{}
}

func (p *fullOncePool) Submit(task Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.full > 0 {
		p.full--
		return ErrPoolFull
	}
	p.tasks++
	p.called <- struct{}{}
	return nil
}

type msgRecorder struct {
	mu   sync.Mutex
	msgs []model.JobMessage
}

func (r *msgRecorder) Task(msg model.JobMessage) Task {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
	return func(context.Context) error { return nil }
}

func payload(t *testing.T, m model.JobMessage) []byte {
	t.Helper()
	b, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestConsumer_AcksDecodesAndSubmits(t *testing.T) {
	src := &fakeSource{
		groupErr: 1,
		batches: [][]redis.StreamMessage{{
			{Topic: model.TopicGeneration, ID: "1-0", Payload: payload(t, model.JobMessage{Kind: model.JobKindGeneration, IllustrationID: "il-1"})},
			{Topic: model.TopicGeneration, ID: "2-0", Payload: []byte("not json")},
			{Topic: model.TopicTraining, ID: "3-0", Payload: payload(t, model.JobMessage{BrandID: "br-1"})},
		}},
	}
	pool := &fullOncePool{full: 1, called: make(chan struct{}, 4)}
	rec := &msgRecorder{}
	log := zerolog.Nop()
	c := NewConsumer(src, pool, rec, ConsumerConfig{Group: "workers", Consumer: "w1", Block: 10 * time.Millisecond}, &log)
	c.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	for i := 0; i < 2; i++ {
		select {
		case <-pool.called:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for submissions")
		}
	}
	cancel()
	<-done

	src.mu.Lock()
	defer src.mu.Unlock()
	if len(src.acked) != 3 {
		t.Fatalf("every delivery must be acked, got %v", src.acked)
	}
	if len(src.groups) != 1 {
		t.Fatalf("group should be ensured after the retry, got %v", src.groups)
	}
	if len(rec.msgs) != 2 {
		t.Fatalf("expected 2 decoded messages, got %+v", rec.msgs)
	}
	if rec.msgs[1].Kind != model.JobKindTraining || rec.msgs[1].JobID() != "br-1" {
		t.Fatalf("training kind not inferred: %+v", rec.msgs[1])
	}
}
