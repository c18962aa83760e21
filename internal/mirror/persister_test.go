package mirror

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/DoyleJ11/fightcard-backend/pkg/types"
)

type memSaver struct {
	mu    sync.Mutex
	fails int // fail this many calls before succeeding; -1 fails forever
	calls int
	saved map[string][]types.Snapshot
	cards []types.CardRecord
}

func newMemSaver(fails int) *memSaver {
	return &memSaver{fails: fails, saved: make(map[string][]types.Snapshot)}
}

func (m *memSaver) Save(_ context.Context, slug string, snap types.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.fails < 0 || m.calls <= m.fails {
		return errors.New("store offline")
	}
	m.saved[slug] = append(m.saved[slug], snap)
	return nil
}

func (m *memSaver) SaveCard(_ context.Context, rec types.CardRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cards = append(m.cards, rec)
	return nil
}

func (m *memSaver) snapshots(slug string) []types.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.Snapshot(nil), m.saved[slug]...)
}

func collect() (func(Result), func() []Result) {
	var mu sync.Mutex
	var results []Result
	return func(r Result) {
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
		}, func() []Result {
			mu.Lock()
			defer mu.Unlock()
			return append([]Result(nil), results...)
		}
}

func snapNamed(name string) types.Snapshot {
	return types.Snapshot{EventName: name, Fights: []types.Fight{}}
}

func TestPersister_CoalescesLatestPerSlug(t *testing.T) {
	primary := newMemSaver(0)
	p := NewPersister(PersisterOptions{Primary: primary, Retries: 1})

	p.Persist("a", snapNamed("one"))
	p.Persist("b", snapNamed("other"))
	p.Persist("a", snapNamed("two"))
	p.Flush(context.Background())

	got := primary.snapshots("a")
	require.Len(t, got, 1)
	assert.Equal(t, "two", got[0].EventName)
	require.Len(t, primary.snapshots("b"), 1)
}

func TestPersister_RetriesThenSucceeds(t *testing.T) {
	primary := newMemSaver(2)
	onResult, results := collect()
	p := NewPersister(PersisterOptions{Primary: primary, Retries: 3, Backoff: time.Millisecond, OnResult: onResult})

	p.Persist("a", snapNamed("one"))
	p.Flush(context.Background())

	res := results()
	require.Len(t, res, 1)
	assert.NoError(t, res[0].Err)
	assert.Equal(t, TargetPrimary, res[0].Target)
	assert.Equal(t, 3, res[0].Attempts)
	assert.Len(t, primary.snapshots("a"), 1)
}

func TestPersister_FallsBackAfterRetries(t *testing.T) {
	primary := newMemSaver(-1)
	fallback := newMemSaver(0)
	core, logs := observer.New(zapcore.WarnLevel)
	onResult, results := collect()
	p := NewPersister(PersisterOptions{
		Primary:  primary,
		Fallback: fallback,
		Retries:  2,
		Backoff:  time.Millisecond,
		Logger:   zap.New(core),
		OnResult: onResult,
	})

	p.Persist("a", snapNamed("one"))
	p.Flush(context.Background())

	res := results()
	require.Len(t, res, 1)
	assert.NoError(t, res[0].Err)
	assert.Equal(t, TargetFallback, res[0].Target)
	assert.Equal(t, 3, res[0].Attempts)
	assert.Len(t, fallback.snapshots("a"), 1)
	assert.Equal(t, 1, logs.FilterMessage("primary mirror failed, wrote fallback").Len())
}

func TestPersister_ReportsCombinedFailure(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	onResult, results := collect()
	p := NewPersister(PersisterOptions{
		Primary:  newMemSaver(-1),
		Fallback: newMemSaver(-1),
		Retries:  1,
		Logger:   zap.New(core),
		OnResult: onResult,
	})

	p.Persist("a", snapNamed("one"))
	p.Flush(context.Background())

	res := results()
	require.Len(t, res, 1)
	require.Error(t, res[0].Err)
	assert.Len(t, multierr.Errors(res[0].Err), 2)

	entries := logs.FilterMessage("snapshot not persisted").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].ContextMap()["slug"])
}

func TestPersister_RunDrainsInBackground(t *testing.T) {
	primary := newMemSaver(0)
	p := NewPersister(PersisterOptions{Primary: primary})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = p.Run(ctx)
		close(done)
	}()

	p.Persist("a", snapNamed("one"))

	require.Eventually(t, func() bool {
		return len(primary.snapshots("a")) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestPersister_RecordCard(t *testing.T) {
	cards := newMemSaver(0)
	p := NewPersister(PersisterOptions{Cards: cards})

	p.RecordCard(types.CardRecord{Slug: "vasteras-bjj", ClubName: "Vasteras BJJ"})
	p.Flush(context.Background())

	require.Len(t, cards.cards, 1)
	assert.Equal(t, "vasteras-bjj", cards.cards[0].Slug)
}

type auditLog struct {
	mu      sync.Mutex
	fail    bool
	entries []types.AuditEntry
}

func (a *auditLog) SaveAudit(_ context.Context, e types.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fail {
		return errors.New("audit table locked")
	}
	a.entries = append(a.entries, e)
	return nil
}

func TestPersister_AuditKeepsOrder(t *testing.T) {
	audits := &auditLog{}
	p := NewPersister(PersisterOptions{Primary: newMemSaver(0), Audits: audits})

	p.Audit(types.AuditEntry{Slug: "open", Action: "SetLive", RequestID: "r1"})
	p.Audit(types.AuditEntry{Slug: "open", Action: "SetWinner", RequestID: "r2"})
	p.Flush(context.Background())

	require.Len(t, audits.entries, 2)
	assert.Equal(t, "r1", audits.entries[0].RequestID)
	assert.Equal(t, "r2", audits.entries[1].RequestID)
}

func TestPersister_AuditFailureIsSwallowed(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	primary := newMemSaver(0)
	p := NewPersister(PersisterOptions{
		Primary: primary,
		Audits:  &auditLog{fail: true},
		Retries: 2,
		Logger:  zap.New(core),
	})

	p.Audit(types.AuditEntry{Slug: "open", Action: "SetLive"})
	p.Persist("open", snapNamed("after audit"))
	p.Flush(context.Background())

	require.Len(t, primary.snapshots("open"), 1, "snapshot still written")
	entries := logs.FilterMessage("audit entry not persisted").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "SetLive", entries[0].ContextMap()["action"])
}

func TestPersister_AuditWithoutSaverIsNoop(t *testing.T) {
	p := NewPersister(PersisterOptions{Primary: newMemSaver(0)})
	p.Audit(types.AuditEntry{Slug: "open"})
	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Empty(t, p.audits)
}

func TestPersister_PersistDoesNotBlockWithoutWorker(t *testing.T) {
	p := NewPersister(PersisterOptions{Primary: newMemSaver(0)})
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			p.Persist("a", snapNamed("x"))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Persist blocked")
	}
}
