package hub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/fightcard-backend/internal/card"
	"github.com/DoyleJ11/fightcard-backend/internal/engine"
	"github.com/DoyleJ11/fightcard-backend/pkg/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recorder struct {
	mu   sync.Mutex
	recs []types.CardRecord
}

func (r *recorder) RecordCard(rec types.CardRecord) {
	r.mu.Lock()
	r.recs = append(r.recs, rec)
	r.mu.Unlock()
}

func newTestHub(t *testing.T) (*Hub, *fakeClock, *recorder) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	clock := &fakeClock{now: time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)}
	rec := &recorder{}
	return NewHub(ctx, Options{Now: clock.Now, Recorder: rec}), clock, rec
}

func TestHub_Ensure_Get_SamePointer(t *testing.T) {
	h, _, _ := newTestHub(t)
	ctx := context.Background()

	lb1, err := h.Ensure(ctx, types.CardRecord{Slug: "default"}, engine.NewEmptyState())
	require.NoError(t, err)
	lb2, err := h.Get(ctx, "default")
	require.NoError(t, err)

	if lb1 == nil || lb2 == nil || lb1 != lb2 {
		t.Fatalf("expected same entry pointer")
	}
	assert.False(t, lb1.Expired(time.Now().Add(1000*time.Hour)), "default card never expires")
}

func TestHub_GetUnknown(t *testing.T) {
	h, _, _ := newTestHub(t)
	_, err := h.Get(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestHub_CreateFriendlySlugAndExpiry(t *testing.T) {
	h, clock, rec := newTestHub(t)
	ctx := context.Background()

	e, err := h.Create(ctx, CreateCard{ClubName: "Västerås BJJ", SlugSource: "Västerås BJJ", TTL: ClampTTL(48)})
	require.NoError(t, err)
	assert.Equal(t, "vasteras-bjj", e.Slug())
	assert.Equal(t, clock.Now().Add(48*time.Hour), e.Record.ExpiresAt)
	assert.Equal(t, "vasteras-bjj", e.Card.Slug())
	rec.mu.Lock()
	require.Len(t, rec.recs, 1)
	assert.Equal(t, "Västerås BJJ", rec.recs[0].ClubName)
	rec.mu.Unlock()

	clock.Advance(47 * time.Hour)
	_, err = h.Get(ctx, "vasteras-bjj")
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	got, err := h.Get(ctx, "vasteras-bjj")
	require.ErrorIs(t, err, ErrGone)
	assert.NotNil(t, got)
}

func TestHub_CreateCollisionGetsSuffix(t *testing.T) {
	h, _, _ := newTestHub(t)
	ctx := context.Background()

	first, err := h.Create(ctx, CreateCard{SlugSource: "Lund MMA", TTL: MinTTL})
	require.NoError(t, err)
	second, err := h.Create(ctx, CreateCard{SlugSource: "Lund MMA", TTL: MinTTL})
	require.NoError(t, err)

	assert.Equal(t, "lund-mma", first.Slug())
	assert.NotEqual(t, first.Slug(), second.Slug())
	assert.Contains(t, second.Slug(), "lund-mma-")
}

func TestHub_CreateRandomSlug(t *testing.T) {
	h, _, _ := newTestHub(t)
	e, err := h.Create(context.Background(), CreateCard{TTL: time.Hour})
	require.NoError(t, err)
	assert.Len(t, e.Slug(), 8)
	assert.Equal(t, MinTTL, e.Record.ExpiresAt.Sub(e.Record.CreatedAt))
}

func TestClampTTL(t *testing.T) {
	assert.Equal(t, MinTTL, ClampTTL(1))
	assert.Equal(t, 36*time.Hour, ClampTTL(36))
	assert.Equal(t, MaxTTL, ClampTTL(500))
}

func TestHub_RemoveShutsCardDown(t *testing.T) {
	h, clock, rec := newTestHub(t)
	ctx := context.Background()
	e, err := h.Ensure(ctx, types.CardRecord{Slug: "x"}, engine.NewEmptyState())
	require.NoError(t, err)

	require.NoError(t, h.Remove(ctx, "x"))

	select {
	case <-e.Card.Done():
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("card not shut down")
	}
	_, err = h.Get(ctx, "x")
	require.ErrorIs(t, err, ErrNotFound)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.recs, 1)
	assert.Equal(t, "x", rec.recs[0].Slug)
	assert.Equal(t, clock.Now(), rec.recs[0].ExpiresAt)

	require.ErrorIs(t, h.Remove(ctx, "x"), ErrNotFound)
}

func TestHub_RemovedSlugIsNotReused(t *testing.T) {
	h, _, _ := newTestHub(t)
	ctx := context.Background()

	first, err := h.Create(ctx, CreateCard{SlugSource: "Malmo Club", TTL: MinTTL})
	require.NoError(t, err)
	require.Equal(t, "malmo-club", first.Slug())
	require.NoError(t, h.Remove(ctx, first.Slug()))

	second, err := h.Create(ctx, CreateCard{SlugSource: "Malmo Club", TTL: MinTTL})
	require.NoError(t, err)
	assert.NotEqual(t, first.Slug(), second.Slug())

	_, err = h.Get(ctx, first.Slug())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHub_RemoveDoesNotWaitForBusyCard(t *testing.T) {
	h, _, _ := newTestHub(t)
	ctx := context.Background()
	e, err := h.Ensure(ctx, types.CardRecord{Slug: "busy"}, engine.NewEmptyState())
	require.NoError(t, err)

	// The card blocks handing its view to nobody, then its inbox fills up.
	stall := make(chan card.View)
	e.Card.Inbox() <- card.GetState{Reply: stall}
	for i := 0; i < 64; i++ {
		e.Card.Inbox() <- card.GetState{Reply: make(chan card.View, 1)}
	}

	removeCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	require.NoError(t, h.Remove(removeCtx, "busy"))

	_, err = h.List(removeCtx)
	require.NoError(t, err, "registry keeps serving")

	<-stall
	select {
	case <-e.Card.Done():
	case <-time.After(time.Second):
		t.Fatalf("card not shut down after draining")
	}
}

func TestHub_List(t *testing.T) {
	h, _, _ := newTestHub(t)
	ctx := context.Background()
	_, err := h.Ensure(ctx, types.CardRecord{Slug: "default"}, engine.NewEmptyState())
	require.NoError(t, err)
	_, err = h.Create(ctx, CreateCard{SlugSource: "Club", TTL: MinTTL})
	require.NoError(t, err)

	recs, err := h.List(ctx)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}
