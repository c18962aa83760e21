package mirror

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/fightcard-backend/internal/engine"
	"github.com/DoyleJ11/fightcard-backend/pkg/types"
)

type stubLoader struct {
	snap  types.Snapshot
	found bool
	err   error
}

func (s stubLoader) Load(context.Context, string) (types.Snapshot, bool, error) {
	return s.snap, s.found, s.err
}

func TestReconcile_RestoresAndForcesStandby(t *testing.T) {
	stored := sampleState()
	stored.Current = 9
	dst := newMemSaver(0)

	got := Reconcile(context.Background(), stubLoader{snap: stored, found: true}, dst, "open", false, zaptest.NewLogger(t))

	assert.Len(t, got.Fights, 3)
	assert.Equal(t, 2, got.Current, "live index clamped to the sequence")
	assert.True(t, got.Standby)
	assert.Empty(t, dst.snapshots("open"), "nothing written back without startEmpty")
}

func TestReconcile_StoreRoundTripKeepsMethodWithoutWinner(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	state := engine.NewEmptyState()
	_, state, err := engine.Apply(state, engine.CreateFight{Data: engine.FightInput{A: "Ek", B: "Holm"}})
	require.NoError(t, err)
	_, state, err = engine.Apply(state, engine.SetWinMethod{Index: 0, Method: "KO"})
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, "open", state))

	got := Reconcile(ctx, store, nil, "open", false, zaptest.NewLogger(t))

	require.Len(t, got.Fights, 1)
	assert.Empty(t, got.Fights[0].Winner)
	assert.Equal(t, "KO", got.Fights[0].Method)
	state.Standby = true
	assert.Equal(t, state, got)
}

func TestReconcile_StartEmptyClearsAndWritesBack(t *testing.T) {
	dst := newMemSaver(0)

	got := Reconcile(context.Background(), stubLoader{snap: sampleState(), found: true}, dst, "open", true, zaptest.NewLogger(t))

	assert.Empty(t, got.Fights)
	assert.Equal(t, 0, got.Current)
	assert.Equal(t, "Vasteras Open", got.EventName, "metadata survives")

	saved := dst.snapshots("open")
	require.Len(t, saved, 1)
	assert.Empty(t, saved[0].Fights)
}

func TestReconcile_UnreachableMirrorStartsEmpty(t *testing.T) {
	got := Reconcile(context.Background(), stubLoader{err: errors.New("dial tcp: refused")}, nil, "open", false, zaptest.NewLogger(t))
	assert.Empty(t, got.Fights)
	assert.True(t, got.Standby)
	assert.Equal(t, 32, got.EventSize)
}

func TestChain_FirstFoundWins(t *testing.T) {
	primary := stubLoader{err: errors.New("offline")}
	fallback := stubLoader{snap: snapNamed("from file"), found: true}

	snap, found, err := Chain{primary, fallback}.Load(context.Background(), "open")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "from file", snap.EventName)

	_, found, err = Chain{primary, stubLoader{}}.Load(context.Background(), "open")
	assert.Error(t, err)
	assert.False(t, found)
}
