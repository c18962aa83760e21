package mirror

import (
	"context"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/DoyleJ11/fightcard-backend/internal/engine"
	"github.com/DoyleJ11/fightcard-backend/pkg/types"
)

// Chain reads from the first loader that has the card.
type Chain []Loader

func (c Chain) Load(ctx context.Context, slug string) (types.Snapshot, bool, error) {
	var errs error
	for _, l := range c {
		if l == nil {
			continue
		}
		snap, found, err := l.Load(ctx, slug)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if found {
			return snap, true, nil
		}
	}
	return types.Snapshot{}, false, errs
}

// Reconcile seeds a card at boot. An unreachable or empty mirror yields the
// default empty state. With startEmpty the loaded fights are dropped and the
// cleared state is written back once. The returned state is always in
// standby, since no admin is connected yet.
func Reconcile(ctx context.Context, src Loader, dst Saver, slug string, startEmpty bool, log *zap.Logger) types.Snapshot {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("slug", slug))

	state := engine.NewEmptyState()
	if src != nil {
		snap, found, err := src.Load(ctx, slug)
		switch {
		case err != nil:
			log.Warn("mirror unavailable, starting empty", zap.Error(err))
		case found:
			state = engine.Normalize(snap)
			log.Info("state restored from mirror", zap.Int("fights", len(state.Fights)), zap.Int("current", state.Current))
		}
	}

	if startEmpty && len(state.Fights) > 0 {
		state.Fights = []types.Fight{}
		state.Current = 0
		if dst != nil {
			if err := dst.Save(ctx, slug, state); err != nil {
				log.Warn("writing cleared state failed", zap.Error(err))
			}
		}
		log.Info("fights cleared at startup")
	}

	state.Standby = true
	return state
}
