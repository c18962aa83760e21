package mirror

import (
	"context"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/DoyleJ11/fightcard-backend/pkg/types"
)

const (
	TargetPrimary  = "primary"
	TargetFallback = "fallback"
	TargetNone     = "none"
)

// Result is the outcome of one best-effort write. A non-nil Err never reaches
// the command that caused the write; it is logged and handed to OnResult.
type Result struct {
	Slug     string
	Target   string
	Attempts int
	Err      error
}

// CardSaver stores registry metadata.
type CardSaver interface {
	SaveCard(ctx context.Context, rec types.CardRecord) error
}

// AuditSaver appends audit entries.
type AuditSaver interface {
	SaveAudit(ctx context.Context, e types.AuditEntry) error
}

// maxQueuedAudits bounds the audit backlog while the mirror is unreachable.
const maxQueuedAudits = 1024

type PersisterOptions struct {
	Primary  Saver
	Fallback Saver
	Cards    CardSaver
	Audits   AuditSaver
	Retries  int
	Backoff  time.Duration
	// Timeout bounds each individual write.
	Timeout  time.Duration
	Logger   *zap.Logger
	OnResult func(Result)
}

// Persister writes snapshots off the command path. Only the latest snapshot of
// each card is kept while a write is pending: every snapshot is complete, so
// older ones have nothing left to contribute.
type Persister struct {
	opts PersisterOptions
	log  *zap.Logger

	mu      sync.Mutex
	pending map[string]types.Snapshot
	order   []string
	cards   []types.CardRecord
	audits  []types.AuditEntry

	writeMu sync.Mutex
	wake    chan struct{}
}

func NewPersister(opts PersisterOptions) *Persister {
	if opts.Retries <= 0 {
		opts.Retries = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Persister{
		opts:    opts,
		log:     opts.Logger,
		pending: make(map[string]types.Snapshot),
		wake:    make(chan struct{}, 1),
	}
}

// Persist queues snap for slug and returns immediately.
func (p *Persister) Persist(slug string, snap types.Snapshot) {
	p.mu.Lock()
	if _, queued := p.pending[slug]; !queued {
		p.order = append(p.order, slug)
	}
	p.pending[slug] = snap
	p.mu.Unlock()
	p.signal()
}

// RecordCard queues registry metadata for the card table.
func (p *Persister) RecordCard(rec types.CardRecord) {
	if p.opts.Cards == nil {
		return
	}
	p.mu.Lock()
	p.cards = append(p.cards, rec)
	p.mu.Unlock()
	p.signal()
}

// Audit queues e for the audit table. When the backlog is full the oldest
// entry is dropped.
func (p *Persister) Audit(e types.AuditEntry) {
	if p.opts.Audits == nil {
		return
	}
	p.mu.Lock()
	if len(p.audits) >= maxQueuedAudits {
		dropped := p.audits[0]
		p.audits = p.audits[1:]
		p.log.Warn("audit backlog full, dropping entry", zap.String("slug", dropped.Slug), zap.String("action", dropped.Action))
	}
	p.audits = append(p.audits, e)
	p.mu.Unlock()
	p.signal()
}

func (p *Persister) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Run writes queued snapshots until ctx is done. Call Flush afterwards to
// drain what is left.
func (p *Persister) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.wake:
			p.Flush(ctx)
		}
	}
}

// Flush writes everything queued so far and returns when done or when ctx
// ends.
func (p *Persister) Flush(ctx context.Context) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	for {
		j := p.next()
		switch j.kind {
		case nextCard:
			err := p.retry(ctx, func(ctx context.Context) error { return p.opts.Cards.SaveCard(ctx, j.rec) })
			if err != nil {
				p.log.Warn("card record not persisted", zap.String("slug", j.rec.Slug), zap.Error(err))
			}
		case nextAudit:
			err := p.retry(ctx, func(ctx context.Context) error { return p.opts.Audits.SaveAudit(ctx, j.audit) })
			if err != nil {
				p.log.Warn("audit entry not persisted", zap.String("slug", j.audit.Slug), zap.String("action", j.audit.Action), zap.Error(err))
			}
		case nextSnapshot:
			p.report(p.write(ctx, j.slug, j.snap))
		default:
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

type nextKind int

const (
	nextNone nextKind = iota
	nextCard
	nextAudit
	nextSnapshot
)

type job struct {
	kind  nextKind
	rec   types.CardRecord
	audit types.AuditEntry
	slug  string
	snap  types.Snapshot
}

// next picks registry records first, then audit entries, then snapshots.
func (p *Persister) next() job {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.cards) > 0 {
		rec := p.cards[0]
		p.cards = p.cards[1:]
		return job{kind: nextCard, rec: rec}
	}
	if len(p.audits) > 0 {
		e := p.audits[0]
		p.audits = p.audits[1:]
		return job{kind: nextAudit, audit: e}
	}
	if len(p.order) > 0 {
		slug := p.order[0]
		p.order = p.order[1:]
		snap := p.pending[slug]
		delete(p.pending, slug)
		return job{kind: nextSnapshot, slug: slug, snap: snap}
	}
	return job{kind: nextNone}
}

func (p *Persister) write(ctx context.Context, slug string, snap types.Snapshot) Result {
	res := Result{Slug: slug, Target: TargetNone}
	var errs error

	if p.opts.Primary != nil {
		res.Target = TargetPrimary
		err := p.retryCounting(ctx, &res.Attempts, func(ctx context.Context) error {
			return p.opts.Primary.Save(ctx, slug, snap)
		})
		if err == nil {
			return res
		}
		errs = multierr.Append(errs, err)
	}

	if p.opts.Fallback != nil {
		res.Target = TargetFallback
		res.Attempts++
		err := p.withTimeout(ctx, func(ctx context.Context) error {
			return p.opts.Fallback.Save(ctx, slug, snap)
		})
		if err == nil {
			if errs != nil {
				p.log.Warn("primary mirror failed, wrote fallback", zap.String("slug", slug), zap.Error(errs))
			}
			return res
		}
		errs = multierr.Append(errs, err)
	}

	res.Err = errs
	return res
}

func (p *Persister) retry(ctx context.Context, fn func(context.Context) error) error {
	var attempts int
	return p.retryCounting(ctx, &attempts, fn)
}

func (p *Persister) retryCounting(ctx context.Context, attempts *int, fn func(context.Context) error) error {
	backoff := p.opts.Backoff
	var err error
	for i := 0; i < p.opts.Retries; i++ {
		*attempts++
		if err = p.withTimeout(ctx, fn); err == nil {
			return nil
		}
		if i == p.opts.Retries-1 || backoff <= 0 {
			continue
		}
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return multierr.Append(err, ctx.Err())
		}
	}
	return err
}

func (p *Persister) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	wctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()
	return fn(wctx)
}

func (p *Persister) report(res Result) {
	fields := []zap.Field{
		zap.String("slug", res.Slug),
		zap.String("target", res.Target),
		zap.Int("attempts", res.Attempts),
	}
	if res.Err != nil {
		p.log.Error("snapshot not persisted", append(fields, zap.Error(res.Err))...)
	} else {
		p.log.Debug("snapshot persisted", fields...)
	}
	if p.opts.OnResult != nil {
		p.opts.OnResult(res)
	}
}
