package hub

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/fightcard-backend/internal/card"
	"github.com/DoyleJ11/fightcard-backend/internal/engine"
	"github.com/DoyleJ11/fightcard-backend/internal/slug"
	"github.com/DoyleJ11/fightcard-backend/pkg/types"
)

var ErrNotFound = errors.New("card not found")
var ErrGone = errors.New("card expired")
var ErrClosed = errors.New("hub closed")

const (
	MinTTL = 24 * time.Hour
	MaxTTL = 72 * time.Hour
)

// ClampTTL converts a requested lifetime in hours to the allowed range.
func ClampTTL(hours int) time.Duration {
	return clampTTL(time.Duration(hours) * time.Hour)
}

func clampTTL(ttl time.Duration) time.Duration {
	if ttl < MinTTL {
		return MinTTL
	}
	if ttl > MaxTTL {
		return MaxTTL
	}
	return ttl
}

// Entry is one registered card. Entries are never removed on expiry; lookups
// report ErrGone instead.
type Entry struct {
	Card   *card.Card
	Record types.CardRecord
}

func (e *Entry) Slug() string { return e.Record.Slug }

func (e *Entry) Expired(now time.Time) bool {
	return !e.Record.ExpiresAt.IsZero() && now.After(e.Record.ExpiresAt)
}

type HubMsg interface{ isHubMsg() }

// CreateCard registers a new card under a freshly picked slug. SlugSource is an
// optional human readable name to derive the slug from.
type CreateCard struct {
	ClubName   string
	Email      string
	SlugSource string
	TTL        time.Duration
	State      engine.State
	Reply      chan CreateResult
}

type CreateResult struct {
	Entry *Entry
	Err   error
}

type GetCard struct {
	Slug  string
	Reply chan Lookup
}

type Lookup struct {
	Entry *Entry
	Err   error
}

// EnsureCard returns the card registered under Record.Slug, creating it from
// State and Record if missing. Used for the default card and for cards restored
// at boot.
type EnsureCard struct {
	Record types.CardRecord
	State  engine.State // only used if creation happens
	Reply  chan *Entry
}

type ListCards struct {
	Reply chan []types.CardRecord
}

// RemoveCard shuts a card down and marks its registry record expired so it is
// not restored on the next boot. Reply may be nil.
type RemoveCard struct {
	Slug  string
	Reply chan error
}

type ShutdownHub struct{}

func (CreateCard) isHubMsg()  {}
func (GetCard) isHubMsg()     {}
func (EnsureCard) isHubMsg()  {}
func (ListCards) isHubMsg()   {}
func (RemoveCard) isHubMsg()  {}
func (ShutdownHub) isHubMsg() {}

// Recorder is told about every card the hub creates so registry metadata can be
// mirrored. It must not block.
type Recorder interface {
	RecordCard(rec types.CardRecord)
}

type Options struct {
	Card     card.Options
	Recorder Recorder
	Logger   *zap.Logger
	Now      func() time.Time
}

type Hub struct {
	inbox   chan HubMsg
	entries map[string]*Entry
	// retired holds slugs of removed cards; they are never handed out again
	// while the process runs.
	retired map[string]struct{}
	opts    Options
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewHub(parent context.Context, opts Options) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Card.Logger == nil {
		opts.Card.Logger = opts.Logger
	}
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		entries: make(map[string]*Entry),
		retired: make(map[string]struct{}),
		opts:    opts,
		log:     opts.Logger,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) Done() <-chan struct{} { return h.done }

func (h *Hub) send(ctx context.Context, m HubMsg) error {
	select {
	case h.inbox <- m:
		return nil
	case <-h.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func recv[T any](ctx context.Context, h *Hub, ch chan T) (T, error) {
	var zero T
	select {
	case v := <-ch:
		return v, nil
	case <-h.done:
		return zero, ErrClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Get looks up a live card, returning ErrNotFound or ErrGone otherwise.
func (h *Hub) Get(ctx context.Context, slug string) (*Entry, error) {
	reply := make(chan Lookup, 1)
	if err := h.send(ctx, GetCard{Slug: slug, Reply: reply}); err != nil {
		return nil, err
	}
	l, err := recv(ctx, h, reply)
	if err != nil {
		return nil, err
	}
	return l.Entry, l.Err
}

func (h *Hub) Create(ctx context.Context, req CreateCard) (*Entry, error) {
	reply := make(chan CreateResult, 1)
	req.Reply = reply
	if err := h.send(ctx, req); err != nil {
		return nil, err
	}
	r, err := recv(ctx, h, reply)
	if err != nil {
		return nil, err
	}
	return r.Entry, r.Err
}

func (h *Hub) Ensure(ctx context.Context, rec types.CardRecord, state engine.State) (*Entry, error) {
	reply := make(chan *Entry, 1)
	if err := h.send(ctx, EnsureCard{Record: rec, State: state, Reply: reply}); err != nil {
		return nil, err
	}
	return recv(ctx, h, reply)
}

func (h *Hub) Remove(ctx context.Context, slug string) error {
	reply := make(chan error, 1)
	if err := h.send(ctx, RemoveCard{Slug: slug, Reply: reply}); err != nil {
		return err
	}
	err, rerr := recv(ctx, h, reply)
	if rerr != nil {
		return rerr
	}
	return err
}

func (h *Hub) List(ctx context.Context) ([]types.CardRecord, error) {
	reply := make(chan []types.CardRecord, 1)
	if err := h.send(ctx, ListCards{Reply: reply}); err != nil {
		return nil, err
	}
	return recv(ctx, h, reply)
}

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateCard:
				e, err := h.create(msg)
				msg.Reply <- CreateResult{Entry: e, Err: err}

			case GetCard:
				e := h.entries[msg.Slug]
				switch {
				case e == nil:
					msg.Reply <- Lookup{Err: ErrNotFound}
				case e.Expired(h.opts.Now()):
					msg.Reply <- Lookup{Entry: e, Err: ErrGone}
				default:
					msg.Reply <- Lookup{Entry: e}
				}

			case EnsureCard:
				if e := h.entries[msg.Record.Slug]; e != nil {
					msg.Reply <- e
					break
				}
				msg.Reply <- h.register(msg.Record, msg.State)

			case ListCards:
				out := make([]types.CardRecord, 0, len(h.entries))
				for _, e := range h.entries {
					out = append(out, e.Record)
				}
				msg.Reply <- out

			case RemoveCard:
				err := h.remove(msg.Slug)
				if msg.Reply != nil {
					msg.Reply <- err
				}

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) create(msg CreateCard) (*Entry, error) {
	s, err := slug.Pick(msg.SlugSource, func(candidate string) bool {
		if _, taken := h.entries[candidate]; taken {
			return true
		}
		_, retired := h.retired[candidate]
		return retired
	})
	if err != nil {
		return nil, err
	}

	now := h.opts.Now()
	ttl := clampTTL(msg.TTL)
	rec := types.CardRecord{
		Slug:      s,
		ClubName:  msg.ClubName,
		Email:     msg.Email,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	state := msg.State
	if state.Fights == nil {
		state = engine.NewEmptyState()
	}
	e := h.register(rec, state)
	if h.opts.Recorder != nil {
		h.opts.Recorder.RecordCard(rec)
	}
	h.log.Info("card created", zap.String("slug", s), zap.Time("expires_at", rec.ExpiresAt))
	return e, nil
}

func (h *Hub) remove(s string) error {
	e := h.entries[s]
	if e == nil {
		return ErrNotFound
	}
	select {
	case e.Card.Inbox() <- card.Shutdown{}:
	default:
		// Busy card: queue the shutdown behind its work without stalling the registry.
		go e.Card.Send(h.ctx, card.Shutdown{})
	}
	delete(h.entries, s)
	h.retired[s] = struct{}{}

	rec := e.Record
	rec.ExpiresAt = h.opts.Now()
	if h.opts.Recorder != nil {
		h.opts.Recorder.RecordCard(rec)
	}
	h.log.Info("card removed", zap.String("slug", s))
	return nil
}

func (h *Hub) register(rec types.CardRecord, state engine.State) *Entry {
	e := &Entry{
		Card:   card.NewCard(h.ctx, rec.Slug, state, h.opts.Card),
		Record: rec,
	}
	h.entries[rec.Slug] = e
	return e
}

func (h *Hub) shutdown() {
	for _, e := range h.entries {
		select {
		case e.Card.Inbox() <- card.Shutdown{}:
		default:
		}
	}
	clear(h.entries)
	h.cancel()
}
