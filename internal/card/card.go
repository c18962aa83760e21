package card

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/fightcard-backend/internal/engine"
	"github.com/DoyleJ11/fightcard-backend/internal/idem"
	"github.com/DoyleJ11/fightcard-backend/pkg/types"
)

var ErrClosed = errors.New("card closed")

type Msg interface{ isCardMsg() }

// FromClient carries one admin command. Reply may be nil for fire-and-forget
// callers; otherwise it must have room for one value.
type FromClient struct {
	Cmd       engine.Command
	RequestID string
	Actor     string // recorded in the audit trail; ActorAdmin when empty
	Reply     chan Reply
}

func (FromClient) isCardMsg() {}

type Reply struct {
	Result engine.Result
	Err    error
}

type Join struct {
	ClientID string
	Admin    bool
	Outbox   chan types.StatePush // where this session receives state pushes
}

func (Join) isCardMsg() {}

type Leave struct{ ClientID string }

func (Leave) isCardMsg() {}

// Promote marks an open session as admin after it presented the token on a
// message rather than at connect time.
type Promote struct{ ClientID string }

func (Promote) isCardMsg() {}

type Ack struct {
	ClientID    string
	BroadcastID int64
}

func (Ack) isCardMsg() {}

type Shutdown struct{}

func (Shutdown) isCardMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isCardMsg() {}

// View is a consistent read of the card for the HTTP read path and health.
type View struct {
	BroadcastID int64
	NumClients  int
	Admins      int
	Pending     int // open sessions that have not acked BroadcastID
	State       engine.State
}

// Persister receives every committed snapshot. Implementations must not block.
type Persister interface {
	Persist(slug string, snap types.Snapshot)
}

type nopPersister struct{}

func (nopPersister) Persist(string, types.Snapshot) {}

// Auditor receives one entry per committed mutation. Implementations must not
// block.
type Auditor interface {
	Audit(e types.AuditEntry)
}

type nopAuditor struct{}

func (nopAuditor) Audit(types.AuditEntry) {}

const (
	ActorAdmin    = "admin"
	ActorPresence = "presence"
)

type Options struct {
	Persister     Persister
	Auditor       Auditor
	Logger        *zap.Logger
	Now           func() time.Time
	GuardCapacity int
	// AckHistory is how many recent broadcast ids keep their ack sets.
	AckHistory int
}

type session struct {
	outbox chan types.StatePush
	admin  bool
}

// Card owns one card's state. Every mutation goes through its loop, so commands
// arriving over HTTP and websocket are applied one at a time in arrival order.
type Card struct {
	slug        string
	inbox       chan Msg
	state       engine.State
	broadcastID int64
	acks        map[int64]map[string]struct{}
	ackHistory  int64
	clients     map[string]*session
	admins      int
	guard       *idem.Guard[engine.Result]
	persist     Persister
	audit       Auditor
	now         func() time.Time
	log         *zap.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
}

func NewCard(parent context.Context, slug string, initial engine.State, opts Options) *Card {
	ctx, cancel := context.WithCancel(parent)
	if opts.Persister == nil {
		opts.Persister = nopPersister{}
	}
	if opts.Auditor == nil {
		opts.Auditor = nopAuditor{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.AckHistory <= 0 {
		opts.AckHistory = 16
	}

	c := &Card{
		slug:       slug,
		inbox:      make(chan Msg, 64),
		state:      initial.Clone(),
		acks:       map[int64]map[string]struct{}{0: {}},
		ackHistory: int64(opts.AckHistory),
		clients:    make(map[string]*session),
		guard:      idem.NewGuard[engine.Result](opts.GuardCapacity),
		persist:    opts.Persister,
		audit:      opts.Auditor,
		now:        opts.Now,
		log:        opts.Logger.With(zap.String("slug", slug)),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	go c.loop()
	return c
}

func (c *Card) Slug() string { return c.slug }

// Expose the inbox so the hub and transports can send messages.
func (c *Card) Inbox() chan<- Msg { return c.inbox }

// Done is closed once the card loop has exited.
func (c *Card) Done() <-chan struct{} { return c.done }

// Send delivers m unless ctx ends or the card has shut down first.
func (c *Card) Send(ctx context.Context, m Msg) error {
	select {
	case c.inbox <- m:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit applies cmd and waits for the outcome. Validation failures come back
// as the error; persistence and broadcast problems never do.
func (c *Card) Submit(ctx context.Context, cmd engine.Command, requestID string) (engine.Result, error) {
	reply := make(chan Reply, 1)
	if err := c.Send(ctx, FromClient{Cmd: cmd, RequestID: requestID, Reply: reply}); err != nil {
		return engine.Result{}, err
	}
	select {
	case r := <-reply:
		return r.Result, r.Err
	case <-c.done:
		return engine.Result{}, ErrClosed
	case <-ctx.Done():
		return engine.Result{}, ctx.Err()
	}
}

func (c *Card) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := c.Send(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-c.done:
		return View{}, ErrClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

func (c *Card) loop() {
	defer close(c.done)
	for {
		select {
		case <-c.ctx.Done():
			c.shutdown()
			return

		case m := <-c.inbox:
			switch msg := m.(type) {
			case Join:
				c.join(msg)

			case Leave:
				if c.drop(msg.ClientID) {
					c.enterStandby("last admin left")
				}

			case Promote:
				if s, ok := c.clients[msg.ClientID]; ok && !s.admin {
					s.admin = true
					c.admins++
					c.log.Debug("session promoted to admin", zap.String("client_id", msg.ClientID), zap.Int("admins", c.admins))
				}

			case FromClient:
				actor := msg.Actor
				if actor == "" {
					actor = ActorAdmin
				}
				res, err := c.handle(msg.Cmd, msg.RequestID, actor)
				if msg.Reply != nil {
					msg.Reply <- Reply{Result: res, Err: err}
				}

			case Ack:
				if set, ok := c.acks[msg.BroadcastID]; ok {
					if _, open := c.clients[msg.ClientID]; open {
						set[msg.ClientID] = struct{}{}
					}
				}

			case GetState:
				msg.Reply <- View{
					BroadcastID: c.broadcastID,
					NumClients:  len(c.clients),
					Admins:      c.admins,
					Pending:     c.pending(),
					State:       c.state.Clone(),
				}

			case Shutdown:
				c.shutdown()
				return
			}
		}
	}
}

func (c *Card) handle(cmd engine.Command, requestID, actor string) (engine.Result, error) {
	if prev, ok := c.guard.Lookup(requestID); ok {
		c.log.Debug("duplicate request absorbed", zap.String("rid", requestID))
		// The retry sees what the first attempt returned, minus its events.
		return engine.Result{Fight: prev.Fight, Duplicate: true}, nil
	}

	res, next, err := engine.Apply(c.state, cmd)
	if err != nil {
		c.log.Debug("command rejected", zap.String("command", commandName(cmd)), zap.Error(err))
		return res, err
	}
	c.guard.Remember(requestID, res)
	if !res.Changed() {
		return res, nil
	}

	c.state = next
	c.persist.Persist(c.slug, c.state.Clone())
	c.audit.Audit(types.AuditEntry{
		Slug:      c.slug,
		Actor:     actor,
		Action:    commandName(cmd),
		RequestID: requestID,
		Events:    res.Events,
		At:        c.now(),
	})
	c.broadcast(res.Events)
	return res, nil
}

func (c *Card) enterStandby(reason string) {
	c.log.Info("entering standby", zap.String("reason", reason))
	if _, err := c.handle(engine.SetStandby{On: true}, "", ActorPresence); err != nil {
		c.log.Error("standby command failed", zap.Error(err))
	}
}

func (c *Card) join(msg Join) {
	if old, ok := c.clients[msg.ClientID]; ok {
		close(old.outbox)
		if old.admin {
			c.admins--
		}
	}
	c.clients[msg.ClientID] = &session{outbox: msg.Outbox, admin: msg.Admin}
	if msg.Admin {
		c.admins++
	}
	c.log.Debug("session joined", zap.String("client_id", msg.ClientID), zap.Bool("admin", msg.Admin), zap.Int("sessions", len(c.clients)))

	// The connect push reuses the latest broadcast id; viewers apply it like
	// any other full snapshot.
	select {
	case msg.Outbox <- types.StatePush{Type: types.FrameState, State: c.state.Clone(), BroadcastID: c.broadcastID}:
	default:
		c.log.Warn("session outbox full on join", zap.String("client_id", msg.ClientID))
	}
}

// drop removes a session and reports whether it was the last admin.
func (c *Card) drop(clientID string) bool {
	s, ok := c.clients[clientID]
	if !ok {
		return false
	}
	delete(c.clients, clientID)
	close(s.outbox) // Tell the session no more pushes
	c.log.Debug("session left", zap.String("client_id", clientID), zap.Int("sessions", len(c.clients)))
	if !s.admin {
		return false
	}
	c.admins--
	return c.admins == 0
}

func (c *Card) broadcast(events []types.Event) {
	c.broadcastID++
	id := c.broadcastID
	c.acks[id] = make(map[string]struct{}, len(c.clients))
	delete(c.acks, id-c.ackHistory)

	push := types.StatePush{Type: types.FrameState, State: c.state.Clone(), BroadcastID: id, Events: events}
	lastAdminDropped := false
	for clientID, s := range c.clients {
		select {
		case s.outbox <- push:
			//ok
		default:
			// Session is slow/full - drop it; it will reconnect and get a fresh snapshot.
			c.log.Warn("dropping slow session", zap.String("client_id", clientID), zap.Int64("broadcast_id", id))
			if c.drop(clientID) {
				lastAdminDropped = true
			}
		}
	}
	if lastAdminDropped {
		c.enterStandby("last admin dropped")
	}
}

func (c *Card) pending() int {
	acked := c.acks[c.broadcastID]
	n := 0
	for id := range c.clients {
		if _, ok := acked[id]; !ok {
			n++
		}
	}
	return n
}

func (c *Card) shutdown() {
	for id, s := range c.clients {
		close(s.outbox)
		delete(c.clients, id)
	}
	c.cancel()
}

func commandName(cmd engine.Command) string {
	if cmd == nil {
		return "<nil>"
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", cmd), "engine.")
}
