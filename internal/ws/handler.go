package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/fightcard-backend/internal/card"
	"github.com/DoyleJ11/fightcard-backend/internal/hub"
	"github.com/DoyleJ11/fightcard-backend/internal/slug"
	"github.com/DoyleJ11/fightcard-backend/internal/types"
	wire "github.com/DoyleJ11/fightcard-backend/pkg/types"
)

type Config struct {
	AdminToken   string
	DefaultCard  string
	WriteTimeout time.Duration
	PingInterval time.Duration
	// OriginPatterns is passed to websocket.Accept. Empty means same origin only.
	OriginPatterns []string
}

func (c *Config) defaults() {
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 3 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
}

// Handler serves /ws?card=<slug>&token= and /c/{slug}/ws?token=. A session that
// presents the admin token, at connect or on any later message, counts as an
// admin for standby purposes.
func Handler(h *hub.Hub, cfg Config, log *zap.Logger) http.HandlerFunc {
	cfg.defaults()
	if log == nil {
		log = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		cardSlug := chi.URLParam(r, "slug")
		if cardSlug == "" {
			cardSlug = r.URL.Query().Get("card")
		}
		if cardSlug == "" {
			cardSlug = cfg.DefaultCard
		}

		entry, err := h.Get(r.Context(), cardSlug)
		switch {
		case errors.Is(err, hub.ErrNotFound):
			http.Error(w, "card not found", http.StatusNotFound)
			return
		case errors.Is(err, hub.ErrGone):
			http.Error(w, "card expired", http.StatusGone)
			return
		case err != nil:
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: cfg.OriginPatterns,
		})
		if err != nil {
			log.Debug("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.CloseNow()

		clientID, err := slug.Random(12)
		if err != nil {
			conn.Close(websocket.StatusInternalError, "no client id")
			return
		}

		s := &session{
			id:    clientID,
			card:  entry.Card,
			conn:  conn,
			cfg:   cfg,
			admin: types.TokenMatches(cfg.AdminToken, r.URL.Query().Get("token")),
			log:   log.With(zap.String("slug", cardSlug), zap.String("client_id", clientID)),
		}
		s.serve(r.Context())
	}
}

type session struct {
	id    string
	card  *card.Card
	conn  *websocket.Conn
	cfg   Config
	admin bool
	log   *zap.Logger
}

func (s *session) serve(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	out := make(chan wire.StatePush, 16)
	if err := s.card.Send(ctx, card.Join{ClientID: s.id, Admin: s.admin, Outbox: out}); err != nil {
		s.conn.Close(websocket.StatusGoingAway, "card closed")
		return
	}
	defer func() {
		leaveCtx, leaveCancel := context.WithTimeout(context.Background(), time.Second)
		defer leaveCancel()
		_ = s.card.Send(leaveCtx, card.Leave{ClientID: s.id})
	}()
	s.log.Debug("session connected", zap.Bool("admin", s.admin))

	go s.writeLoop(ctx, cancel, out)

	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				s.log.Debug("session closed")
			default:
				if ctx.Err() == nil {
					s.log.Debug("session read failed", zap.Error(err))
				}
			}
			return
		}
		s.handle(ctx, data)
	}
}

// writeLoop owns state pushes and keepalive pings. The card closes out when it
// drops this session, which ends the connection so the client reconnects and
// receives a fresh snapshot.
func (s *session) writeLoop(ctx context.Context, cancel context.CancelFunc, out <-chan wire.StatePush) {
	defer cancel()
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case push, ok := <-out:
			if !ok {
				s.conn.Close(websocket.StatusTryAgainLater, "session dropped")
				return
			}
			if err := s.write(ctx, push); err != nil {
				s.log.Warn("state push failed", zap.Int64("broadcast_id", push.BroadcastID), zap.Error(err))
				s.conn.Close(websocket.StatusPolicyViolation, "write failed")
				return
			}

		case <-ticker.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
			err := s.conn.Ping(pingCtx)
			pingCancel()
			if err != nil {
				s.log.Debug("ping failed", zap.Error(err))
				s.conn.Close(websocket.StatusGoingAway, "ping timeout")
				return
			}
		}
	}
}

func (s *session) write(ctx context.Context, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()
	return s.conn.Write(wctx, websocket.MessageText, payload)
}

func (s *session) reply(ctx context.Context, msg types.ServerMessage) {
	if err := s.write(ctx, msg); err != nil {
		s.log.Debug("reply failed", zap.String("type", msg.Type), zap.Error(err))
	}
}

func (s *session) handle(ctx context.Context, data []byte) {
	var m types.ClientMessage
	if err := json.Unmarshal(data, &m); err != nil {
		s.reply(ctx, types.ErrorMessage("", fmt.Errorf("%w: %v", types.ErrBadEnvelope, err)))
		return
	}

	switch m.Tag() {
	case wire.FrameAck:
		_ = s.card.Send(ctx, card.Ack{ClientID: s.id, BroadcastID: m.BroadcastID})

	case wire.FrameHello:
		if !s.authorize(ctx, m.Token) {
			s.reply(ctx, types.ErrorMessage(m.RID, types.ErrUnauthorized))
		}

	case wire.FrameAdmin:
		if m.Payload == nil {
			s.reply(ctx, types.ErrorMessage(m.RID, fmt.Errorf("%w: payload is required", types.ErrBadEnvelope)))
			return
		}
		s.command(ctx, m.Token, *m.Payload)

	default:
		s.command(ctx, m.Token, m.Envelope)
	}
}

func (s *session) command(ctx context.Context, token string, env types.Envelope) {
	if token == "" {
		token = env.Token
	}
	if !s.authorize(ctx, token) {
		s.reply(ctx, types.ErrorMessage(env.RID, types.ErrUnauthorized))
		return
	}
	cmd, err := types.ToCommand(env)
	if err != nil {
		s.reply(ctx, types.ErrorMessage(env.RID, err))
		return
	}
	res, err := s.card.Submit(ctx, cmd, env.RID)
	if err != nil {
		s.reply(ctx, types.ErrorMessage(env.RID, err))
		return
	}
	s.reply(ctx, types.ResultMessage(env.RID, res))
}

// authorize promotes the session the first time it presents the token.
func (s *session) authorize(ctx context.Context, token string) bool {
	if s.admin {
		return true
	}
	if !types.TokenMatches(s.cfg.AdminToken, token) {
		return false
	}
	if err := s.card.Send(ctx, card.Promote{ClientID: s.id}); err != nil {
		return false
	}
	s.admin = true
	s.log.Debug("session promoted to admin")
	return true
}
