package httpapi

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/DoyleJ11/fightcard-backend/internal/hub"
	"github.com/DoyleJ11/fightcard-backend/internal/types"
	wire "github.com/DoyleJ11/fightcard-backend/pkg/types"
)

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (a *API) whoami(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"admin": a.isAdmin(tokenFrom(r))})
}

func (a *API) state(w http.ResponseWriter, r *http.Request) {
	view, err := entryFrom(r).Card.View(r.Context())
	if err != nil {
		writeError(w, "", err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, view.State)
}

type healthResponse struct {
	Sessions        int   `json:"sessions"`
	Admins          int   `json:"admins"`
	LastBroadcastID int64 `json:"lastBroadcastId"`
	Pending         int   `json:"pending"`
	Standby         bool  `json:"standby"`
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	view, err := entryFrom(r).Card.View(r.Context())
	if err != nil {
		writeError(w, "", err)
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Sessions:        view.NumClients,
		Admins:          view.Admins,
		LastBroadcastID: view.BroadcastID,
		Pending:         view.Pending,
		Standby:         view.State.Standby,
	})
}

// action applies one command envelope. The {type:"admin", token, payload}
// wrapper used by older consoles is accepted as well.
func (a *API) action(w http.ResponseWriter, r *http.Request) {
	var msg types.ClientMessage
	if err := readJSON(w, r, &msg); err != nil {
		writeError(w, "", fmt.Errorf("%w: %v", types.ErrBadEnvelope, err))
		return
	}
	env := msg.Envelope
	if msg.Tag() == wire.FrameAdmin {
		if msg.Payload == nil {
			writeError(w, msg.RID, fmt.Errorf("%w: payload is required", types.ErrBadEnvelope))
			return
		}
		env = *msg.Payload
		if env.Token == "" {
			env.Token = msg.Token
		}
	}

	token := tokenFrom(r)
	if token == "" {
		token = env.Token
	}
	if !a.isAdmin(token) {
		writeError(w, env.RID, ErrUnauthorized)
		return
	}

	cmd, err := types.ToCommand(env)
	if err != nil {
		writeError(w, env.RID, err)
		return
	}
	entry := entryFrom(r)
	res, err := entry.Card.Submit(r.Context(), cmd, env.RID)
	if err != nil {
		writeError(w, env.RID, err)
		return
	}
	a.log.Debug("admin action applied", zap.String("slug", entry.Slug()), zap.String("type", env.Tag()), zap.Bool("duplicate", res.Duplicate))
	writeJSON(w, http.StatusOK, types.ResultMessage(env.RID, res))
}

type createCardRequest struct {
	ClubName     string `json:"clubName"`
	Email        string `json:"email"`
	FriendlySlug bool   `json:"friendlySlug"`
	TTLHours     int    `json:"ttlHours"`
}

type createCardResponse struct {
	Slug      string    `json:"slug"`
	ViewerURL string    `json:"viewerUrl"`
	AdminURL  string    `json:"adminUrl"`
	QRURL     string    `json:"qrUrl"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (a *API) createCard(w http.ResponseWriter, r *http.Request) {
	var req createCardRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, "", fmt.Errorf("%w: %v", types.ErrBadEnvelope, err))
		return
	}

	ttl := a.cfg.CardTTL
	if req.TTLHours != 0 {
		ttl = hub.ClampTTL(req.TTLHours)
	}
	create := hub.CreateCard{ClubName: req.ClubName, Email: req.Email, TTL: ttl}
	if req.FriendlySlug {
		create.SlugSource = req.ClubName
	}

	entry, err := a.hub.Create(r.Context(), create)
	if err != nil {
		a.log.Error("creating card failed", zap.Error(err))
		writeError(w, "", err)
		return
	}

	s := entry.Slug()
	writeJSON(w, http.StatusCreated, createCardResponse{
		Slug:      s,
		ViewerURL: a.viewerURL(s),
		AdminURL:  a.cfg.PublicBaseURL + "/c/" + s + "/admin?token=" + url.QueryEscape(a.cfg.AdminToken),
		QRURL:     a.cfg.PublicBaseURL + "/cards/" + s + "/qr",
		ExpiresAt: entry.Record.ExpiresAt,
	})
}

func (a *API) listCards(w http.ResponseWriter, r *http.Request) {
	recs, err := a.hub.List(r.Context())
	if err != nil {
		writeError(w, "", err)
		return
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Slug < recs[j].Slug })
	writeJSON(w, http.StatusOK, recs)
}

func (a *API) deleteCard(w http.ResponseWriter, r *http.Request) {
	s := chi.URLParam(r, "slug")
	if s == a.cfg.DefaultCard {
		writeError(w, "", fmt.Errorf("%w: the default card cannot be removed", types.ErrBadEnvelope))
		return
	}
	if err := a.hub.Remove(r.Context(), s); err != nil {
		writeError(w, "", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) viewerURL(slug string) string {
	return a.cfg.PublicBaseURL + "/c/" + slug
}

// cardQR renders the viewer URL as a PNG for printing at the venue.
func (a *API) cardQR(w http.ResponseWriter, r *http.Request) {
	s := chi.URLParam(r, "slug")
	if _, err := a.hub.Get(r.Context(), s); err != nil {
		writeError(w, "", err)
		return
	}
	png, err := qrcode.Encode(a.viewerURL(s), qrcode.Medium, 256)
	if err != nil {
		a.log.Error("encoding qr failed", zap.String("slug", s), zap.Error(err))
		writeError(w, "", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}
