package mirror

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/DoyleJ11/fightcard-backend/internal/engine"
	"github.com/DoyleJ11/fightcard-backend/pkg/types"
)

const (
	keyCurrent            = "current"
	keyStandby            = "standby"
	keyInfoVisible        = "infoVisible"
	keyFightsVisible      = "fightsVisible"
	keyEventName          = "eventName"
	keyEventFont          = "eventFont"
	keyEventColor         = "eventColor"
	keyEventSize          = "eventSize"
	keyEventImage         = "eventImage"
	keyEventImageSize     = "eventImageSize"
	keyEventInfo          = "eventInfo"
	keyEventBgColor       = "eventBgColor"
	keyEventFootnoteImage = "eventFootnoteImage"
	keySocial             = "social"
)

func fightRows(slug string, fights []types.Fight) []FightRow {
	rows := make([]FightRow, len(fights))
	for i, f := range fights {
		rows[i] = FightRow{
			CardSlug: slug,
			Position: i,
			FightID:  f.ID,
			A:        f.A,
			B:        f.B,
			Weight:   f.Weight,
			Klass:    f.Klass,
			AGym:     f.AGym,
			BGym:     f.BGym,
			Winner:   f.Winner,
			Method:   f.Method,
		}
	}
	return rows
}

func fightsFromRows(rows []FightRow) []types.Fight {
	fights := make([]types.Fight, len(rows))
	for i, r := range rows {
		fights[i] = types.Fight{
			ID:     r.FightID,
			A:      r.A,
			B:      r.B,
			Weight: r.Weight,
			Klass:  r.Klass,
			AGym:   r.AGym,
			BGym:   r.BGym,
			Winner: r.Winner,
			Method: r.Method,
		}
	}
	return fights
}

func metaRows(slug string, s types.Snapshot, now time.Time) ([]MetaRow, error) {
	values := map[string]any{
		keyCurrent:            s.Current,
		keyStandby:            s.Standby,
		keyInfoVisible:        s.InfoVisible,
		keyFightsVisible:      s.FightsVisible,
		keyEventName:          s.EventName,
		keyEventFont:          s.EventFont,
		keyEventColor:         s.EventColor,
		keyEventSize:          s.EventSize,
		keyEventImage:         s.EventImage,
		keyEventImageSize:     s.EventImageSize,
		keyEventInfo:          s.EventInfo,
		keyEventBgColor:       s.EventBgColor,
		keyEventFootnoteImage: s.EventFootnoteImage,
		keySocial:             s.Social,
	}
	rows := make([]MetaRow, 0, len(values))
	for k, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		rows = append(rows, MetaRow{CardSlug: slug, Key: k, Value: string(raw), UpdatedAt: now})
	}
	return rows, nil
}

// applyMeta overlays stored key/values on s. Missing or malformed values keep
// whatever s already holds.
func applyMeta(s *types.Snapshot, rows []MetaRow) {
	for _, r := range rows {
		switch r.Key {
		case keyCurrent:
			decodeInt(r.Value, &s.Current)
		case keyStandby:
			decodeBool(r.Value, &s.Standby)
		case keyInfoVisible:
			decodeBool(r.Value, &s.InfoVisible)
		case keyFightsVisible:
			decodeBool(r.Value, &s.FightsVisible)
		case keyEventName:
			decodeString(r.Value, &s.EventName)
		case keyEventFont:
			decodeString(r.Value, &s.EventFont)
		case keyEventColor:
			decodeString(r.Value, &s.EventColor)
		case keyEventSize:
			decodeInt(r.Value, &s.EventSize)
		case keyEventImage:
			decodeString(r.Value, &s.EventImage)
		case keyEventImageSize:
			decodeInt(r.Value, &s.EventImageSize)
		case keyEventInfo:
			decodeString(r.Value, &s.EventInfo)
		case keyEventBgColor:
			decodeString(r.Value, &s.EventBgColor)
		case keyEventFootnoteImage:
			decodeString(r.Value, &s.EventFootnoteImage)
		case keySocial:
			var raw map[string]any
			if json.Unmarshal([]byte(r.Value), &raw) == nil {
				s.Social = engine.SanitizeSocial(raw)
			}
		}
	}
}

func decodeInt(raw string, dst *int) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		v = raw
	}
	switch t := v.(type) {
	case float64:
		*dst = int(t)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			*dst = n
		}
	}
}

func decodeBool(raw string, dst *bool) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		v = raw
	}
	switch t := v.(type) {
	case bool:
		*dst = t
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(t)); err == nil {
			*dst = b
		}
	}
}

func decodeString(raw string, dst *string) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		*dst = raw
		return
	}
	if s, ok := v.(string); ok {
		*dst = s
	}
}

func cardRecord(r CardRow) types.CardRecord {
	rec := types.CardRecord{Slug: r.Slug, ClubName: r.ClubName, Email: r.Email, CreatedAt: r.CreatedAt}
	if r.ExpiresAt != nil {
		rec.ExpiresAt = *r.ExpiresAt
	}
	return rec
}

func cardRow(rec types.CardRecord) CardRow {
	row := CardRow{Slug: rec.Slug, ClubName: rec.ClubName, Email: rec.Email, CreatedAt: rec.CreatedAt}
	if !rec.ExpiresAt.IsZero() {
		exp := rec.ExpiresAt
		row.ExpiresAt = &exp
	}
	return row
}

func auditRow(e types.AuditEntry) (AuditRow, error) {
	events := e.Events
	if events == nil {
		events = []types.Event{}
	}
	details, err := json.Marshal(events)
	if err != nil {
		return AuditRow{}, err
	}
	return AuditRow{
		CardSlug:  e.Slug,
		Actor:     e.Actor,
		Action:    e.Action,
		RequestID: e.RequestID,
		Details:   string(details),
		CreatedAt: e.At,
	}, nil
}
