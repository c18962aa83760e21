package engine

import (
	"strings"
	"unicode/utf8"

	"github.com/DoyleJ11/fightcard-backend/pkg/types"
)

const (
	MaxInfoLen        = 800
	MaxSocialValueLen = 180

	DefaultEventFont      = "bebas"
	DefaultEventSize      = 32
	DefaultEventImageSize = 80

	// Sizes are tenths of a rem.
	MinEventSize      = 12
	MaxEventSize      = 80
	MinEventImageSize = 20
	MaxEventImageSize = 300
)

func NewEmptyState() State {
	return State{
		Fights:         []Fight{},
		Standby:        true, // nobody is on the admin console yet
		InfoVisible:    true,
		FightsVisible:  true,
		EventFont:      DefaultEventFont,
		EventSize:      DefaultEventSize,
		EventImageSize: DefaultEventImageSize,
	}
}

func ContainsEvent(events []types.Event, eventType string) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

// Normalize coerces a state read from outside the process (durable mirror,
// file) so every invariant Apply relies on holds.
func Normalize(s State) State {
	out := s.Clone()
	if out.Fights == nil {
		out.Fights = []Fight{}
	}
	seen := make(map[int]bool, len(out.Fights))
	for i := range out.Fights {
		f := &out.Fights[i]
		if f.ID <= 0 || seen[f.ID] {
			f.ID = nextID(out.Fights)
		}
		seen[f.ID] = true
		// A method recorded before any winner is kept; one attached to an
		// unreadable winner goes with it.
		if side, ok := NormalizeSide(f.Winner); ok {
			f.Winner = side
		} else if f.Winner != "" {
			f.Winner = ""
			f.Method = ""
		}
	}
	out.Current = clampLive(out.Current, len(out.Fights))
	if strings.TrimSpace(out.EventFont) == "" {
		out.EventFont = DefaultEventFont
	}
	if out.EventSize == 0 {
		out.EventSize = DefaultEventSize
	}
	if out.EventImageSize == 0 {
		out.EventImageSize = DefaultEventImageSize
	}
	out.EventSize = clamp(out.EventSize, MinEventSize, MaxEventSize)
	out.EventImageSize = clamp(out.EventImageSize, MinEventImageSize, MaxEventImageSize)
	out.EventInfo = truncateRunes(out.EventInfo, MaxInfoLen)
	out.Social = types.Social{
		Website:    sanitizeChannel(out.Social.Website),
		Facebook:   sanitizeChannel(out.Social.Facebook),
		Instagram:  sanitizeChannel(out.Social.Instagram),
		Additional: sanitizeChannel(out.Social.Additional),
	}
	return out
}

// NormalizeSide accepts a, b or draw in any case, surrounded by whitespace.
func NormalizeSide(side string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(side)) {
	case SideA:
		return SideA, true
	case SideB:
		return SideB, true
	case SideDraw:
		return SideDraw, true
	}
	return "", false
}

func clampLive(current, n int) int {
	if n == 0 || current < 0 {
		return 0
	}
	if current > n-1 {
		return n - 1
	}
	return current
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func applyMeta(s *State, m MetaPatch) {
	if m.Name != nil {
		s.EventName = strings.TrimSpace(*m.Name)
	}
	if m.Font != nil {
		s.EventFont = strings.ToLower(strings.TrimSpace(*m.Font))
		if s.EventFont == "" {
			s.EventFont = DefaultEventFont
		}
	}
	if m.Color != nil {
		s.EventColor = strings.TrimSpace(*m.Color)
	}
	if m.Size != nil {
		s.EventSize = clamp(*m.Size, MinEventSize, MaxEventSize)
	}
	if m.Image != nil {
		s.EventImage = strings.TrimSpace(*m.Image)
	}
	if m.ImageSize != nil {
		s.EventImageSize = clamp(*m.ImageSize, MinEventImageSize, MaxEventImageSize)
	}
	if m.Info != nil {
		s.EventInfo = truncateRunes(*m.Info, MaxInfoLen)
		if strings.TrimSpace(s.EventInfo) != "" {
			s.InfoVisible = true
		}
	}
	if m.BgColor != nil {
		s.EventBgColor = strings.TrimSpace(*m.BgColor)
	}
	if m.FootnoteImage != nil {
		s.EventFootnoteImage = strings.TrimSpace(*m.FootnoteImage)
	}
}

// SanitizeSocial builds the four social channels from a loosely decoded JSON
// object. Missing or malformed channels come back disabled and empty.
func SanitizeSocial(raw map[string]any) types.Social {
	return types.Social{
		Website:    channelFrom(raw["website"]),
		Facebook:   channelFrom(raw["facebook"]),
		Instagram:  channelFrom(raw["instagram"]),
		Additional: channelFrom(raw["additional"]),
	}
}

func channelFrom(v any) types.Channel {
	m, ok := v.(map[string]any)
	if !ok {
		return types.Channel{}
	}
	value, _ := m["value"].(string)
	return sanitizeChannel(types.Channel{Enabled: truthy(m["enabled"]), Value: value})
}

func sanitizeChannel(c types.Channel) types.Channel {
	return types.Channel{
		Enabled: c.Enabled,
		Value:   truncateRunes(strings.TrimSpace(c.Value), MaxSocialValueLen),
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "on", "yes":
			return true
		}
	}
	return false
}
