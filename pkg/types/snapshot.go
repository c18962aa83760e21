package types

import "time"

// Snapshot is the complete broadcastable state of one card. The same shape is
// persisted by the durable mirror, pushed to viewers and served by /state.
type Snapshot struct {
	Current            int     `json:"current"`
	Fights             []Fight `json:"fights"`
	Standby            bool    `json:"standby"`
	InfoVisible        bool    `json:"infoVisible"`
	FightsVisible      bool    `json:"fightsVisible"`
	EventName          string  `json:"eventName"`
	EventFont          string  `json:"eventFont"`
	EventColor         string  `json:"eventColor"`
	EventSize          int     `json:"eventSize"`
	EventImage         string  `json:"eventImage"`
	EventImageSize     int     `json:"eventImageSize"`
	EventInfo          string  `json:"eventInfo"`
	EventBgColor       string  `json:"eventBgColor"`
	EventFootnoteImage string  `json:"eventFootnoteImage"`
	Social             Social  `json:"social"`
}

// Fight is one scheduled match. Weight and Klass carry the weight class and
// division under the keys the viewer pages have always used.
type Fight struct {
	ID     int    `json:"id"`
	A      string `json:"a"`
	B      string `json:"b"`
	Weight string `json:"weight"`
	Klass  string `json:"klass"`
	AGym   string `json:"aGym"`
	BGym   string `json:"bGym"`
	Winner string `json:"winner,omitempty"` // "a" | "b" | "draw"
	Method string `json:"method,omitempty"`
}

type Channel struct {
	Enabled bool   `json:"enabled"`
	Value   string `json:"value"`
}

type Social struct {
	Website    Channel `json:"website"`
	Facebook   Channel `json:"facebook"`
	Instagram  Channel `json:"instagram"`
	Additional Channel `json:"additional"`
}

// Clone returns a copy that shares no memory with s.
func (s Snapshot) Clone() Snapshot {
	out := s
	if s.Fights != nil {
		out.Fights = make([]Fight, len(s.Fights))
		copy(out.Fights, s.Fights)
	}
	return out
}

// CardRecord is the registry metadata kept for a provisioned card.
type CardRecord struct {
	Slug      string    `json:"slug"`
	ClubName  string    `json:"clubName"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"` // zero means the card never expires
}

// AuditEntry records one committed mutation of a card.
type AuditEntry struct {
	Slug      string    `json:"slug"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	RequestID string    `json:"rid,omitempty"`
	Events    []Event   `json:"events"`
	At        time.Time `json:"at"`
}
