package types

// Server -> client frame types.
const (
	FrameState  = "state"
	FrameResult = "result"
	FrameError  = "error"
)

// Client -> server frame types that are not commands.
const (
	FrameAck   = "ack"
	FrameHello = "hello"
	FrameAdmin = "admin"
)

// Event names one incremental change carried next to a full state push.
type Event struct {
	Type    string `json:"type"`
	Index   int    `json:"index,omitempty"`
	FightID int    `json:"fightId,omitempty"`
	Value   string `json:"value,omitempty"`
}

// StatePush is sent to every session after a committed mutation and once on
// connect. Viewers answer with an Ack carrying the same BroadcastID.
type StatePush struct {
	Type        string   `json:"type"`
	State       Snapshot `json:"state"`
	BroadcastID int64    `json:"broadcastId"`
	Events      []Event  `json:"events,omitempty"`
}

type Ack struct {
	Type        string `json:"type"`
	BroadcastID int64  `json:"broadcastId"`
}
