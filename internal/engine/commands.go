package engine

import "strings"

// Command is one admin mutation. The set of variants is closed; Apply rejects
// anything else with ErrUnsupportedCommand.
type Command interface{ isCommand() }

type SetLive struct{ Index int }

type SetWinner struct {
	Index int
	Side  string
}

type ClearWinner struct{ Index int }

type SetWinMethod struct {
	Index  int
	Method string
}

type CreateFight struct{ Data FightInput }

type DeleteFight struct{ Index int }

// ReorderFights lists fight ids in the desired order. See reorder for the
// positional fallback.
type ReorderFights struct{ Order []int }

type SetStandby struct{ On bool }

type SetInfoVisible struct{ On bool }

type SetFightsVisible struct{ On bool }

type ClearAllFights struct{}

type SetEventMeta struct{ Meta MetaPatch }

// SetSocial carries the decoded social object as received; every channel is
// sanitized on apply.
type SetSocial struct{ Channels map[string]any }

func (SetLive) isCommand()          {}
func (SetWinner) isCommand()        {}
func (ClearWinner) isCommand()      {}
func (SetWinMethod) isCommand()     {}
func (CreateFight) isCommand()      {}
func (DeleteFight) isCommand()      {}
func (ReorderFights) isCommand()    {}
func (SetStandby) isCommand()       {}
func (SetInfoVisible) isCommand()   {}
func (SetFightsVisible) isCommand() {}
func (ClearAllFights) isCommand()   {}
func (SetEventMeta) isCommand()     {}
func (SetSocial) isCommand()        {}

type FightInput struct {
	A      string
	B      string
	Weight string
	Klass  string
	AGym   string
	BGym   string
}

func (in FightInput) fight() Fight {
	return Fight{
		A:      strings.TrimSpace(in.A),
		B:      strings.TrimSpace(in.B),
		Weight: strings.TrimSpace(in.Weight),
		Klass:  strings.TrimSpace(in.Klass),
		AGym:   strings.TrimSpace(in.AGym),
		BGym:   strings.TrimSpace(in.BGym),
	}
}

// MetaPatch is a partial event metadata update. Nil fields are left untouched.
type MetaPatch struct {
	Name          *string
	Font          *string
	Color         *string
	Size          *int
	Image         *string
	ImageSize     *int
	Info          *string
	BgColor       *string
	FootnoteImage *string
}
