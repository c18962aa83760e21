package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/DoyleJ11/fightcard-backend/pkg/types"
)

var ErrIndexOutOfRange = errors.New("fight index out of range")
var ErrEmptyFighter = errors.New("fighter name required")
var ErrInvalidSide = errors.New("invalid winner side")
var ErrUnsupportedCommand = errors.New("unsupported command")

// IsValidation reports whether err was produced by rejecting a command's input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrIndexOutOfRange) ||
		errors.Is(err, ErrEmptyFighter) ||
		errors.Is(err, ErrInvalidSide) ||
		errors.Is(err, ErrUnsupportedCommand)
}

type State = types.Snapshot
type Fight = types.Fight

const (
	SideA    = "a"
	SideB    = "b"
	SideDraw = "draw"
)

const (
	EvtLiveChanged          = "liveChanged"
	EvtWinnerSet            = "winnerSet"
	EvtWinnerCleared        = "winnerCleared"
	EvtMethodSet            = "methodSet"
	EvtFightCreated         = "fightCreated"
	EvtFightDeleted         = "fightDeleted"
	EvtFightsReordered      = "fightsReordered"
	EvtFightsCleared        = "fightsCleared"
	EvtStandbyChanged       = "standbyChanged"
	EvtInfoVisibleChanged   = "infoVisibleChanged"
	EvtFightsVisibleChanged = "fightsVisibleChanged"
	EvtEventMetaUpdated     = "eventMetaUpdated"
	EvtSocialUpdated        = "socialUpdated"
)

// Result describes what a successfully applied command did. A result with no
// events left the state untouched and needs neither persistence nor broadcast.
type Result struct {
	Events    []types.Event
	Fight     *Fight // set by CreateFight, including content duplicates
	Duplicate bool
}

func (r Result) Changed() bool { return len(r.Events) > 0 }

// Apply validates cmd against s and returns the resulting state. On error the
// returned state is s, unmodified.
func Apply(s State, cmd Command) (Result, State, error) {
	next := s.Clone()
	if next.Fights == nil {
		next.Fights = []Fight{}
	}
	var res Result

	switch c := cmd.(type) {
	case SetLive:
		if err := checkIndex(s, c.Index); err != nil {
			return Result{}, s, err
		}
		next.Current = c.Index
		// Picking a live fight means the admin is back on air.
		next.Standby = false
		res.Events = []types.Event{{Type: EvtLiveChanged, Index: c.Index, FightID: next.Fights[c.Index].ID}}

	case SetWinner:
		if err := checkIndex(s, c.Index); err != nil {
			return Result{}, s, err
		}
		side, ok := NormalizeSide(c.Side)
		if !ok {
			return Result{}, s, fmt.Errorf("%w: %q", ErrInvalidSide, c.Side)
		}
		next.Fights[c.Index].Winner = side
		res.Events = []types.Event{{Type: EvtWinnerSet, Index: c.Index, FightID: next.Fights[c.Index].ID, Value: side}}

	case ClearWinner:
		if err := checkIndex(s, c.Index); err != nil {
			return Result{}, s, err
		}
		next.Fights[c.Index].Winner = ""
		next.Fights[c.Index].Method = ""
		res.Events = []types.Event{{Type: EvtWinnerCleared, Index: c.Index, FightID: next.Fights[c.Index].ID}}

	case SetWinMethod:
		if err := checkIndex(s, c.Index); err != nil {
			return Result{}, s, err
		}
		method := strings.TrimSpace(c.Method)
		next.Fights[c.Index].Method = method
		res.Events = []types.Event{{Type: EvtMethodSet, Index: c.Index, FightID: next.Fights[c.Index].ID, Value: method}}

	case CreateFight:
		f := c.Data.fight()
		if f.A == "" || f.B == "" {
			return Result{}, s, fmt.Errorf("%w: both fighter a and fighter b must be non-empty", ErrEmptyFighter)
		}
		if i := findEqual(s.Fights, f); i >= 0 {
			existing := s.Fights[i]
			return Result{Fight: &existing, Duplicate: true}, s, nil
		}
		f.ID = nextID(s.Fights)
		next.Fights = append(next.Fights, f)
		next.FightsVisible = true
		next.Standby = false
		res.Fight = &f
		res.Events = []types.Event{{Type: EvtFightCreated, Index: len(next.Fights) - 1, FightID: f.ID}}

	case DeleteFight:
		if err := checkIndex(s, c.Index); err != nil {
			return Result{}, s, err
		}
		removed := next.Fights[c.Index]
		next.Fights = append(next.Fights[:c.Index], next.Fights[c.Index+1:]...)
		if c.Index < next.Current {
			next.Current--
		}
		res.Events = []types.Event{{Type: EvtFightDeleted, Index: c.Index, FightID: removed.ID}}

	case ReorderFights:
		liveID := 0
		if s.Current >= 0 && s.Current < len(s.Fights) {
			liveID = s.Fights[s.Current].ID
		}
		next.Fights = reorder(next.Fights, c.Order)
		if i := indexOfID(next.Fights, liveID); i >= 0 {
			next.Current = i
		}
		res.Events = []types.Event{{Type: EvtFightsReordered}}

	case SetStandby:
		next.Standby = c.On
		res.Events = []types.Event{{Type: EvtStandbyChanged, Value: boolString(c.On)}}

	case SetInfoVisible:
		next.InfoVisible = c.On
		res.Events = []types.Event{{Type: EvtInfoVisibleChanged, Value: boolString(c.On)}}

	case SetFightsVisible:
		next.FightsVisible = c.On
		res.Events = []types.Event{{Type: EvtFightsVisibleChanged, Value: boolString(c.On)}}

	case ClearAllFights:
		next.Fights = []Fight{}
		next.Current = 0
		res.Events = []types.Event{{Type: EvtFightsCleared}}

	case SetEventMeta:
		applyMeta(&next, c.Meta)
		res.Events = []types.Event{{Type: EvtEventMetaUpdated}}

	case SetSocial:
		next.Social = SanitizeSocial(c.Channels)
		res.Events = []types.Event{{Type: EvtSocialUpdated}}

	default:
		return Result{}, s, fmt.Errorf("%w: %T", ErrUnsupportedCommand, cmd)
	}

	next.Current = clampLive(next.Current, len(next.Fights))
	return res, next, nil
}

func checkIndex(s State, i int) error {
	if i < 0 || i >= len(s.Fights) {
		return fmt.Errorf("%w: index %d, card has %d fights", ErrIndexOutOfRange, i, len(s.Fights))
	}
	return nil
}

func nextID(fights []Fight) int {
	highest := 0
	for _, f := range fights {
		if f.ID > highest {
			highest = f.ID
		}
	}
	return highest + 1
}

func findEqual(fights []Fight, f Fight) int {
	for i, e := range fights {
		if strings.TrimSpace(e.A) == f.A &&
			strings.TrimSpace(e.B) == f.B &&
			strings.TrimSpace(e.Weight) == f.Weight &&
			strings.TrimSpace(e.Klass) == f.Klass &&
			strings.TrimSpace(e.AGym) == f.AGym &&
			strings.TrimSpace(e.BGym) == f.BGym {
			return i
		}
	}
	return -1
}

func indexOfID(fights []Fight, id int) int {
	if id == 0 {
		return -1
	}
	for i, f := range fights {
		if f.ID == id {
			return i
		}
	}
	return -1
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
