package types

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/DoyleJ11/fightcard-backend/internal/engine"
	"github.com/DoyleJ11/fightcard-backend/internal/hub"
	wire "github.com/DoyleJ11/fightcard-backend/pkg/types"
)

var ErrBadEnvelope = errors.New("malformed command")
var ErrUnauthorized = errors.New("unauthorized")

// Command tags. Older clients use the aliases in commandAliases.
const (
	TagSetLive          = "setLive"
	TagSetWinner        = "setWinner"
	TagClearWinner      = "clearWinner"
	TagSetWinMethod     = "setWinMethod"
	TagCreateFight      = "createFight"
	TagDeleteFight      = "deleteFight"
	TagReorderFights    = "reorderFights"
	TagSetStandby       = "setStandby"
	TagSetInfoVisible   = "setInfoVisible"
	TagSetFightsVisible = "setFightsVisible"
	TagClearAllFights   = "clearAllFights"
	TagSetEventMeta     = "setEventMeta"
	TagSetSocial        = "setSocial"
)

var commandAliases = map[string]string{
	"setCurrent":  TagSetLive,
	"addFight":    TagCreateFight,
	"clearFights": TagClearAllFights,
}

// Envelope is one admin command as it arrives over HTTP or the websocket.
// Only the fields relevant to Type are read.
type Envelope struct {
	Type  string `json:"type"`
	Kind  string `json:"kind,omitempty"`
	RID   string `json:"rid,omitempty"`
	Token string `json:"token,omitempty"`

	Index  *FlexInt   `json:"index,omitempty"`
	Side   *string    `json:"side,omitempty"`
	Method *string    `json:"method,omitempty"`
	Data   *FightData `json:"data,omitempty"`
	Order  []FlexInt  `json:"order,omitempty"`
	On     *bool      `json:"on,omitempty"`

	Name          *string        `json:"name,omitempty"`
	Font          *string        `json:"font,omitempty"`
	Color         *string        `json:"color,omitempty"`
	Size          *FlexInt       `json:"size,omitempty"`
	Image         *ImageRef      `json:"image,omitempty"`
	ImageSize     *FlexInt       `json:"imageSize,omitempty"`
	Info          *string        `json:"info,omitempty"`
	BgColor       *string        `json:"bgColor,omitempty"`
	FootnoteImage *ImageRef      `json:"footnoteImage,omitempty"`
	Social        map[string]any `json:"social,omitempty"`
}

type FightData struct {
	A      string `json:"a"`
	B      string `json:"b"`
	Weight string `json:"weight"`
	Klass  string `json:"klass"`
	AGym   string `json:"aGym"`
	BGym   string `json:"bGym"`
}

// Tag returns the canonical command tag, accepting kind for type and the
// legacy aliases.
func (e Envelope) Tag() string {
	t := e.Type
	if t == "" {
		t = e.Kind
	}
	if canonical, ok := commandAliases[t]; ok {
		return canonical
	}
	return t
}

// ToCommand turns an envelope into the engine command it names.
func ToCommand(e Envelope) (engine.Command, error) {
	switch e.Tag() {
	case TagSetLive:
		i, err := e.index()
		return engine.SetLive{Index: i}, err
	case TagSetWinner:
		i, err := e.index()
		if err != nil {
			return nil, err
		}
		if e.Side == nil {
			return nil, fmt.Errorf("%w: side is required", ErrBadEnvelope)
		}
		return engine.SetWinner{Index: i, Side: *e.Side}, nil
	case TagClearWinner:
		i, err := e.index()
		return engine.ClearWinner{Index: i}, err
	case TagSetWinMethod:
		i, err := e.index()
		if err != nil {
			return nil, err
		}
		var method string
		if e.Method != nil {
			method = *e.Method
		}
		return engine.SetWinMethod{Index: i, Method: method}, nil
	case TagCreateFight:
		if e.Data == nil {
			return nil, fmt.Errorf("%w: data is required", ErrBadEnvelope)
		}
		return engine.CreateFight{Data: engine.FightInput(*e.Data)}, nil
	case TagDeleteFight:
		i, err := e.index()
		return engine.DeleteFight{Index: i}, err
	case TagReorderFights:
		order := make([]int, len(e.Order))
		for i, v := range e.Order {
			order[i] = int(v)
		}
		return engine.ReorderFights{Order: order}, nil
	case TagSetStandby:
		on, err := e.on()
		return engine.SetStandby{On: on}, err
	case TagSetInfoVisible:
		on, err := e.on()
		return engine.SetInfoVisible{On: on}, err
	case TagSetFightsVisible:
		on, err := e.on()
		return engine.SetFightsVisible{On: on}, err
	case TagClearAllFights:
		return engine.ClearAllFights{}, nil
	case TagSetEventMeta:
		return engine.SetEventMeta{Meta: e.metaPatch()}, nil
	case TagSetSocial:
		if e.Social == nil {
			return nil, fmt.Errorf("%w: social is required", ErrBadEnvelope)
		}
		return engine.SetSocial{Channels: e.Social}, nil
	case "":
		return nil, fmt.Errorf("%w: type is required", ErrBadEnvelope)
	default:
		return nil, fmt.Errorf("%w: %q", engine.ErrUnsupportedCommand, e.Tag())
	}
}

func (e Envelope) index() (int, error) {
	if e.Index == nil {
		return 0, fmt.Errorf("%w: index is required", ErrBadEnvelope)
	}
	return int(*e.Index), nil
}

func (e Envelope) on() (bool, error) {
	if e.On == nil {
		return false, fmt.Errorf("%w: on is required", ErrBadEnvelope)
	}
	return *e.On, nil
}

func (e Envelope) metaPatch() engine.MetaPatch {
	p := engine.MetaPatch{
		Name:    e.Name,
		Font:    e.Font,
		Color:   e.Color,
		Info:    e.Info,
		BgColor: e.BgColor,
	}
	if e.Size != nil {
		v := int(*e.Size)
		p.Size = &v
	}
	if e.ImageSize != nil {
		v := int(*e.ImageSize)
		p.ImageSize = &v
	}
	if e.Image != nil {
		v := string(*e.Image)
		p.Image = &v
	}
	if e.FootnoteImage != nil {
		v := string(*e.FootnoteImage)
		p.FootnoteImage = &v
	}
	return p
}

// FlexInt accepts a JSON number (fractions are truncated) or a numeric string.
type FlexInt int

func (n *FlexInt) UnmarshalJSON(b []byte) error {
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*n = FlexInt(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: expected a number, got %s", ErrBadEnvelope, b)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return fmt.Errorf("%w: expected a number, got %q", ErrBadEnvelope, s)
	}
	*n = FlexInt(f)
	return nil
}

// ImageRef is an image reference given as "url", {"src":"url"} or {"v":"url"}.
type ImageRef string

func (r *ImageRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*r = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*r = ImageRef(s)
		return nil
	}
	var obj struct {
		Src *string `json:"src"`
		V   *string `json:"v"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("%w: bad image reference", ErrBadEnvelope)
	}
	switch {
	case obj.Src != nil:
		*r = ImageRef(*obj.Src)
	case obj.V != nil:
		*r = ImageRef(*obj.V)
	default:
		*r = ""
	}
	return nil
}

// ClientMessage is any frame a websocket session may send: an ack, a hello,
// the legacy {type:"admin", token, payload} wrapper, or a bare command.
type ClientMessage struct {
	Envelope
	BroadcastID int64     `json:"broadcastId,omitempty"`
	Payload     *Envelope `json:"payload,omitempty"`
}

type ServerMessage struct {
	Type      string        `json:"type"` // "result" | "error"
	RID       string        `json:"rid,omitempty"`
	OK        bool          `json:"ok,omitempty"`
	Duplicate bool          `json:"duplicate,omitempty"`
	Fight     *engine.Fight `json:"fight,omitempty"`
	Error     string        `json:"error,omitempty"`
	Detail    string        `json:"detail,omitempty"`
}

// Error codes carried in ServerMessage.Error.
const (
	CodeValidation   = "validation"
	CodeBadRequest   = "bad_request"
	CodeUnauthorized = "unauthorized"
	CodeNotFound     = "not_found"
	CodeGone         = "gone"
	CodeInternal     = "internal"
)

// Classify maps an error from the command path to its wire code.
func Classify(err error) string {
	switch {
	case engine.IsValidation(err):
		return CodeValidation
	case errors.Is(err, ErrBadEnvelope):
		return CodeBadRequest
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, hub.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, hub.ErrGone):
		return CodeGone
	default:
		return CodeInternal
	}
}

func ResultMessage(rid string, res engine.Result) ServerMessage {
	return ServerMessage{Type: wire.FrameResult, RID: rid, OK: true, Duplicate: res.Duplicate, Fight: res.Fight}
}

func ErrorMessage(rid string, err error) ServerMessage {
	return ServerMessage{Type: wire.FrameError, RID: rid, Error: Classify(err), Detail: err.Error()}
}

// TokenMatches reports whether got is exactly the admin token. An empty token
// never matches.
func TokenMatches(want, got string) bool {
	if want == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}
