package envelope

import (
	"encoding/json"
	"os"

	"github.com/Hubmakerlabs/agentstr/pkg/nostr/event"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/eventid"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/filter"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/filters"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/wire/text"
	"github.com/Hubmakerlabs/agentstr/pkg/slog"
)

var log, chk = slog.New(os.Stderr)

// Relay messages are JSON arrays whose first element is a label string.
// This cannot be expressed with encoding/json struct tags because arrays
// have no field names, so each envelope carries its own marshal and parse
// logic and ParseMessage dispatches on the label.
const (
	LEvent  = "EVENT"
	LReq    = "REQ"
	LClose  = "CLOSE"
	LEOSE   = "EOSE"
	LOK     = "OK"
	LNotice = "NOTICE"
	LClosed = "CLOSED"
)

// E is the interface common to all relay messages.
type E interface {
	Label() string
	MarshalJSON() ([]byte, error)
}

// Event wraps an event with an optional subscription ID. Client to relay
// the subscription ID is absent, relay to client it is present.
type Event struct {
	SubscriptionID string
	Event          *event.T
}

func (env *Event) Label() string { return LEvent }

func (env *Event) MarshalJSON() (b []byte, err error) {
	b = append(b, `["EVENT",`...)
	if env.SubscriptionID != "" {
		b = text.EscapeString(b, env.SubscriptionID)
		b = append(b, ',')
	}
	var eb []byte
	if eb, err = env.Event.MarshalJSON(); chk.D(err) {
		return
	}
	b = append(b, eb...)
	b = append(b, ']')
	return
}

// Req opens a subscription with one or more filters.
type Req struct {
	SubscriptionID string
	Filters        filters.T
}

func (env *Req) Label() string { return LReq }

func (env *Req) MarshalJSON() (b []byte, err error) {
	b = append(b, `["REQ",`...)
	b = text.EscapeString(b, env.SubscriptionID)
	for _, f := range env.Filters {
		b = append(b, ',')
		var fb []byte
		if fb, err = f.MarshalJSON(); chk.D(err) {
			return
		}
		b = append(b, fb...)
	}
	b = append(b, ']')
	return
}

// Close terminates a subscription.
type Close struct {
	SubscriptionID string
}

func (env *Close) Label() string { return LClose }

func (env *Close) MarshalJSON() (b []byte, err error) {
	b = append(b, `["CLOSE",`...)
	b = text.EscapeString(b, env.SubscriptionID)
	b = append(b, ']')
	return
}

// EOSE signals the relay has sent all stored events for a subscription.
type EOSE struct {
	SubscriptionID string
}

func (env *EOSE) Label() string { return LEOSE }

func (env *EOSE) MarshalJSON() (b []byte, err error) {
	b = append(b, `["EOSE",`...)
	b = text.EscapeString(b, env.SubscriptionID)
	b = append(b, ']')
	return
}

// OK is the relay's accept/reject response to a published event.
type OK struct {
	EventID eventid.T
	OK      bool
	Reason  string
}

func (env *OK) Label() string { return LOK }

func (env *OK) MarshalJSON() (b []byte, err error) {
	b = append(b, `["OK",`...)
	b = text.EscapeString(b, env.EventID.String())
	b = append(b, ',')
	if env.OK {
		b = append(b, "true"...)
	} else {
		b = append(b, "false"...)
	}
	b = append(b, ',')
	b = text.EscapeString(b, env.Reason)
	b = append(b, ']')
	return
}

// Notice is a human readable message from the relay.
type Notice struct {
	Message string
}

func (env *Notice) Label() string { return LNotice }

func (env *Notice) MarshalJSON() (b []byte, err error) {
	b = append(b, `["NOTICE",`...)
	b = text.EscapeString(b, env.Message)
	b = append(b, ']')
	return
}

// Closed tells the client the relay ended a subscription server side.
type Closed struct {
	SubscriptionID string
	Reason         string
}

func (env *Closed) Label() string { return LClosed }

func (env *Closed) MarshalJSON() (b []byte, err error) {
	b = append(b, `["CLOSED",`...)
	b = text.EscapeString(b, env.SubscriptionID)
	b = append(b, ',')
	b = text.EscapeString(b, env.Reason)
	b = append(b, ']')
	return
}

// ParseMessage decodes a relay message into its envelope type. Unknown
// labels and malformed arrays return nil, the read loop drops them.
func ParseMessage(message []byte) E {
	var arr []json.RawMessage
	if err := json.Unmarshal(message, &arr); chk.D(err) {
		return nil
	}
	if len(arr) == 0 {
		return nil
	}
	var label string
	if err := json.Unmarshal(arr[0], &label); chk.D(err) {
		return nil
	}
	switch label {
	case LEvent:
		env := &Event{}
		switch len(arr) {
		case 2:
			if err := json.Unmarshal(arr[1], &env.Event); chk.D(err) {
				return nil
			}
		case 3:
			if err := json.Unmarshal(arr[1],
				&env.SubscriptionID); chk.D(err) {
				return nil
			}
			if err := json.Unmarshal(arr[2], &env.Event); chk.D(err) {
				return nil
			}
		default:
			return nil
		}
		return env
	case LReq:
		if len(arr) < 3 {
			return nil
		}
		env := &Req{}
		if err := json.Unmarshal(arr[1], &env.SubscriptionID); chk.D(err) {
			return nil
		}
		for _, raw := range arr[2:] {
			f := &filter.T{}
			if err := json.Unmarshal(raw, f); chk.D(err) {
				return nil
			}
			env.Filters = append(env.Filters, f)
		}
		return env
	case LClose:
		if len(arr) < 2 {
			return nil
		}
		env := &Close{}
		if err := json.Unmarshal(arr[1], &env.SubscriptionID); chk.D(err) {
			return nil
		}
		return env
	case LEOSE:
		if len(arr) < 2 {
			return nil
		}
		env := &EOSE{}
		if err := json.Unmarshal(arr[1], &env.SubscriptionID); chk.D(err) {
			return nil
		}
		return env
	case LOK:
		if len(arr) < 3 {
			return nil
		}
		env := &OK{}
		var id string
		if err := json.Unmarshal(arr[1], &id); chk.D(err) {
			return nil
		}
		env.EventID = eventid.T(id)
		if err := json.Unmarshal(arr[2], &env.OK); chk.D(err) {
			return nil
		}
		if len(arr) > 3 {
			if err := json.Unmarshal(arr[3], &env.Reason); chk.D(err) {
				return nil
			}
		}
		return env
	case LNotice:
		if len(arr) < 2 {
			return nil
		}
		env := &Notice{}
		if err := json.Unmarshal(arr[1], &env.Message); chk.D(err) {
			return nil
		}
		return env
	case LClosed:
		if len(arr) < 2 {
			return nil
		}
		env := &Closed{}
		if err := json.Unmarshal(arr[1], &env.SubscriptionID); chk.D(err) {
			return nil
		}
		if len(arr) > 2 {
			if err := json.Unmarshal(arr[2], &env.Reason); chk.D(err) {
				return nil
			}
		}
		return env
	default:
		log.D.F("unknown envelope label '%s'", label)
		return nil
	}
}
