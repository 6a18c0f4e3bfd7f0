package marketplace

import (
	"encoding/json"
	"fmt"

	"github.com/Hubmakerlabs/agentstr/pkg/nostr/event"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/kind"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/tag"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/tags"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/timestamp"
)

// ShippingMethod is one way a stall ships goods, with a flat cost and the
// set of regions it covers.
type ShippingMethod struct {
	ID      string   `json:"id"`
	Cost    float64  `json:"cost"`
	Name    string   `json:"name,omitempty"`
	Regions []string `json:"regions"`
}

// Stall is the local form of a kind 30017 stall definition. The geohash
// travels as a "g" tag rather than in the content body.
type Stall struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Currency    string           `json:"currency"`
	Shipping    []ShippingMethod `json:"shipping"`
	Geohash     string           `json:"-"`
}

// ToEvent serializes the stall into a signed kind 30017 event with its id
// in the "d" tag and the geohash, when set, in a "g" tag.
func (s *Stall) ToEvent(sec string) (ev *event.T, err error) {
	var b []byte
	if b, err = json.Marshal(s); chk.E(err) {
		return
	}
	t := tags.T{tag.T{"d", s.ID}}
	if s.Geohash != "" {
		t = append(t, tag.T{"g", s.Geohash})
	}
	ev = &event.T{
		CreatedAt: timestamp.Now(),
		Kind:      kind.StallDefinition,
		Tags:      t,
		Content:   string(b),
	}
	if err = ev.Sign(sec); chk.E(err) {
		return nil, err
	}
	return
}

// ParseStall verifies a kind 30017 event and decodes it into a Stall.
func ParseStall(ev *event.T) (s *Stall, err error) {
	if ev.Kind != kind.StallDefinition {
		return nil, fmt.Errorf("%w: got kind %d, want %d",
			ErrWrongKind, ev.Kind, kind.StallDefinition)
	}
	if err = ev.Verify(); chk.D(err) {
		return
	}
	s = &Stall{}
	if err = json.Unmarshal([]byte(ev.Content), s); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedContent, err)
	}
	dt := ev.Tags.GetFirst([]string{"d"})
	if dt == nil {
		return nil, fmt.Errorf("%w: d", ErrMissingTag)
	}
	if s.ID == "" {
		s.ID = dt.Value()
	}
	if gt := ev.Tags.GetFirst([]string{"g"}); gt != nil {
		s.Geohash = gt.Value()
	}
	return
}
