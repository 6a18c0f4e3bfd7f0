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

// Roster is the local form of a kind 30019 marketplace definition: a named
// collection of merchant public keys curated by the event author.
type Roster struct {
	Name      string   `json:"name"`
	About     string   `json:"about,omitempty"`
	Merchants []string `json:"merchants"`
}

// ToEvent serializes the roster into a signed kind 30019 event, with the
// marketplace name as the "d" identifier.
func (r *Roster) ToEvent(sec string) (ev *event.T, err error) {
	var b []byte
	if b, err = json.Marshal(r); chk.E(err) {
		return
	}
	ev = &event.T{
		CreatedAt: timestamp.Now(),
		Kind:      kind.MarketplaceUIUX,
		Tags:      tags.T{tag.T{"d", r.Name}},
		Content:   string(b),
	}
	if err = ev.Sign(sec); chk.E(err) {
		return nil, err
	}
	return
}

// ParseRoster verifies a kind 30019 event and decodes it into a Roster.
func ParseRoster(ev *event.T) (r *Roster, err error) {
	if ev.Kind != kind.MarketplaceUIUX {
		return nil, fmt.Errorf("%w: got kind %d, want %d",
			ErrWrongKind, ev.Kind, kind.MarketplaceUIUX)
	}
	if err = ev.Verify(); chk.D(err) {
		return
	}
	r = &Roster{}
	if err = json.Unmarshal([]byte(ev.Content), r); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedContent, err)
	}
	return
}
