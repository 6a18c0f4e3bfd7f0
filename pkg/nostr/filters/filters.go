package filters

import (
	"encoding/json"

	"github.com/Hubmakerlabs/agentstr/pkg/nostr/event"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/filter"
)

type T []*filter.T

func (eff T) String() string {
	b, _ := json.Marshal(eff)
	return string(b)
}

// Match returns true if any filter in the list matches the event.
func (eff T) Match(ev *event.T) bool {
	for _, f := range eff {
		if f.Matches(ev) {
			return true
		}
	}
	return false
}
