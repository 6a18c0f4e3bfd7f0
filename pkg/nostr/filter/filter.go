package filter

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/Hubmakerlabs/agentstr/pkg/nostr/event"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/kinds"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/tag"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/timestamp"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/wire/text"
	"github.com/Hubmakerlabs/agentstr/pkg/slog"
)

var log, chk = slog.New(os.Stderr)

// T is a query where one or all elements can be filled in.
//
// Most of it is normal stuff but the Tags are a special case because the
// protocol requires the tag queries to be unwrapped into the enclosing
// object as "#<letter>" keys rather than being bundled under one key, which
// encoding/json cannot express with struct tags. For this reason both the
// marshaler and unmarshaler are written by hand.
type T struct {
	IDs     tag.T        `json:"ids,omitempty"`
	Kinds   kinds.T      `json:"kinds,omitempty"`
	Authors tag.T        `json:"authors,omitempty"`
	Tags    TagMap       `json:"-"`
	Since   *timestamp.T `json:"since,omitempty"`
	Until   *timestamp.T `json:"until,omitempty"`
	Limit   int          `json:"limit,omitempty"`
	Search  string       `json:"search,omitempty"`
}

type TagMap map[string]tag.T

func (t TagMap) Clone() (t1 TagMap) {
	if t == nil {
		return
	}
	t1 = make(TagMap)
	for i := range t {
		t1[i] = t[i].Clone()
	}
	return
}

func appendStrings(b []byte, key string, ss []string) []byte {
	if len(b) > 1 {
		b = append(b, ',')
	}
	b = text.EscapeString(b, key)
	b = append(b, ':', '[')
	for i, s := range ss {
		if i > 0 {
			b = append(b, ',')
		}
		b = text.EscapeString(b, s)
	}
	b = append(b, ']')
	return b
}

// MarshalJSON renders the filter with tag queries promoted to "#x" keys at
// the top level of the object. Map iteration order is not deterministic so
// the tag keys are sorted first.
func (f *T) MarshalJSON() (b []byte, err error) {
	b = append(b, '{')
	if f.IDs != nil {
		b = appendStrings(b, "ids", f.IDs)
	}
	if f.Kinds != nil {
		if len(b) > 1 {
			b = append(b, ',')
		}
		b = append(b, `"kinds":[`...)
		for i, k := range f.Kinds {
			if i > 0 {
				b = append(b, ',')
			}
			b = strconv.AppendInt(b, int64(k), 10)
		}
		b = append(b, ']')
	}
	if f.Authors != nil {
		b = appendStrings(b, "authors", f.Authors)
	}
	tagKeys := make([]string, 0, len(f.Tags))
	for k := range f.Tags {
		tagKeys = append(tagKeys, k)
	}
	sort.Strings(tagKeys)
	for _, k := range tagKeys {
		b = appendStrings(b, "#"+k, f.Tags[k])
	}
	if f.Since != nil {
		if len(b) > 1 {
			b = append(b, ',')
		}
		b = append(b, `"since":`...)
		b = strconv.AppendInt(b, f.Since.I64(), 10)
	}
	if f.Until != nil {
		if len(b) > 1 {
			b = append(b, ',')
		}
		b = append(b, `"until":`...)
		b = strconv.AppendInt(b, f.Until.I64(), 10)
	}
	if f.Limit > 0 {
		if len(b) > 1 {
			b = append(b, ',')
		}
		b = append(b, `"limit":`...)
		b = strconv.AppendInt(b, int64(f.Limit), 10)
	}
	if f.Search != "" {
		if len(b) > 1 {
			b = append(b, ',')
		}
		b = append(b, `"search":`...)
		b = text.EscapeString(b, f.Search)
	}
	b = append(b, '}')
	return
}

// UnmarshalJSON unpacks a JSON encoded T rolling up the "#x" keys into the
// Tags map.
func (f *T) UnmarshalJSON(b []byte) (err error) {
	if f == nil {
		return fmt.Errorf("cannot unmarshal into nil filter")
	}
	var raw map[string]json.RawMessage
	if err = json.Unmarshal(b, &raw); chk.D(err) {
		return
	}
	for k, v := range raw {
		switch {
		case k == "ids":
			err = json.Unmarshal(v, &f.IDs)
		case k == "kinds":
			var ks []int
			if err = json.Unmarshal(v, &ks); err == nil {
				f.Kinds = kinds.FromIntSlice(ks)
			}
		case k == "authors":
			err = json.Unmarshal(v, &f.Authors)
		case k == "since":
			var ts int64
			if err = json.Unmarshal(v, &ts); err == nil {
				f.Since = timestamp.FromUnix(ts).Ptr()
			}
		case k == "until":
			var ts int64
			if err = json.Unmarshal(v, &ts); err == nil {
				f.Until = timestamp.FromUnix(ts).Ptr()
			}
		case k == "limit":
			err = json.Unmarshal(v, &f.Limit)
		case k == "search":
			err = json.Unmarshal(v, &f.Search)
		case strings.HasPrefix(k, "#"):
			var vals tag.T
			if err = json.Unmarshal(v, &vals); err == nil {
				if f.Tags == nil {
					f.Tags = make(TagMap)
				}
				f.Tags[k[1:]] = vals
			}
		}
		if chk.D(err) {
			return
		}
	}
	return
}

func (f *T) String() string {
	j, _ := json.Marshal(f)
	return string(j)
}

// Matches reports whether the event satisfies every constraint present in
// the filter. Tag constraints match when any of the filter values equals
// any value of a tag with that name on the event.
func (f *T) Matches(ev *event.T) bool {
	if ev == nil {
		return false
	}

	if f.IDs != nil && !f.IDs.Contains(ev.ID.String()) {
		return false
	}

	if f.Kinds != nil && !f.Kinds.Contains(ev.Kind) {
		return false
	}

	if f.Authors != nil && !f.Authors.Contains(ev.PubKey) {
		return false
	}

	for name, v := range f.Tags {
		if v != nil && !ev.Tags.ContainsAny(name, v...) {
			return false
		}
	}

	if f.Since != nil && ev.CreatedAt < *f.Since {
		return false
	}

	if f.Until != nil && ev.CreatedAt > *f.Until {
		return false
	}

	return true
}

func arePointerValuesEqual[V comparable](a *V, b *V) bool {
	if a == nil && b == nil {
		return true
	}
	if a != nil && b != nil {
		return *a == *b
	}
	return false
}

func Equal(a, b *T) bool {
	// switch is a convenient way to bundle a long list of tests like this:
	switch {
	case !a.Kinds.Equals(b.Kinds),
		!a.IDs.Equals(b.IDs),
		!a.Authors.Equals(b.Authors),
		len(a.Tags) != len(b.Tags),
		!arePointerValuesEqual(a.Since, b.Since),
		!arePointerValuesEqual(a.Until, b.Until),
		a.Limit != b.Limit,
		a.Search != b.Search:

		return false
	}
	for name, av := range a.Tags {
		if bv, ok := b.Tags[name]; !ok {
			return false
		} else if !av.Equals(bv) {
			return false
		}
	}
	return true
}

func (f *T) Clone() (clone *T) {
	clone = &T{
		IDs:     f.IDs.Clone(),
		Authors: f.Authors.Clone(),
		Kinds:   f.Kinds.Clone(),
		Limit:   f.Limit,
		Search:  f.Search,
		Tags:    f.Tags.Clone(),
	}
	if f.Since != nil {
		clone.Since = f.Since.Ptr()
	}
	if f.Until != nil {
		clone.Until = f.Until.Ptr()
	}
	return
}
