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

// Namespaces partition profiles by the community that labels them. They
// appear as the value of the uppercase "L" tag on a kind 0 event.
const (
	NamespaceMerchant = "com.synvya.merchant"
	NamespaceGamer    = "com.synvya.gamer"
	NamespaceOther    = "com.synvya.other"
)

// Profile types are the labels carried under a namespace, as the value of
// the lowercase "l" tag on a kind 0 event.
const (
	TypeRetail        = "retail"
	TypeRestaurant    = "restaurant"
	TypeService       = "service"
	TypeBusiness      = "business"
	TypeEntertainment = "entertainment"
	TypeOther         = "other"
	TypeGamer         = "gamer"
)

// ProfileURLPrefix is prepended to a hex public key to form the canonical
// web URL of a profile.
const ProfileURLPrefix = "https://primal.net/p/"

// Profile is the mutable local form of a kind 0 metadata event. Field
// values become immutable once serialized into a signed event.
type Profile struct {
	PublicKey   string   `json:"public_key"`
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name,omitempty"`
	About       string   `json:"about,omitempty"`
	Picture     string   `json:"picture,omitempty"`
	Banner      string   `json:"banner,omitempty"`
	Website     string   `json:"website,omitempty"`
	NIP05       string   `json:"nip05,omitempty"`
	Bot         bool     `json:"bot"`
	Namespace   string   `json:"namespace,omitempty"`
	ProfileType string   `json:"profile_type,omitempty"`
	Hashtags    []string `json:"hashtags,omitempty"`

	// Locations is a set of geohashes. It is not carried on the kind 0
	// event itself; discovery merges it in from the author's stall events.
	Locations map[string]struct{} `json:"locations,omitempty"`

	// NIP05Validated records the outcome of a nip5 identifier check. It is
	// local state, never serialized.
	NIP05Validated bool `json:"-"`
}

// NewProfile returns an empty profile owned by the given hex public key.
func NewProfile(pub string) *Profile {
	return &Profile{PublicKey: pub, Locations: make(map[string]struct{})}
}

// AddHashtag appends a hashtag if it is not already present.
func (p *Profile) AddHashtag(h string) {
	for _, v := range p.Hashtags {
		if v == h {
			return
		}
	}
	p.Hashtags = append(p.Hashtags, h)
}

// AddLocation adds a geohash to the profile's location set.
func (p *Profile) AddLocation(geohash string) {
	if p.Locations == nil {
		p.Locations = make(map[string]struct{})
	}
	p.Locations[geohash] = struct{}{}
}

// URL returns the canonical web URL of the profile.
func (p *Profile) URL() string { return ProfileURLPrefix + p.PublicKey }

// ProfileFilter is the pure value discovery matches profiles against.
type ProfileFilter struct {
	Namespace   string   `json:"namespace"`
	ProfileType string   `json:"profile_type"`
	Hashtags    []string `json:"hashtags,omitempty"`
}

// Matches reports whether the profile satisfies the filter. Only bots are
// discoverable: a profile with Bot false never matches. The namespace and
// label must both be equal, and when the filter carries hashtags at least
// one must also appear on the profile.
func (p *Profile) Matches(pf *ProfileFilter) bool {
	if !p.Bot {
		return false
	}
	if p.Namespace != pf.Namespace {
		return false
	}
	if p.ProfileType != pf.ProfileType {
		return false
	}
	if len(pf.Hashtags) == 0 {
		return true
	}
	for _, want := range pf.Hashtags {
		for _, have := range p.Hashtags {
			if want == have {
				return true
			}
		}
	}
	return false
}

// profileContent is the JSON body of a kind 0 event. The bot flag is a
// custom field alongside the standard metadata keys.
type profileContent struct {
	About       string `json:"about,omitempty"`
	Banner      string `json:"banner,omitempty"`
	Bot         bool   `json:"bot"`
	DisplayName string `json:"display_name,omitempty"`
	Name        string `json:"name,omitempty"`
	NIP05       string `json:"nip05,omitempty"`
	Picture     string `json:"picture,omitempty"`
	Website     string `json:"website,omitempty"`
}

// ToEvent serializes the profile into a signed kind 0 event. The namespace
// and profile type become "L"/"l" label tags and each hashtag a "t" tag.
func (p *Profile) ToEvent(sec string) (ev *event.T, err error) {
	var b []byte
	b, err = json.Marshal(&profileContent{
		About:       p.About,
		Banner:      p.Banner,
		Bot:         p.Bot,
		DisplayName: p.DisplayName,
		Name:        p.Name,
		NIP05:       p.NIP05,
		Picture:     p.Picture,
		Website:     p.Website,
	})
	if chk.E(err) {
		return
	}
	var t tags.T
	if p.Namespace != "" {
		t = append(t, tag.T{"L", p.Namespace})
		if p.ProfileType != "" {
			t = append(t, tag.T{"l", p.ProfileType, p.Namespace})
		}
	}
	for _, h := range p.Hashtags {
		t = append(t, tag.T{"t", h})
	}
	ev = &event.T{
		CreatedAt: timestamp.Now(),
		Kind:      kind.ProfileMetadata,
		Tags:      t,
		Content:   string(b),
	}
	if err = ev.Sign(sec); chk.E(err) {
		return nil, err
	}
	return
}

// ParseProfile verifies a kind 0 event and decodes it into a Profile.
func ParseProfile(ev *event.T) (p *Profile, err error) {
	if ev.Kind != kind.ProfileMetadata {
		return nil, fmt.Errorf("%w: got kind %d, want %d",
			ErrWrongKind, ev.Kind, kind.ProfileMetadata)
	}
	if err = ev.Verify(); chk.D(err) {
		return
	}
	var pc profileContent
	if err = json.Unmarshal([]byte(ev.Content), &pc); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedContent, err)
	}
	p = NewProfile(ev.PubKey)
	p.About = pc.About
	p.Banner = pc.Banner
	p.Bot = pc.Bot
	p.DisplayName = pc.DisplayName
	p.Name = pc.Name
	p.NIP05 = pc.NIP05
	p.Picture = pc.Picture
	p.Website = pc.Website
	if nt := ev.Tags.GetFirst([]string{"L"}); nt != nil {
		p.Namespace = nt.Value()
	}
	if lt := ev.Tags.GetFirst([]string{"l"}); lt != nil {
		p.ProfileType = lt.Value()
	}
	for _, ht := range ev.Tags.GetAll("t") {
		if len(ht) > 1 {
			p.AddHashtag(ht[1])
		}
	}
	return
}
