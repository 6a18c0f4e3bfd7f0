package marketplace

import (
	"testing"

	"github.com/Hubmakerlabs/agentstr/pkg/nostr/event"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/keys"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/kind"
	"github.com/stretchr/testify/require"
)

func testKeyPair(t *testing.T) (sec, pub string) {
	t.Helper()
	sec = keys.GeneratePrivateKey()
	var err error
	pub, err = keys.GetPublicKey(sec)
	require.NoError(t, err)
	return
}

func TestProfileRoundTrip(t *testing.T) {
	sec, pub := testKeyPair(t)
	p := NewProfile(pub)
	p.Name = "joesmith"
	p.DisplayName = "Joe Smith"
	p.About = "sells books"
	p.Website = "https://example.com"
	p.NIP05 = "joe@example.com"
	p.Bot = true
	p.Namespace = NamespaceMerchant
	p.ProfileType = TypeRetail
	p.AddHashtag("books")
	p.AddHashtag("vintage")
	ev, err := p.ToEvent(sec)
	require.NoError(t, err)
	require.Equal(t, kind.ProfileMetadata, ev.Kind)
	got, err := ParseProfile(ev)
	require.NoError(t, err)
	require.Equal(t, pub, got.PublicKey)
	require.Equal(t, p.Name, got.Name)
	require.Equal(t, p.DisplayName, got.DisplayName)
	require.Equal(t, p.About, got.About)
	require.Equal(t, p.Website, got.Website)
	require.Equal(t, p.NIP05, got.NIP05)
	require.True(t, got.Bot)
	require.Equal(t, NamespaceMerchant, got.Namespace)
	require.Equal(t, TypeRetail, got.ProfileType)
	require.Equal(t, []string{"books", "vintage"}, got.Hashtags)
}

func TestProfileNonBotRoundTrip(t *testing.T) {
	sec, pub := testKeyPair(t)
	p := NewProfile(pub)
	p.Name = "joesmith"
	ev, err := p.ToEvent(sec)
	require.NoError(t, err)
	got, err := ParseProfile(ev)
	require.NoError(t, err)
	require.Equal(t, "joesmith", got.Name)
	require.False(t, got.Bot)
}

func TestParseProfileRejectsTampered(t *testing.T) {
	sec, pub := testKeyPair(t)
	p := NewProfile(pub)
	p.Name = "original"
	ev, err := p.ToEvent(sec)
	require.NoError(t, err)
	ev.Content = `{"name":"forged"}`
	_, err = ParseProfile(ev)
	require.ErrorIs(t, err, event.ErrIDMismatch)
}

func TestParseProfileWrongKind(t *testing.T) {
	sec, _ := testKeyPair(t)
	ev := &event.T{Kind: kind.TextNote, Content: "hi"}
	require.NoError(t, ev.Sign(sec))
	_, err := ParseProfile(ev)
	require.ErrorIs(t, err, ErrWrongKind)
}

func TestParseProfileMalformedContent(t *testing.T) {
	sec, _ := testKeyPair(t)
	ev := &event.T{Kind: kind.ProfileMetadata, Content: "not json"}
	require.NoError(t, ev.Sign(sec))
	_, err := ParseProfile(ev)
	require.ErrorIs(t, err, ErrMalformedContent)
}

func TestProfileMatches(t *testing.T) {
	base := func() *Profile {
		p := NewProfile("ab")
		p.Bot = true
		p.Namespace = NamespaceMerchant
		p.ProfileType = TypeRetail
		p.Hashtags = []string{"books", "art"}
		return p
	}
	pf := &ProfileFilter{
		Namespace:   NamespaceMerchant,
		ProfileType: TypeRetail,
	}
	require.True(t, base().Matches(pf))

	notBot := base()
	notBot.Bot = false
	require.False(t, notBot.Matches(pf))

	wrongNS := base()
	wrongNS.Namespace = NamespaceGamer
	require.False(t, wrongNS.Matches(pf))

	wrongType := base()
	wrongType.ProfileType = TypeRestaurant
	require.False(t, wrongType.Matches(pf))

	withTags := &ProfileFilter{
		Namespace:   NamespaceMerchant,
		ProfileType: TypeRetail,
		Hashtags:    []string{"art", "music"},
	}
	require.True(t, base().Matches(withTags))

	disjoint := &ProfileFilter{
		Namespace:   NamespaceMerchant,
		ProfileType: TypeRetail,
		Hashtags:    []string{"music"},
	}
	require.False(t, base().Matches(disjoint))
}

func TestProfileMatchesNeverWithoutBot(t *testing.T) {
	p := NewProfile("ab")
	p.Namespace = NamespaceOther
	p.ProfileType = TypeOther
	p.Hashtags = []string{"x"}
	pf := &ProfileFilter{
		Namespace:   NamespaceOther,
		ProfileType: TypeOther,
		Hashtags:    []string{"x"},
	}
	require.False(t, p.Matches(pf))
}

func TestProfileURL(t *testing.T) {
	p := NewProfile("deadbeef")
	require.Equal(t, "https://primal.net/p/deadbeef", p.URL())
}

func TestAddLocation(t *testing.T) {
	p := &Profile{PublicKey: "ab"}
	p.AddLocation("9q8yy")
	p.AddLocation("9q8yy")
	p.AddLocation("u4pru")
	require.Len(t, p.Locations, 2)
	_, ok := p.Locations["u4pru"]
	require.True(t, ok)
}
