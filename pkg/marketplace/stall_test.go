package marketplace

import (
	"testing"

	"github.com/Hubmakerlabs/agentstr/pkg/nostr/event"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/kind"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/tag"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/tags"
	"github.com/stretchr/testify/require"
)

func testStall() *Stall {
	return &Stall{
		ID:          "stall-1",
		Name:        "Joe's Books",
		Description: "used and rare books",
		Currency:    "USD",
		Shipping: []ShippingMethod{
			{ID: "ship-na", Cost: 10, Name: "North America",
				Regions: []string{"US", "CA"}},
			{ID: "ship-eu", Cost: 20, Name: "Europe",
				Regions: []string{"DE", "FR"}},
		},
		Geohash: "9q8yy",
	}
}

func TestStallRoundTrip(t *testing.T) {
	sec, _ := testKeyPair(t)
	st := testStall()
	ev, err := st.ToEvent(sec)
	require.NoError(t, err)
	require.Equal(t, kind.StallDefinition, ev.Kind)
	dt := ev.Tags.GetFirst([]string{"d"})
	require.NotNil(t, dt)
	require.Equal(t, "stall-1", dt.Value())
	gt := ev.Tags.GetFirst([]string{"g"})
	require.NotNil(t, gt)
	require.Equal(t, "9q8yy", gt.Value())

	got, err := ParseStall(ev)
	require.NoError(t, err)
	require.Equal(t, st, got)
}

func TestStallNoGeohashOmitsTag(t *testing.T) {
	sec, _ := testKeyPair(t)
	st := testStall()
	st.Geohash = ""
	ev, err := st.ToEvent(sec)
	require.NoError(t, err)
	require.Nil(t, ev.Tags.GetFirst([]string{"g"}))
	got, err := ParseStall(ev)
	require.NoError(t, err)
	require.Empty(t, got.Geohash)
}

func TestParseStallMissingDTag(t *testing.T) {
	sec, _ := testKeyPair(t)
	ev := &event.T{
		Kind:    kind.StallDefinition,
		Content: `{"id":"stall-1","name":"x","currency":"USD"}`,
	}
	require.NoError(t, ev.Sign(sec))
	_, err := ParseStall(ev)
	require.ErrorIs(t, err, ErrMissingTag)
}

func TestParseStallTampered(t *testing.T) {
	sec, _ := testKeyPair(t)
	ev, err := testStall().ToEvent(sec)
	require.NoError(t, err)
	ev.Tags = append(tags.T{}, ev.Tags...)
	ev.Tags = append(ev.Tags, tag.T{"g", "injected"})
	_, err = ParseStall(ev)
	require.ErrorIs(t, err, event.ErrIDMismatch)
}

func TestParseStallMalformedContent(t *testing.T) {
	sec, _ := testKeyPair(t)
	ev := &event.T{
		Kind:    kind.StallDefinition,
		Tags:    tags.T{tag.T{"d", "stall-1"}},
		Content: `{"id":`,
	}
	require.NoError(t, ev.Sign(sec))
	_, err := ParseStall(ev)
	require.ErrorIs(t, err, ErrMalformedContent)
}
