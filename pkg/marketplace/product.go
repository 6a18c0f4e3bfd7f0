package marketplace

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Hubmakerlabs/agentstr/pkg/nostr/event"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/kind"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/tag"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/tags"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/timestamp"
)

// ShippingCost is a per-product override of a stall shipping method's cost.
// The id references a ShippingMethod on the owning stall.
type ShippingCost struct {
	ID   string  `json:"id"`
	Cost float64 `json:"cost"`
}

// Product is the local form of a kind 30018 product definition. Categories
// travel as "t" tags and the seller is derived from the stall coordinate
// tag, so neither appears in the content body.
type Product struct {
	ID          string         `json:"id"`
	StallID     string         `json:"stall_id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Images      []string       `json:"images,omitempty"`
	Currency    string         `json:"currency"`
	Price       float64        `json:"price"`
	Quantity    int            `json:"quantity"`
	Shipping    []ShippingCost `json:"shipping,omitempty"`
	Specs       [][]string     `json:"specs,omitempty"`
	Categories  []string       `json:"-"`
	Seller      string         `json:"-"`
}

// Validate checks the invariants a product must satisfy before it can be
// serialized.
func (p *Product) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("product has no id")
	}
	if p.StallID == "" {
		return fmt.Errorf("product %s has no stall id", p.ID)
	}
	if p.Price < 0 {
		return fmt.Errorf("product %s has negative price %v", p.ID, p.Price)
	}
	if p.Quantity < 0 {
		return fmt.Errorf("product %s has negative quantity %d",
			p.ID, p.Quantity)
	}
	return nil
}

// StallCoordinate returns the replaceable-event coordinate of the stall a
// product belongs to, "30017:<seller pubkey>:<stall id>".
func StallCoordinate(pub, stallID string) string {
	return fmt.Sprintf("%d:%s:%s", kind.StallDefinition, pub, stallID)
}

// ToEvent serializes the product into a signed kind 30018 event carrying a
// "t" tag per category, the product id in the "d" tag and the stall
// coordinate in the "a" tag.
func (p *Product) ToEvent(sec, pub string) (ev *event.T, err error) {
	if err = p.Validate(); chk.E(err) {
		return
	}
	var b []byte
	if b, err = json.Marshal(p); chk.E(err) {
		return
	}
	var t tags.T
	for _, c := range p.Categories {
		t = append(t, tag.T{"t", c})
	}
	t = append(t, tag.T{"d", p.ID})
	t = append(t, tag.T{"a", StallCoordinate(pub, p.StallID)})
	ev = &event.T{
		CreatedAt: timestamp.Now(),
		Kind:      kind.ProductDefinition,
		Tags:      t,
		Content:   string(b),
	}
	if err = ev.Sign(sec); chk.E(err) {
		return nil, err
	}
	return
}

// ParseProduct verifies a kind 30018 event and decodes it into a Product.
// The seller comes from the stall coordinate tag and the categories from
// the event hashtags.
func ParseProduct(ev *event.T) (p *Product, err error) {
	if ev.Kind != kind.ProductDefinition {
		return nil, fmt.Errorf("%w: got kind %d, want %d",
			ErrWrongKind, ev.Kind, kind.ProductDefinition)
	}
	if err = ev.Verify(); chk.D(err) {
		return
	}
	p = &Product{}
	if err = json.Unmarshal([]byte(ev.Content), p); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedContent, err)
	}
	if ev.Tags.GetFirst([]string{"d"}) == nil {
		return nil, fmt.Errorf("%w: d", ErrMissingTag)
	}
	if at := ev.Tags.GetFirst([]string{"a"}); at != nil {
		parts := strings.Split(at.Value(), ":")
		if len(parts) == 3 {
			p.Seller = parts[1]
			if p.StallID == "" {
				p.StallID = parts[2]
			}
		}
	}
	for _, ht := range ev.Tags.GetAll("t") {
		if len(ht) > 1 {
			p.Categories = append(p.Categories, ht[1])
		}
	}
	return
}
