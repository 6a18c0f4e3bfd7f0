// Package agent is the high level facade an autonomous agent drives: it
// owns one relay connection and layers publishing, bounded queries,
// profile discovery and an encrypted request/response message channel on
// top of it.
package agent

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/Hubmakerlabs/agentstr/pkg/context"
	"github.com/Hubmakerlabs/agentstr/pkg/marketplace"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/client"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/event"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/eventid"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/filter"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/filters"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/keys"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/kind"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/kinds"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/nip26"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/nip5"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/subscription"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/tag"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/tags"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/timestamp"
	"github.com/Hubmakerlabs/agentstr/pkg/slog"
	"go.uber.org/atomic"
)

var log, chk = slog.New(os.Stderr)

var (
	// ErrPublishFailed means the relay rejected the event or the write
	// timed out. Publishes are never retried here; retry is caller policy.
	ErrPublishFailed = errors.New("publish failed")
	// ErrNotFound means a lookup query completed without a usable result.
	ErrNotFound = errors.New("no matching events found")
)

// DefaultQueryTimeout bounds queries issued without a caller deadline.
const DefaultQueryTimeout = 7 * time.Second

// Relay is the transport collaborator. client.T is the production
// implementation; tests substitute their own.
type Relay interface {
	URL() string
	Connect(c context.T) error
	Publish(c context.T, ev *event.T) error
	Subscribe(c context.T, f filters.T,
		opts ...subscription.Option) (*subscription.T, error)
	QuerySync(c context.T, f *filter.T,
		opts ...subscription.Option) ([]*event.T, error)
	Close() error
}

var _ Relay = (*client.T)(nil)

// T is an agent bound to one identity and one relay. All methods may be
// called concurrently; the only cross-call state is the last-send
// watermark the message channel keeps.
type T struct {
	sec          string
	pub          string
	relay        Relay
	queryTimeout time.Duration

	// lastSend is the unix time of the most recent SendMessage, used as
	// the lower bound when listening for replies.
	lastSend atomic.Int64
}

type Option func(*T)

// WithRelay injects a transport instead of dialing relayURL.
func WithRelay(r Relay) Option { return func(a *T) { a.relay = r } }

// WithQueryTimeout overrides the default deadline applied to queries
// issued without one.
func WithQueryTimeout(d time.Duration) Option {
	return func(a *T) { a.queryTimeout = d }
}

// New derives the agent identity from sec (hex or nsec), connects to the
// relay and returns the facade. The connection is established once and
// reused by every subsequent call.
func New(c context.T, relayURL, sec string, opts ...Option) (a *T, err error) {
	a = &T{queryTimeout: DefaultQueryTimeout}
	if a.sec, err = keys.ParseSecretKey(sec); chk.E(err) {
		return nil, err
	}
	if a.pub, err = keys.GetPublicKey(a.sec); chk.E(err) {
		return nil, err
	}
	for _, opt := range opts {
		opt(a)
	}
	a.lastSend.Store(timestamp.Now().I64())
	if a.relay == nil {
		a.relay = client.NewRelay(c, relayURL)
	}
	if err = a.relay.Connect(c); chk.E(err) {
		return nil, fmt.Errorf("connect to %s: %w", a.relay.URL(), err)
	}
	return
}

// PublicKey returns the agent's hex public key.
func (a *T) PublicKey() string { return a.pub }

// Close releases the relay connection.
func (a *T) Close() error { return a.relay.Close() }

// Publish signs ev with the agent key if it is unsigned and forwards it to
// the relay, returning the assigned event ID.
func (a *T) Publish(c context.T, ev *event.T) (id eventid.T, err error) {
	if ev.Sig == "" {
		if err = ev.Sign(a.sec); chk.E(err) {
			return
		}
	}
	if err = a.relay.Publish(c, ev); err != nil {
		return "", fmt.Errorf("%w: %s", ErrPublishFailed, err)
	}
	return ev.ID, nil
}

// PublishNote publishes text as a kind 1 note.
func (a *T) PublishNote(c context.T, text string) (eventid.T, error) {
	return a.Publish(c, &event.T{
		CreatedAt: timestamp.Now(),
		Kind:      kind.TextNote,
		Content:   text,
	})
}

// PublishProfile publishes p as the agent's kind 0 metadata.
func (a *T) PublishProfile(c context.T, p *marketplace.Profile) (
	id eventid.T, err error) {
	var ev *event.T
	if ev, err = p.ToEvent(a.sec); chk.E(err) {
		return
	}
	return a.Publish(c, ev)
}

// PublishStall publishes st as a kind 30017 stall definition.
func (a *T) PublishStall(c context.T, st *marketplace.Stall) (
	id eventid.T, err error) {
	var ev *event.T
	if ev, err = st.ToEvent(a.sec); chk.E(err) {
		return
	}
	return a.Publish(c, ev)
}

// PublishProduct publishes pr as a kind 30018 product definition.
func (a *T) PublishProduct(c context.T, pr *marketplace.Product) (
	id eventid.T, err error) {
	var ev *event.T
	if ev, err = pr.ToEvent(a.sec, a.pub); chk.E(err) {
		return
	}
	return a.Publish(c, ev)
}

// PublishRoster publishes r as a kind 30019 marketplace definition.
func (a *T) PublishRoster(c context.T, r *marketplace.Roster) (
	id eventid.T, err error) {
	var ev *event.T
	if ev, err = r.ToEvent(a.sec); chk.E(err) {
		return
	}
	return a.Publish(c, ev)
}

// Delete publishes a kind 5 deletion request for the given event ID.
// Success means the relay accepted the request, not that every copy of the
// target was purged.
func (a *T) Delete(c context.T, target eventid.T, reason string) (
	eventid.T, error) {
	return a.Publish(c, &event.T{
		CreatedAt: timestamp.Now(),
		Kind:      kind.Deletion,
		Tags:      tags.T{tag.T{"e", target.String()}},
		Content:   reason,
	})
}

// Query runs f against the relay, bounded by the context deadline or the
// agent query timeout, and returns the verified results deduplicated by
// event ID. Individual events that fail verification are logged and
// skipped; a timeout with nothing received yields an empty result, not an
// error.
func (a *T) Query(c context.T, f *filter.T) (evs []*event.T, err error) {
	if _, ok := c.Deadline(); !ok {
		var cancel context.F
		c, cancel = context.Timeout(c, a.queryTimeout)
		defer cancel()
	}
	var raw []*event.T
	if raw, err = a.relay.QuerySync(c, f); chk.E(err) {
		return
	}
	seen := make(map[eventid.T]struct{}, len(raw))
	for _, ev := range raw {
		if _, ok := seen[ev.ID]; ok {
			continue
		}
		seen[ev.ID] = struct{}{}
		if e := ev.Verify(); e != nil {
			log.D.F("dropping event %s: %v", ev.ID, e)
			continue
		}
		evs = append(evs, ev)
	}
	return
}

// RetrieveProfile returns the profile of the given public key (hex or
// npub). When several metadata events exist the newest one wins.
func (a *T) RetrieveProfile(c context.T, pub string) (
	p *marketplace.Profile, err error) {
	if pub, err = keys.ParsePublicKey(pub); chk.E(err) {
		return
	}
	var evs []*event.T
	evs, err = a.Query(c, &filter.T{
		Kinds:   kinds.T{kind.ProfileMetadata},
		Authors: tag.T{pub},
	})
	if chk.E(err) {
		return
	}
	sort.Sort(event.Descending(evs))
	for _, ev := range evs {
		if p, err = marketplace.ParseProfile(ev); err != nil {
			log.D.F("skipping profile event %s: %v", ev.ID, err)
			continue
		}
		return p, nil
	}
	return nil, fmt.Errorf("%w: profile %s", ErrNotFound, pub)
}

// RetrieveStalls returns the stalls published by a merchant.
func (a *T) RetrieveStalls(c context.T, merchant string) (
	sts []*marketplace.Stall, err error) {
	if merchant, err = keys.ParsePublicKey(merchant); chk.E(err) {
		return
	}
	var evs []*event.T
	evs, err = a.Query(c, &filter.T{
		Kinds:   kinds.T{kind.StallDefinition},
		Authors: tag.T{merchant},
	})
	if chk.E(err) {
		return
	}
	for _, ev := range evs {
		st, e := marketplace.ParseStall(ev)
		if e != nil {
			log.D.F("skipping stall event %s: %v", ev.ID, e)
			continue
		}
		sts = append(sts, st)
	}
	return
}

// RetrieveProducts returns the products published by a merchant.
func (a *T) RetrieveProducts(c context.T, merchant string) (
	prs []*marketplace.Product, err error) {
	if merchant, err = keys.ParsePublicKey(merchant); chk.E(err) {
		return
	}
	var evs []*event.T
	evs, err = a.Query(c, &filter.T{
		Kinds:   kinds.T{kind.ProductDefinition},
		Authors: tag.T{merchant},
	})
	if chk.E(err) {
		return
	}
	for _, ev := range evs {
		pr, e := marketplace.ParseProduct(ev)
		if e != nil {
			log.D.F("skipping product event %s: %v", ev.ID, e)
			continue
		}
		prs = append(prs, pr)
	}
	return
}

// RetrieveSellers returns the profile of every author with a published
// stall, with the geohashes of their stall events merged into the profile
// location set. Authors whose metadata cannot be retrieved are skipped.
func (a *T) RetrieveSellers(c context.T) (
	ps []*marketplace.Profile, err error) {
	var evs []*event.T
	evs, err = a.Query(c, &filter.T{
		Kinds: kinds.T{kind.StallDefinition},
	})
	if chk.E(err) {
		return
	}
	sellers := make(map[string]*marketplace.Profile)
	for _, ev := range evs {
		p, ok := sellers[ev.PubKey]
		if !ok {
			var e error
			if p, e = a.RetrieveProfile(c, ev.PubKey); e != nil {
				log.D.F("skipping seller %s: %v", ev.PubKey, e)
				continue
			}
			sellers[ev.PubKey] = p
			ps = append(ps, p)
		}
		if gt := ev.Tags.GetFirst([]string{"g"}); gt != nil {
			p.AddLocation(gt.Value())
		}
	}
	return
}

// RetrieveMarketplaceMerchants resolves the merchant roster of the named
// marketplace published by owner, returning the merchants' profiles.
// Merchants whose metadata cannot be retrieved are skipped.
func (a *T) RetrieveMarketplaceMerchants(c context.T, owner, name string) (
	ps []*marketplace.Profile, err error) {
	if owner, err = keys.ParsePublicKey(owner); chk.E(err) {
		return
	}
	var evs []*event.T
	evs, err = a.Query(c, &filter.T{
		Kinds:   kinds.T{kind.MarketplaceUIUX},
		Authors: tag.T{owner},
	})
	if chk.E(err) {
		return
	}
	seen := make(map[string]struct{})
	for _, ev := range evs {
		r, e := marketplace.ParseRoster(ev)
		if e != nil {
			log.D.F("skipping marketplace event %s: %v", ev.ID, e)
			continue
		}
		if r.Name != name {
			continue
		}
		for _, m := range r.Merchants {
			pub, e := keys.ParsePublicKey(m)
			if e != nil {
				log.D.F("skipping merchant %s: %v", m, e)
				continue
			}
			if _, ok := seen[pub]; ok {
				continue
			}
			seen[pub] = struct{}{}
			p, e := a.RetrieveProfile(c, pub)
			if e != nil {
				log.D.F("skipping merchant %s: %v", pub, e)
				continue
			}
			ps = append(ps, p)
		}
	}
	return
}

// RetrieveDelegations returns the valid delegation grants a delegator has
// published for the given delegatee. Grant events that fail to parse or
// verify are logged and skipped.
func (a *T) RetrieveDelegations(c context.T, delegator, delegatee string) (
	ds []*nip26.Delegation, err error) {
	if delegator, err = keys.ParsePublicKey(delegator); chk.E(err) {
		return
	}
	if delegatee, err = keys.ParsePublicKey(delegatee); chk.E(err) {
		return
	}
	var evs []*event.T
	evs, err = a.Query(c, &filter.T{
		Kinds:   kinds.T{kind.ApplicationSpecificData},
		Authors: tag.T{delegator},
	})
	if chk.E(err) {
		return
	}
	for _, ev := range evs {
		d, e := nip26.Parse(ev)
		if e != nil {
			log.D.F("skipping delegation event %s: %v", ev.ID, e)
			continue
		}
		if d.Delegatee != delegatee {
			continue
		}
		ds = append(ds, d)
	}
	return
}

// ValidateNIP05 checks the profile's nip05 identifier against its
// well-known document and records the outcome on the profile.
func (a *T) ValidateNIP05(c context.T, p *marketplace.Profile) (ok bool,
	err error) {
	if p.NIP05 == "" {
		return false, fmt.Errorf("profile %s has no nip05 identifier",
			p.PublicKey)
	}
	if ok, err = nip5.Validate(c, p.PublicKey, p.NIP05); chk.E(err) {
		return
	}
	p.NIP05Validated = ok
	return
}

// FindAgents returns every bot profile on the relay matching pf. When the
// same public key appears in several metadata events only the most recent
// one is considered.
func (a *T) FindAgents(c context.T, pf *marketplace.ProfileFilter) (
	ps []*marketplace.Profile, err error) {
	var evs []*event.T
	evs, err = a.Query(c, &filter.T{
		Kinds: kinds.T{kind.ProfileMetadata},
	})
	if chk.E(err) {
		return
	}
	newest := make(map[string]*event.T)
	for _, ev := range evs {
		if cur, ok := newest[ev.PubKey]; ok &&
			cur.CreatedAt >= ev.CreatedAt {
			continue
		}
		newest[ev.PubKey] = ev
	}
	// deterministic order for callers and tests
	var latest []*event.T
	for _, ev := range newest {
		latest = append(latest, ev)
	}
	sort.Sort(event.Descending(latest))
	for _, ev := range latest {
		p, e := marketplace.ParseProfile(ev)
		if e != nil {
			log.D.F("skipping profile event %s: %v", ev.ID, e)
			continue
		}
		if p.Matches(pf) {
			ps = append(ps, p)
		}
	}
	return
}
