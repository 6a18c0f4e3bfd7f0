// Package marketplace holds the domain objects exchanged over the
// marketplace event kinds: profiles (kind 0 with NIP-32 labels), stalls
// (kind 30017), products (kind 30018) and marketplace rosters (kind
// 30019), together with the codecs that turn them into signed events and
// back.
package marketplace

import (
	"errors"
	"os"

	"github.com/Hubmakerlabs/agentstr/pkg/slog"
)

var log, chk = slog.New(os.Stderr)

var (
	// ErrMalformedContent means the event content did not decode as the
	// schema the event kind declares.
	ErrMalformedContent = errors.New("malformed event content")
	// ErrMissingTag means a tag the kind mandates is absent.
	ErrMissingTag = errors.New("required tag missing")
	// ErrWrongKind means the event kind does not carry this domain object.
	ErrWrongKind = errors.New("event kind does not match")
)
