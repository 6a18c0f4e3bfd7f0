package nip5

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/Hubmakerlabs/agentstr/pkg/context"
	"github.com/Hubmakerlabs/agentstr/pkg/hex"
	"github.com/Hubmakerlabs/agentstr/pkg/slog"
)

var log, chk = slog.New(os.Stderr)

type (
	name2KeyMap   map[string]string
	key2RelaysMap map[string][]string
)

// WellKnownResponse is the document served at
// https://<domain>/.well-known/nostr.json
type WellKnownResponse struct {
	Names  name2KeyMap   `json:"names"`
	Relays key2RelaysMap `json:"relays"`
}

// Pointer is a resolved identifier: the pubkey and the relays the document
// recommends for it.
type Pointer struct {
	PublicKey string
	Relays    []string
}

// QueryIdentifier resolves a user@domain (or bare domain, implying the "_"
// name) identifier to a pubkey pointer. An identifier present in the
// document but carrying an invalid key resolves to an empty pointer, not an
// error.
func QueryIdentifier(c context.T, fullname string) (p *Pointer, err error) {
	spl := strings.Split(fullname, "@")
	var name, domain string
	switch len(spl) {
	case 1:
		name = "_"
		domain = spl[0]
	case 2:
		name = spl[0]
		domain = spl[1]
	default:
		return nil, fmt.Errorf("not a valid nip-05 identifier")
	}
	if !strings.Contains(domain, ".") {
		return nil, fmt.Errorf("hostname doesn't have a dot")
	}
	var req *http.Request
	req, err = http.NewRequestWithContext(c, "GET",
		fmt.Sprintf("https://%s/.well-known/nostr.json?name=%s", domain,
			name), nil)
	if chk.E(err) {
		return nil, fmt.Errorf("failed to create a request: %w", err)
	}
	client := &http.Client{
		CheckRedirect: func(req *http.Request,
			via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	var res *http.Response
	if res, err = client.Do(req); chk.E(err) {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer res.Body.Close()
	var result WellKnownResponse
	if err = json.NewDecoder(res.Body).Decode(&result); chk.E(err) {
		return nil, fmt.Errorf("failed to decode json response: %w", err)
	}
	pubkey, ok := result.Names[name]
	if !ok {
		return &Pointer{}, nil
	}
	if len(pubkey) != 64 {
		return &Pointer{}, nil
	}
	if _, err = hex.Dec(pubkey); err != nil {
		log.D.F("nip05 name '%s' maps to invalid key '%s'", name, pubkey)
		return &Pointer{}, nil
	}
	return &Pointer{
		PublicKey: pubkey,
		Relays:    result.Relays[pubkey],
	}, nil
}

// Validate resolves the identifier and reports whether it maps to the
// expected pubkey.
func Validate(c context.T, pubkey, identifier string) (bool, error) {
	p, err := QueryIdentifier(c, identifier)
	if err != nil {
		return false, err
	}
	return p.PublicKey == pubkey, nil
}

// NormalizeIdentifier strips the implied "_" name from an identifier for
// display.
func NormalizeIdentifier(fullname string) string {
	if strings.HasPrefix(fullname, "_@") {
		return fullname[2:]
	}
	return fullname
}
