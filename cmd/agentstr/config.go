package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"

	"github.com/Hubmakerlabs/agentstr/pkg/agent"
	"github.com/Hubmakerlabs/agentstr/pkg/context"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/bech32encoding"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/keys"
)

// C is the on-disk configuration, one file per profile under the user
// config dir.
type C struct {
	Relay      string `json:"relay"`
	PrivateKey string `json:"privatekey"`
}

func configDir() (string, error) {
	switch runtime.GOOS {
	case "darwin":
		dir, err := os.UserHomeDir()
		if chk.E(err) {
			return "", err
		}
		return filepath.Join(dir, ".config"), nil
	default:
		return os.UserConfigDir()
	}
}

func configPath(profile string) (string, error) {
	dir, err := configDir()
	if chk.E(err) {
		return "", err
	}
	dir = filepath.Join(dir, name)
	if profile == "" {
		return filepath.Join(dir, "config.json"), nil
	}
	return filepath.Join(dir, "config-"+profile+".json"), nil
}

func loadConfig(profile string) (cfg *C, err error) {
	var fp string
	if fp, err = configPath(profile); chk.E(err) {
		return
	}
	var b []byte
	if b, err = os.ReadFile(fp); chk.E(err) {
		return
	}
	cfg = &C{}
	if err = json.Unmarshal(b, cfg); chk.E(err) {
		return nil, err
	}
	if cfg.Relay == "" {
		cfg.Relay = "wss://relay.damus.io"
	}
	return
}

func (cfg *C) save(profile string) (err error) {
	var fp string
	if fp, err = configPath(profile); chk.E(err) {
		return
	}
	if err = os.MkdirAll(filepath.Dir(fp), 0700); chk.E(err) {
		return
	}
	var b []byte
	if b, err = json.MarshalIndent(cfg, "", "  "); chk.E(err) {
		return
	}
	return os.WriteFile(fp, b, 0600)
}

// secretKey returns the configured key as hex, accepting nsec as well.
func (cfg *C) secretKey() (string, error) {
	return keys.ParseSecretKey(cfg.PrivateKey)
}

// npub returns the configured identity's public key in bech32 form.
func (cfg *C) npub() (string, error) {
	sec, err := cfg.secretKey()
	if chk.E(err) {
		return "", err
	}
	pub, err := keys.GetPublicKey(sec)
	if chk.E(err) {
		return "", err
	}
	return bech32encoding.HexToNpub(pub)
}

// makeAgent connects the configured identity to the configured relay.
func (cfg *C) makeAgent(c context.T) (*agent.T, error) {
	sec, err := cfg.secretKey()
	if chk.E(err) {
		return nil, err
	}
	return agent.New(c, cfg.Relay, sec)
}
