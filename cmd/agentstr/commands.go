package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/Hubmakerlabs/agentstr/pkg/agent"
	"github.com/Hubmakerlabs/agentstr/pkg/context"
	"github.com/Hubmakerlabs/agentstr/pkg/interrupt"
	"github.com/Hubmakerlabs/agentstr/pkg/marketplace"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/bech32encoding"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/eventid"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/keys"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/kind"
	"github.com/urfave/cli/v2"
)

const defaultListen = 30 * time.Second

func connect(cCtx *cli.Context) (*agent.T, error) {
	cfg, err := loadConfig(cCtx.String("a"))
	if chk.E(err) {
		return nil, fmt.Errorf(
			"no usable config, run %s keygen --save first: %w", name, err)
	}
	if r := cCtx.String("relay"); r != "" {
		cfg.Relay = r
	}
	return cfg.makeAgent(cCtx.Context)
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if chk.E(err) {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func doKeygen(cCtx *cli.Context) (err error) {
	sec := keys.GeneratePrivateKey()
	var pub, nsec, npub string
	if pub, err = keys.GetPublicKey(sec); chk.E(err) {
		return
	}
	if nsec, err = bech32encoding.HexToNsec(sec); chk.E(err) {
		return
	}
	if npub, err = bech32encoding.HexToNpub(pub); chk.E(err) {
		return
	}
	fmt.Println(nsec)
	fmt.Println(npub)
	if cCtx.Bool("save") {
		cfg, e := loadConfig(cCtx.String("a"))
		if e != nil {
			cfg = &C{Relay: "wss://relay.damus.io"}
		}
		if r := cCtx.String("relay"); r != "" {
			cfg.Relay = r
		}
		cfg.PrivateKey = nsec
		if err = cfg.save(cCtx.String("a")); chk.E(err) {
			return
		}
	}
	return nil
}

func doProfile(cCtx *cli.Context) (err error) {
	var a *agent.T
	if a, err = connect(cCtx); err != nil {
		return
	}
	defer a.Close()
	if cCtx.Bool("publish") {
		var b []byte
		if b, err = io.ReadAll(os.Stdin); chk.E(err) {
			return
		}
		p := marketplace.NewProfile(a.PublicKey())
		if err = json.Unmarshal(b, p); chk.E(err) {
			return
		}
		var id eventid.T
		if id, err = a.PublishProfile(cCtx.Context, p); err != nil {
			return
		}
		fmt.Println(id)
		return nil
	}
	u := cCtx.String("u")
	if u == "" {
		u = a.PublicKey()
	}
	var p *marketplace.Profile
	if p, err = a.RetrieveProfile(cCtx.Context, u); err != nil {
		return
	}
	return printJSON(p)
}

func doNote(cCtx *cli.Context) (err error) {
	text := strings.Join(cCtx.Args().Slice(), " ")
	if text == "" {
		return fmt.Errorf("no note text given")
	}
	var a *agent.T
	if a, err = connect(cCtx); err != nil {
		return
	}
	defer a.Close()
	var id eventid.T
	if id, err = a.PublishNote(cCtx.Context, text); err != nil {
		return
	}
	fmt.Println(id)
	return nil
}

func doStall(cCtx *cli.Context) (err error) {
	var b []byte
	if b, err = io.ReadAll(os.Stdin); chk.E(err) {
		return
	}
	st := &marketplace.Stall{}
	if err = json.Unmarshal(b, st); chk.E(err) {
		return
	}
	var a *agent.T
	if a, err = connect(cCtx); err != nil {
		return
	}
	defer a.Close()
	var id eventid.T
	if id, err = a.PublishStall(cCtx.Context, st); err != nil {
		return
	}
	fmt.Println(id)
	return nil
}

func doProduct(cCtx *cli.Context) (err error) {
	var b []byte
	if b, err = io.ReadAll(os.Stdin); chk.E(err) {
		return
	}
	pr := &marketplace.Product{}
	if err = json.Unmarshal(b, pr); chk.E(err) {
		return
	}
	var a *agent.T
	if a, err = connect(cCtx); err != nil {
		return
	}
	defer a.Close()
	var id eventid.T
	if id, err = a.PublishProduct(cCtx.Context, pr); err != nil {
		return
	}
	fmt.Println(id)
	return nil
}

func doSellers(cCtx *cli.Context) (err error) {
	var a *agent.T
	if a, err = connect(cCtx); err != nil {
		return
	}
	defer a.Close()
	var ps []*marketplace.Profile
	if ps, err = a.RetrieveSellers(cCtx.Context); err != nil {
		return
	}
	for _, p := range ps {
		if err = printJSON(p); err != nil {
			return
		}
	}
	return nil
}

func doAgents(cCtx *cli.Context) (err error) {
	var a *agent.T
	if a, err = connect(cCtx); err != nil {
		return
	}
	defer a.Close()
	pf := &marketplace.ProfileFilter{
		Namespace:   cCtx.String("namespace"),
		ProfileType: cCtx.String("type"),
		Hashtags:    cCtx.StringSlice("t"),
	}
	var ps []*marketplace.Profile
	if ps, err = a.FindAgents(cCtx.Context, pf); err != nil {
		return
	}
	for _, p := range ps {
		if err = printJSON(p); err != nil {
			return
		}
	}
	return nil
}

func doSend(cCtx *cli.Context) (err error) {
	msg := strings.Join(cCtx.Args().Slice(), " ")
	if msg == "" {
		return fmt.Errorf("no message given")
	}
	var a *agent.T
	if a, err = connect(cCtx); err != nil {
		return
	}
	defer a.Close()
	var id eventid.T
	id, err = a.SendMessage(cCtx.Context, kind.EncryptedDirectMessage,
		cCtx.String("u"), msg)
	if err != nil {
		return
	}
	fmt.Println(id)
	return nil
}

func doListen(cCtx *cli.Context) (err error) {
	var a *agent.T
	if a, err = connect(cCtx); err != nil {
		return
	}
	defer a.Close()
	// ctrl-C stops the wait and returns whatever arrived
	ctx, cancel := context.Cancel(cCtx.Context)
	defer cancel()
	interrupt.AddHandler(cancel)
	var res *agent.Result
	if res, err = a.ReceiveMessage(ctx,
		cCtx.Duration("timeout")); err != nil {
		return
	}
	if res == agent.None {
		fmt.Println("no messages received")
		return nil
	}
	var npub string
	if npub, err = bech32encoding.HexToNpub(res.Sender); chk.E(err) {
		return
	}
	fmt.Printf("%s: %s\n", npub, res.Content)
	return nil
}

func doDelete(cCtx *cli.Context) (err error) {
	var id eventid.T
	if id, err = eventid.New(cCtx.String("id")); chk.E(err) {
		return
	}
	var a *agent.T
	if a, err = connect(cCtx); err != nil {
		return
	}
	defer a.Close()
	var delID eventid.T
	delID, err = a.Delete(cCtx.Context, id, cCtx.String("reason"))
	if err != nil {
		return
	}
	fmt.Println(delID)
	return nil
}
