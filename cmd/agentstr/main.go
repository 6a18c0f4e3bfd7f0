package main

import (
	"fmt"
	"os"

	"github.com/Hubmakerlabs/agentstr/pkg/slog"
	"github.com/urfave/cli/v2"
)

var log, chk = slog.New(os.Stderr)

const name = "agentstr"

const version = "0.1.0"

func doVersion(_ *cli.Context) error {
	fmt.Println(version)
	return nil
}

func main() {
	app := &cli.App{
		Name:        name,
		Usage:       "agent-to-agent commerce over nostr relays",
		Description: "publish profiles, stalls and products, discover agents and exchange encrypted messages",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "a", Usage: "profile name"},
			&cli.StringFlag{Name: "relay", Usage: "relay url override"},
			&cli.BoolFlag{Name: "V", Usage: "verbose"},
		},
		Commands: []*cli.Command{
			{
				Name:      "keygen",
				Usage:     "generate a new identity",
				UsageText: "agentstr keygen [--save]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "save",
						Usage: "write the key to the config file"},
				},
				Action: doKeygen,
			},
			{
				Name:      "profile",
				Usage:     "publish or show a profile",
				UsageText: "agentstr profile [--u npub] [--publish --json file]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "u", Usage: "user (defaults to self)"},
					&cli.BoolFlag{Name: "publish",
						Usage: "publish the profile read from stdin"},
				},
				Action: doProfile,
			},
			{
				Name:      "note",
				Aliases:   []string{"n"},
				Usage:     "post a text note",
				UsageText: "agentstr note [note text]",
				ArgsUsage: "[note text]",
				Action:    doNote,
			},
			{
				Name:      "stall",
				Usage:     "publish a stall read from stdin as JSON",
				UsageText: "agentstr stall < stall.json",
				Action:    doStall,
			},
			{
				Name:      "product",
				Usage:     "publish a product read from stdin as JSON",
				UsageText: "agentstr product < product.json",
				Action:    doProduct,
			},
			{
				Name:   "sellers",
				Usage:  "list all profiles with a published stall",
				Action: doSellers,
			},
			{
				Name:      "agents",
				Usage:     "find bot agents matching a namespace and label",
				UsageText: "agentstr agents --namespace ns --type label [--t hashtag]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "namespace", Required: true},
					&cli.StringFlag{Name: "type", Required: true},
					&cli.StringSliceFlag{Name: "t", Usage: "hashtags"},
				},
				Action: doAgents,
			},
			{
				Name:      "send",
				Usage:     "send an encrypted direct message",
				UsageText: "agentstr send --u npub [message]",
				ArgsUsage: "[message]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "u", Required: true,
						Usage: "recipient"},
				},
				Action: doSend,
			},
			{
				Name:      "listen",
				Usage:     "wait for an encrypted direct message",
				UsageText: "agentstr listen [--timeout 30s]",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "timeout", Value: defaultListen,
						Usage: "how long to wait"},
				},
				Action: doListen,
			},
			{
				Name:      "delete",
				Aliases:   []string{"d"},
				Usage:     "request deletion of an event",
				UsageText: "agentstr delete --id [id]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Required: true},
					&cli.StringFlag{Name: "reason"},
				},
				Action: doDelete,
			},
			{
				Name:   "version",
				Usage:  "show version",
				Action: doVersion,
			},
		},
		Before: func(cCtx *cli.Context) error {
			if cCtx.Bool("V") {
				slog.SetLogLevel(slog.Debug)
			}
			return nil
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.E.Ln(err)
		os.Exit(1)
	}
}
