package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli"
)

type metadata struct {
	verbose bool
	e       io.Writer
	w       io.Writer
}

// set by the linker: go build -ldflags "-X main.version=M.N" ./...
var version = "zero"

func main() {
	app := newApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "terminated with error: %s\n", err)
		os.Exit(1)
	}
}

func newApp(w, e io.Writer) *cli.App {
	app := cli.NewApp()
	app.Name = "mixerctl"
	app.Usage = "operate the privacy mixer ledger"
	app.Version = version
	app.HideVersion = true

	app.Writer = w
	app.ErrWriter = e

	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "verbose, v",
			Usage: " verbose result",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:      "score",
			Usage:     "privacy score of a deposit",
			ArgsUsage: "\n   (* = required)",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "amount, a",
					Value: "",
					Usage: "*deposit `AMOUNT`",
				},
				cli.StringFlag{
					Name:  "currency, c",
					Value: "ETH",
					Usage: " deposit `CURRENCY` [ETH|USDC|USDT|WBTC]",
				},
				cli.Int64Flag{
					Name:  "lock, l",
					Value: 86400,
					Usage: " lock duration in `SECONDS`",
				},
			},
			Action: runScore,
		},
		{
			Name:      "quote",
			Usage:     "gas and relayer cost of a withdrawal",
			ArgsUsage: "\n   (* = required)",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "balance, b",
					Value: "0",
					Usage: " withdrawal wallet `BALANCE` in ETH",
				},
			},
			Action: runQuote,
		},
		{
			Name:  "migrate",
			Usage: "apply or roll back the mirror schema",
			Subcommands: []cli.Command{
				{
					Name:   "up",
					Usage:  "apply all pending migrations",
					Action: runMigrateUp,
				},
				{
					Name:   "down",
					Usage:  "roll back the last migration",
					Action: runMigrateDown,
				},
			},
		},
		{
			Name:      "snapshots",
			Usage:     "list recorded pool snapshots",
			ArgsUsage: "\n   (* = required)",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "currency, c",
					Value: "ETH",
					Usage: " pool `CURRENCY`",
				},
				cli.DurationFlag{
					Name:  "since, s",
					Value: 24 * time.Hour,
					Usage: " look back `DURATION`",
				},
			},
			Action: runSnapshots,
		},
		{
			Name:      "deposit",
			Usage:     "queue a deposit_observed command",
			ArgsUsage: "\n   (* = required)",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "owner, o",
					Usage: "*owner `ADDRESS`",
				},
				cli.StringFlag{
					Name:  "amount, a",
					Usage: "*deposit `AMOUNT`",
				},
				cli.StringFlag{
					Name:  "currency, c",
					Value: "ETH",
					Usage: " deposit `CURRENCY`",
				},
				cli.StringFlag{
					Name:  "tx, t",
					Usage: "*transaction `HASH`",
				},
				cli.Int64Flag{
					Name:  "lock, l",
					Usage: " lock duration in `SECONDS` [ledger default]",
				},
			},
			Action: runDeposit,
		},
		{
			Name:      "withdraw",
			Usage:     "queue a withdrawal_requested command",
			ArgsUsage: "\n   (* = required)",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "deposit, d",
					Usage: "*deposit `ID`",
				},
				cli.StringFlag{
					Name:  "to, t",
					Usage: "*withdraw `ADDRESS`",
				},
				cli.BoolFlag{
					Name:  "relayer, r",
					Usage: " pay gas through the relayer",
				},
			},
			Action: runWithdraw,
		},
		{
			Name:   "reset-demo",
			Usage:  "queue a reset_demo command, wiping the ledger and seeding demo pools",
			Action: runResetDemo,
		},
		{
			Name:   "purge",
			Usage:  "drop all pending commands from the command queue",
			Action: runPurge,
		},
	}

	app.Before = func(c *cli.Context) error {
		c.App.Metadata["config"] = &metadata{
			verbose: c.GlobalBool("verbose"),
			e:       c.App.ErrWriter,
			w:       c.App.Writer,
		}
		return nil
	}
	return app
}
