// Command econctl inspects a running econsim and submits external events to
// it. Events are queued and run at the start of the next simulated day.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/dustin/go-humanize"

	"github.com/talgya/mini-economy/internal/control"
)

type settings struct {
	APIURL   string `env:"ECONSIM_API_URL" envDefault:"http://localhost:8080"`
	AdminKey string `env:"ECONSIM_ADMIN_KEY"`
}

const usage = `usage: econctl <command> [args]

commands:
  status                              run summary
  markets                             marginal price and depth of every book
  speed <multiplier>                  set pacing (0 pauses)
  note <message>                      log a message at the next day start
  deposit <agent> <commodity> <amt>   credit an agent, e.g. currency:EUR
  provision <role> <good> [count]     add firms, households or dealers
  withdraw <agent>                    cancel all of an agent's offers
  deconstruct <agent>                 remove an agent from the economy
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var s settings
	if err := env.Parse(&s); err != nil {
		slog.Error("failed to parse environment variables", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c := control.NewClient(s.APIURL, s.AdminKey)
	if err := run(ctx, c, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, "econctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, c *control.Client, cmd string, args []string) error {
	switch cmd {
	case "status":
		st, err := c.Status(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("run %s at %s (started %s)\n", st.RunID, st.SimTime, st.Start)
		fmt.Printf("speed %.2gx, running %v\n", st.Speed, st.Running)
		fmt.Printf("%d agents, %d subscriptions, %d books, %d external events pending\n",
			st.Agents, st.Subscriptions, st.Books, st.ExternalPending)
		fmt.Printf("%s ticks, %s events fired, %d failures, %s fills\n",
			humanize.Comma(int64(st.Stats.Ticks)),
			humanize.Comma(int64(st.Stats.EventsFired)),
			st.Stats.DispatchFailures,
			humanize.Comma(int64(st.Stats.Fills)))
		return nil

	case "markets":
		quotes, err := c.Markets(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "BOOK\tPRICE\tAMOUNT\tORDERS")
		for _, q := range quotes {
			price := "-"
			if q.MarginalPrice != nil {
				price = strconv.FormatFloat(*q.MarginalPrice, 'f', 4, 64)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", q.Book, price, humanize.CommafWithDigits(q.AmountSum, 2), q.Orders)
		}
		return w.Flush()

	case "speed":
		if len(args) != 1 {
			return fmt.Errorf("speed takes one argument")
		}
		v, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid speed %q: %w", args[0], err)
		}
		got, err := c.SetSpeed(ctx, v)
		if err != nil {
			return err
		}
		fmt.Printf("speed set to %gx\n", got)
		return nil
	}

	iv, err := intervention(cmd, args)
	if err != nil {
		return err
	}
	r, err := c.Submit(ctx, iv)
	if err != nil {
		return err
	}
	fmt.Printf("%s queued at position %d, runs at %s\n", r.Kind, r.Position, r.RunsAt)
	return nil
}

func intervention(cmd string, args []string) (*control.Intervention, error) {
	switch cmd {
	case "note":
		if len(args) != 1 {
			return nil, fmt.Errorf("note takes one argument")
		}
		return &control.Intervention{Kind: "note", Message: args[0]}, nil

	case "deposit":
		if len(args) != 3 {
			return nil, fmt.Errorf("deposit takes agent, commodity and amount")
		}
		amt, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid amount %q: %w", args[2], err)
		}
		return &control.Intervention{Kind: "deposit", Agent: args[0], Commodity: args[1], Amount: amt}, nil

	case "provision":
		if len(args) < 2 || len(args) > 3 {
			return nil, fmt.Errorf("provision takes role, good and an optional count")
		}
		iv := &control.Intervention{Kind: "provision", Role: args[0], Good: args[1]}
		if len(args) == 3 {
			n, err := strconv.Atoi(args[2])
			if err != nil {
				return nil, fmt.Errorf("invalid count %q: %w", args[2], err)
			}
			iv.Count = n
		}
		return iv, nil

	case "withdraw", "deconstruct":
		if len(args) != 1 {
			return nil, fmt.Errorf("%s takes one agent id", cmd)
		}
		kind := cmd
		if cmd == "withdraw" {
			kind = "withdraw_offers"
		}
		return &control.Intervention{Kind: kind, Agent: args[0]}, nil
	}
	return nil, fmt.Errorf("unknown command %q\n\n%s", cmd, usage)
}
