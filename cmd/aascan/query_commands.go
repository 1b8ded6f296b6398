package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/brojonat/aascan/client"
	"github.com/brojonat/aascan/service/browser"
	"github.com/brojonat/aascan/service/networks"
	"github.com/brojonat/aascan/service/pagestate"
	"github.com/brojonat/aascan/service/resolver"
	"github.com/urfave/cli/v2"
)

func outputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "json",
			Aliases: []string{"j"},
			Usage:   "Output as JSON",
		},
		&cli.StringSliceFlag{
			Name:  "jq",
			Usage: "jq expression each row must satisfy (can be specified multiple times, all must match)",
		},
	}
}

func pageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "network",
			Aliases: []string{"n"},
			Usage:   "Network key (see `aascan networks`)",
		},
		&cli.IntFlag{
			Name:  "page-no",
			Value: 1,
			Usage: "Page number, starting at 1",
		},
		&cli.IntFlag{
			Name:  "page-size",
			Value: pagestate.DefaultPageSize,
			Usage: "Rows per page (10, 25 or 50)",
		},
	}
}

// cliLogger only reports errors, to stderr.
func cliLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func queryClient(c *cli.Context) (*client.Client, error) {
	queryURL := c.String("query-url")
	if queryURL == "" {
		return nil, fmt.Errorf("query-url is required (set QUERY_API_URL env var or use --query-url)")
	}
	return client.NewClient(queryURL, &http.Client{Timeout: c.Duration("timeout")}, cliLogger()), nil
}

// pageQuery turns the paging flags into the URL query a browser view is
// built from. An unknown --network is an error here rather than being
// replaced by the default.
func pageQuery(c *cli.Context) (url.Values, error) {
	q := url.Values{}
	if n := c.String("network"); n != "" {
		d, err := networks.BuiltinRegistry().Lookup(n)
		if err != nil {
			return nil, err
		}
		q.Set(pagestate.ParamNetwork, d.Key)
	}
	q.Set(pagestate.ParamPageNo, strconv.Itoa(c.Int("page-no")))
	q.Set(pagestate.ParamPageSize, strconv.Itoa(c.Int("page-size")))
	return q, nil
}

// browserDeps wires a view to the query API. Notifications go to stderr.
func browserDeps(c *cli.Context, cl *client.Client) browser.Deps {
	return browser.Deps{
		Registry: networks.BuiltinRegistry(),
		Querier:  cl,
		Notifier: browser.NotifierFunc(func(_ context.Context, n browser.Notification) {
			fmt.Fprintf(c.App.ErrWriter, "%s: %s\n", n.Level, n.Message)
		}),
		Logger: cliLogger(),
	}
}

func networksCommand() *cli.Command {
	return &cli.Command{
		Name:  "networks",
		Usage: "List supported networks",
		Flags: outputFlags(),
		Action: func(c *cli.Context) error {
			list := networks.BuiltinRegistry().List()
			if c.Bool("json") {
				return outputJSON(c.App.Writer, list)
			}
			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tNAME\tSYMBOL\tCHAIN ID")
			for _, d := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", d.Key, d.DisplayName, d.NativeSymbol, d.ChainID)
			}
			return w.Flush()
		},
	}
}

func listCommand(name, usage string) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Flags: append(pageFlags(), outputFlags()...),
		Action: func(c *cli.Context) error {
			kind, err := browser.ParseListKind(name)
			if err != nil {
				return err
			}
			cl, err := queryClient(c)
			if err != nil {
				return err
			}
			filter, err := compileFilters(c.StringSlice("jq"))
			if err != nil {
				return err
			}
			q, err := pageQuery(c)
			if err != nil {
				return err
			}

			table := browser.NewListTable(browserDeps(c, cl), kind, q, "", nil)
			if err := table.Refresh(context.Background()); err != nil {
				return fmt.Errorf("failed to list %s: %w", name, err)
			}
			snap := table.Snapshot()
			if snap.Rows, err = filterRows(filter, snap.Rows); err != nil {
				return err
			}
			if c.Bool("json") {
				return outputJSON(c.App.Writer, snap)
			}
			return printRows(c.App.Writer, kind, snap.Rows)
		},
	}
}

func detailCommand(name, usage string) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "ADDRESS",
		Flags:     append(pageFlags(), outputFlags()...),
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("address is required")
			}
			address := browser.NormalizeSubject(c.Args().Get(0))

			kind, err := browser.ParseDetailKind(name)
			if err != nil {
				return err
			}
			cl, err := queryClient(c)
			if err != nil {
				return err
			}
			filter, err := compileFilters(c.StringSlice("jq"))
			if err != nil {
				return err
			}
			q, err := pageQuery(c)
			if err != nil {
				return err
			}

			deps := browserDeps(c, cl)
			res := resolver.New(deps.Registry, cl, deps.Logger)
			view := browser.NewDetailView(deps, kind, address, res, q, nil)
			snap, err := view.Load(context.Background(), q)
			if err != nil {
				return fmt.Errorf("failed to get %s: %w", name, err)
			}
			if snap.Subject.ResolvedNetwork == "" {
				return fmt.Errorf("network not determined for %s", address)
			}
			if q.Get(pagestate.ParamNetwork) == "" && !c.Bool("json") {
				fmt.Fprintf(c.App.ErrWriter, "Found on: %s\n\n", strings.Join(snap.Resolution.Networks, ", "))
			}

			if snap.Table.Rows, err = filterRows(filter, snap.Table.Rows); err != nil {
				return err
			}
			if c.Bool("json") {
				return outputJSON(c.App.Writer, snap)
			}
			printSummary(c.App.Writer, snap.Table)
			return printRows(c.App.Writer, kind, snap.Table.Rows)
		},
	}
}

func resolveCommand() *cli.Command {
	return &cli.Command{
		Name:      "resolve",
		Usage:     "Find the networks that recognize an address or hash",
		ArgsUsage: "HASH",
		Flags:     outputFlags(),
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("hash is required")
			}
			cl, err := queryClient(c)
			if err != nil {
				return err
			}

			res, err := resolver.New(networks.BuiltinRegistry(), cl, cliLogger()).Resolve(context.Background(), c.Args().Get(0))
			if err != nil {
				return fmt.Errorf("failed to resolve: %w", err)
			}
			if res.Networks == nil {
				res.Networks = []string{}
			}
			if c.Bool("json") {
				return outputJSON(c.App.Writer, res)
			}
			if res.State != resolver.Resolved {
				fmt.Fprintf(c.App.Writer, "%s was not found on any network\n", res.Hash)
				return nil
			}
			fmt.Fprintf(c.App.Writer, "%s found on: %s\n", res.Hash, strings.Join(res.Networks, ", "))
			return nil
		},
	}
}

func printRows(out io.Writer, kind browser.Kind, rows []browser.Row) error {
	if len(rows) == 0 {
		fmt.Fprintln(out, "No rows found")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	switch kind {
	case browser.KindBundles, browser.KindBundler:
		fmt.Fprintln(w, "HASH\tAGE\tUSER OPS")
	case browser.KindBundlers:
		fmt.Fprintln(w, "ADDRESS\tBUNDLES\tFEES COLLECTED")
	case browser.KindPaymasters:
		fmt.Fprintln(w, "ADDRESS\tUSER OPS\tDEPOSITS")
	default:
		fmt.Fprintln(w, "HASH\tSENDER\tFEE\tSTATUS")
	}
	for _, r := range rows {
		switch r.Kind {
		case browser.RowBundle:
			fmt.Fprintf(w, "%s\t%s\t%d\n", r.ID, r.Age, r.Count)
		case browser.RowUserOp:
			status := "success"
			if r.Success != nil && !*r.Success {
				status = "failed"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, r.Sender, r.Fee, status)
		default:
			fmt.Fprintf(w, "%s\t%d\t%s\n", r.ID, r.Count, r.Fee)
		}
	}
	return w.Flush()
}

// printSummary prints the detail header. The page shown is the one the
// view settled on after the backend reported its total.
func printSummary(out io.Writer, t browser.Snapshot) {
	var address, deposits string
	count := 0
	if t.Summary != nil {
		address, deposits, count = t.Summary.Address, t.Summary.TotalDeposits, t.Summary.Count
	}
	unit := "User Ops:"
	if t.Kind == browser.KindBundler {
		unit = "Bundles:"
	}
	fmt.Fprintf(out, "Address:   %s\n", address)
	fmt.Fprintf(out, "Network:   %s\n", t.Page.Network)
	fmt.Fprintf(out, "%-10s %d (page %d of %d)\n", unit, count, t.Page.PageNo, t.MaxPage)
	if deposits != "" {
		fmt.Fprintf(out, "Deposits:  %s\n", deposits)
	}
	fmt.Fprintln(out)
}

func outputJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
