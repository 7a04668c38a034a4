// Command tickerctl drives the coin table from a terminal against the same
// storage backend the server uses.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/zeromicro/go-zero/core/logx"

	"coinboard/internal/config"
	"coinboard/internal/svc"
	"coinboard/pkg/coinset"
	"coinboard/pkg/events"
	"coinboard/pkg/tickers"
)

const usage = `usage: tickerctl [-f config] <command> [args]

commands:
  add "<tickers>"   resolve and add a comma/space separated ticker list
  list              print the stored table and archive
  refresh           fetch market data for the table
  archive <id>      move a coin to the archive
  restore <id>      move an archived coin back to the table
  remove <id>       drop a coin without archiving it
  purge <id>        delete an archive entry
  reconcile         repair coins that are both selected and archived
`

var configFile = flag.String("f", "etc/coinboard.yaml", "the config file")

func main() {
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.MustLoad(*configFile)
	logx.MustSetup(cfg.Log)
	if cfg.Storage.Driver == config.DriverMemory {
		logx.Info("tickerctl: memory storage, changes will not persist")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svcCtx, err := svc.NewServiceContext(ctx, *cfg)
	if err != nil {
		fatal(err)
	}
	defer svcCtx.Close()
	if err := svcCtx.Widget.Init(ctx); err != nil {
		fatal(err)
	}

	if err := run(ctx, svcCtx, os.Stdout, flag.Arg(0), flag.Args()[1:]); err != nil {
		fatal(err)
	}
}

func run(ctx context.Context, svcCtx *svc.ServiceContext, out io.Writer, cmd string, args []string) error {
	switch cmd {
	case "add":
		return add(ctx, svcCtx, out, strings.Join(args, " "))
	case "list":
		printTable(out, svcCtx)
		return nil
	case "refresh":
		if _, err := svcCtx.Fetcher.FetchAll(ctx); err != nil {
			return err
		}
		printTable(out, svcCtx)
		return nil
	case "reconcile":
		n, err := svcCtx.Set.Reconcile(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "removed %d overlapping archive entries\n", n)
		return nil
	}

	if len(args) != 1 {
		return fmt.Errorf("%s needs exactly one coin id", cmd)
	}
	id := args[0]
	switch cmd {
	case "archive":
		entry, err := svcCtx.Set.ArchiveCoin(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "archived %s (%s)\n", entry.ID, entry.Symbol)
	case "restore":
		restored, err := svcCtx.Widget.Restore(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "restored %s\n", restored)
	case "remove":
		if err := svcCtx.Set.Remove(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(out, "removed %s\n", id)
	case "purge":
		if err := svcCtx.Set.Purge(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(out, "purged %s\n", id)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

// add runs one ingest pass to completion, echoing the queue status line.
// Interrupting stops the run and keeps whatever was already added.
func add(ctx context.Context, svcCtx *svc.ServiceContext, out io.Writer, input string) error {
	parsed := tickers.Parse(input)
	if len(parsed) == 0 {
		return errors.New("no tickers in input")
	}
	feed, cancel := svcCtx.Events.Subscribe(64)
	defer cancel()

	accepted, _ := svcCtx.Queue.Start(ctx, parsed)
	if len(accepted) == 0 {
		fmt.Fprintln(out, "every ticker is already in the table")
		return nil
	}
	done := svcCtx.Queue.Done()
	for {
		select {
		case <-ctx.Done():
			svcCtx.Queue.Stop()
			fmt.Fprintln(out, "interrupted")
			printTable(out, svcCtx)
			return nil
		case e := <-feed:
			if e.Kind == events.KindQueueStatus && e.Status != "" {
				fmt.Fprintln(out, e.Status)
			}
		case <-done:
			printTable(out, svcCtx)
			return nil
		}
	}
}

func printTable(out io.Writer, svcCtx *svc.ServiceContext) {
	snap := svcCtx.Set.Snapshot()
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tID\tSYMBOL\tPRICE\t24H %")
	for i, c := range snap.Coins {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i+1, c.ID, c.Symbol, number(c.CurrentPrice), number(c.Change24h))
	}
	_ = tw.Flush()
	if snap.TableError != "" {
		fmt.Fprintf(out, "error: %s\n", snap.TableError)
	}
	if !snap.LastUpdated.IsZero() {
		fmt.Fprintf(out, "updated %s\n", snap.LastUpdated.Format("2006-01-02 15:04:05"))
	}
	printArchive(out, snap.Archive)
}

func printArchive(out io.Writer, archive []coinset.ArchiveEntry) {
	if len(archive) == 0 {
		return
	}
	fmt.Fprintln(out, "\narchived:")
	for _, e := range archive {
		fmt.Fprintf(out, "  %s (%s) %s\n", e.ID, e.Symbol, e.Name)
	}
}

func number(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func fatal(err error) {
	logx.Error(err)
	fmt.Fprintln(os.Stderr, "tickerctl:", err)
	os.Exit(1)
}
