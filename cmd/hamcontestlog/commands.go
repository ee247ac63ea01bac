package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/rogercaminal/hamcontestlog/internal/adapter/contest"
	httpadapter "github.com/rogercaminal/hamcontestlog/internal/adapter/http"
	"github.com/rogercaminal/hamcontestlog/internal/domain"
)

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SortFlags = false
	return fs
}

func runLog(ctx context.Context, args []string) error {
	fs := newFlagSet("log")
	edition := fs.String("edition", "", "store namespace, e.g. cw2024")
	mode := fs.String("mode", "", "contest mode, used with --year when --edition is unset")
	year := fs.Int("year", 0, "contest year, used with --mode when --edition is unset")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *edition == "" {
		if *mode == "" || *year == 0 {
			return errors.New("log: --edition or both --mode and --year are required")
		}
		*edition = domain.Edition(*mode, *year)
	}
	if fs.NArg() == 0 {
		return errors.New("log: at least one path or URL is required")
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	p := a.pipeline(nil)

	for _, location := range fs.Args() {
		res, err := p.IngestLog(ctx, *edition, location)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s contacts (%s new) from %s\n",
			res.Station, humanize.Comma(int64(res.Contacts)), humanize.Comma(int64(res.Stored)), location)
	}
	return nil
}

func runContest(ctx context.Context, args []string) error {
	fs := newFlagSet("contest")
	year := fs.Int("year", 0, "contest year")
	mode := fs.String("mode", "cw", "contest mode")
	calls := fs.StringSlice("call", nil, "only ingest these stations (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 || *year == 0 {
		return errors.New("contest: usage: contest <name> --year YYYY [--mode MODE] [--call CALL]...")
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	defs, err := contest.LoadDefinitionsFile(a.cfg.ContestsFile)
	if err != nil {
		return err
	}
	def, err := contest.Find(defs, fs.Arg(0))
	if err != nil {
		return err
	}
	catalog := contest.NewCatalog(def, a.cfg.HTTPTimeout, a.logger)

	res, err := a.pipeline(nil).IngestContest(ctx, catalog, *year, *mode, *calls)
	if err != nil {
		return err
	}

	contacts, stored := 0, 0
	for _, l := range res.Logs {
		contacts += l.Contacts
		stored += l.Stored
	}
	fmt.Printf("%s %s: %d logs, %s contacts (%s new)\n", def.Title, res.Edition,
		len(res.Logs), humanize.Comma(int64(contacts)), humanize.Comma(int64(stored)))
	for _, s := range res.Skipped {
		fmt.Printf("  skipped %s: %s\n", s.Callsign, s.Reason)
	}
	return nil
}

func runRBN(ctx context.Context, args []string) error {
	fs := newFlagSet("rbn")
	dayFlag := fs.String("day", "", "first UTC day to ingest, YYYY-MM-DD (default yesterday)")
	days := fs.Int("days", 1, "number of consecutive days to ingest")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *days < 1 {
		return errors.New("rbn: --days must be at least 1")
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	start := a.clock.Now().UTC().AddDate(0, 0, -1)
	if *dayFlag != "" {
		start, err = time.Parse(time.DateOnly, *dayFlag)
		if err != nil {
			return fmt.Errorf("rbn: invalid --day: %w", err)
		}
	}

	p := a.pipeline(a.resolver(ctx, false))
	for i := range *days {
		res, err := p.IngestSpotDay(ctx, start.AddDate(0, 0, i))
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s spots read, %s kept, %s new\n", res.Day.Format(time.DateOnly),
			humanize.Comma(int64(res.Stats.Input)), humanize.Comma(int64(res.Stats.Output)),
			humanize.Comma(int64(res.Stored)))
	}
	return nil
}

func runStations(ctx context.Context, args []string) error {
	fs := newFlagSet("stations")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("stations: usage: stations <edition>")
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	counts, err := a.store.StationCounts(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CALLSIGN\tCONTACTS")
	for _, c := range counts {
		fmt.Fprintf(tw, "%s\t%s\n", c.Callsign, humanize.Comma(int64(c.Contacts)))
	}
	return tw.Flush()
}

func runQuery(ctx context.Context, args []string) error {
	fs := newFlagSet("query")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("query: usage: query <sql>")
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.store.Query(ctx, strings.Join(fs.Args(), " "))
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(res.Columns, "\t"))
	for _, row := range res.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			if v == nil {
				cells[i] = "NULL"
				continue
			}
			cells[i] = fmt.Sprint(v)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "(%s rows)\n", humanize.Comma(int64(len(res.Rows))))
	return nil
}

func runServe(ctx context.Context, args []string) error {
	fs := newFlagSet("serve")
	noScheduler := fs.Bool("no-scheduler", false, "serve the API without the daily RBN ingest")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := httpadapter.NewServer(a.cfg.HTTPAddr, a.store, a.store, a.logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", "error", err)
		}
	}()

	if !*noScheduler {
		p := a.pipeline(a.resolver(ctx, true))
		go func() {
			if err := p.RunDaily(ctx, a.cfg.ScheduleHour); err != nil {
				a.logger.Error("scheduler error", "error", err)
			}
		}()
	}

	<-ctx.Done()
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", "error", err)
	}
	a.logger.Info("shutdown complete")
	return nil
}
