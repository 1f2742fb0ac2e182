package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/target/ledger-console/internal/data"
	domainauth "github.com/target/ledger-console/internal/domain/auth"
	"github.com/target/ledger-console/internal/ports"
)

type activityListOptions struct {
	Email string
	Kind  string
	Limit int
	JSON  bool
}

type activityPruneOptions struct {
	OlderThan time.Duration
	Yes       bool
}

func parseActivityListFlags(args []string) (activityListOptions, error) {
	fs := flag.NewFlagSet("activity-list", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts activityListOptions
	fs.StringVar(&opts.Email, "email", "", "Only show activity for this email")
	fs.StringVar(&opts.Kind, "kind", "", "Only show one kind: login, register, logout or restore")
	fs.IntVar(&opts.Limit, "limit", 50, "Maximum number of events")
	fs.BoolVar(&opts.JSON, "json", false, "Print events as JSON lines")
	if err := fs.Parse(args); err != nil {
		return activityListOptions{}, err
	}

	opts.Email = strings.TrimSpace(opts.Email)
	opts.Kind = strings.ToLower(strings.TrimSpace(opts.Kind))
	if opts.Kind != "" && !slices.Contains(domainauth.ActivityKinds(), domainauth.ActivityKind(opts.Kind)) {
		return activityListOptions{}, fmt.Errorf("unknown --kind %q", opts.Kind)
	}
	if opts.Limit <= 0 {
		return activityListOptions{}, errors.New("--limit must be positive")
	}
	return opts, nil
}

func parseActivityPruneFlags(args []string) (activityPruneOptions, error) {
	fs := flag.NewFlagSet("activity-prune", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts activityPruneOptions
	fs.DurationVar(&opts.OlderThan, "older-than", 0, "Delete activity older than this (defaults to REAPER_ACTIVITY_MAX_AGE)")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip confirmation prompt")
	if err := fs.Parse(args); err != nil {
		return activityPruneOptions{}, err
	}
	if opts.OlderThan < 0 {
		return activityPruneOptions{}, errors.New("--older-than must not be negative")
	}
	return opts, nil
}

func runActivityList(cmdCtx *commandContext, args []string) error {
	opts, err := parseActivityListFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, time.Minute)
	defer cancel()

	db, err := connectDB(cmdCtx.Logger, &cmdCtx.Config)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	return listActivity(ctx, data.NewActivityRepo(db), cmdCtx.Stdout, opts)
}

func listActivity(ctx context.Context, reader ports.ActivityReader, w io.Writer, opts activityListOptions) error {
	events, err := reader.List(ctx, domainauth.ActivityListOptions{
		Email: opts.Email,
		Kind:  domainauth.ActivityKind(opts.Kind),
		Limit: opts.Limit,
	})
	if err != nil {
		return fmt.Errorf("list activity: %w", err)
	}

	if opts.JSON {
		enc := json.NewEncoder(w)
		for _, evt := range events {
			if err := enc.Encode(evt); err != nil {
				return fmt.Errorf("encode activity: %w", err)
			}
		}
		return nil
	}

	if len(events) == 0 {
		return writeln(w, "(no activity)")
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writef(tw, "TIME\tKIND\tOUTCOME\tEMAIL\tERROR\tCONSOLE\n"); err != nil {
		return err
	}
	for _, evt := range events {
		if err := writef(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			evt.CreatedAt.UTC().Format(time.RFC3339), evt.Kind, evt.Outcome,
			dash(evt.Email), dash(evt.ErrorCode), evt.ConsoleID); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func runActivityPrune(cmdCtx *commandContext, args []string) error {
	opts, err := parseActivityPruneFlags(args)
	if err != nil {
		return err
	}
	if opts.OlderThan == 0 {
		opts.OlderThan = cmdCtx.Config.Reaper.ActivityMaxAge
	}
	cutoff := time.Now().Add(-opts.OlderThan)

	prompt := fmt.Sprintf("About to delete auth activity recorded before %s.", cutoff.UTC().Format(time.RFC3339))
	if confirmErr := confirmAction(cmdCtx.Stdin, cmdCtx.Stdout, opts.Yes, prompt); confirmErr != nil {
		return confirmErr
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, 5*time.Minute)
	defer cancel()

	db, err := connectDB(cmdCtx.Logger, &cmdCtx.Config)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	removed, err := pruneActivity(ctx, data.NewActivityRepo(db), cutoff)
	if err != nil {
		return err
	}
	cmdCtx.Logger.Info("activity prune complete", "rows_deleted", removed, "cutoff", cutoff)
	return writef(cmdCtx.Stdout, "Deleted %d activity rows.\n", removed)
}

func pruneActivity(ctx context.Context, pruner ports.ActivityPruner, cutoff time.Time) (int64, error) {
	removed, err := pruner.Prune(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune activity: %w", err)
	}
	return removed, nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
