package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/anchorsync/internal/db"
	"github.com/banshee-data/anchorsync/internal/telemetry"
)

// EventsOptions holds flags for the events command.
type EventsOptions struct {
	*RootOptions
	DBPath    string
	SessionID string
	Summary   bool
}

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EventsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List recorded telemetry events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.DBPath, "db", "", "sqlite database to read (defaults to event_db_path)")
	cmd.Flags().StringVar(&opts.SessionID, "session", "", "only list events for this session")
	cmd.Flags().BoolVar(&opts.Summary, "summary", false, "print counts per event kind instead")

	return cmd
}

func runEvents(cmd *cobra.Command, opts *EventsOptions) error {
	path := opts.DBPath
	if path == "" {
		path = opts.Config().GetEventDBPath()
	}
	if path == "" {
		return fmt.Errorf("no database: pass --db or set event_db_path")
	}

	database, err := db.Open(path)
	if err != nil {
		return err
	}
	defer database.Close()
	store := telemetry.NewStore(database)
	out := cmd.OutOrStdout()

	if opts.Summary {
		counts, err := store.CountByKind()
		if err != nil {
			return err
		}
		if opts.Format == "json" {
			return json.NewEncoder(out).Encode(counts)
		}
		for _, k := range telemetry.Kinds {
			fmt.Fprintf(out, "%-22s %d\n", k, counts[k])
		}
		return nil
	}

	events, err := store.List(opts.SessionID)
	if err != nil {
		return err
	}
	if opts.Format == "json" {
		if events == nil {
			events = []telemetry.Event{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tKIND\tSESSION\tANCHOR\tSTATE\tACTIVE")
	for _, ev := range events {
		ts := time.UnixMilli(ev.TimestampMs).UTC().Format(time.RFC3339Nano)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n", ts, ev.Kind, ev.SessionID, ev.AnchorID, ev.TrackingState, ev.ActiveAnchors)
	}
	return w.Flush()
}
