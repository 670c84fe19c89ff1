package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/anchorsync/internal/scenario"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
	DBPath    string
	LogEvents bool
}

// ScenarioReport is the outcome of one scenario file.
type ScenarioReport struct {
	File     string   `json:"file"`
	Name     string   `json:"name"`
	Pass     bool     `json:"pass"`
	Frames   int      `json:"frames"`
	Events   int      `json:"events"`
	Failures []string `json:"failures,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate <scenario.yaml>...",
		Short: "Replay scenario files",
		Long: `Replay one or more YAML scenarios through the anchor pipeline and check
their expectations. Telemetry can additionally be recorded to sqlite
(--db or event_db_path) and published over MQTT (mqtt_broker).

Examples:
  anchorsim simulate internal/scenario/testdata/*.yaml
  anchorsim simulate --db events.db --log-events session.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.DBPath, "db", "", "record telemetry events to this sqlite database")
	cmd.Flags().BoolVar(&opts.LogEvents, "log-events", false, "log every telemetry event")

	return cmd
}

func runSimulate(cmd *cobra.Command, opts *SimulateOptions, files []string) error {
	ctx := cmd.Context()
	sink, cleanup, err := opts.sinks(ctx, opts.DBPath, opts.LogEvents)
	defer cleanup()
	if err != nil {
		return err
	}

	reports := make([]ScenarioReport, 0, len(files))
	failed := 0
	for _, file := range files {
		report := ScenarioReport{File: file}
		sc, err := scenario.Load(file)
		if err == nil {
			report.Name = sc.Name
			var res *scenario.Result
			res, err = scenario.Run(ctx, sc, scenario.Options{Config: opts.Config(), Sink: sink})
			if err == nil {
				report.Frames = res.Frames
				report.Events = len(res.Events)
				report.Failures = res.Failures
				report.Pass = res.Passed()
			}
		}
		if err != nil {
			report.Error = err.Error()
		}
		if !report.Pass {
			failed++
		}
		reports = append(reports, report)
	}

	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			return err
		}
	} else {
		for _, r := range reports {
			status := "PASS"
			if !r.Pass {
				status = "FAIL"
			}
			fmt.Fprintf(out, "%s %s (%d frames, %d events)\n", status, r.File, r.Frames, r.Events)
			if r.Error != "" {
				fmt.Fprintf(out, "    error: %s\n", r.Error)
			}
			for _, f := range r.Failures {
				fmt.Fprintf(out, "    %s\n", f)
			}
		}
		fmt.Fprintf(out, "%d passed, %d failed\n", len(reports)-failed, failed)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d scenarios failed", failed, len(reports))
	}
	return nil
}
