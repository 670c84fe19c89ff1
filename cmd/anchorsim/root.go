package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/anchorsync/internal/config"
	"github.com/banshee-data/anchorsync/internal/db"
	"github.com/banshee-data/anchorsync/internal/monitoring"
	"github.com/banshee-data/anchorsync/internal/telemetry"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Format     string // "json" | "text"
	Quiet      bool

	config *config.AnchorConfig
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "anchorsim",
		Short: "Persistent anchor pipeline simulator",
		Long:  "Replays native anchor reports through the registry, fusion, interpolation and telemetry pipeline.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.Quiet {
				monitoring.SetLogger(nil)
			}
			return opts.loadConfig()
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to a JSON anchor config (defaults apply when empty)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Quiet, "quiet", "q", false, "suppress diagnostic logging")

	cmd.AddCommand(NewSimulateCommand(opts))
	cmd.AddCommand(NewEventsCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewPayloadCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))

	return cmd
}

func (o *RootOptions) loadConfig() error {
	if o.ConfigPath == "" {
		o.config = config.EmptyConfig()
		return nil
	}
	cfg, err := config.LoadConfig(o.ConfigPath)
	if err != nil {
		return err
	}
	o.config = cfg
	return nil
}

// Config returns the loaded configuration, or defaults before loading.
func (o *RootOptions) Config() *config.AnchorConfig {
	if o.config == nil {
		return config.EmptyConfig()
	}
	return o.config
}

// sinks builds the telemetry sinks the config and flags ask for. The
// returned cleanup closes whatever was opened.
func (o *RootOptions) sinks(ctx context.Context, dbPath string, logEvents bool) (telemetry.Sink, func(), error) {
	cfg := o.Config()
	var sinks telemetry.MultiSink
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if logEvents {
		sinks = append(sinks, telemetry.LogSink{})
	}

	if dbPath == "" {
		dbPath = cfg.GetEventDBPath()
	}
	if dbPath != "" {
		database, err := db.Open(dbPath)
		if err != nil {
			return nil, cleanup, err
		}
		closers = append(closers, func() { database.Close() })
		sinks = append(sinks, telemetry.NewStore(database))
	}

	if broker := cfg.GetMQTTBroker(); broker != "" {
		client := telemetry.NewMQTTClient(broker, cfg.GetMQTTClientID())
		if err := client.Connect(ctx); err != nil {
			cleanup()
			return nil, func() {}, err
		}
		closers = append(closers, client.Disconnect)
		sinks = append(sinks, telemetry.NewMQTTSink(client, cfg.GetMQTTTopicPrefix()))
	}

	if len(sinks) == 0 {
		return nil, cleanup, nil
	}
	return sinks, cleanup, nil
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
