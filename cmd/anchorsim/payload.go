package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/anchorsync/internal/payload"
)

// PayloadOptions holds flags for the payload commands.
type PayloadOptions struct {
	*RootOptions
	TTL time.Duration
}

// NewPayloadCommand creates the payload command group.
func NewPayloadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PayloadOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "payload",
		Short: "Manage anchor payloads stored in Redis",
	}

	put := &cobra.Command{
		Use:   "put <key> <file>",
		Short: "Store a descriptor file under key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeFn, err := opts.store()
			if err != nil {
				return err
			}
			defer closeFn()
			data, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("failed to read payload file: %w", err)
			}
			if err := store.Save(cmd.Context(), args[0], data, opts.TTL); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %d bytes under %s\n", len(data), args[0])
			return nil
		},
	}
	put.Flags().DurationVar(&opts.TTL, "ttl", 0, "expire the payload after this long (0 keeps it)")

	get := &cobra.Command{
		Use:   "get <key>",
		Short: "Print the base64 descriptor stored under key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeFn, err := opts.store()
			if err != nil {
				return err
			}
			defer closeFn()
			data, err := store.Fetch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), payload.Encode(data))
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete <key>",
		Short: "Remove the descriptor stored under key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeFn, err := opts.store()
			if err != nil {
				return err
			}
			defer closeFn()
			return store.Delete(cmd.Context(), args[0])
		},
	}

	cmd.AddCommand(put, get, del)
	return cmd
}

func (o *PayloadOptions) store() (*payload.RedisStore, func(), error) {
	cfg := o.Config()
	addr := cfg.GetRedisAddr()
	if addr == "" {
		return nil, nil, fmt.Errorf("redis_addr is not configured")
	}
	client := payload.NewRedisClient(addr, cfg.GetRedisDB())
	return payload.NewRedisStore(client, cfg.GetRedisKeyPrefix()), func() { client.Close() }, nil
}
