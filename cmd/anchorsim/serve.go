package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/anchorsync/internal/anchors"
	"github.com/banshee-data/anchorsync/internal/health"
	"github.com/banshee-data/anchorsync/internal/monitoring"
	"github.com/banshee-data/anchorsync/internal/native"
	"github.com/banshee-data/anchorsync/internal/payload"
	"github.com/banshee-data/anchorsync/internal/pose"
	"github.com/banshee-data/anchorsync/internal/telemetry"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	HealthAddr  string
	FPS         int
	Duration    time.Duration
	SessionID   string
	DemoAnchors int
	PayloadKeys []string
	DBPath      string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a live frame loop behind a gRPC health endpoint",
		Long: `Run the anchor pipeline against the simulator at a fixed frame rate until
interrupted. Demo anchors wobble around a ring so fusion and interpolation
have work to do; --payload-key localizes descriptors fetched from Redis
(redis_addr). The gRPC health service "anchorsync" reports SERVING while the
native subsystem runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if opts.Duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, opts.Duration)
				defer cancel()
			}
			return runServe(ctx, cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.HealthAddr, "health-addr", "localhost:50051", "gRPC health listen address")
	cmd.Flags().IntVar(&opts.FPS, "fps", 60, "frames per second")
	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	cmd.Flags().StringVar(&opts.SessionID, "session", "", "VPS session ID reported by the simulator")
	cmd.Flags().IntVar(&opts.DemoAnchors, "demo-anchors", 0, "number of anchors to create around the origin")
	cmd.Flags().StringSliceVar(&opts.PayloadKeys, "payload-key", nil, "localize the Redis payload stored under this key (repeatable)")
	cmd.Flags().StringVar(&opts.DBPath, "db", "", "record telemetry events to this sqlite database")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, opts *ServeOptions) error {
	if opts.FPS <= 0 {
		return fmt.Errorf("fps must be positive, got %d", opts.FPS)
	}
	cfg := opts.Config()

	hs := health.NewServer(opts.HealthAddr)
	if err := hs.Start(); err != nil {
		return err
	}
	defer hs.Stop()

	sink, cleanup, err := opts.sinks(ctx, opts.DBPath, true)
	defer cleanup()
	if err != nil {
		return err
	}

	sim := native.NewSimulator()
	sim.SetSessionID(opts.SessionID)
	m := anchors.NewManager(sim, cfg)
	if sink != nil {
		m.AddObserver(telemetry.NewSidecar(sink, m, nil))
	}
	m.Start()
	defer m.Close()
	hs.Report(m.Running())

	bases := make(map[anchors.TrackableID]pose.Pose)
	for i := 0; i < opts.DemoAnchors; i++ {
		angle := 2 * math.Pi * float64(i) / float64(opts.DemoAnchors)
		p := pose.At(2*math.Cos(angle), 0, 2*math.Sin(angle))
		a, err := m.CreateFromPose(p)
		if err != nil {
			return err
		}
		bases[a.ID] = p
	}

	if len(opts.PayloadKeys) > 0 {
		addr := cfg.GetRedisAddr()
		if addr == "" {
			return fmt.Errorf("--payload-key needs redis_addr in the config")
		}
		client := payload.NewRedisClient(addr, cfg.GetRedisDB())
		defer client.Close()
		store := payload.NewRedisStore(client, cfg.GetRedisKeyPrefix())
		for _, key := range opts.PayloadKeys {
			a, err := m.LocalizeFromSource(ctx, store, key)
			if err != nil {
				return err
			}
			bases[a.ID] = pose.At(0, 0, 0)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "serving health on %s, %d anchors\n", hs.Addr(), m.ActiveCount())

	ticker := time.NewTicker(time.Second / time.Duration(opts.FPS))
	defer ticker.Stop()
	reportEvery := opts.FPS / 10
	if reportEvery < 1 {
		reportEvery = 1
	}

	last := time.Now()
	frame := 0
	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("serve: stopping after %d frames", frame)
			return nil
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			if frame%reportEvery == 0 {
				driveDemo(sim, bases, frame)
			}
			m.Update(dt)
			hs.Report(m.Running())
			frame++
		}
	}
}

// driveDemo reports every known anchor as tracked with a small wobble about
// its base pose.
func driveDemo(sim *native.Simulator, bases map[anchors.TrackableID]pose.Pose, frame int) {
	offset := 0.02 * math.Sin(float64(frame)/30)
	for id, base := range bases {
		p := base
		p.Position.Y += offset
		sim.SetTracking(id, anchors.TrackingTracking, anchors.ReasonNone, 1, p)
	}
}
