package scenario

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/banshee-data/anchorsync/internal/anchors"
	"github.com/banshee-data/anchorsync/internal/config"
	"github.com/banshee-data/anchorsync/internal/monitoring"
	"github.com/banshee-data/anchorsync/internal/native"
	"github.com/banshee-data/anchorsync/internal/payload"
	"github.com/banshee-data/anchorsync/internal/pose"
	"github.com/banshee-data/anchorsync/internal/telemetry"
	"github.com/banshee-data/anchorsync/internal/timeutil"
)

// poseTolerance is how far an applied position may sit from the expected
// one, in metres.
const poseTolerance = 1e-6

// Result is the outcome of a run.
type Result struct {
	Name          string
	Frames        int
	Events        []telemetry.Event
	ActiveAnchors int
	// Anchors maps script names to the IDs the simulator assigned.
	Anchors map[string]anchors.TrackableID
	// Failures lists unmet expectations; empty means the run passed.
	Failures []string
}

// Passed reports whether every expectation held.
func (r *Result) Passed() bool { return len(r.Failures) == 0 }

// Options configures a run.
type Options struct {
	Config *config.AnchorConfig
	// Sink also receives every event, e.g. a store or MQTT publisher.
	Sink  telemetry.Sink
	Clock timeutil.Clock
	// FrameHook, when set, runs after every manager update.
	FrameHook func(m *anchors.Manager)
}

// runner drives one scenario against a simulator.
type runner struct {
	sc      *Scenario
	opts    Options
	sim     *native.Simulator
	manager *anchors.Manager
	events  *telemetry.MemorySink
	names   map[string]anchors.TrackableID
}

// Run executes sc and evaluates its expectations. Errors are reserved for
// scripts that cannot run (e.g. a step refused without fail: true); unmet
// expectations are reported in Result.Failures.
func Run(ctx context.Context, sc *Scenario, opts Options) (*Result, error) {
	r := newRunner(sc, opts)
	defer r.manager.Close()
	return r.run(ctx)
}

func newRunner(sc *Scenario, opts Options) *runner {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	sim := native.NewSimulator()
	sim.SetSessionID(sc.SessionID)
	m := anchors.NewManager(sim, opts.Config, anchors.WithClock(opts.Clock))

	events := telemetry.NewMemorySink()
	var sink telemetry.Sink = events
	if opts.Sink != nil {
		sink = telemetry.MultiSink{events, opts.Sink}
	}
	m.AddObserver(telemetry.NewSidecar(sink, m, opts.Clock))

	return &runner{
		sc:      sc,
		opts:    opts,
		sim:     sim,
		manager: m,
		events:  events,
		names:   make(map[string]anchors.TrackableID),
	}
}

func (r *runner) run(ctx context.Context) (*Result, error) {
	r.manager.Start()

	frames := 0
	for i, f := range r.sc.Frames {
		repeat := f.Repeat
		if repeat < 1 {
			repeat = 1
		}
		dt := f.DT
		if dt == 0 {
			dt = DefaultFrameSeconds
		}
		for n := 0; n < repeat; n++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			for j, st := range f.Steps {
				if err := r.apply(ctx, st); err != nil {
					return nil, fmt.Errorf("frames[%d].steps[%d] (%s): %w", i, j, st.action(), err)
				}
			}
			r.manager.Update(dt)
			if r.opts.FrameHook != nil {
				r.opts.FrameHook(r.manager)
			}
			frames++
		}
	}

	res := &Result{
		Name:          r.sc.Name,
		Frames:        frames,
		Events:        r.events.Events(),
		ActiveAnchors: r.manager.ActiveCount(),
		Anchors:       make(map[string]anchors.TrackableID, len(r.names)),
	}
	for name, id := range r.names {
		res.Anchors[name] = id
	}
	res.Failures = r.check()
	return res, nil
}

var errUnexpectedSuccess = errors.New("action succeeded but fail: true was set")

func (r *runner) apply(ctx context.Context, st Step) error {
	switch st.action() {
	case "create":
		a, err := r.manager.CreateFromPose(st.pose())
		if err == nil {
			r.names[st.Create] = a.ID
		}
		return r.outcome(st, err)

	case "localize":
		data, err := payload.Decode(st.Payload)
		if err != nil {
			return err
		}
		src := payload.NewMemorySource()
		src.Put(st.Localize, data)
		a, err := r.manager.LocalizeFromSource(ctx, src, st.Localize)
		if err == nil {
			r.names[st.Localize] = a.ID
		}
		return r.outcome(st, err)

	case "track":
		id, err := r.lookup(st.Track)
		if err != nil {
			return err
		}
		conf := st.Confidence
		if conf == 0 && st.State != anchors.TrackingNone {
			conf = 1
		}
		var refused error
		if !r.sim.SetTracking(id, st.State, st.Reason, conf, st.pose()) {
			refused = fmt.Errorf("native layer does not know %s", st.Track)
		}
		return r.outcome(st, refused)

	case "drop":
		id, err := r.lookup(st.Drop)
		if err != nil {
			return err
		}
		var refused error
		if !r.sim.Drop(id) {
			refused = fmt.Errorf("native layer does not know %s", st.Drop)
		}
		return r.outcome(st, refused)

	case "destroy":
		id, err := r.lookup(st.Destroy)
		if err != nil {
			return err
		}
		deleted := r.manager.Destroy(id)
		if st.Deleted != nil && *st.Deleted != deleted {
			return fmt.Errorf("destroy %s returned %t, want %t", st.Destroy, deleted, *st.Deleted)
		}
		return nil

	case "attach":
		id, err := r.lookup(st.Attach)
		if err != nil {
			return err
		}
		return r.outcome(st, r.manager.AttachInterpolator(id))

	case "session":
		r.sim.SetSessionID(st.Session)
	case "restart":
		r.manager.RequestRestart()
	case "stop":
		r.manager.Stop()
	case "start":
		r.manager.Start()
	}
	return nil
}

// outcome reconciles an action's error with the step's fail flag.
func (r *runner) outcome(st Step, err error) error {
	if st.Fail {
		if err == nil {
			return errUnexpectedSuccess
		}
		monitoring.Logf("scenario: %s refused as expected: %v", st.action(), err)
		return nil
	}
	return err
}

func (r *runner) lookup(name string) (anchors.TrackableID, error) {
	id, ok := r.names[name]
	if !ok {
		return "", fmt.Errorf("unknown anchor %q", name)
	}
	return id, nil
}

func (r *runner) check() []string {
	exp := r.sc.Expect
	if exp == nil {
		return nil
	}
	var failures []string

	if exp.Events != nil {
		got := r.events.Kinds()
		if !equalKinds(exp.Events, got) {
			failures = append(failures, fmt.Sprintf("events: want [%s], got [%s]", joinKinds(exp.Events), joinKinds(got)))
		}
	}
	if exp.ActiveAnchors != nil && *exp.ActiveAnchors != r.manager.ActiveCount() {
		failures = append(failures, fmt.Sprintf("active anchors: want %d, got %d", *exp.ActiveAnchors, r.manager.ActiveCount()))
	}
	for name, want := range exp.Poses {
		id, ok := r.names[name]
		a := r.manager.Anchor(id)
		if !ok || a == nil {
			failures = append(failures, fmt.Sprintf("pose %s: anchor not registered", name))
			continue
		}
		wantPose := pose.At(want[0], want[1], want[2])
		if d := pose.Distance(a.Transform, wantPose); d > poseTolerance || math.IsNaN(d) {
			failures = append(failures, fmt.Sprintf("pose %s: want %s, got %s", name, wantPose, a.Transform))
		}
	}
	return failures
}

func equalKinds(a, b []telemetry.Kind) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func joinKinds(kinds []telemetry.Kind) string {
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = string(k)
	}
	return strings.Join(parts, ", ")
}
