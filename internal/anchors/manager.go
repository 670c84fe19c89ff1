package anchors

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/anchorsync/internal/config"
	"github.com/banshee-data/anchorsync/internal/interpolate"
	"github.com/banshee-data/anchorsync/internal/monitoring"
	"github.com/banshee-data/anchorsync/internal/payload"
	"github.com/banshee-data/anchorsync/internal/pose"
	"github.com/banshee-data/anchorsync/internal/timeutil"
)

// Manager drives the anchor lifecycle against a native subsystem. It is the
// explicitly constructed replacement for a process-wide anchor manager: build
// one per session scope and Close it on teardown.
type Manager struct {
	subsystem Subsystem
	registry  *Registry
	clock     timeutil.Clock

	telemetryEnabled bool
	pollInterval     time.Duration
	pollTimeout      time.Duration

	restartPending bool
	closed         bool
}

// Option customises a Manager.
type Option func(*Manager)

// WithClock sets the clock used for timestamps and payload polling.
func WithClock(c timeutil.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// NewManager creates a manager over sub. sub may be nil, in which case every
// mutating operation degrades to a no-op. A nil cfg uses defaults.
func NewManager(sub Subsystem, cfg *config.AnchorConfig, opts ...Option) *Manager {
	if cfg == nil {
		cfg = config.EmptyConfig()
	}
	m := &Manager{
		subsystem:        sub,
		clock:            timeutil.RealClock{},
		telemetryEnabled: cfg.GetTelemetryEnabled(),
		pollInterval:     cfg.GetPayloadPollInterval(),
		pollTimeout:      cfg.GetPayloadTimeout(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.registry = NewRegistry(RegistryConfig{
		FusionEnabled:        cfg.GetFusionEnabled(),
		FusionWindowSize:     cfg.GetFusionWindowSize(),
		InterpolationEnabled: cfg.GetInterpolationEnabled(),
		Interpolation: interpolate.Config{
			MaxDurationSeconds: cfg.GetMaxInterpolationSeconds(),
			MetersPerSecond:    cfg.GetInterpolationMetersPerSecond(),
		},
	}, m.clock)
	return m
}

// AddObserver attaches a lifecycle observer such as the telemetry sidecar.
// Observers are not attached for mock providers or when telemetry is
// disabled; it returns whether o was attached.
func (m *Manager) AddObserver(o Observer) bool {
	if !m.telemetryEnabled {
		return false
	}
	if m.subsystem != nil && m.subsystem.IsMock() {
		monitoring.Logf("anchors: mock subsystem, telemetry suppressed")
		return false
	}
	m.registry.AddObserver(o)
	return true
}

// Registry exposes the underlying registry for read access.
func (m *Manager) Registry() *Registry { return m.registry }

func (m *Manager) available() bool {
	return !m.closed && m.subsystem != nil && m.subsystem.IsRunning()
}

// Running reports whether the native subsystem is present and running.
func (m *Manager) Running() bool { return m.available() }

// Start starts the native subsystem if it is not already running.
func (m *Manager) Start() {
	if m.closed || m.subsystem == nil {
		return
	}
	m.restartPending = false
	if !m.subsystem.IsRunning() {
		m.subsystem.Start()
	}
}

// Stop stops the native subsystem and bulk removes every anchor.
func (m *Manager) Stop() {
	if m.subsystem == nil {
		return
	}
	if m.subsystem.IsRunning() {
		m.subsystem.Stop()
	}
	removed := m.registry.removeAll()
	if removed > 0 {
		monitoring.Logf("anchors: subsystem stopped, removed %d anchors", removed)
	}
	m.registry.notifyStopped()
}

// RequestRestart stops the subsystem now and starts it again on the next
// Update, giving the native side one frame to settle.
func (m *Manager) RequestRestart() {
	if m.closed || m.subsystem == nil {
		return
	}
	m.Stop()
	m.restartPending = true
}

// RestartPending reports whether a restart will happen on the next Update.
func (m *Manager) RestartPending() bool { return m.restartPending }

// Update runs one frame: poll the subsystem, reconcile the registry and
// advance interpolation by dt seconds.
func (m *Manager) Update(dt float64) {
	if m.closed || m.subsystem == nil {
		return
	}
	if m.restartPending {
		m.restartPending = false
		m.subsystem.Start()
		return
	}
	if !m.subsystem.IsRunning() {
		return
	}
	m.registry.ProcessFrame(m.subsystem.PollChanges())
	m.registry.Tick(dt)
}

// CreateFromPose asks the native layer for a new anchor at p.
func (m *Manager) CreateFromPose(p pose.Pose) (*Anchor, error) {
	if !m.available() {
		return nil, ErrSubsystemUnavailable
	}
	if err := pose.Validate(p); err != nil {
		return nil, fmt.Errorf("create anchor: %w", err)
	}
	h, ok := m.subsystem.TryAddAnchor(p)
	if !ok {
		monitoring.Errorf("anchors: native add rejected at %s", p)
		return nil, ErrAnchorRejected
	}
	return m.registry.registerPending(h, p, nil), nil
}

// LocalizeFromPayload submits a persistent anchor descriptor to the native
// localizer. The new record starts in TrackingNone until an update reports
// otherwise.
func (m *Manager) LocalizeFromPayload(data []byte) (*Anchor, error) {
	if !m.available() {
		return nil, fmt.Errorf("%w: %w", ErrLocalizationFailed, ErrSubsystemUnavailable)
	}
	if len(data) == 0 {
		monitoring.Errorf("anchors: empty anchor payload")
		return nil, ErrLocalizationFailed
	}
	h, ok := m.subsystem.TryLocalize(data)
	if !ok {
		monitoring.Errorf("anchors: native localizer rejected payload (%d bytes)", len(data))
		return nil, ErrLocalizationFailed
	}
	return m.registry.registerPending(h, h.Pose, data), nil
}

// LocalizeFromSource fetches the payload stored under key, polling src until
// it appears or the configured timeout elapses, then localizes it.
// Cancelling ctx stops the poll; registry state is left as it was.
func (m *Manager) LocalizeFromSource(ctx context.Context, src payload.Source, key string) (*Anchor, error) {
	data, err := payload.Await(ctx, m.clock, src, key, m.pollInterval, m.pollTimeout)
	if err != nil {
		return nil, fmt.Errorf("fetch payload %q: %w", key, err)
	}
	return m.LocalizeFromPayload(data)
}

// Destroy removes an anchor in two phases.
//
// A local add the native layer has not confirmed is cancelled and deleted
// immediately. Otherwise a native remove is requested and the record is
// flagged DeferredDestruction but kept; each further Destroy retries the
// request, and once the native layer has reported the removal the record is
// deleted. Returns true when the record was deleted by this call.
func (m *Manager) Destroy(id TrackableID) bool {
	a := m.registry.Get(id)
	if a == nil {
		return false
	}

	if a.pendingAdd || a.nativeRemoved || !m.available() {
		if a.pendingAdd && m.available() {
			m.subsystem.TryRemoveAnchor(id)
		}
		m.registry.removeOne(a)
		return true
	}

	if !m.subsystem.TryRemoveAnchor(id) {
		monitoring.Logf("anchors: remove request for %s not accepted, will retry", id)
	}
	a.DeferredDestruction = true
	return false
}

// AttachInterpolator gives anchor id its interpolator. A second attach is a
// logged no-op returning ErrInterpolatorAttached.
func (m *Manager) AttachInterpolator(id TrackableID) error {
	a := m.registry.Get(id)
	if a == nil {
		return fmt.Errorf("%w: %s", ErrUnknownAnchor, id)
	}
	return m.registry.attachInterpolator(a)
}

// Anchor returns the record for id, or nil.
func (m *Manager) Anchor(id TrackableID) *Anchor { return m.registry.Get(id) }

// Anchors returns every record ordered by ID.
func (m *Manager) Anchors() []*Anchor { return m.registry.All() }

// ActiveCount returns the number of records, deferred ones included.
func (m *Manager) ActiveCount() int { return m.registry.Len() }

// Configuration passes the native configuration through.
func (m *Manager) Configuration() any {
	if m.subsystem == nil {
		return nil
	}
	return m.subsystem.Configuration()
}

// SetConfiguration passes a native configuration through.
func (m *Manager) SetConfiguration(cfg any) {
	if m.subsystem == nil {
		return
	}
	m.subsystem.SetConfiguration(cfg)
}

// SessionID returns the native VPS session ID.
func (m *Manager) SessionID() (string, bool) {
	if m.subsystem == nil {
		return "", false
	}
	return m.subsystem.VpsSessionID()
}

// Close stops the subsystem, removes every anchor and detaches observers.
// The manager is unusable afterwards.
func (m *Manager) Close() {
	if m.closed {
		return
	}
	m.Stop()
	m.registry.ClearObservers()
	m.closed = true
}
