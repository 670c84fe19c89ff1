// Package scenario replays scripted native frames through an anchor
// manager and checks the resulting telemetry. Scripts are YAML; see
// testdata/ for examples.
package scenario

import (
	"bytes"
	"fmt"
	"os"

	"gonum.org/v1/gonum/num/quat"
	"gopkg.in/yaml.v3"

	"github.com/banshee-data/anchorsync/internal/anchors"
	"github.com/banshee-data/anchorsync/internal/pose"
	"github.com/banshee-data/anchorsync/internal/telemetry"
)

// DefaultFrameSeconds is the frame delta used when a frame sets no dt.
const DefaultFrameSeconds = 1.0 / 60.0

// Scenario is a scripted run: a VPS session, a list of frames and the
// expected outcome.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// SessionID is the VPS session reported from the start. Empty means
	// the native layer reports none.
	SessionID string `yaml:"session_id,omitempty"`

	Frames []Frame       `yaml:"frames"`
	Expect *Expectations `yaml:"expect,omitempty"`
}

// Frame runs its steps, then one manager update of DT seconds.
type Frame struct {
	DT    float64 `yaml:"dt,omitempty"`
	Steps []Step  `yaml:"steps,omitempty"`
	// Repeat runs the frame this many times; 0 and 1 both mean once.
	Repeat int `yaml:"repeat,omitempty"`
}

// Step is one action. Exactly one of the action fields is set; the others
// parameterise it. Anchors are referred to by script-local names.
type Step struct {
	Create   string `yaml:"create,omitempty"`
	Localize string `yaml:"localize,omitempty"`
	Track    string `yaml:"track,omitempty"`
	Drop     string `yaml:"drop,omitempty"`
	Destroy  string `yaml:"destroy,omitempty"`
	Attach   string `yaml:"attach,omitempty"`
	Session  string `yaml:"session,omitempty"`
	Restart  bool   `yaml:"restart,omitempty"`
	Stop     bool   `yaml:"stop,omitempty"`
	Start    bool   `yaml:"start,omitempty"`

	// Payload is the base64 descriptor for localize.
	Payload    string                `yaml:"payload,omitempty"`
	State      anchors.TrackingState `yaml:"state,omitempty"`
	Reason     anchors.Reason        `yaml:"reason,omitempty"`
	Confidence float64               `yaml:"confidence,omitempty"`
	Position   []float64             `yaml:"position,omitempty"`
	// Rotation is a quaternion as [w, x, y, z].
	Rotation []float64 `yaml:"rotation,omitempty"`

	// Fail expects the action to be refused.
	Fail bool `yaml:"fail,omitempty"`
	// Deleted is the expected Destroy result.
	Deleted *bool `yaml:"deleted,omitempty"`
}

// Expectations are checked after the last frame.
type Expectations struct {
	Events        []telemetry.Kind `yaml:"events,omitempty"`
	ActiveAnchors *int             `yaml:"active_anchors,omitempty"`
	// Poses maps anchor names to their expected applied position.
	Poses map[string][]float64 `yaml:"poses,omitempty"`
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a scenario. Unknown fields are rejected.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&sc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &sc, nil
}

// Validate checks required fields and that every step names one action.
func (sc *Scenario) Validate() error {
	if sc.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(sc.Frames) == 0 {
		return fmt.Errorf("frames list is required and must be non-empty")
	}
	for i, f := range sc.Frames {
		if f.DT < 0 {
			return fmt.Errorf("frames[%d]: dt must be non-negative", i)
		}
		if f.Repeat < 0 {
			return fmt.Errorf("frames[%d]: repeat must be non-negative", i)
		}
		for j, st := range f.Steps {
			if err := st.validate(); err != nil {
				return fmt.Errorf("frames[%d].steps[%d]: %w", i, j, err)
			}
		}
	}
	if sc.Expect != nil {
		for _, k := range sc.Expect.Events {
			if !k.Valid() {
				return fmt.Errorf("expect: unknown event kind %q", k)
			}
		}
		for name, p := range sc.Expect.Poses {
			if len(p) != 3 {
				return fmt.Errorf("expect: pose for %q needs 3 coordinates", name)
			}
		}
	}
	return nil
}

func (st Step) action() string {
	switch {
	case st.Create != "":
		return "create"
	case st.Localize != "":
		return "localize"
	case st.Track != "":
		return "track"
	case st.Drop != "":
		return "drop"
	case st.Destroy != "":
		return "destroy"
	case st.Attach != "":
		return "attach"
	case st.Session != "":
		return "session"
	case st.Restart:
		return "restart"
	case st.Stop:
		return "stop"
	case st.Start:
		return "start"
	}
	return ""
}

func (st Step) validate() error {
	n := 0
	for _, set := range []bool{
		st.Create != "", st.Localize != "", st.Track != "", st.Drop != "",
		st.Destroy != "", st.Attach != "", st.Session != "",
		st.Restart, st.Stop, st.Start,
	} {
		if set {
			n++
		}
	}
	if n != 1 {
		return fmt.Errorf("exactly one action is required, got %d", n)
	}
	if st.Position != nil && len(st.Position) != 3 {
		return fmt.Errorf("position needs 3 coordinates")
	}
	if st.Rotation != nil && len(st.Rotation) != 4 {
		return fmt.Errorf("rotation needs 4 components [w, x, y, z]")
	}
	if st.Localize != "" && st.Payload == "" {
		return fmt.Errorf("localize needs a payload")
	}
	if st.Deleted != nil && st.Destroy == "" {
		return fmt.Errorf("deleted only applies to destroy")
	}
	return nil
}

// pose builds the step's pose; missing parts default to the origin and
// identity rotation.
func (st Step) pose() pose.Pose {
	p := pose.Identity()
	if len(st.Position) == 3 {
		p = pose.At(st.Position[0], st.Position[1], st.Position[2])
	}
	if len(st.Rotation) == 4 {
		r := st.Rotation
		p.Rotation = pose.Normalize(quat.Number{Real: r[0], Imag: r[1], Jmag: r[2], Kmag: r[3]})
	}
	return p
}
