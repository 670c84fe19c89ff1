package anchors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/banshee-data/anchorsync/internal/pose"
)

func TestParseTrackingState(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    TrackingState
		wantErr bool
	}{
		{"tracking", TrackingTracking, false},
		{" Limited ", TrackingLimited, false},
		{"none", TrackingNone, false},
		{"lost", TrackingNone, false},
		{"", TrackingNone, false},
		{"great", TrackingNone, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTrackingState(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTrackingState_HasPose(t *testing.T) {
	t.Parallel()

	assert.True(t, TrackingTracking.HasPose())
	assert.True(t, TrackingLimited.HasPose())
	assert.False(t, TrackingNone.HasPose())
	assert.Equal(t, "TrackingState(9)", TrackingState(9).String())
}

func TestTextMarshalling_YAML(t *testing.T) {
	t.Parallel()

	var doc struct {
		State  TrackingState `yaml:"state"`
		Reason Reason        `yaml:"reason"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("state: lost\nreason: excessive_motion\n"), &doc))
	assert.Equal(t, TrackingNone, doc.State)
	assert.Equal(t, ReasonExcessiveMotion, doc.Reason)

	doc.State = TrackingLimited
	out, err := yaml.Marshal(doc)
	require.NoError(t, err)
	assert.Equal(t, "state: limited\nreason: excessive_motion\n", string(out))

	var r Reason
	assert.Error(t, r.UnmarshalText([]byte("bored")))
}

func TestChanges_Empty(t *testing.T) {
	t.Parallel()

	assert.True(t, Changes{}.Empty())
	assert.False(t, Changes{Removed: []Handle{{ID: "a"}}}.Empty())
}

func TestSnapshot_CopiesPayload(t *testing.T) {
	t.Parallel()

	a := &Anchor{ID: "a", Payload: []byte("abc"), Transform: pose.At(1, 0, 0)}
	s := a.Snapshot()
	s.Payload[0] = 'x'
	assert.Equal(t, []byte("abc"), a.Payload)
	assert.Equal(t, a.Transform, s.Transform)
}
