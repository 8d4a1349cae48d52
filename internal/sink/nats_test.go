package sink

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubjectToken(t *testing.T) {
	tests := []struct {
		in, out string
	}{
		{"41", "41"},
		{"41 X", "41_X"},
		{"route.41", "route_41"},
		{"a/b*c>d", "a_b_c_d"},
		{"  ", "_"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.out, subjectToken(tt.in))
	}
}

func TestJourneyMessageSerializesUndefinedPercentageAsNull(t *testing.T) {
	j := sampleJourney()
	j.PercentageDifference = math.NaN()

	msg := journeyMessage{CompletedJourney: j, StopID: "8220DB000017"}
	b, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, "T1", decoded["trip_id"])
	assert.Equal(t, "8220DB000017", decoded["stop_id"])
	pct, present := decoded["percentage_difference"]
	assert.True(t, present)
	assert.Nil(t, pct)
}

func TestJourneyMessageCarriesDefinedPercentage(t *testing.T) {
	j := sampleJourney()
	j.PercentageDifference = 25.0

	pct := j.PercentageDifference
	msg := journeyMessage{CompletedJourney: j, PercentageDifference: &pct}
	b, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, 25.0, decoded["percentage_difference"])
	assert.Equal(t, "Monday", decoded["day_of_week"])
	assert.Equal(t, float64(540), decoded["actual_duration_seconds"])
}
