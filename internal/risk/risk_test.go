package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScorer_Assess(t *testing.T) {
	tests := []struct {
		name   string
		vitals Vitals
		score  int
		band   Band
		label  int
	}{
		{"resting adult", Vitals{80, 120, 100}, 2, BandStable, 0},
		{"elevated", Vitals{130, 150, 150}, 38, BandModerate, 0},
		{"tachycardic hypertensive diabetic", Vitals{150, 160, 200}, 77, BandHigh, 1},
		{"extreme", Vitals{180, 190, 350}, 99, BandHigh, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := DefaultScorer.Assess(tt.vitals)
			assert.Equal(t, tt.score, a.Score)
			assert.Equal(t, tt.band, a.Band)
			assert.Equal(t, tt.label, a.Label)
			assert.Equal(t, tt.label == 1, a.High())
			assert.InDelta(t, float64(tt.score)/100, a.Probability, 0.005)
		})
	}
}

func TestScorer_Monotonic(t *testing.T) {
	low := DefaultScorer.Probability(Vitals{90, 120, 100})
	assert.Less(t, low, DefaultScorer.Probability(Vitals{120, 120, 100}))
	assert.Less(t, low, DefaultScorer.Probability(Vitals{90, 160, 100}))
	assert.Less(t, low, DefaultScorer.Probability(Vitals{90, 120, 250}))
}

func TestVitals_Validate(t *testing.T) {
	require.NoError(t, Vitals{40, 80, 50}.Validate())
	require.NoError(t, Vitals{200, 200, 400}.Validate())

	assert.ErrorContains(t, Vitals{39, 120, 100}.Validate(), "heart_rate")
	assert.ErrorContains(t, Vitals{80, 201, 100}.Validate(), "systolic_bp")
	assert.ErrorContains(t, Vitals{80, 120, 49.5}.Validate(), "blood_sugar")
}

func TestAlertMessage(t *testing.T) {
	v := Vitals{150, 160, 200}
	msg := AlertMessage(v, DefaultScorer.Assess(v))
	assert.Equal(t, "Emergency alert from Swasthya AI. Risk score: 77%. HR: 150, BP: 160, Sugar: 200.", msg)
}

func TestTravelAdvisories(t *testing.T) {
	r, err := TravelAdvisories(" Leh ", "cold", "high altitude")
	require.NoError(t, err)
	assert.Equal(t, "Cold", r.Weather)
	assert.Equal(t, "High Altitude", r.Altitude)
	assert.Equal(t, []Advisory{
		{Level: "info", Message: "Monitor BP fluctuations in cold weather."},
		{Level: "warning", Message: "Oxygen level monitoring recommended."},
	}, r.Advisories)
	assert.Equal(t, "Traveller mode active for Leh. Continuous monitoring during travel enabled.", r.Status)

	r, err = TravelAdvisories("", "Humid", "Normal")
	require.NoError(t, err)
	assert.Empty(t, r.Advisories)
	assert.Equal(t, "Continuous monitoring during travel enabled.", r.Status)

	r, err = TravelAdvisories("", "", "")
	require.NoError(t, err)
	assert.Equal(t, "Dehydration risk high. Increase fluid intake.", r.Advisories[0].Message)

	_, err = TravelAdvisories("", "Snowy", "Normal")
	assert.Error(t, err)
	_, err = TravelAdvisories("", "Hot", "Everest")
	assert.Error(t, err)
}
