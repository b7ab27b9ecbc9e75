package risk

import (
	"fmt"
	"math"
	"strconv"
)

// Band is the coarse reading of a risk score
type Band string

const (
	BandStable   Band = "stable"
	BandModerate Band = "moderate"
	BandHigh     Band = "high"
)

// HighRiskThreshold is the score at and above which an alert is raised
const HighRiskThreshold = 60

// Vitals is one dashboard reading
type Vitals struct {
	HeartRate  float64 `json:"heart_rate"`
	SystolicBP float64 `json:"systolic_bp"`
	BloodSugar float64 `json:"blood_sugar"`
}

// Validate checks the readings against the accepted input ranges
func (v Vitals) Validate() error {
	switch {
	case v.HeartRate < 40 || v.HeartRate > 200:
		return fmt.Errorf("heart_rate must be between 40 and 200 bpm")
	case v.SystolicBP < 80 || v.SystolicBP > 200:
		return fmt.Errorf("systolic_bp must be between 80 and 200 mmHg")
	case v.BloodSugar < 50 || v.BloodSugar > 400:
		return fmt.Errorf("blood_sugar must be between 50 and 400 mg/dL")
	}
	return nil
}

// Assessment is the scored outcome for one reading
type Assessment struct {
	Probability float64 `json:"probability"`
	Score       int     `json:"score"`
	Label       int     `json:"label"`
	Band        Band    `json:"band"`
	Summary     string  `json:"summary"`
}

// High reports whether the assessment should trigger the emergency protocol
func (a Assessment) High() bool {
	return a.Label == 1
}

// Scorer is a logistic model over heart rate, systolic pressure and sugar
type Scorer struct {
	Intercept  float64
	HeartRate  float64
	SystolicBP float64
	BloodSugar float64
}

// DefaultScorer places a resting adult (80 bpm, 120 mmHg, 100 mg/dL) well
// inside the stable band.
var DefaultScorer = Scorer{
	Intercept:  -12,
	HeartRate:  0.04,
	SystolicBP: 0.03,
	BloodSugar: 0.012,
}

// Probability returns the modelled risk in [0, 1]
func (s Scorer) Probability(v Vitals) float64 {
	z := s.Intercept + s.HeartRate*v.HeartRate + s.SystolicBP*v.SystolicBP + s.BloodSugar*v.BloodSugar
	return 1 / (1 + math.Exp(-z))
}

// Assess scores a reading
func (s Scorer) Assess(v Vitals) Assessment {
	p := s.Probability(v)
	score := int(math.Round(p * 100))

	a := Assessment{Probability: p, Score: score}
	switch {
	case score < 30:
		a.Band, a.Summary = BandStable, "Health stable - no immediate risk"
	case score < HighRiskThreshold:
		a.Band, a.Summary = BandModerate, "Moderate risk - monitor closely"
	default:
		a.Band, a.Summary = BandHigh, "High risk detected - emergency protocol activated"
		a.Label = 1
	}
	return a
}

// AlertMessage is the text relayed to emergency contacts for a high score
func AlertMessage(v Vitals, a Assessment) string {
	return fmt.Sprintf("Emergency alert from Swasthya AI. Risk score: %d%%. HR: %s, BP: %s, Sugar: %s.",
		a.Score, num(v.HeartRate), num(v.SystolicBP), num(v.BloodSugar))
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
