package risk

import (
	"fmt"
	"strings"
)

// Weather conditions accepted by traveller mode
var Weathers = []string{"Hot", "Cold", "Humid", "Rainy"}

// Altitude levels accepted by traveller mode
var Altitudes = []string{"Normal", "High Altitude"}

// Advisory is one piece of travel guidance
type Advisory struct {
	Level   string `json:"level"` // info or warning
	Message string `json:"message"`
}

// TravelReport is the guidance for a trip
type TravelReport struct {
	Location   string     `json:"location,omitempty"`
	Weather    string     `json:"weather"`
	Altitude   string     `json:"altitude"`
	Advisories []Advisory `json:"advisories"`
	Status     string     `json:"status"`
}

// TravelAdvisories returns the guidance for the given conditions. Empty
// weather or altitude default to Hot and Normal.
func TravelAdvisories(location, weather, altitude string) (*TravelReport, error) {
	if weather == "" {
		weather = Weathers[0]
	}
	if altitude == "" {
		altitude = Altitudes[0]
	}

	w, ok := canonical(weather, Weathers)
	if !ok {
		return nil, fmt.Errorf("unknown weather %q, expected one of %s", weather, strings.Join(Weathers, ", "))
	}
	alt, ok := canonical(altitude, Altitudes)
	if !ok {
		return nil, fmt.Errorf("unknown altitude %q, expected one of %s", altitude, strings.Join(Altitudes, ", "))
	}

	r := &TravelReport{
		Location:   strings.TrimSpace(location),
		Weather:    w,
		Altitude:   alt,
		Advisories: []Advisory{},
		Status:     "Continuous monitoring during travel enabled.",
	}

	switch w {
	case "Hot":
		r.Advisories = append(r.Advisories, Advisory{Level: "info", Message: "Dehydration risk high. Increase fluid intake."})
	case "Cold":
		r.Advisories = append(r.Advisories, Advisory{Level: "info", Message: "Monitor BP fluctuations in cold weather."})
	}
	if alt == "High Altitude" {
		r.Advisories = append(r.Advisories, Advisory{Level: "warning", Message: "Oxygen level monitoring recommended."})
	}
	if r.Location != "" {
		r.Status = fmt.Sprintf("Traveller mode active for %s. %s", r.Location, r.Status)
	}
	return r, nil
}

func canonical(v string, allowed []string) (string, bool) {
	v = strings.TrimSpace(v)
	for _, a := range allowed {
		if strings.EqualFold(a, v) {
			return a, true
		}
	}
	return "", false
}
