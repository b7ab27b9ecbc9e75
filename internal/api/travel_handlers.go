package api

import (
	"net/http"

	"github.com/fuomag9/swasthya-link/internal/risk"
)

// HandleGetTravelAdvisories returns guidance for ?location=&weather=&altitude=
func HandleGetTravelAdvisories() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		report, err := risk.TravelAdvisories(q.Get("location"), q.Get("weather"), q.Get("altitude"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}
