package api

import (
	"net/http"

	"github.com/openrds/snowball/internal/services"
)

func (a *API) cohortReport(w http.ResponseWriter, r *http.Request) {
	params := services.CohortParams{
		AgeGroup:  r.URL.Query().Get("age"),
		Ethnic:    r.URL.Query().Get("ethnic"),
		Race:      r.URL.Query().Get("race"),
		Sex:       r.URL.Query().Get("sex"),
		DateRange: r.URL.Query().Get("date_range"),
	}
	rows, err := a.Reports.Cohort(r.Context(), params)
	if err != nil {
		respondError(w, r, a.Log, err)
		return
	}
	respondRecords(w, r, len(rows), rows)
}

func (a *API) testSchedule(w http.ResponseWriter, r *http.Request) {
	params := services.TestScheduleParams{
		TestResult: r.URL.Query().Get("test_result"),
		Notified:   r.URL.Query().Get("notified"),
		DateRange:  r.URL.Query().Get("date_range"),
	}
	rows, err := a.Reports.TestSchedule(r.Context(), params)
	if err != nil {
		respondError(w, r, a.Log, err)
		return
	}
	respondRecords(w, r, len(rows), rows)
}

func (a *API) download(w http.ResponseWriter, r *http.Request) {
	csvText, err := a.Reports.DownloadCSV(r.Context(), r.URL.Query().Get("type"))
	if err != nil {
		respondError(w, r, a.Log, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(csvText))
}

func (a *API) downloadFile(w http.ResponseWriter, r *http.Request) {
	csvText, err := a.Reports.DownloadFromURL(r.Context(), r.URL.Query().Get("url"))
	if err != nil {
		respondError(w, r, a.Log, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(csvText))
}
