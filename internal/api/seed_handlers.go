package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/render"

	"github.com/openrds/snowball/internal/services"
)

func (a *API) seedReport(w http.ResponseWriter, r *http.Request) {
	params := services.SeedReportParams{
		Status:    r.URL.Query().Get("status"),
		AgeGroup:  r.URL.Query().Get("age"),
		Ethnic:    r.URL.Query().Get("ethnic"),
		Race:      r.URL.Query().Get("race"),
		Sex:       r.URL.Query().Get("sex"),
		DateRange: r.URL.Query().Get("date_range"),
	}
	seeds, err := a.Registry.Report(r.Context(), params)
	if err != nil {
		respondError(w, r, a.Log, err)
		return
	}
	respondRecords(w, r, len(seeds), seeds)
}

func (a *API) addSeed(w http.ResponseWriter, r *http.Request) {
	var req services.AddSeedRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		respondError(w, r, a.Log, services.NewInvalidError("invalid request body"))
		return
	}
	if err := a.Registry.AddSeed(r.Context(), req); err != nil {
		respondError(w, r, a.Log, err)
		return
	}
	respondOK(w, r, "Successfully inserted a new seed")
}

func (a *API) uploadCSV(w http.ResponseWriter, r *http.Request) {
	file, _, err := r.FormFile("csv")
	if err != nil {
		respondError(w, r, a.Log, services.NewInvalidError("Failed to read csv file: "+err.Error()))
		return
	}
	defer file.Close()

	result, err := a.Registry.UploadCSV(r.Context(), file)
	if err != nil {
		respondError(w, r, a.Log, err)
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, envelope{
		Reason:  fmt.Sprintf("Saved %d seeds into db", result.Inserted),
		Result:  result.Inserted,
		Records: result,
	})
}

type updateSeedRequest struct {
	MRN          string  `json:"MRN"`
	MobileNum    *string `json:"MOBILE_NUM"`
	EmailAddress *string `json:"EMAIL_ADDRESS"`
	TestResult   *string `json:"TEST_RESULT"`
}

func (a *API) updateSeed(w http.ResponseWriter, r *http.Request) {
	var req updateSeedRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		respondError(w, r, a.Log, services.NewInvalidError("invalid request body"))
		return
	}
	msg, err := a.Registry.UpdateFields(r.Context(), req.MRN, services.SeedFieldUpdate{
		MobileNum:    req.MobileNum,
		EmailAddress: req.EmailAddress,
		TestResult:   req.TestResult,
	})
	if err != nil {
		respondError(w, r, a.Log, err)
		return
	}
	respondOK(w, r, msg)
}

func (a *API) seedStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MRN    string `json:"MRN"`
		Status string `json:"STATUS"`
	}
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		respondError(w, r, a.Log, services.NewInvalidError("invalid request body"))
		return
	}
	msg, err := a.Lifecycle.SetSeedStatus(r.Context(), req.MRN, req.Status)
	if err != nil {
		respondError(w, r, a.Log, err)
		return
	}
	respondOK(w, r, msg)
}
