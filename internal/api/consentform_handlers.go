package api

import (
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/render"

	"github.com/openrds/snowball/internal/services"
)

func (a *API) uploadConsentForm(w http.ResponseWriter, r *http.Request) {
	file, _, err := r.FormFile("form")
	if err != nil {
		respondError(w, r, a.Log, services.NewInvalidError("Consent form file is missing"))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, r, a.Log, services.NewInvalidError("Failed to read consent form: "+err.Error()))
		return
	}
	version, err := a.ConsentForms.Upload(r.Context(), data, r.FormValue("comments"), r.FormValue("modifier"))
	if err != nil {
		respondError(w, r, a.Log, err)
		return
	}
	respondOK(w, r, fmt.Sprintf("Successfully saved new version (%d) of consent form into db", version))
}

// consentFormResponse carries one version with its base64 PDF payload. This
// endpoint predates the envelope and keeps its flat shape for the UI.
type consentFormResponse struct {
	Version    int       `json:"version"`
	UploadDate time.Time `json:"uploadDate"`
	Form       string    `json:"form"`
}

func (a *API) getConsentForm(w http.ResponseWriter, r *http.Request) {
	version := -1
	if raw := r.URL.Query().Get("version"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, r, a.Log, services.NewInvalidError("invalid version "+raw))
			return
		}
		version = v
	}
	form, err := a.ConsentForms.Fetch(r.Context(), version)
	if err != nil {
		respondError(w, r, a.Log, err)
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, consentFormResponse{
		Version:    form.Version,
		UploadDate: form.UploadDate,
		Form:       base64.StdEncoding.EncodeToString(form.Data),
	})
}

func (a *API) consentFormHistory(w http.ResponseWriter, r *http.Request) {
	metas, err := a.ConsentForms.History(r.Context())
	if err != nil {
		respondError(w, r, a.Log, err)
		return
	}
	a.Log.Infof("Found %d versions of consent form", len(metas))
	respondRecords(w, r, len(metas), metas)
}
