package api

import (
	"net/http"

	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"

	"github.com/openrds/snowball/internal/services"
)

// envelope is the response body shared by every JSON endpoint. Result holds
// a record count on success and zero on failure; Records carries the data.
type envelope struct {
	Reason  string `json:"reason"`
	Result  any    `json:"result,omitempty"`
	Records any    `json:"records,omitempty"`
}

func respondOK(w http.ResponseWriter, r *http.Request, reason string) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, envelope{Reason: reason})
}

func respondRecords(w http.ResponseWriter, r *http.Request, count int, records any) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, envelope{Reason: "success", Result: count, Records: records})
}

// respondError maps the service error taxonomy to HTTP statuses: internal
// failures are 500, everything else is a 422 processing failure carrying the
// service's message.
func respondError(w http.ResponseWriter, r *http.Request, log *logrus.Logger, err error) {
	status := http.StatusUnprocessableEntity
	if se, ok := services.AsServiceError(err); ok {
		if se.Code == services.ErrorInternal {
			status = http.StatusInternalServerError
		}
	}
	log.Error(err.Error())
	render.Status(r, status)
	render.JSON(w, r, envelope{Reason: err.Error(), Result: 0})
}
