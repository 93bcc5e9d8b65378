// Package api exposes the study workflow over HTTP. Handlers parse and
// validate the wire shape, delegate to the services, and render the shared
// response envelope; no business rules live here.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/openrds/snowball/internal/services"
)

// Pinger is the healthcheck's view of the store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// API bundles the wired services behind the HTTP surface.
type API struct {
	Registry     *services.SeedRegistry
	Lifecycle    *services.Lifecycle
	Inviter      *services.PeerInviter
	ConsentForms *services.ConsentForms
	Reports      *services.Reports
	Store        Pinger
	AppEnv       string
	Log          *logrus.Logger
}

// NewRouter wires every endpoint under /api.
func NewRouter(a *API) http.Handler {
	root := chi.NewRouter()
	root.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)

	root.Route("/api", func(r chi.Router) {
		r.Get("/healthcheck", a.healthcheck)

		r.Get("/seedreport", a.seedReport)
		r.Post("/seedstatus", a.seedStatus)
		r.Post("/uploadcsv", a.uploadCSV)
		r.Post("/updateseed", a.updateSeed)
		r.Post("/addseed", a.addSeed)

		r.Post("/invitepeer", a.invitePeer)
		r.Get("/redeem", a.redeemCoupon)
		r.Post("/redeem", a.recordRedemption)
		r.Get("/consent", a.getConsent)
		r.Post("/consent", a.postConsent)
		r.Get("/survey", a.getSurvey)
		r.Post("/survey", a.postSurvey)
		r.Get("/participants", a.peerCouponPage)
		r.Post("/participants", a.updateParticipant)
		r.Get("/crm", a.getComments)
		r.Post("/crm", a.postComment)

		r.Get("/consentform", a.getConsentForm)
		r.Post("/consentform", a.uploadConsentForm)
		r.Get("/consentformhistory", a.consentFormHistory)

		r.Get("/cohort", a.cohortReport)
		r.Get("/testschedule", a.testSchedule)
		r.Post("/testschedule", a.updateParticipant)
		r.Get("/download", a.download)
		r.Get("/downloadfile", a.downloadFile)
	})
	return root
}

func (a *API) healthcheck(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{"app env": a.AppEnv, "mongodb": true}
	if err := a.Store.Ping(r.Context()); err != nil {
		a.Log.Errorf("healthcheck: store ping failed: %v", err)
		health["mongodb"] = false
	}
	a.Log.Infof("healthcheck: %v", health)
	respondRecords(w, r, 1, health)
}
