package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/render"

	"github.com/openrds/snowball/internal/models"
	"github.com/openrds/snowball/internal/services"
	"github.com/openrds/snowball/internal/store"
)

// participantUpdateRequest is the flat field-keyed payload most participant
// POST endpoints accept. Absent fields stay untouched.
type participantUpdateRequest struct {
	RecordID            int              `json:"RECORD_ID"`
	FirstName           *string          `json:"FIRST_NAME"`
	LastName            *string          `json:"LAST_NAME"`
	ZIP                 *string          `json:"ZIP"`
	MobileNum           *string          `json:"MOBILE_NUM"`
	EmailAddress        *string          `json:"EMAIL_ADDRESS"`
	AlternateEmail      *string          `json:"ALTERNATIVE_EMAIL"`
	Guided              *string          `json:"GUIDED"`
	NumCoupons          *int             `json:"NUM_COUPONS"`
	TestDate            *string          `json:"TEST_DATE"`
	TestResult          *string          `json:"TEST_RESULT"`
	ResultNotified      *string          `json:"RESULT_NOTIFIED"`
	ResultDate          *time.Time       `json:"RESULT_DATE"`
	Contacts            []models.Contact `json:"contacts"`
	EnrollmentCompleted string           `json:"ENROLLMENT_COMPLETED"`
}

func (req participantUpdateRequest) toUpdate() store.ParticipantUpdate {
	return store.ParticipantUpdate{
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		ZIP:            req.ZIP,
		MobileNum:      req.MobileNum,
		EmailAddress:   req.EmailAddress,
		AlternateEmail: req.AlternateEmail,
		Guided:         req.Guided,
		NumCoupons:     req.NumCoupons,
		TestDate:       req.TestDate,
		TestResult:     req.TestResult,
		ResultNotified: req.ResultNotified,
		ResultDate:     req.ResultDate,
	}
}

func (a *API) invitePeer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RecordID int `json:"RECORD_ID"`
	}
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		respondError(w, r, a.Log, services.NewInvalidError("invalid request body"))
		return
	}
	if req.RecordID == 0 {
		respondError(w, r, a.Log, services.NewInvalidError("Missing record_id"))
		return
	}
	msg, err := a.Inviter.InvitePeers(r.Context(), req.RecordID)
	if err != nil {
		respondError(w, r, a.Log, err)
		return
	}
	respondOK(w, r, msg)
}

func (a *API) redeemCoupon(w http.ResponseWriter, r *http.Request) {
	view, err := a.Lifecycle.RedeemCoupon(r.Context(), r.URL.Query().Get("coupon"))
	if err != nil {
		respondError(w, r, a.Log, err)
		return
	}
	respondRecords(w, r, 1, view)
}

func (a *API) recordRedemption(w http.ResponseWriter, r *http.Request) {
	var req participantUpdateRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		respondError(w, r, a.Log, services.NewInvalidError("invalid request body"))
		return
	}
	if err := a.Lifecycle.RecordRedemption(r.Context(), req.RecordID, req.toUpdate()); err != nil {
		respondError(w, r, a.Log, err)
		return
	}
	respondOK(w, r, "success")
}

// submissionRequest is a consent or survey payload: a record id plus
// whatever fields the form collected.
type submissionRequest struct {
	RecordID  int            `json:"RECORD_ID"`
	Completed bool           `json:"completed"`
	Fields    map[string]any `json:"-"`
}

func decodeSubmission(r *http.Request) (submissionRequest, error) {
	var fields map[string]any
	if err := render.DecodeJSON(r.Body, &fields); err != nil {
		return submissionRequest{}, services.NewInvalidError("invalid request body")
	}
	var req submissionRequest
	if raw, ok := fields["RECORD_ID"]; ok {
		switch v := raw.(type) {
		case float64:
			req.RecordID = int(v)
		case string:
			req.RecordID, _ = strconv.Atoi(v)
		}
	}
	if completed, ok := fields["completed"].(bool); ok {
		req.Completed = completed
	}
	delete(fields, "RECORD_ID")
	delete(fields, "completed")
	req.Fields = fields
	return req, nil
}

func (a *API) postConsent(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSubmission(r)
	if err != nil {
		respondError(w, r, a.Log, err)
		return
	}
	if err := a.Lifecycle.RecordConsent(r.Context(), req.RecordID, req.Fields); err != nil {
		respondError(w, r, a.Log, err)
		return
	}
	respondOK(w, r, "success")
}

func (a *API) getConsent(w http.ResponseWriter, r *http.Request) {
	recordID, err := recordIDParam(r)
	if err != nil {
		respondError(w, r, a.Log, err)
		return
	}
	record, err := a.Lifecycle.ConsentRecord(r.Context(), recordID)
	if err != nil {
		respondError(w, r, a.Log, err)
		return
	}
	respondRecords(w, r, 1, record)
}

func (a *API) postSurvey(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSubmission(r)
	if err != nil {
		respondError(w, r, a.Log, err)
		return
	}
	if err := a.Lifecycle.RecordSurvey(r.Context(), req.RecordID, req.Completed, req.Fields); err != nil {
		respondError(w, r, a.Log, err)
		return
	}
	respondOK(w, r, "success")
}

func (a *API) getSurvey(w http.ResponseWriter, r *http.Request) {
	recordID, err := recordIDParam(r)
	if err != nil {
		respondError(w, r, a.Log, err)
		return
	}
	record, err := a.Lifecycle.SurveyRecord(r.Context(), recordID)
	if err != nil {
		respondError(w, r, a.Log, err)
		return
	}
	respondRecords(w, r, 1, record)
}

func (a *API) peerCouponPage(w http.ResponseWriter, r *http.Request) {
	withContacts := r.URL.Query().Get("contacts") == "y"
	rows, err := a.Reports.PeerCouponPage(r.Context(), withContacts)
	if err != nil {
		respondError(w, r, a.Log, err)
		return
	}
	respondRecords(w, r, len(rows), rows)
}

// updateParticipant handles the multi-purpose participant POST: a contacts
// list replaces the named peers, an enrollment flag closes enrollment, and
// anything else is a partial field update.
func (a *API) updateParticipant(w http.ResponseWriter, r *http.Request) {
	var req participantUpdateRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		respondError(w, r, a.Log, services.NewInvalidError("invalid request body"))
		return
	}
	var err error
	switch {
	case len(req.Contacts) > 0:
		err = a.Lifecycle.AddContacts(r.Context(), req.RecordID, req.Contacts)
	case req.EnrollmentCompleted == "Y":
		err = a.Lifecycle.CompleteEnrollment(r.Context(), req.RecordID)
	default:
		err = a.Lifecycle.UpdateInfo(r.Context(), req.RecordID, req.toUpdate())
	}
	if err != nil {
		respondError(w, r, a.Log, err)
		return
	}
	respondOK(w, r, "success")
}

func (a *API) getComments(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("record_id") == "" {
		respondError(w, r, a.Log, services.NewInvalidError("Failed to retrieve logs: record id is missing"))
		return
	}
	recordID, err := recordIDParam(r)
	if err != nil {
		respondError(w, r, a.Log, err)
		return
	}
	comments, err := a.Lifecycle.Comments(r.Context(), recordID)
	if err != nil {
		respondError(w, r, a.Log, err)
		return
	}
	respondRecords(w, r, len(comments), comments)
}

func (a *API) postComment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RecordID int     `json:"RECORD_ID"`
		Comment  *string `json:"comment"`
	}
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		respondError(w, r, a.Log, services.NewInvalidError("invalid request body"))
		return
	}
	if req.Comment == nil {
		respondOK(w, r, "No new log in request")
		return
	}
	if err := a.Lifecycle.AddComment(r.Context(), req.RecordID, *req.Comment); err != nil {
		respondError(w, r, a.Log, err)
		return
	}
	respondOK(w, r, "success")
}

func recordIDParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("record_id")
	if raw == "" {
		return 0, services.NewInvalidError("Record id is missing")
	}
	recordID, err := strconv.Atoi(raw)
	if err != nil {
		return 0, services.NewInvalidError("invalid record id " + raw)
	}
	return recordID, nil
}
