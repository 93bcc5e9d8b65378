package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/openrds/snowball/internal/models"
	"github.com/openrds/snowball/internal/store"
)

const commentTimeLayout = "2006-01-02T15:04:05"

// LifecycleStore is the lifecycle's slice of the persistence gateway.
type LifecycleStore interface {
	GetSeed(ctx context.Context, mrn string) (*models.Seed, error)
	UpdateSeedStatus(ctx context.Context, mrn, status, logLine string) error

	InsertParticipant(ctx context.Context, p *models.Participant) error
	GetParticipantByRecordID(ctx context.Context, recordID int) (*models.Participant, error)
	GetParticipantByCoupon(ctx context.Context, coupon string) (*models.Participant, error)
	MaxRecordID(ctx context.Context) (int, error)
	UpdateParticipant(ctx context.Context, recordID int, update store.ParticipantUpdate) error
	PrependComment(ctx context.Context, recordID int, c models.Comment) error

	InsertConsent(ctx context.Context, c *models.ConsentSubmission) error
	GetConsent(ctx context.Context, recordID int) (*models.ConsentSubmission, error)
	InsertSurvey(ctx context.Context, s *models.SurveySubmission) error
	GetSurvey(ctx context.Context, recordID int) (*models.SurveySubmission, error)
}

// Lifecycle drives the participant state machine: promotion from the seed
// registry, coupon redemption, consent and survey capture, and enrollment
// completion.
type Lifecycle struct {
	store    LifecycleStore
	dispatch CouponDispatcher
	log      *logrus.Logger
	now      func() time.Time
}

func NewLifecycle(st LifecycleStore, dispatch CouponDispatcher, log *logrus.Logger) *Lifecycle {
	return &Lifecycle{
		store:    st,
		dispatch: dispatch,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// saga collects per-step rollback functions, run in reverse on first
// failure. Rollbacks are best effort: there is no cross-document transaction
// underneath, and a rollback failure is logged, not compensated again.
type saga struct {
	rollbacks []func()
}

func (s *saga) onFailure(fn func()) { s.rollbacks = append(s.rollbacks, fn) }

func (s *saga) rollback() {
	for i := len(s.rollbacks) - 1; i >= 0; i-- {
		s.rollbacks[i]()
	}
}

type couponAllocator interface {
	MaxRecordID(ctx context.Context) (int, error)
	GetParticipantByCoupon(ctx context.Context, coupon string) (*models.Participant, error)
}

// nextRecordID allocates the next dense participant id by reading the
// current maximum and adding one. Read-then-increment can race under
// concurrent writers; a collision surfaces as a duplicate key on insert.
func nextRecordID(ctx context.Context, st couponAllocator) (int, error) {
	max, err := st.MaxRecordID(ctx)
	if err != nil {
		return 0, fmt.Errorf("read max record id: %w", err)
	}
	return max + 1, nil
}

// freshCoupon generates a token not already held by any participant,
// retrying a bounded number of times on collision.
func freshCoupon(ctx context.Context, st couponAllocator, dispatch CouponDispatcher) (string, error) {
	for attempt := 0; attempt < 3; attempt++ {
		token, err := dispatch.GenerateCoupon()
		if err != nil {
			return "", err
		}
		_, err = st.GetParticipantByCoupon(ctx, token)
		if errors.Is(err, store.ErrNotFound) {
			return token, nil
		}
		if err != nil {
			return "", fmt.Errorf("check coupon uniqueness: %w", err)
		}
	}
	return "", NewInternalError("could not generate a unique coupon")
}

// SetSeedStatus records a triage decision. Setting the status a seed already
// has is a successful no-op. INCLUDE additionally promotes the seed into a
// participant: the status flip, participant construction, invitation
// dispatch, and insert run as a saga whose only compensation is reverting
// the seed's status with a log line.
func (l *Lifecycle) SetSeedStatus(ctx context.Context, mrn, newStatus string) (string, error) {
	if mrn == "" || newStatus == "" {
		return "", NewInvalidError("Missing MRN or STATUS")
	}
	newStatus = strings.ToUpper(newStatus)
	if !validStatus(newStatus) {
		return "", NewInvalidError(fmt.Sprintf("Failed to update STATUS: invalid status %s", newStatus))
	}

	seed, err := l.store.GetSeed(ctx, mrn)
	if errors.Is(err, store.ErrNotFound) {
		return "", NewNotFoundError(fmt.Sprintf("Failed to retrieve seed with MRN %s", mrn))
	}
	if err != nil {
		return "", fmt.Errorf("get seed %s: %w", mrn, err)
	}
	if seed.Status == newStatus {
		return "No action taken, status not changed", nil
	}

	now := l.now()
	logLine := fmt.Sprintf("Changed STATUS to: %s at %s", newStatus, now.Format(time.RFC3339))
	if err := l.store.UpdateSeedStatus(ctx, mrn, newStatus, logLine); err != nil {
		return "", fmt.Errorf("update seed status %s: %w", mrn, err)
	}

	if newStatus != models.StatusInclude {
		return "success", nil
	}

	var sg saga
	prevStatus := seed.Status
	sg.onFailure(func() {
		if err := l.store.UpdateSeedStatus(ctx, mrn, prevStatus, "Failed to invite seed, revert status"); err != nil {
			l.log.Errorf("Failed to revert seed %s status: %v", mrn, err)
		}
	})
	if err := l.promoteSeed(ctx, seed, now); err != nil {
		l.log.Errorf("Failed to invite seed %s: %v", mrn, err)
		sg.rollback()
		return "", err
	}
	return "success", nil
}

// promoteSeed converts an included seed into a seed-type participant with a
// freshly issued coupon and the dispatch outcome as its first comment.
func (l *Lifecycle) promoteSeed(ctx context.Context, seed *models.Seed, now time.Time) error {
	last, first := l.splitName(seed.MRN, seed.PatName)

	recordID, err := nextRecordID(ctx, l.store)
	if err != nil {
		return err
	}
	token, err := freshCoupon(ctx, l.store, l.dispatch)
	if err != nil {
		return err
	}

	p := &models.Participant{
		RecordID:        recordID,
		PType:           models.PTypeSeed,
		MRN:             seed.MRN,
		FirstName:       first,
		LastName:        last,
		PatAge:          seed.PatAge,
		PatSex:          seed.PatSex,
		Race:            seed.Race,
		EthnicGroup:     seed.EthnicGroup,
		Language:        seed.Language,
		ZIP:             seed.ZIP,
		EmailAddress:    seed.EmailAddress,
		MobileNum:       seed.MobileNum,
		HomeNum:         seed.HomeNum,
		PreferredComm:   seed.PreferredComm,
		Status:          models.StatusInclude,
		TestResult:      seed.TestResult,
		ResultDate:      seed.ResultDate,
		Coupon:          token,
		CouponIssueDate: now,
	}

	line, err := l.dispatch.SendCoupon(ctx, p, token, false)
	if err != nil {
		return err
	}
	p.Comments = []models.Comment{{
		ID:      uuid.NewString(),
		Time:    now.Format(commentTimeLayout),
		Comment: line,
	}}

	if err := l.store.InsertParticipant(ctx, p); err != nil {
		return fmt.Errorf("insert participant %d: %w", recordID, err)
	}
	return nil
}

// splitName separates the registry's "Last,First" combined name. A name
// with no comma is treated as last name only.
func (l *Lifecycle) splitName(mrn, name string) (last, first string) {
	if !strings.Contains(name, ",") {
		l.log.Warnf("First name does not exist for MRN %s, last name is %s", mrn, name)
		return name, ""
	}
	parts := strings.SplitN(name, ",", 2)
	return parts[0], parts[1]
}

// RedeemView is the participant projection served to the redemption page.
type RedeemView struct {
	RecordID            int        `json:"RECORD_ID"`
	FirstName           string     `json:"FIRST_NAME,omitempty"`
	LastName            string     `json:"LAST_NAME,omitempty"`
	ZIP                 string     `json:"ZIP,omitempty"`
	MobileNum           string     `json:"MOBILE_NUM,omitempty"`
	HomeNum             string     `json:"HOME_NUM,omitempty"`
	EmailAddress        string     `json:"EMAIL_ADDRESS,omitempty"`
	PType               string     `json:"PTYPE"`
	SurveyCompletion    *time.Time `json:"SURVEY_COMPLETION_DATE,omitempty"`
	EnrollmentCompleted *time.Time `json:"ENROLLMENT_COMPLETED_DATE,omitempty"`
}

// RedeemCoupon resolves a token to its participant. A coupon whose holder
// already completed enrollment cannot be redeemed again.
func (l *Lifecycle) RedeemCoupon(ctx context.Context, token string) (*RedeemView, error) {
	if token == "" {
		return nil, NewInvalidError("Coupon is missing")
	}
	p, err := l.store.GetParticipantByCoupon(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NewNotFoundError(fmt.Sprintf("Failed to retrieve participant with coupon %s", token))
	}
	if err != nil {
		return nil, fmt.Errorf("get participant by coupon: %w", err)
	}
	if p.EnrollmentCompleted != nil {
		return nil, NewConflictError(fmt.Sprintf("Coupon %s was redeemed already", token))
	}
	return &RedeemView{
		RecordID:            p.RecordID,
		FirstName:           p.FirstName,
		LastName:            p.LastName,
		ZIP:                 p.ZIP,
		MobileNum:           p.MobileNum,
		HomeNum:             p.HomeNum,
		EmailAddress:        p.EmailAddress,
		PType:               p.PType,
		SurveyCompletion:    p.SurveyCompletion,
		EnrollmentCompleted: p.EnrollmentCompleted,
	}, nil
}

// RecordRedemption stamps the redemption date and merges any demographics a
// peer filled in on the redemption page. The redeem date transitions
// unset-to-set once; re-stamping is harmless and keeps the first visit's
// semantics because enrollment completion is what closes the coupon.
func (l *Lifecycle) RecordRedemption(ctx context.Context, recordID int, update store.ParticipantUpdate) error {
	now := l.now()
	update.CouponRedeemDate = &now
	return l.updateParticipant(ctx, recordID, update)
}

// RecordConsent stores the signed consent once and stamps the participant's
// consent date.
func (l *Lifecycle) RecordConsent(ctx context.Context, recordID int, fields map[string]any) error {
	if recordID <= 0 {
		return NewInvalidError("Record id is missing, cannot save data")
	}
	err := l.store.InsertConsent(ctx, &models.ConsentSubmission{RecordID: recordID, Fields: fields})
	if errors.Is(err, store.ErrDuplicateKey) {
		return NewConflictError(fmt.Sprintf("Consent was already completed for record %d", recordID))
	}
	if err != nil {
		return fmt.Errorf("insert consent %d: %w", recordID, err)
	}
	now := l.now()
	return l.updateParticipant(ctx, recordID, store.ParticipantUpdate{ConsentDate: &now})
}

// RecordSurvey stores the intake survey once. Only a completed survey stamps
// the participant's completion date; an in-progress save does not.
func (l *Lifecycle) RecordSurvey(ctx context.Context, recordID int, completed bool, fields map[string]any) error {
	if recordID <= 0 {
		return NewInvalidError("Record id is missing, cannot save data")
	}
	err := l.store.InsertSurvey(ctx, &models.SurveySubmission{
		RecordID:  recordID,
		Completed: completed,
		Fields:    fields,
	})
	if errors.Is(err, store.ErrDuplicateKey) {
		return NewConflictError(fmt.Sprintf("Survey was already completed for record %d", recordID))
	}
	if err != nil {
		return fmt.Errorf("insert survey %d: %w", recordID, err)
	}
	if !completed {
		return nil
	}
	now := l.now()
	return l.updateParticipant(ctx, recordID, store.ParticipantUpdate{SurveyCompletion: &now})
}

// ConsentRecord returns the stored consent submission for a record id.
func (l *Lifecycle) ConsentRecord(ctx context.Context, recordID int) (*models.ConsentSubmission, error) {
	c, err := l.store.GetConsent(ctx, recordID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NewNotFoundError(fmt.Sprintf("Failed to retrieve record %d", recordID))
	}
	return c, err
}

// SurveyRecord returns the stored survey submission for a record id.
func (l *Lifecycle) SurveyRecord(ctx context.Context, recordID int) (*models.SurveySubmission, error) {
	s, err := l.store.GetSurvey(ctx, recordID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NewNotFoundError(fmt.Sprintf("Failed to retrieve record %d", recordID))
	}
	return s, err
}

// CompleteEnrollment stamps the enrollment completion date. Callers invoke
// this only after a completed survey; the date is what closes the coupon.
func (l *Lifecycle) CompleteEnrollment(ctx context.Context, recordID int) error {
	now := l.now()
	return l.updateParticipant(ctx, recordID, store.ParticipantUpdate{EnrollmentCompleted: &now})
}

// UpdateInfo merges a typed partial update onto a participant.
func (l *Lifecycle) UpdateInfo(ctx context.Context, recordID int, update store.ParticipantUpdate) error {
	return l.updateParticipant(ctx, recordID, update)
}

// AddContacts replaces the participant's named peers, assigning each a dense
// 3-digit id. Numbering restarts at 001 for every submitted batch.
func (l *Lifecycle) AddContacts(ctx context.Context, recordID int, contacts []models.Contact) error {
	for i := range contacts {
		contacts[i].ContactID = store.ContactKey(i + 1)
	}
	return l.updateParticipant(ctx, recordID, store.ParticipantUpdate{Contacts: &contacts})
}

// AddComment prepends a CRM note; the log stays newest-first.
func (l *Lifecycle) AddComment(ctx context.Context, recordID int, text string) error {
	if recordID <= 0 {
		return NewInvalidError("Record id is missing, cannot save data")
	}
	c := models.Comment{
		ID:      uuid.NewString(),
		Time:    l.now().Format(commentTimeLayout),
		Comment: text,
	}
	err := l.store.PrependComment(ctx, recordID, c)
	if errors.Is(err, store.ErrNotFound) {
		return NewNotFoundError(fmt.Sprintf("Failed to retrieve participant record %d", recordID))
	}
	return err
}

// Comments returns a participant's CRM log, newest first.
func (l *Lifecycle) Comments(ctx context.Context, recordID int) ([]models.Comment, error) {
	p, err := l.store.GetParticipantByRecordID(ctx, recordID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NewNotFoundError(fmt.Sprintf("Failed to retrieve participant record %d", recordID))
	}
	if err != nil {
		return nil, err
	}
	return p.Comments, nil
}

func (l *Lifecycle) updateParticipant(ctx context.Context, recordID int, update store.ParticipantUpdate) error {
	if recordID <= 0 {
		return NewInvalidError("Record id is missing, cannot save data")
	}
	err := l.store.UpdateParticipant(ctx, recordID, update)
	if errors.Is(err, store.ErrNotFound) {
		return NewNotFoundError(fmt.Sprintf("Failed to retrieve participant record %d", recordID))
	}
	if err != nil {
		return fmt.Errorf("update participant %d: %w", recordID, err)
	}
	return nil
}
