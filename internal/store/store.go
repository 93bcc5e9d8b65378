// Package store is the persistence gateway over the study's document store.
// It exposes typed operations and sentinel errors; callers never inspect
// driver error strings.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openrds/snowball/internal/models"
)

var (
	// ErrDuplicateKey reports a uniqueness violation on a document key.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrNotFound reports that no document matched.
	ErrNotFound = errors.New("not found")
)

// RecordKey renders a participant record id as its 8-digit document key.
func RecordKey(recordID int) string {
	return fmt.Sprintf("%08d", recordID)
}

// ContactKey renders a batch-scoped contact ordinal as its 3-digit id.
func ContactKey(contactID int) string {
	return fmt.Sprintf("%03d", contactID)
}

// SeedQuery filters the seed collection. Zero values mean "no filter".
type SeedQuery struct {
	Statuses        []string
	AgeMin, AgeMax  *int
	EthnicGroup     string
	Race            string
	Sex             string
	ResultDateAfter *time.Time
}

// ParticipantQuery filters the participant collection. Results are always
// ordered by ascending record id.
type ParticipantQuery struct {
	PType               string
	AgeMin, AgeMax      *int
	EthnicGroup         string
	Race                string
	Sex                 string
	TestResult          string
	ResultNotified      string
	ResultDateAfter     *time.Time
	ReportDateAfter     *time.Time
	HasRedeemDate       bool
	HasSurveyCompletion bool
	HasContacts         *bool
}

// SeedUpdate is a partial merge of a seed's mutable contact fields.
type SeedUpdate struct {
	MobileNum    *string
	EmailAddress *string
	TestResult   *string
	Logs         *string
}

// Empty reports whether the update would change nothing.
func (u SeedUpdate) Empty() bool {
	return u.MobileNum == nil && u.EmailAddress == nil && u.TestResult == nil
}

// ParticipantUpdate is a partial merge onto a participant document. Only
// non-nil fields are written; the store stamps UPDATED_AT alongside.
type ParticipantUpdate struct {
	FirstName           *string
	LastName            *string
	ZIP                 *string
	MobileNum           *string
	EmailAddress        *string
	AlternateEmail      *string
	Guided              *string
	NumCoupons          *int
	TestDate            *string
	TestResult          *string
	ResultNotified      *string
	ResultDate          *time.Time
	CouponRedeemDate    *time.Time
	ConsentDate         *time.Time
	SurveyCompletion    *time.Time
	EnrollmentCompleted *time.Time
	CouponsSent         *int
	PeerCoupons         *[]models.PeerCoupon
	Contacts            *[]models.Contact
}

// Store is the full gateway contract. The Mongo implementation backs the
// server; the memory implementation backs tests.
type Store interface {
	Ping(ctx context.Context) error

	InsertSeed(ctx context.Context, seed *models.Seed) error
	GetSeed(ctx context.Context, mrn string) (*models.Seed, error)
	UpdateSeedStatus(ctx context.Context, mrn, status, logLine string) error
	UpdateSeedFields(ctx context.Context, mrn string, update SeedUpdate) error
	ListSeeds(ctx context.Context, q SeedQuery) ([]*models.Seed, error)

	InsertParticipant(ctx context.Context, p *models.Participant) error
	GetParticipantByRecordID(ctx context.Context, recordID int) (*models.Participant, error)
	GetParticipantByCoupon(ctx context.Context, coupon string) (*models.Participant, error)
	MaxRecordID(ctx context.Context) (int, error)
	UpdateParticipant(ctx context.Context, recordID int, update ParticipantUpdate) error
	PrependComment(ctx context.Context, recordID int, c models.Comment) error
	ListParticipants(ctx context.Context, q ParticipantQuery) ([]*models.Participant, error)

	InsertConsent(ctx context.Context, c *models.ConsentSubmission) error
	GetConsent(ctx context.Context, recordID int) (*models.ConsentSubmission, error)
	InsertSurvey(ctx context.Context, s *models.SurveySubmission) error
	GetSurvey(ctx context.Context, recordID int) (*models.SurveySubmission, error)
	ListConsents(ctx context.Context) ([]*models.ConsentSubmission, error)
	ListSurveys(ctx context.Context) ([]*models.SurveySubmission, error)

	SaveConsentForm(ctx context.Context, data []byte, comments, modifier string) (int, error)
	GetConsentForm(ctx context.Context, version int) (*models.ConsentFormVersion, error)
	ListConsentForms(ctx context.Context) ([]*models.ConsentFormMeta, error)
}
