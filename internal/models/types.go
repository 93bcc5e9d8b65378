package models

import "time"

// Seed status values. A seed enters the registry as ELIGIBLE or EXCLUDE and
// is triaged from there; INCLUDE is what converts it into a participant.
const (
	StatusEligible = "ELIGIBLE"
	StatusExclude  = "EXCLUDE"
	StatusDefer    = "DEFER"
	StatusInclude  = "INCLUDE"
)

// SeedStatuses lists every status a seed may carry, in triage order.
var SeedStatuses = []string{StatusInclude, StatusExclude, StatusDefer, StatusEligible}

// Participant types.
const (
	PTypeSeed = "seed"
	PTypePeer = "peer"
)

// Seed is one uploaded candidate record, keyed by MRN.
type Seed struct {
	MRN             string     `bson:"_id" json:"MRN"`
	PatName         string     `bson:"PAT_NAME,omitempty" json:"PAT_NAME,omitempty"`
	PatAge          int        `bson:"PAT_AGE,omitempty" json:"PAT_AGE,omitempty"`
	PatSex          string     `bson:"PAT_SEX,omitempty" json:"PAT_SEX,omitempty"`
	Race            string     `bson:"RACE,omitempty" json:"RACE,omitempty"`
	EthnicGroup     string     `bson:"ETHNIC_GROUP,omitempty" json:"ETHNIC_GROUP,omitempty"`
	Language        string     `bson:"LANGUAGE,omitempty" json:"LANGUAGE,omitempty"`
	ZIP             string     `bson:"ZIP,omitempty" json:"ZIP,omitempty"`
	EmailAddress    string     `bson:"EMAIL_ADDRESS,omitempty" json:"EMAIL_ADDRESS,omitempty"`
	MobileNum       string     `bson:"MOBILE_NUM,omitempty" json:"MOBILE_NUM,omitempty"`
	HomeNum         string     `bson:"HOME_NUM,omitempty" json:"HOME_NUM,omitempty"`
	PreferredComm   string     `bson:"PREFERRED_COMMUNICATION,omitempty" json:"PREFERRED_COMMUNICATION,omitempty"`
	Status          string     `bson:"STATUS,omitempty" json:"STATUS,omitempty"`
	StatusChangeLog []string   `bson:"STATUS_CHANGE_LOG,omitempty" json:"STATUS_CHANGE_LOG,omitempty"`
	ReportDate      time.Time  `bson:"REPORT_DATE,omitempty" json:"REPORT_DATE,omitempty"`
	ResultDate      *time.Time `bson:"RESULT_DATE,omitempty" json:"RESULT_DATE,omitempty"`
	TestResult      string     `bson:"TEST_RESULT,omitempty" json:"TEST_RESULT,omitempty"`
	Logs            string     `bson:"LOGS,omitempty" json:"LOGS,omitempty"`
	CreatedAt       time.Time  `bson:"CREATED_AT,omitempty" json:"CREATED_AT,omitempty"`
	UpdatedAt       *time.Time `bson:"UPDATED_AT,omitempty" json:"UPDATED_AT,omitempty"`
}

// PeerCoupon is one slot issued to a participant's recruit.
type PeerCoupon struct {
	RecordID int    `bson:"RECORD_ID" json:"RECORD_ID"`
	Coupon   string `bson:"COUPON" json:"COUPON"`
}

// Comment is one CRM log entry. The comment list is kept newest-first.
type Comment struct {
	ID      string `bson:"id,omitempty" json:"id,omitempty"`
	Time    string `bson:"time" json:"time"`
	Comment string `bson:"comment" json:"comment"`
}

// Contact is a peer the participant has named for recruitment. ContactID is
// a 3-digit zero-padded ordinal scoped to the batch it was submitted in.
type Contact struct {
	ContactID string `bson:"CONTACT_ID" json:"CONTACT_ID"`
	FirstName string `bson:"FIRST_NAME,omitempty" json:"FIRST_NAME,omitempty"`
	LastName  string `bson:"LAST_NAME,omitempty" json:"LAST_NAME,omitempty"`
	PatSex    string `bson:"PAT_SEX,omitempty" json:"PAT_SEX,omitempty"`
	PatAge    string `bson:"PAT_AGE,omitempty" json:"PAT_AGE,omitempty"`
	Email     string `bson:"EMAIL_ADDRESS,omitempty" json:"EMAIL_ADDRESS,omitempty"`
	MobileNum string `bson:"MOBILE_NUM,omitempty" json:"MOBILE_NUM,omitempty"`
}

// Participant is an enrolled study record. RecordID doubles as the storage
// key after zero-padding to 8 digits; lifecycle milestones are the optional
// date fields, observable independently on the one document.
type Participant struct {
	RecordID       int    `bson:"RECORD_ID" json:"RECORD_ID"`
	PType          string `bson:"PTYPE" json:"PTYPE"`
	MRN            string `bson:"MRN,omitempty" json:"MRN,omitempty"`
	FirstName      string `bson:"FIRST_NAME,omitempty" json:"FIRST_NAME,omitempty"`
	LastName       string `bson:"LAST_NAME,omitempty" json:"LAST_NAME,omitempty"`
	PatAge         int    `bson:"PAT_AGE,omitempty" json:"PAT_AGE,omitempty"`
	PatSex         string `bson:"PAT_SEX,omitempty" json:"PAT_SEX,omitempty"`
	Race           string `bson:"RACE,omitempty" json:"RACE,omitempty"`
	EthnicGroup    string `bson:"ETHNIC_GROUP,omitempty" json:"ETHNIC_GROUP,omitempty"`
	Language       string `bson:"LANGUAGE,omitempty" json:"LANGUAGE,omitempty"`
	ZIP            string `bson:"ZIP,omitempty" json:"ZIP,omitempty"`
	EmailAddress   string `bson:"EMAIL_ADDRESS,omitempty" json:"EMAIL_ADDRESS,omitempty"`
	AlternateEmail string `bson:"ALTERNATIVE_EMAIL,omitempty" json:"ALTERNATIVE_EMAIL,omitempty"`
	MobileNum      string `bson:"MOBILE_NUM,omitempty" json:"MOBILE_NUM,omitempty"`
	HomeNum        string `bson:"HOME_NUM,omitempty" json:"HOME_NUM,omitempty"`
	PreferredComm  string `bson:"PREFERRED_COMMUNICATION,omitempty" json:"PREFERRED_COMMUNICATION,omitempty"`
	Status         string `bson:"STATUS,omitempty" json:"STATUS,omitempty"`
	Guided         string `bson:"GUIDED,omitempty" json:"GUIDED,omitempty"`

	Coupon              string     `bson:"COUPON" json:"COUPON,omitempty"`
	CouponIssueDate     time.Time  `bson:"COUPON_ISSUE_DATE" json:"COUPON_ISSUE_DATE"`
	CouponRedeemDate    *time.Time `bson:"COUPON_REDEEM_DATE,omitempty" json:"COUPON_REDEEM_DATE,omitempty"`
	ConsentDate         *time.Time `bson:"CONSENT_DATE,omitempty" json:"CONSENT_DATE,omitempty"`
	SurveyCompletion    *time.Time `bson:"SURVEY_COMPLETION_DATE,omitempty" json:"SURVEY_COMPLETION_DATE,omitempty"`
	EnrollmentCompleted *time.Time `bson:"ENROLLMENT_COMPLETED_DATE,omitempty" json:"ENROLLMENT_COMPLETED_DATE,omitempty"`

	ParentRecordID int          `bson:"PARENT_RECORD_ID,omitempty" json:"PARENT_RECORD_ID,omitempty"`
	NumCoupons     int          `bson:"NUM_COUPONS,omitempty" json:"NUM_COUPONS,omitempty"`
	CouponsSent    int          `bson:"COUPON_SENT,omitempty" json:"COUPON_SENT,omitempty"`
	PeerCoupons    []PeerCoupon `bson:"peer-coupons,omitempty" json:"peer-coupons,omitempty"`

	ReportDate     *time.Time `bson:"REPORT_DATE,omitempty" json:"REPORT_DATE,omitempty"`
	TestDate       string     `bson:"TEST_DATE,omitempty" json:"TEST_DATE,omitempty"`
	TestResult     string     `bson:"TEST_RESULT,omitempty" json:"TEST_RESULT,omitempty"`
	ResultDate     *time.Time `bson:"RESULT_DATE,omitempty" json:"RESULT_DATE,omitempty"`
	ResultNotified string     `bson:"RESULT_NOTIFIED,omitempty" json:"RESULT_NOTIFIED,omitempty"`

	Comments []Comment `bson:"comments,omitempty" json:"comments,omitempty"`
	Contacts []Contact `bson:"contacts,omitempty" json:"contacts,omitempty"`

	CreatedAt time.Time  `bson:"CREATED_AT,omitempty" json:"CREATED_AT,omitempty"`
	UpdatedAt *time.Time `bson:"UPDATED_AT,omitempty" json:"UPDATED_AT,omitempty"`
}

// ConsentSubmission stores a signed consent form, one per record id.
type ConsentSubmission struct {
	RecordID  int            `bson:"RECORD_ID" json:"RECORD_ID"`
	Fields    map[string]any `bson:"fields,omitempty" json:"fields,omitempty"`
	CreatedAt time.Time      `bson:"CREATED_AT,omitempty" json:"CREATED_AT,omitempty"`
}

// SurveySubmission stores an intake survey, one per record id. Completed
// marks whether the respondent finished; only a completed survey stamps the
// participant's completion date.
type SurveySubmission struct {
	RecordID  int            `bson:"RECORD_ID" json:"RECORD_ID"`
	Completed bool           `bson:"completed" json:"completed"`
	Fields    map[string]any `bson:"fields,omitempty" json:"fields,omitempty"`
	CreatedAt time.Time      `bson:"CREATED_AT,omitempty" json:"CREATED_AT,omitempty"`
}

// ConsentFormMeta describes one immutable uploaded version of the study
// consent form PDF. Versions are dense, starting at 1.
type ConsentFormMeta struct {
	Version    int       `bson:"version" json:"version"`
	Comments   string    `bson:"comments" json:"comments"`
	Modifier   string    `bson:"modifier" json:"modifier"`
	UploadDate time.Time `bson:"uploadDate" json:"uploadDate"`
}

// ConsentFormVersion is a stored form version together with its payload.
type ConsentFormVersion struct {
	ConsentFormMeta `bson:",inline"`
	Data            []byte `bson:"-" json:"-"`
}
