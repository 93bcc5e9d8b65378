package services

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openrds/snowball/internal/models"
	"github.com/openrds/snowball/internal/store"
)

// ReportStore is the reporting layer's slice of the persistence gateway.
type ReportStore interface {
	ListSeeds(ctx context.Context, q store.SeedQuery) ([]*models.Seed, error)
	ListParticipants(ctx context.Context, q store.ParticipantQuery) ([]*models.Participant, error)
	ListConsents(ctx context.Context) ([]*models.ConsentSubmission, error)
	ListSurveys(ctx context.Context) ([]*models.SurveySubmission, error)
}

// Reports builds the coordinator-facing read views. It composes store
// queries and reshapes documents; it never writes.
type Reports struct {
	store  ReportStore
	log    *logrus.Logger
	client *http.Client
	now    func() time.Time
}

func NewReports(st ReportStore, log *logrus.Logger) *Reports {
	return &Reports{
		store:  st,
		log:    log,
		client: &http.Client{Timeout: 30 * time.Second},
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CohortParams filters the cohort report.
type CohortParams struct {
	AgeGroup  string // "min-max"
	Ethnic    string
	Race      string
	Sex       string
	DateRange string // days back from now for RESULT_DATE
}

// CohortRow is one participant in the cohort report with the registry-style
// combined name restored.
type CohortRow struct {
	models.Participant
	PatName string `json:"PAT_NAME"`
}

// Cohort lists enrolled participants, recombining first and last name into
// the "Last,First" form the registry uses.
func (r *Reports) Cohort(ctx context.Context, params CohortParams) ([]CohortRow, error) {
	q := store.ParticipantQuery{
		EthnicGroup: params.Ethnic,
		Race:        params.Race,
		Sex:         params.Sex,
	}
	if params.AgeGroup != "" {
		min, max, err := parseAgeGroup(params.AgeGroup)
		if err != nil {
			return nil, NewInvalidError(err.Error())
		}
		q.AgeMin, q.AgeMax = &min, &max
	}
	if params.DateRange != "" {
		after, err := parseDateRange(params.DateRange, r.now())
		if err != nil {
			return nil, NewInvalidError(err.Error())
		}
		q.ResultDateAfter = &after
	}
	participants, err := r.store.ListParticipants(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("cohort report: %w", err)
	}
	rows := make([]CohortRow, 0, len(participants))
	for _, p := range participants {
		row := CohortRow{Participant: *p, PatName: p.LastName + "," + p.FirstName}
		row.Comments = nil
		row.Contacts = nil
		rows = append(rows, row)
	}
	r.log.Infof("Found %d records for cohort report", len(rows))
	return rows, nil
}

// PeerCouponRow is one line of the peer coupon distribution page. When the
// page asks for contacts, participants are exploded into one row per named
// contact with the contact's combined name.
type PeerCouponRow struct {
	RecordID         int        `json:"RECORD_ID"`
	FirstName        string     `json:"FIRST_NAME,omitempty"`
	LastName         string     `json:"LAST_NAME,omitempty"`
	MobileNum        string     `json:"MOBILE_NUM,omitempty"`
	AlternateEmail   string     `json:"ALTERNATIVE_EMAIL,omitempty"`
	EmailAddress     string     `json:"EMAIL_ADDRESS,omitempty"`
	NumCoupons       int        `json:"NUM_COUPONS,omitempty"`
	CouponsSent      int        `json:"COUPON_SENT,omitempty"`
	CouponIssueDate  time.Time  `json:"COUPON_ISSUE_DATE"`
	CouponRedeemDate *time.Time `json:"COUPON_REDEEM_DATE,omitempty"`
	ConsentDate      *time.Time `json:"CONSENT_DATE,omitempty"`
	SurveyCompletion *time.Time `json:"SURVEY_COMPLETION_DATE,omitempty"`
	Contact          string     `json:"CONTACT,omitempty"`
}

// PeerCouponPage lists survey-completed participants for coupon fan-out.
// withContacts selects the half of the page that has named peers; each
// contact becomes its own row.
func (r *Reports) PeerCouponPage(ctx context.Context, withContacts bool) ([]PeerCouponRow, error) {
	q := store.ParticipantQuery{
		HasSurveyCompletion: true,
		HasContacts:         &withContacts,
	}
	participants, err := r.store.ListParticipants(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("peer coupon page: %w", err)
	}
	var rows []PeerCouponRow
	for _, p := range participants {
		base := PeerCouponRow{
			RecordID:         p.RecordID,
			FirstName:        p.FirstName,
			LastName:         p.LastName,
			MobileNum:        p.MobileNum,
			AlternateEmail:   p.AlternateEmail,
			EmailAddress:     p.EmailAddress,
			NumCoupons:       p.NumCoupons,
			CouponsSent:      p.CouponsSent,
			CouponIssueDate:  p.CouponIssueDate,
			CouponRedeemDate: p.CouponRedeemDate,
			ConsentDate:      p.ConsentDate,
			SurveyCompletion: p.SurveyCompletion,
		}
		if !withContacts {
			rows = append(rows, base)
			continue
		}
		for _, c := range p.Contacts {
			row := base
			row.Contact = c.LastName + "," + c.FirstName
			rows = append(rows, row)
		}
	}
	r.log.Infof("Found %d rows for peer coupon page", len(rows))
	return rows, nil
}

// TestScheduleParams filters the test schedule page.
type TestScheduleParams struct {
	TestResult string
	Notified   string
	DateRange  string // days back from now for REPORT_DATE
}

// TestScheduleRow is one peer awaiting or past testing.
type TestScheduleRow struct {
	RecordID       int        `json:"RECORD_ID"`
	FirstName      string     `json:"FIRST_NAME,omitempty"`
	LastName       string     `json:"LAST_NAME,omitempty"`
	EmailAddress   string     `json:"EMAIL_ADDRESS,omitempty"`
	MobileNum      string     `json:"MOBILE_NUM,omitempty"`
	HomeNum        string     `json:"HOME_NUM,omitempty"`
	ZIP            string     `json:"ZIP,omitempty"`
	PatAge         int        `json:"PAT_AGE,omitempty"`
	PType          string     `json:"PTYPE"`
	Coupon         string     `json:"COUPON,omitempty"`
	TestResult     string     `json:"TEST_RESULT,omitempty"`
	TestDate       string     `json:"TEST_DATE,omitempty"`
	ResultDate     *time.Time `json:"RESULT_DATE,omitempty"`
	ResultNotified string     `json:"RESULT_NOTIFIED,omitempty"`
}

// TestSchedule lists peers that redeemed their coupon, optionally narrowed
// by test result, notification state, and report-date range.
func (r *Reports) TestSchedule(ctx context.Context, params TestScheduleParams) ([]TestScheduleRow, error) {
	q := store.ParticipantQuery{
		PType:          models.PTypePeer,
		HasRedeemDate:  true,
		TestResult:     params.TestResult,
		ResultNotified: params.Notified,
	}
	if params.DateRange != "" {
		after, err := parseDateRange(params.DateRange, r.now())
		if err != nil {
			return nil, NewInvalidError(err.Error())
		}
		q.ReportDateAfter = &after
	}
	participants, err := r.store.ListParticipants(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("test schedule: %w", err)
	}
	rows := make([]TestScheduleRow, 0, len(participants))
	for _, p := range participants {
		rows = append(rows, TestScheduleRow{
			RecordID:       p.RecordID,
			FirstName:      p.FirstName,
			LastName:       p.LastName,
			EmailAddress:   p.EmailAddress,
			MobileNum:      p.MobileNum,
			HomeNum:        p.HomeNum,
			ZIP:            p.ZIP,
			PatAge:         p.PatAge,
			PType:          p.PType,
			Coupon:         p.Coupon,
			TestResult:     p.TestResult,
			TestDate:       p.TestDate,
			ResultDate:     p.ResultDate,
			ResultNotified: p.ResultNotified,
		})
	}
	r.log.Infof("Found %d rows for test schedule", len(rows))
	return rows, nil
}

// DownloadCSV exports a whole collection as CSV, one column per field seen
// anywhere in the collection.
func (r *Reports) DownloadCSV(ctx context.Context, collection string) (string, error) {
	var docs []any
	switch collection {
	case "seeds":
		seeds, err := r.store.ListSeeds(ctx, store.SeedQuery{})
		if err != nil {
			return "", fmt.Errorf("download %s: %w", collection, err)
		}
		for _, s := range seeds {
			docs = append(docs, s)
		}
	case "participants":
		participants, err := r.store.ListParticipants(ctx, store.ParticipantQuery{})
		if err != nil {
			return "", fmt.Errorf("download %s: %w", collection, err)
		}
		for _, p := range participants {
			docs = append(docs, p)
		}
	case "consent":
		consents, err := r.store.ListConsents(ctx)
		if err != nil {
			return "", fmt.Errorf("download %s: %w", collection, err)
		}
		for _, c := range consents {
			docs = append(docs, c)
		}
	case "survey":
		surveys, err := r.store.ListSurveys(ctx)
		if err != nil {
			return "", fmt.Errorf("download %s: %w", collection, err)
		}
		for _, s := range surveys {
			docs = append(docs, s)
		}
	default:
		return "", NewInvalidError(fmt.Sprintf("unknown download type %q", collection))
	}
	r.log.Infof("download request for %s: %d records", collection, len(docs))
	return flattenToCSV(docs)
}

// flattenToCSV renders documents through their JSON form so the export's
// column names match the API's field names. Columns are the union of keys
// seen across all rows, sorted.
func flattenToCSV(docs []any) (string, error) {
	maps := make([]map[string]any, 0, len(docs))
	keySet := map[string]struct{}{}
	for _, doc := range docs {
		raw, err := json.Marshal(doc)
		if err != nil {
			return "", fmt.Errorf("flatten record: %w", err)
		}
		m := map[string]any{}
		if err := json.Unmarshal(raw, &m); err != nil {
			return "", fmt.Errorf("flatten record: %w", err)
		}
		for k := range m {
			keySet[k] = struct{}{}
		}
		maps = append(maps, m)
	}
	keys := make([]string, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf strings.Builder
	w := csv.NewWriter(&buf)
	if err := w.Write(keys); err != nil {
		return "", err
	}
	row := make([]string, len(keys))
	for _, m := range maps {
		for i, k := range keys {
			row[i] = csvCell(m[k])
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	return buf.String(), w.Error()
}

func csvCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strings.TrimSuffix(fmt.Sprintf("%v", val), ".0")
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(raw)
	}
}

// DownloadFromURL fetches a CSV published at a remote URL and re-emits it,
// so the UI can pull externally hosted exports through the API origin.
func (r *Reports) DownloadFromURL(ctx context.Context, url string) (string, error) {
	if url == "" {
		return "", NewInvalidError("URL missing in downloadfile request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", NewInvalidError(fmt.Sprintf("invalid download URL: %v", err))
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", NewProviderError(fmt.Sprintf("Failed to download file from %s: %v", url, err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", NewProviderError(fmt.Sprintf("Failed to download file from %s: %d", url, resp.StatusCode))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", NewProviderError(fmt.Sprintf("Failed to download file from %s: %v", url, err))
	}
	r.log.Infof("download file from %s: %d bytes", url, len(body))
	return string(body), nil
}
