package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/openrds/snowball/internal/models"
	"github.com/openrds/snowball/internal/store"
)

// Email addresses that mark a seed as unreachable on import.
var excludedEmailAddresses = map[string]struct{}{
	"none@email.com": {},
	"none@emailc.om": {},
	"none@emil.aom":  {},
	"none@gmail.com": {},
}

var resultDateLayouts = []string{
	"01-02-2006 15:04",
	"01-02-2006",
	"2006-01-02 15:04",
	"2006-01-02",
	time.RFC3339,
	time.RFC1123,
}

// SeedStore is the registry's slice of the persistence gateway.
type SeedStore interface {
	InsertSeed(ctx context.Context, seed *models.Seed) error
	GetSeed(ctx context.Context, mrn string) (*models.Seed, error)
	UpdateSeedFields(ctx context.Context, mrn string, update store.SeedUpdate) error
	ListSeeds(ctx context.Context, q store.SeedQuery) ([]*models.Seed, error)
}

// SeedRegistry owns the candidate records uploaded for triage.
type SeedRegistry struct {
	store SeedStore
	log   *logrus.Logger
	now   func() time.Time
}

func NewSeedRegistry(st SeedStore, log *logrus.Logger) *SeedRegistry {
	return &SeedRegistry{
		store: st,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// ComputeStatus derives the initial triage status for an imported row that
// does not carry one: unreachable emails exclude the seed, everything else
// is eligible.
func ComputeStatus(emailAddress string) string {
	if emailAddress == "" {
		return models.StatusExclude
	}
	if _, excluded := excludedEmailAddresses[strings.ToLower(emailAddress)]; excluded {
		return models.StatusExclude
	}
	return models.StatusEligible
}

func validStatus(status string) bool {
	for _, s := range models.SeedStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// AddSeedRequest is a direct (non-CSV) seed insert.
type AddSeedRequest struct {
	MRN           string `json:"MRN"`
	FirstName     string `json:"FIRST_NAME"`
	LastName      string `json:"LAST_NAME"`
	PatAge        int    `json:"PAT_AGE"`
	PatSex        string `json:"PAT_SEX"`
	Race          string `json:"RACE"`
	EthnicGroup   string `json:"ETHNIC_GROUP"`
	Language      string `json:"LANGUAGE"`
	ZIP           string `json:"ZIP"`
	EmailAddress  string `json:"EMAIL_ADDRESS"`
	MobileNum     string `json:"MOBILE_NUM"`
	HomeNum       string `json:"HOME_NUM"`
	PreferredComm string `json:"PREFERRED_COMMUNICATION"`
	Status        string `json:"STATUS"`
	ResultDate    string `json:"RESULT_DATE"`
	TestResult    string `json:"TEST_RESULT"`
}

// AddSeed inserts one seed submitted through the API. The first and last
// names are combined into the registry's "Last,First" name field and the
// preferred communication channel defaults to email.
func (r *SeedRegistry) AddSeed(ctx context.Context, req AddSeedRequest) error {
	if req.MRN == "" {
		return NewInvalidError("MRN is missing")
	}
	seed := &models.Seed{
		MRN:           req.MRN,
		PatName:       req.LastName + "," + req.FirstName,
		PatAge:        req.PatAge,
		PatSex:        req.PatSex,
		Race:          req.Race,
		EthnicGroup:   req.EthnicGroup,
		Language:      req.Language,
		ZIP:           req.ZIP,
		EmailAddress:  req.EmailAddress,
		MobileNum:     req.MobileNum,
		HomeNum:       req.HomeNum,
		PreferredComm: req.PreferredComm,
		Status:        req.Status,
		TestResult:    req.TestResult,
		ReportDate:    r.now(),
	}
	if seed.PreferredComm == "" {
		seed.PreferredComm = "Email"
	}
	if seed.Status == "" {
		seed.Status = ComputeStatus(seed.EmailAddress)
	} else if !validStatus(seed.Status) {
		return NewInvalidError(fmt.Sprintf("invalid status %s", seed.Status))
	}
	if req.ResultDate != "" {
		t, err := parseResultDate(req.ResultDate)
		if err != nil {
			return NewInvalidError(fmt.Sprintf("invalid RESULT_DATE %q", req.ResultDate))
		}
		seed.ResultDate = &t
	}
	err := r.store.InsertSeed(ctx, seed)
	if errors.Is(err, store.ErrDuplicateKey) {
		r.log.Errorf("Duplicate MRN: %s", seed.MRN)
		return NewConflictError("Duplicate MRN")
	}
	if err != nil {
		return fmt.Errorf("insert seed %s: %w", seed.MRN, err)
	}
	return nil
}

func parseResultDate(raw string) (time.Time, error) {
	for _, layout := range resultDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

// UploadRowError reports one rejected CSV row.
type UploadRowError struct {
	Row      int    `json:"row"`
	ErrorMsg string `json:"errorMsg"`
}

// UploadResult summarizes a CSV import.
type UploadResult struct {
	BatchID      string           `json:"batchId"`
	TotalLines   int              `json:"totalLines"`
	ColumnsFound int              `json:"columnsFound"`
	Inserted     int              `json:"totalDataLinesInserted"`
	Rejected     int              `json:"rejectedLines"`
	Errors       []UploadRowError `json:"errors"`
}

// UploadCSV imports seed rows from a headered CSV stream. Rows fail
// independently; a duplicate MRN rejects only its own row. If nothing at all
// inserts, the whole upload is reported as failed with the first row error.
func (r *SeedRegistry) UploadCSV(ctx context.Context, src io.Reader) (*UploadResult, error) {
	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, NewInvalidError(fmt.Sprintf("Failed to read csv file: %v", err))
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}

	result := &UploadResult{
		BatchID:      uuid.NewString(),
		TotalLines:   1,
		ColumnsFound: len(header),
		Errors:       []UploadRowError{},
	}
	rowNum := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		rowNum++
		result.TotalLines++
		if err != nil {
			result.Rejected++
			result.Errors = append(result.Errors, UploadRowError{Row: rowNum, ErrorMsg: err.Error()})
			continue
		}
		seed, err := r.seedFromRow(cols, record)
		if err == nil {
			err = r.store.InsertSeed(ctx, seed)
			if errors.Is(err, store.ErrDuplicateKey) {
				err = errors.New("Duplicate MRN")
			}
		}
		if err != nil {
			r.log.Errorf("Failed to save row %d: %v", rowNum, err)
			result.Rejected++
			result.Errors = append(result.Errors, UploadRowError{Row: rowNum, ErrorMsg: err.Error()})
			continue
		}
		result.Inserted++
	}

	r.log.Infof("Saved %d seed records (batch %s)", result.Inserted, result.BatchID)
	if result.Inserted == 0 && result.Rejected > 0 {
		return nil, NewInvalidError(result.Errors[0].ErrorMsg)
	}
	if result.Inserted == 0 {
		return nil, NewInvalidError("csv file contains no data rows")
	}
	return result, nil
}

func (r *SeedRegistry) seedFromRow(cols map[string]int, record []string) (*models.Seed, error) {
	field := func(name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}
	mrn := field("MRN")
	if mrn == "" {
		return nil, errors.New("MRN is missing")
	}
	seed := &models.Seed{
		MRN:           mrn,
		PatName:       field("PAT_NAME"),
		PatSex:        field("PAT_SEX"),
		Race:          field("RACE"),
		EthnicGroup:   field("ETHNIC_GROUP"),
		Language:      field("LANGUAGE"),
		ZIP:           field("ZIP"),
		EmailAddress:  field("EMAIL_ADDRESS"),
		MobileNum:     field("MOBILE_NUM"),
		HomeNum:       field("HOME_NUM"),
		PreferredComm: field("PREFERRED_COMMUNICATION"),
		TestResult:    field("TEST_RESULT"),
		ReportDate:    r.now(),
	}
	if age := field("PAT_AGE"); age != "" {
		n, err := strconv.Atoi(age)
		if err != nil {
			return nil, fmt.Errorf("invalid PAT_AGE %q", age)
		}
		seed.PatAge = n
	}
	if seed.PreferredComm == "" {
		seed.PreferredComm = "Email"
	}
	if raw := field("RESULT_DATE"); raw != "" {
		t, err := parseResultDate(raw)
		if err != nil {
			return nil, err
		}
		seed.ResultDate = &t
	}
	if status := field("STATUS"); status != "" {
		seed.Status = status
	} else {
		seed.Status = ComputeStatus(seed.EmailAddress)
	}
	return seed, nil
}

// SeedFieldUpdate carries the fields a coordinator may correct on a seed.
// Nil means "leave unchanged".
type SeedFieldUpdate struct {
	MobileNum    *string
	EmailAddress *string
	TestResult   *string
}

// UpdateFields merges contact corrections onto a seed, recording a combined
// human-readable log line. Returns the response message.
func (r *SeedRegistry) UpdateFields(ctx context.Context, mrn string, req SeedFieldUpdate) (string, error) {
	if mrn == "" {
		return "", NewInvalidError("MRN is missing")
	}
	update := store.SeedUpdate{
		MobileNum:    req.MobileNum,
		EmailAddress: req.EmailAddress,
		TestResult:   req.TestResult,
	}
	if update.Empty() {
		return fmt.Sprintf("Nothing updated for MRN %s", mrn), nil
	}

	var parts []string
	if req.MobileNum != nil {
		parts = append(parts, "changed mobile to: "+*req.MobileNum)
	}
	if req.EmailAddress != nil {
		parts = append(parts, "email address to: "+*req.EmailAddress)
	}
	if req.TestResult != nil {
		parts = append(parts, "TEST_RESULT to: "+*req.TestResult)
	}
	logs := strings.Join(parts, "; ") + " at:" + r.now().Format(time.RFC3339)
	update.Logs = &logs

	r.log.Infof("Update seed MRN %s", mrn)
	err := r.store.UpdateSeedFields(ctx, mrn, update)
	if errors.Is(err, store.ErrNotFound) {
		return "", NewNotFoundError("Failed to update information for MRN: " + mrn)
	}
	if err != nil {
		return "", fmt.Errorf("update seed %s: %w", mrn, err)
	}
	return mrn + ": information successfully updated.", nil
}

// SeedReportParams filters the seed report.
type SeedReportParams struct {
	Status    string
	AgeGroup  string // "min-max"
	Ethnic    string
	Race      string
	Sex       string
	DateRange string // days back from now for RESULT_DATE
}

// Report lists seeds for the daily triage report, newest report date first.
// Without an explicit status filter the report covers everything still in
// triage (eligible, deferred, excluded).
func (r *SeedRegistry) Report(ctx context.Context, params SeedReportParams) ([]*models.Seed, error) {
	q := store.SeedQuery{
		EthnicGroup: params.Ethnic,
		Race:        params.Race,
		Sex:         params.Sex,
	}
	if params.Status != "" {
		q.Statuses = []string{strings.ToUpper(params.Status)}
	} else {
		q.Statuses = []string{models.StatusEligible, models.StatusDefer, models.StatusExclude}
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
	seeds, err := r.store.ListSeeds(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("seed report: %w", err)
	}
	r.log.Infof("Found %d records for seed report", len(seeds))
	return seeds, nil
}

func parseAgeGroup(raw string) (int, int, error) {
	parts := strings.SplitN(raw, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid age group %q", raw)
	}
	min, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid age group %q", raw)
	}
	max, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid age group %q", raw)
	}
	return min, max, nil
}

func parseDateRange(raw string, now time.Time) (time.Time, error) {
	days, err := strconv.Atoi(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date range %q", raw)
	}
	return now.AddDate(0, 0, -days), nil
}
