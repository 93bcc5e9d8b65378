package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/openrds/snowball/internal/models"
	"github.com/openrds/snowball/internal/store"
)

func newTestReports(t *testing.T) (*Reports, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	r := NewReports(mem, testLogger())
	r.now = func() time.Time { return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC) }
	return r, mem
}

func TestCohortRecombinesName(t *testing.T) {
	r, mem := newTestReports(t)
	ctx := context.Background()
	mem.InsertParticipant(ctx, &models.Participant{
		RecordID: 1, PType: models.PTypeSeed,
		FirstName: "Jane", LastName: "Doe",
		Comments: []models.Comment{{Comment: "hidden"}},
	})

	rows, err := r.Cohort(ctx, CohortParams{})
	if err != nil {
		t.Fatalf("Cohort returned error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("len = %d", len(rows))
	}
	if rows[0].PatName != "Doe,Jane" {
		t.Fatalf("PatName = %q", rows[0].PatName)
	}
	if rows[0].Comments != nil {
		t.Fatalf("cohort rows must not carry the CRM log")
	}
}

func TestPeerCouponPageExplodesContacts(t *testing.T) {
	r, mem := newTestReports(t)
	ctx := context.Background()
	surveyed := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	mem.InsertParticipant(ctx, &models.Participant{
		RecordID: 1, PType: models.PTypeSeed, FirstName: "Jane", LastName: "Doe",
		SurveyCompletion: &surveyed,
		Contacts: []models.Contact{
			{ContactID: "001", FirstName: "Ann", LastName: "Lee"},
			{ContactID: "002", FirstName: "Bob", LastName: "Ray"},
		},
	})
	mem.InsertParticipant(ctx, &models.Participant{
		RecordID: 2, PType: models.PTypeSeed, FirstName: "Pat", LastName: "Poe",
		SurveyCompletion: &surveyed,
	})
	// not surveyed, never listed
	mem.InsertParticipant(ctx, &models.Participant{RecordID: 3, PType: models.PTypeSeed})

	withContacts, err := r.PeerCouponPage(ctx, true)
	if err != nil {
		t.Fatalf("PeerCouponPage returned error: %v", err)
	}
	if len(withContacts) != 2 {
		t.Fatalf("rows = %d, want one per contact", len(withContacts))
	}
	if withContacts[0].Contact != "Lee,Ann" || withContacts[1].Contact != "Ray,Bob" {
		t.Fatalf("contacts = %q, %q", withContacts[0].Contact, withContacts[1].Contact)
	}
	if withContacts[0].RecordID != 1 {
		t.Fatalf("record id = %d", withContacts[0].RecordID)
	}

	withoutContacts, err := r.PeerCouponPage(ctx, false)
	if err != nil {
		t.Fatalf("PeerCouponPage returned error: %v", err)
	}
	if len(withoutContacts) != 1 || withoutContacts[0].RecordID != 2 {
		t.Fatalf("rows = %+v", withoutContacts)
	}
}

func TestTestScheduleFilters(t *testing.T) {
	r, mem := newTestReports(t)
	ctx := context.Background()
	redeemed := time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)
	mem.InsertParticipant(ctx, &models.Participant{
		RecordID: 1, PType: models.PTypePeer, CouponRedeemDate: &redeemed,
		TestResult: "POSITIVE", ResultNotified: "Y",
	})
	mem.InsertParticipant(ctx, &models.Participant{
		RecordID: 2, PType: models.PTypePeer, CouponRedeemDate: &redeemed,
		TestResult: "NEGATIVE",
	})
	// seed-type and un-redeemed peers stay off the schedule
	mem.InsertParticipant(ctx, &models.Participant{RecordID: 3, PType: models.PTypeSeed, CouponRedeemDate: &redeemed})
	mem.InsertParticipant(ctx, &models.Participant{RecordID: 4, PType: models.PTypePeer})

	rows, err := r.TestSchedule(ctx, TestScheduleParams{})
	if err != nil {
		t.Fatalf("TestSchedule returned error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}

	rows, err = r.TestSchedule(ctx, TestScheduleParams{TestResult: "POSITIVE"})
	if err != nil {
		t.Fatalf("TestSchedule returned error: %v", err)
	}
	if len(rows) != 1 || rows[0].RecordID != 1 {
		t.Fatalf("filtered rows = %+v", rows)
	}
}

func TestDownloadCSVParticipants(t *testing.T) {
	r, mem := newTestReports(t)
	ctx := context.Background()
	mem.InsertParticipant(ctx, &models.Participant{
		RecordID: 1, PType: models.PTypeSeed, FirstName: "Jane", Coupon: "A-B-C-D",
	})
	mem.InsertParticipant(ctx, &models.Participant{
		RecordID: 2, PType: models.PTypePeer, ParentRecordID: 1, Coupon: "E-F-G-H",
	})

	csvText, err := r.DownloadCSV(ctx, "participants")
	if err != nil {
		t.Fatalf("DownloadCSV returned error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(csvText), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want header + 2 rows", len(lines))
	}
	header := strings.Split(lines[0], ",")
	if header[0] >= header[len(header)-1] {
		t.Fatalf("header not sorted: %v", header)
	}
	if !strings.Contains(lines[0], "RECORD_ID") || !strings.Contains(lines[0], "COUPON") {
		t.Fatalf("header = %q", lines[0])
	}
	if !strings.Contains(csvText, "A-B-C-D") || !strings.Contains(csvText, "E-F-G-H") {
		t.Fatalf("rows missing data: %q", csvText)
	}
}

func TestDownloadCSVUnknownType(t *testing.T) {
	r, _ := newTestReports(t)
	_, err := r.DownloadCSV(context.Background(), "passwords")
	if se, ok := AsServiceError(err); !ok || se.Code != ErrorInvalid {
		t.Fatalf("expected invalid error, got %v", err)
	}
}
