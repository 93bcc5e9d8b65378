package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openrds/snowball/internal/models"
	"github.com/openrds/snowball/internal/store"
)

// flakyInsertStore fails the nth InsertParticipant call.
type flakyInsertStore struct {
	*store.Memory
	failOnCall int
	calls      int
}

func (s *flakyInsertStore) InsertParticipant(ctx context.Context, p *models.Participant) error {
	s.calls++
	if s.calls == s.failOnCall {
		return errors.New("write conflict")
	}
	return s.Memory.InsertParticipant(ctx, p)
}

func newTestInviter(t *testing.T) (*PeerInviter, *store.Memory, *fakeDispatcher) {
	t.Helper()
	mem := store.NewMemory()
	fd := &fakeDispatcher{failSends: map[int]bool{}}
	pi := NewPeerInviter(mem, fd, testLogger())
	pi.now = func() time.Time { return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC) }
	return pi, mem, fd
}

func insertParent(t *testing.T, mem *store.Memory, numCoupons int) {
	t.Helper()
	err := mem.InsertParticipant(context.Background(), &models.Participant{
		RecordID:     1,
		PType:        models.PTypeSeed,
		EmailAddress: "parent@example.org",
		NumCoupons:   numCoupons,
	})
	if err != nil {
		t.Fatalf("insert parent: %v", err)
	}
}

func TestInvitePeersAllSucceed(t *testing.T) {
	pi, mem, _ := newTestInviter(t)
	ctx := context.Background()
	insertParent(t, mem, 3)

	msg, err := pi.InvitePeers(ctx, 1)
	if err != nil {
		t.Fatalf("InvitePeers returned error: %v", err)
	}
	if msg != "Successfully sent 3 coupons" {
		t.Fatalf("msg = %q", msg)
	}

	parent, _ := mem.GetParticipantByRecordID(ctx, 1)
	if parent.CouponsSent != 3 {
		t.Fatalf("CouponsSent = %d, want 3", parent.CouponsSent)
	}
	if len(parent.PeerCoupons) != 3 {
		t.Fatalf("peer coupons = %d, want 3", len(parent.PeerCoupons))
	}
	for i, pc := range parent.PeerCoupons {
		peer, err := mem.GetParticipantByRecordID(ctx, pc.RecordID)
		if err != nil {
			t.Fatalf("peer %d missing: %v", pc.RecordID, err)
		}
		if peer.PType != models.PTypePeer || peer.ParentRecordID != 1 {
			t.Fatalf("peer %d = %+v", i, peer)
		}
		if peer.Coupon != pc.Coupon {
			t.Fatalf("peer coupon mismatch: %q vs %q", peer.Coupon, pc.Coupon)
		}
		if peer.ReportDate == nil {
			t.Fatalf("peer %d missing report date", pc.RecordID)
		}
	}
}

func TestInvitePeersPartialFailure(t *testing.T) {
	pi, mem, fd := newTestInviter(t)
	ctx := context.Background()
	insertParent(t, mem, 3)
	fd.failSends[2] = true

	msg, err := pi.InvitePeers(ctx, 1)
	if err != nil {
		t.Fatalf("InvitePeers returned error: %v", err)
	}
	if msg != "Successfully sent 2 coupons, 1 failed" {
		t.Fatalf("msg = %q", msg)
	}
	parent, _ := mem.GetParticipantByRecordID(ctx, 1)
	if parent.CouponsSent != 2 || len(parent.PeerCoupons) != 2 {
		t.Fatalf("sent = %d, peers = %d, want 2 and 2", parent.CouponsSent, len(parent.PeerCoupons))
	}
	// the failed slot's record id is reallocated to the next success
	if parent.PeerCoupons[0].RecordID != 2 || parent.PeerCoupons[1].RecordID != 3 {
		t.Fatalf("peer record ids = %+v", parent.PeerCoupons)
	}
}

func TestInvitePeersAllFail(t *testing.T) {
	pi, mem, fd := newTestInviter(t)
	ctx := context.Background()
	insertParent(t, mem, 2)
	fd.failSends[1] = true
	fd.failSends[2] = true

	_, err := pi.InvitePeers(ctx, 1)
	se, ok := AsServiceError(err)
	if !ok || se.Code != ErrorInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
	if se.Message != "Failed to send any coupons" {
		t.Fatalf("message = %q", se.Message)
	}
	parent, _ := mem.GetParticipantByRecordID(ctx, 1)
	if parent.CouponsSent != 0 || len(parent.PeerCoupons) != 0 {
		t.Fatalf("parent must be untouched, got %+v", parent)
	}
}

func TestInvitePeersDefaultsToOneCoupon(t *testing.T) {
	pi, mem, _ := newTestInviter(t)
	ctx := context.Background()
	insertParent(t, mem, 0)

	msg, err := pi.InvitePeers(ctx, 1)
	if err != nil {
		t.Fatalf("InvitePeers returned error: %v", err)
	}
	if msg != "Successfully sent 1 coupons" {
		t.Fatalf("msg = %q", msg)
	}
	parent, _ := mem.GetParticipantByRecordID(ctx, 1)
	if parent.CouponsSent != 1 {
		t.Fatalf("CouponsSent = %d, want 1", parent.CouponsSent)
	}
}

func TestInvitePeersUnknownParent(t *testing.T) {
	pi, _, _ := newTestInviter(t)
	_, err := pi.InvitePeers(context.Background(), 42)
	se, ok := AsServiceError(err)
	if !ok || se.Code != ErrorNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	if se.Message != "Failed to retrieve participant record 42" {
		t.Fatalf("message = %q", se.Message)
	}
}

func TestInvitePeersInsertFailureSkipsSlot(t *testing.T) {
	mem := store.NewMemory()
	fs := &flakyInsertStore{Memory: mem, failOnCall: 2}
	fd := &fakeDispatcher{failSends: map[int]bool{}}
	pi := NewPeerInviter(fs, fd, testLogger())
	pi.now = func() time.Time { return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC) }
	ctx := context.Background()
	insertParent(t, mem, 3)

	msg, err := pi.InvitePeers(ctx, 1)
	if err != nil {
		t.Fatalf("InvitePeers returned error: %v", err)
	}
	if msg != "Successfully sent 2 coupons, 1 failed" {
		t.Fatalf("msg = %q", msg)
	}
	// the successes are still recorded on the parent
	parent, _ := mem.GetParticipantByRecordID(ctx, 1)
	if parent.CouponsSent != 2 || len(parent.PeerCoupons) != 2 {
		t.Fatalf("sent = %d, peers = %d, want 2 and 2", parent.CouponsSent, len(parent.PeerCoupons))
	}
	if parent.PeerCoupons[0].RecordID != 2 || parent.PeerCoupons[1].RecordID != 3 {
		t.Fatalf("peer record ids = %+v", parent.PeerCoupons)
	}
}

func TestInvitePeersNoContactReturnsInternal(t *testing.T) {
	mem := store.NewMemory()
	d := NewDispatcher(&fakeEmail{}, &fakeSMS{}, testLogger())
	d.genWords = func(int) ([]string, error) {
		return []string{"tiger", "plaza", "acorn", "lemon"}, nil
	}
	pi := NewPeerInviter(mem, d, testLogger())
	ctx := context.Background()
	err := mem.InsertParticipant(ctx, &models.Participant{RecordID: 1, NumCoupons: 2})
	if err != nil {
		t.Fatalf("insert parent: %v", err)
	}

	_, err = pi.InvitePeers(ctx, 1)
	se, ok := AsServiceError(err)
	if !ok || se.Code != ErrorInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
	if se.Message != "Failed to send any coupons" {
		t.Fatalf("message = %q", se.Message)
	}
}

func TestInvitePeersAccumulatesSentCount(t *testing.T) {
	pi, mem, _ := newTestInviter(t)
	ctx := context.Background()
	insertParent(t, mem, 2)

	if _, err := pi.InvitePeers(ctx, 1); err != nil {
		t.Fatalf("first batch: %v", err)
	}
	if _, err := pi.InvitePeers(ctx, 1); err != nil {
		t.Fatalf("second batch: %v", err)
	}
	parent, _ := mem.GetParticipantByRecordID(ctx, 1)
	if parent.CouponsSent != 4 || len(parent.PeerCoupons) != 4 {
		t.Fatalf("sent = %d, peers = %d, want 4 and 4", parent.CouponsSent, len(parent.PeerCoupons))
	}
}
