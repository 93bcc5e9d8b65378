package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/openrds/snowball/internal/models"
	"github.com/openrds/snowball/internal/store"
)

// InviteStore is the peer inviter's slice of the persistence gateway.
type InviteStore interface {
	GetParticipantByRecordID(ctx context.Context, recordID int) (*models.Participant, error)
	GetParticipantByCoupon(ctx context.Context, coupon string) (*models.Participant, error)
	MaxRecordID(ctx context.Context) (int, error)
	InsertParticipant(ctx context.Context, p *models.Participant) error
	UpdateParticipant(ctx context.Context, recordID int, update store.ParticipantUpdate) error
}

// PeerInviter fans a participant's coupon allotment out to fresh peer
// records, one dispatched invitation per coupon.
type PeerInviter struct {
	store    InviteStore
	dispatch CouponDispatcher
	log      *logrus.Logger
	now      func() time.Time
}

func NewPeerInviter(st InviteStore, dispatch CouponDispatcher, log *logrus.Logger) *PeerInviter {
	return &PeerInviter{
		store:    st,
		dispatch: dispatch,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// InvitePeers creates one peer participant per coupon in the parent's
// allotment and sends each new coupon over the parent's contact channel. A
// failed dispatch or insert skips that slot without aborting the batch; the
// parent's peer-coupon list and sent counter reflect only the successes,
// recorded in one parent update after the loop. Record ids are allocated
// inside the loop, so a failed slot's id is reused by the next attempt.
func (pi *PeerInviter) InvitePeers(ctx context.Context, parentRecordID int) (string, error) {
	if parentRecordID <= 0 {
		return "", NewInvalidError("Record id is missing, cannot send coupons")
	}
	parent, err := pi.store.GetParticipantByRecordID(ctx, parentRecordID)
	if errors.Is(err, store.ErrNotFound) {
		return "", NewNotFoundError(fmt.Sprintf("Failed to retrieve participant record %d", parentRecordID))
	}
	if err != nil {
		return "", fmt.Errorf("get participant %d: %w", parentRecordID, err)
	}

	total := parent.NumCoupons
	if total <= 0 {
		total = 1
	}

	now := pi.now()
	peerCoupons := parent.PeerCoupons
	sent := 0

	for i := 0; i < total; i++ {
		recordID, err := nextRecordID(ctx, pi.store)
		if err != nil {
			return "", err
		}
		token, err := freshCoupon(ctx, pi.store, pi.dispatch)
		if err != nil {
			return "", err
		}

		peer := &models.Participant{
			RecordID:        recordID,
			PType:           models.PTypePeer,
			ParentRecordID:  parentRecordID,
			Coupon:          token,
			CouponIssueDate: now,
			ReportDate:      &now,
		}

		line, err := pi.dispatch.SendCoupon(ctx, parent, token, true)
		if err != nil {
			pi.log.Warnf("Peer invitation for record %d: %v", parentRecordID, err)
			continue
		}
		peer.Comments = []models.Comment{{
			ID:      uuid.NewString(),
			Time:    now.Format(commentTimeLayout),
			Comment: line,
		}}

		if err := pi.store.InsertParticipant(ctx, peer); err != nil {
			pi.log.Warnf("Failed to save peer %d for record %d: %v", recordID, parentRecordID, err)
			continue
		}
		peerCoupons = append(peerCoupons, models.PeerCoupon{RecordID: recordID, Coupon: token})
		sent++
	}

	if sent > 0 {
		couponsSent := parent.CouponsSent + sent
		update := store.ParticipantUpdate{
			PeerCoupons: &peerCoupons,
			CouponsSent: &couponsSent,
		}
		if err := pi.store.UpdateParticipant(ctx, parentRecordID, update); err != nil {
			return "", fmt.Errorf("update parent %d: %w", parentRecordID, err)
		}
	}

	switch {
	case sent == 0:
		return "", NewInternalError("Failed to send any coupons")
	case sent < total:
		return fmt.Sprintf("Successfully sent %d coupons, %d failed", sent, total-sent), nil
	default:
		return fmt.Sprintf("Successfully sent %d coupons", sent), nil
	}
}
