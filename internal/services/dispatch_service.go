package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/sethvargo/go-diceware/diceware"
	"github.com/sirupsen/logrus"

	"github.com/openrds/snowball/internal/models"
	"github.com/openrds/snowball/internal/notify"
)

const couponWords = 4

// CouponDispatcher generates tokens and delivers them to a participant.
// Lifecycle and peer-invitation code depend on this interface so tests can
// swap in fakes.
type CouponDispatcher interface {
	GenerateCoupon() (string, error)
	SendCoupon(ctx context.Context, p *models.Participant, token string, toPeer bool) (string, error)
}

// Dispatcher selects a delivery channel per recipient and sends coupons via
// the configured providers. It holds no participant state; peer bookkeeping
// stays on the owning records.
type Dispatcher struct {
	email notify.EmailSender
	sms   notify.SMSSender
	log   *logrus.Logger

	genWords func(int) ([]string, error)
}

func NewDispatcher(email notify.EmailSender, sms notify.SMSSender, log *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		email:    email,
		sms:      sms,
		log:      log,
		genWords: diceware.Generate,
	}
}

// GenerateCoupon produces a human-memorable token of exactly four dictionary
// words, capitalized and hyphen-joined, e.g. Tiger-Plaza-Acorn-Lemon. The
// generator does not check uniqueness; the caller owns that.
func (d *Dispatcher) GenerateCoupon() (string, error) {
	words, err := d.genWords(couponWords)
	if err != nil {
		return "", fmt.Errorf("generate coupon words: %w", err)
	}
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, "-"), nil
}

// SelectChannel picks the delivery route for a recipient. Invitations bound
// for a participant's peers prefer the alternate email the participant
// provided for them; otherwise primary email wins over SMS.
func (d *Dispatcher) SelectChannel(p *models.Participant, toPeer bool) (notify.Channel, string, error) {
	switch {
	case toPeer && p.AlternateEmail != "":
		return notify.ChannelEmail, p.AlternateEmail, nil
	case p.EmailAddress != "":
		return notify.ChannelEmail, p.EmailAddress, nil
	case p.MobileNum != "":
		return notify.ChannelSMS, p.MobileNum, nil
	default:
		msg := "Failed to send token: neither email nor cell number exists"
		d.log.Error(msg)
		return "", "", NewNoContactError(msg)
	}
}

// SendCoupon dispatches one token and returns the status line recorded on
// the participant. A non-success provider code is an error; the line still
// describes what happened for the caller's comment log.
func (d *Dispatcher) SendCoupon(ctx context.Context, p *models.Participant, token string, toPeer bool) (string, error) {
	channel, recipient, err := d.SelectChannel(p, toPeer)
	if err != nil {
		return "", err
	}
	d.log.Debugf("Invite recipient: %s", recipient)

	var code int
	if channel == notify.ChannelEmail {
		name := strings.TrimSpace(p.FirstName + " " + p.LastName)
		code, err = d.email.SendCoupon(ctx, recipient, token, name)
	} else {
		code, err = d.sms.SendCoupon(ctx, recipient, token)
	}
	if err != nil {
		msg := fmt.Sprintf("Failed to send coupon %s to %s: %v", token, recipient, err)
		d.log.Error(msg)
		return msg, NewProviderError(msg)
	}
	if code != http.StatusOK && code != http.StatusAccepted {
		msg := fmt.Sprintf("Failed to send coupon %s to %s: %d", token, recipient, code)
		d.log.Error(msg)
		return msg, NewProviderError(msg)
	}
	msg := fmt.Sprintf("Successfully sent coupon %s to %s", token, recipient)
	d.log.Info(msg)
	return msg, nil
}
