package services

import (
	"context"
	"errors"
	"testing"

	"github.com/openrds/snowball/internal/models"
	"github.com/openrds/snowball/internal/notify"
)

type fakeEmail struct {
	code int
	err  error

	to        string
	token     string
	recipient string
}

func (f *fakeEmail) SendCoupon(ctx context.Context, email, token, recipient string) (int, error) {
	f.to, f.token, f.recipient = email, token, recipient
	return f.code, f.err
}

type fakeSMS struct {
	code int
	err  error
	to   string
}

func (f *fakeSMS) SendCoupon(ctx context.Context, phoneNumber, token string) (int, error) {
	f.to = phoneNumber
	return f.code, f.err
}

func TestGenerateCouponFormat(t *testing.T) {
	d := NewDispatcher(&fakeEmail{}, &fakeSMS{}, testLogger())
	d.genWords = func(n int) ([]string, error) {
		if n != 4 {
			t.Fatalf("word count = %d, want 4", n)
		}
		return []string{"tiger", "PLAZA", "acorn", "lemon"}, nil
	}
	token, err := d.GenerateCoupon()
	if err != nil {
		t.Fatalf("GenerateCoupon returned error: %v", err)
	}
	if token != "Tiger-Plaza-Acorn-Lemon" {
		t.Fatalf("token = %q", token)
	}
}

func TestSelectChannelPriority(t *testing.T) {
	d := NewDispatcher(&fakeEmail{}, &fakeSMS{}, testLogger())
	p := &models.Participant{
		EmailAddress:   "primary@example.org",
		AlternateEmail: "peer@example.org",
		MobileNum:      "312-555-0100",
	}

	ch, to, err := d.SelectChannel(p, true)
	if err != nil || ch != notify.ChannelEmail || to != "peer@example.org" {
		t.Fatalf("to-peer channel = %v %q %v", ch, to, err)
	}
	ch, to, err = d.SelectChannel(p, false)
	if err != nil || ch != notify.ChannelEmail || to != "primary@example.org" {
		t.Fatalf("primary channel = %v %q %v", ch, to, err)
	}

	p.EmailAddress, p.AlternateEmail = "", ""
	ch, to, err = d.SelectChannel(p, true)
	if err != nil || ch != notify.ChannelSMS || to != "312-555-0100" {
		t.Fatalf("sms fallback = %v %q %v", ch, to, err)
	}

	p.MobileNum = ""
	_, _, err = d.SelectChannel(p, false)
	se, ok := AsServiceError(err)
	if !ok || se.Code != ErrorNoContact {
		t.Fatalf("expected no-contact error, got %v", err)
	}
	if se.Message != "Failed to send token: neither email nor cell number exists" {
		t.Fatalf("message = %q", se.Message)
	}
}

func TestSendCouponStatusLines(t *testing.T) {
	email := &fakeEmail{code: 202}
	d := NewDispatcher(email, &fakeSMS{}, testLogger())
	p := &models.Participant{EmailAddress: "jane@example.org", FirstName: "Jane", LastName: "Doe"}

	line, err := d.SendCoupon(context.Background(), p, "Tiger-Plaza-Acorn-Lemon", false)
	if err != nil {
		t.Fatalf("SendCoupon returned error: %v", err)
	}
	if line != "Successfully sent coupon Tiger-Plaza-Acorn-Lemon to jane@example.org" {
		t.Fatalf("line = %q", line)
	}
	if email.recipient != "Jane Doe" {
		t.Fatalf("recipient = %q", email.recipient)
	}

	email.code = 403
	line, err = d.SendCoupon(context.Background(), p, "Tiger-Plaza-Acorn-Lemon", false)
	if se, ok := AsServiceError(err); !ok || se.Code != ErrorProvider {
		t.Fatalf("expected provider error, got %v", err)
	}
	if line != "Failed to send coupon Tiger-Plaza-Acorn-Lemon to jane@example.org: 403" {
		t.Fatalf("line = %q", line)
	}
}

func TestSendCouponTransportError(t *testing.T) {
	sms := &fakeSMS{err: errors.New("connection refused")}
	d := NewDispatcher(&fakeEmail{}, sms, testLogger())
	p := &models.Participant{MobileNum: "312-555-0100"}

	line, err := d.SendCoupon(context.Background(), p, "Tok-En-Wo-Rd", false)
	if se, ok := AsServiceError(err); !ok || se.Code != ErrorProvider {
		t.Fatalf("expected provider error, got %v", err)
	}
	if line != "Failed to send coupon Tok-En-Wo-Rd to 312-555-0100: connection refused" {
		t.Fatalf("line = %q", line)
	}
}
