// Package notify sends coupon invitations through the study's delivery
// providers. Providers are consumed behind small interfaces so the workflow
// services can be tested against fakes.
package notify

import "context"

// Channel identifies how an invitation reaches a recipient.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "mobile"
)

// EmailSender delivers a coupon invitation email. The returned code is the
// provider's HTTP status; callers treat 200 and 202 as success.
type EmailSender interface {
	SendCoupon(ctx context.Context, email, token, recipient string) (int, error)
}

// SMSSender delivers a coupon invitation text message.
type SMSSender interface {
	SendCoupon(ctx context.Context, phoneNumber, token string) (int, error)
}

// SMSMessage renders the invitation text with the redeem deep link.
func SMSMessage(uiRoot, token string) string {
	return "Please click to join Snowball Study: " + uiRoot + "/redeem?coupon=" + token +
		" You will be compensated by the study team. Thank you!"
}
