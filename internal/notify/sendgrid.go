package notify

import (
	"context"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sirupsen/logrus"
)

// SendGridSender delivers invitations through a SendGrid dynamic template.
type SendGridSender struct {
	client      *sendgrid.Client
	from        string
	templateID  string
	uiRoot      string
	couponTTL   time.Duration
	log         *logrus.Logger
	now         func() time.Time
}

// NewSendGridSender builds a sender. couponTTLDays bounds how long the
// invitation link stays valid; the expiry date is rendered into the template.
func NewSendGridSender(apiKey, from, templateID, uiRoot string, couponTTLDays int, log *logrus.Logger) *SendGridSender {
	return &SendGridSender{
		client:     sendgrid.NewSendClient(apiKey),
		from:       from,
		templateID: templateID,
		uiRoot:     uiRoot,
		couponTTL:  time.Duration(couponTTLDays) * 24 * time.Hour,
		log:        log,
		now:        func() time.Time { return time.Now() },
	}
}

func (s *SendGridSender) SendCoupon(ctx context.Context, email, token, recipient string) (int, error) {
	s.log.Infof("Sending email through sendgrid to recipient: %s", email)

	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail("", s.from))
	m.SetTemplateID(s.templateID)

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail(recipient, email))
	p.SetDynamicTemplateData("coupon", token)
	p.SetDynamicTemplateData("expireDate", s.now().Add(s.couponTTL).Format("01-02-2006"))
	p.SetDynamicTemplateData("url", s.uiRoot)
	p.SetDynamicTemplateData("user", recipient)
	m.AddPersonalizations(p)

	resp, err := s.client.SendWithContext(ctx, m)
	if err != nil {
		return 0, err
	}
	return resp.StatusCode, nil
}
