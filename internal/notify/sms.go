package notify

import (
	"context"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioSender delivers invitation texts through the Twilio messaging API.
type TwilioSender struct {
	client *twilio.RestClient
	from   string
	uiRoot string
	log    *logrus.Logger
}

func NewTwilioSender(accountSID, authToken, from, uiRoot string, log *logrus.Logger) *TwilioSender {
	return &TwilioSender{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
		}),
		from:   from,
		uiRoot: uiRoot,
		log:    log,
	}
}

func (s *TwilioSender) SendCoupon(ctx context.Context, phoneNumber, token string) (int, error) {
	to := "+1" + strings.ReplaceAll(phoneNumber, "-", "")

	params := &twilioapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.from)
	params.SetBody(SMSMessage(s.uiRoot, token))

	if _, err := s.client.Api.CreateMessage(params); err != nil {
		s.log.Errorf("Failed to send SMS message to %s: %v", to, err)
		return http.StatusBadGateway, err
	}
	s.log.Infof("SMS message successfully sent to %s", to)
	return http.StatusOK, nil
}
