package sms

import (
	"context"
	"errors"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Twilioの認証情報が無い
var ErrNotConfigured = errors.New("sms sender is not configured")

// TwilioのMessages APIでSMSを送る
type TwilioSender struct {
	client *twilio.RestClient
	from   string
}

func NewTwilioSender(accountSID, authToken, from string) *TwilioSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioSender{client: client, from: from}
}

func (s *TwilioSender) Send(ctx context.Context, to string, body string) error {
	const op = "sms.TwilioSender.Send"

	//twilio-goはctxを受け取らないので、開始前だけ確認する
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.from)
	params.SetBody(body)

	if _, err := s.client.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// 設定が無い環境用。常にErrNotConfiguredを返す
type Disabled struct{}

func (Disabled) Send(context.Context, string, string) error {
	return ErrNotConfigured
}
