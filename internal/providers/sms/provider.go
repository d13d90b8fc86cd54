package sms

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/fieldbooks/internal/config"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidRecipient = errors.New("sms_invalid_recipient")

var Module = fx.Module("providers.sms",
	fx.Provide(NewFromConfig),
)

type Provider interface {
	Send(ctx context.Context, to, body string) error
}

type NoOpProvider struct{}

func (NoOpProvider) Send(context.Context, string, string) error { return nil }

type messageAPI interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioProvider sends text messages through the Twilio messages API.
type TwilioProvider struct {
	api  messageAPI
	from string
	log  *zap.Logger
}

func NewTwilio(cfg config.SMSConfig, log *zap.Logger) *TwilioProvider {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.TwilioAccountSID,
		Password: cfg.TwilioAuthToken,
	})
	return &TwilioProvider{api: client.Api, from: cfg.FromNumber, log: log.Named("sms.twilio")}
}

func (p *TwilioProvider) Send(ctx context.Context, to, body string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return ErrInvalidRecipient
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(p.from)
	params.SetBody(body)

	resp, err := p.api.CreateMessage(params)
	if err != nil {
		return err
	}
	if resp != nil && resp.Sid != nil {
		p.log.Debug("sms sent", zap.String("sid", *resp.Sid))
	}
	return nil
}

func NewFromConfig(cfg config.Config, log *zap.Logger) Provider {
	if cfg.SMS.TwilioAccountSID == "" || cfg.SMS.TwilioAuthToken == "" || cfg.SMS.FromNumber == "" {
		return NoOpProvider{}
	}
	return NewTwilio(cfg.SMS, log)
}
