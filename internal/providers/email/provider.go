package email

import "context"

type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

type Message struct {
	To          []string
	Subject     string
	HTMLBody    string
	Attachments []Attachment
}

type Provider interface {
	Send(ctx context.Context, msg Message) error
}

// NoOpProvider drops every message. It is used when SMTP is not configured.
type NoOpProvider struct{}

func (p *NoOpProvider) Send(context.Context, Message) error {
	return nil
}
