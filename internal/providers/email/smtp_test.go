package email

import (
	"context"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMTPSendComposesAttachment(t *testing.T) {
	p := NewSMTP(Config{Host: "mail.local", Port: 2525, From: "billing@fieldbooks.local"})

	var gotAddr string
	var gotTo []string
	var gotMsg string
	p.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		assert.Nil(t, a)
		return nil
	}

	err := p.Send(context.Background(), Message{
		To:       []string{"ap@acme.test"},
		Subject:  "Invoice INV-00001",
		HTMLBody: "<p>Hello</p>",
		Attachments: []Attachment{{
			Filename:    "INV-00001.pdf",
			ContentType: "application/pdf",
			Data:        []byte(strings.Repeat("x", 200)),
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, "mail.local:2525", gotAddr)
	assert.Equal(t, []string{"ap@acme.test"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: Invoice INV-00001")
	assert.Contains(t, gotMsg, "multipart/mixed")
	assert.Contains(t, gotMsg, `filename=INV-00001.pdf`)
	assert.Contains(t, gotMsg, "<p>Hello</p>")
}

func TestSMTPSendRequiresRecipients(t *testing.T) {
	p := NewSMTP(Config{Host: "mail.local", Port: 25})
	assert.ErrorIs(t, p.Send(context.Background(), Message{}), ErrNoRecipients)
}
