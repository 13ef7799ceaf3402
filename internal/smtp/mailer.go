package smtp

import (
	"bytes"
	"context"
	"time"

	"github.com/cradoe/songbid/assets"
	"github.com/cradoe/songbid/internal/funcs"

	"github.com/wneessen/go-mail"

	htmlTemplate "html/template"
	textTemplate "text/template"
)

const (
	defaultTimeout = 10 * time.Second
	sendAttempts   = 3
	retryDelay     = 2 * time.Second
)

type MailClient interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

type MailerInterface interface {
	Send(ctx context.Context, recipient string, data any, patterns ...string) error
}

type Mailer struct {
	client MailClient
	from   string
}

func NewMailer(host string, port int, username, password, from string) (*Mailer, error) {
	client, err := mail.NewClient(
		host,
		mail.WithTimeout(defaultTimeout),
		mail.WithPort(port),
		mail.WithUsername(username),
		mail.WithPassword(password),
		mail.WithTLSPolicy(mail.NoTLS),
	)
	if err != nil {
		return nil, err
	}

	return &Mailer{
		client: client,
		from:   from,
	}, nil
}

// Send renders the "subject", "plainBody" and optional "htmlBody" templates
// from the named files under assets/emails and delivers the message.
func (m *Mailer) Send(ctx context.Context, recipient string, data any, patterns ...string) error {
	msg, err := m.build(recipient, data, patterns...)
	if err != nil {
		return err
	}

	for i := 1; i <= sendAttempts; i++ {
		err = m.client.DialAndSendWithContext(ctx, msg)
		if err == nil {
			return nil
		}

		if i == sendAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay):
		}
	}

	return err
}

func (m *Mailer) build(recipient string, data any, patterns ...string) (*mail.Msg, error) {
	files := make([]string, len(patterns))
	for i := range patterns {
		files[i] = "emails/" + patterns[i]
	}

	msg := mail.NewMsg()

	if err := msg.To(recipient); err != nil {
		return nil, err
	}

	if err := msg.From(m.from); err != nil {
		return nil, err
	}

	ts, err := textTemplate.New("").Funcs(funcs.TemplateFuncs).ParseFS(assets.EmbeddedFiles, files...)
	if err != nil {
		return nil, err
	}

	subject := new(bytes.Buffer)
	if err := ts.ExecuteTemplate(subject, "subject", data); err != nil {
		return nil, err
	}

	msg.Subject(subject.String())

	plainBody := new(bytes.Buffer)
	if err := ts.ExecuteTemplate(plainBody, "plainBody", data); err != nil {
		return nil, err
	}

	msg.SetBodyString(mail.TypeTextPlain, plainBody.String())

	if ts.Lookup("htmlBody") != nil {
		ts, err := htmlTemplate.New("").Funcs(funcs.TemplateFuncs).ParseFS(assets.EmbeddedFiles, files...)
		if err != nil {
			return nil, err
		}

		htmlBody := new(bytes.Buffer)
		if err := ts.ExecuteTemplate(htmlBody, "htmlBody", data); err != nil {
			return nil, err
		}

		msg.AddAlternativeString(mail.TypeTextHTML, htmlBody.String())
	}

	return msg, nil
}
