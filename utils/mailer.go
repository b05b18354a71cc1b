package utils

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"

	"hackreg/config"
)

// Embedded shell every outgoing email is wrapped in. Bodies are trusted
// HTML fragments produced by the application itself.
const emailShell = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Subject}}</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { color: #2c3e50; border-bottom: 1px solid #eee; padding-bottom: 10px; }
        .content { margin: 20px 0; }
        .footer { margin-top: 30px; font-size: 12px; color: #7f8c8d; text-align: center; }
        a { color: #3498db; }
    </style>
</head>
<body>
    <div class="header"><h2>{{.Subject}}</h2></div>
    <div class="content">{{.Body}}</div>
    <div class="footer"><p>© {{.Year}} Hackathon Registration. All rights reserved.</p></div>
</body>
</html>`

// Mailer delivers transactional email over SMTP.
type Mailer struct {
	dialer *gomail.Dialer
	from   string
	tmpl   *template.Template
	log    *logrus.Logger
}

func NewMailer(cfg *config.Config, log *logrus.Logger) *Mailer {
	return &Mailer{
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword),
		from:   cfg.FromEmail,
		tmpl:   template.Must(template.New("email").Parse(emailShell)),
		log:    log,
	}
}

// Send wraps body in the shared shell and delivers it. Failures are
// reported to Sentry before being returned; callers decide whether a
// failed send fails the operation.
func (m *Mailer) Send(to, subject, body string) error {
	var rendered bytes.Buffer
	err := m.tmpl.Execute(&rendered, struct {
		Subject string
		Body    template.HTML
		Year    int
	}{
		Subject: subject,
		Body:    template.HTML(body),
		Year:    time.Now().Year(),
	})
	if err != nil {
		return fmt.Errorf("render email: %w", err)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", rendered.String())

	if err := m.dialer.DialAndSend(msg); err != nil {
		sentry.CaptureException(err)
		m.log.WithError(err).WithField("to", to).Error("failed to send email")
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}
