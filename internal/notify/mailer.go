package notify

import (
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// SMTPDispatcher sends mail through gomail. Each Send runs in its own
// goroutine; the caller never waits on SMTP.
type SMTPDispatcher struct {
	dialer *gomail.Dialer
	from   string
	lg     *zap.SugaredLogger
}

// NewFromEnv builds an SMTP dispatcher from SMTP_HOST/SMTP_PORT/SMTP_USERNAME/
// SMTP_PASSWORD/SMTP_FROM. With no SMTP_HOST configured it falls back to a
// log-only dispatcher so development setups work without a mail server.
func NewFromEnv(lg *zap.SugaredLogger) Dispatcher {
	host := os.Getenv("SMTP_HOST")
	if host == "" {
		lg.Infow("SMTP not configured, notifications will be logged only")
		return &LogDispatcher{lg: lg}
	}
	port := 587
	if p, err := strconv.Atoi(os.Getenv("SMTP_PORT")); err == nil && p > 0 {
		port = p
	}
	from := os.Getenv("SMTP_FROM")
	if from == "" {
		from = "helpdesk@localhost"
	}
	return &SMTPDispatcher{
		dialer: gomail.NewDialer(host, port, os.Getenv("SMTP_USERNAME"), os.Getenv("SMTP_PASSWORD")),
		from:   from,
		lg:     lg,
	}
}

func (d *SMTPDispatcher) Send(template Template, to Recipient, data Data) {
	go func() {
		subject, body := render(template, data)
		m := gomail.NewMessage()
		m.SetHeader("From", d.from)
		m.SetAddressHeader("To", to.Email, to.Name)
		m.SetHeader("Subject", subject)
		m.SetBody("text/plain", body)
		if err := d.dialer.DialAndSend(m); err != nil {
			d.lg.Errorw("notification delivery failed",
				"template", template,
				"recipient", to.Email,
				"error", err,
			)
		}
	}()
}

// LogDispatcher records would-be notifications in the log.
type LogDispatcher struct {
	lg *zap.SugaredLogger
}

func (d *LogDispatcher) Send(template Template, to Recipient, data Data) {
	d.lg.Infow("notification", "template", template, "recipient", to.Email, "ticket_key", data["ticket_key"])
}

func render(template Template, data Data) (subject, body string) {
	key := data["ticket_key"]
	title := data["ticket_title"]
	switch template {
	case TemplateTicketCreated:
		return fmt.Sprintf("[%s] New Ticket: %s", key, title),
			fmt.Sprintf("A new ticket %s has been created.\n\n%s\n\nReported by: %s\n", key, title, data["actor"])
	case TemplateTicketAssigned:
		return fmt.Sprintf("[%s] Ticket Assigned to You: %s", key, title),
			fmt.Sprintf("Ticket %s has been assigned to you.\n\n%s\n", key, title)
	case TemplateTicketCommented:
		return fmt.Sprintf("[%s] New Comment on: %s", key, title),
			fmt.Sprintf("%s commented on ticket %s:\n\n%s\n", data["actor"], key, data["comment_text"])
	default:
		return fmt.Sprintf("[%s] Ticket Update", key), fmt.Sprintf("Ticket %s was updated.\n", key)
	}
}
