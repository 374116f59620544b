package reminder

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strings"
	"time"

	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"

	"kasirkredit/backend/internal/money"
)

// sendTimeout bounds one SMTP conversation when the caller's context has no
// earlier deadline.
const sendTimeout = 30 * time.Second

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Sender   string
}

// EmailNotifier sends plain-text reminders through SMTP.
type EmailNotifier struct {
	cfg    SMTPConfig
	symbol string
	log    logrus.FieldLogger
	send   func(ctx context.Context, e *email.Email) error
}

func NewEmailNotifier(cfg SMTPConfig, currencySymbol string, log logrus.FieldLogger) *EmailNotifier {
	n := &EmailNotifier{cfg: cfg, symbol: currencySymbol, log: log.WithField("component", "reminder-email")}
	n.send = n.deliver
	return n
}

func (n *EmailNotifier) Notify(ctx context.Context, reminder Reminder) error {
	if strings.TrimSpace(reminder.Customer.Email) == "" {
		return ErrNoRecipient
	}

	e := n.buildMessage(reminder)
	if err := n.send(ctx, e); err != nil {
		return fmt.Errorf("failed to send reminder to %s: %w", reminder.Customer.Email, err)
	}
	n.log.WithField("customer_id", reminder.Customer.ID).Infof("reminder sent to %s", reminder.Customer.Email)
	return nil
}

// deliver runs one SMTP session. The connection deadline follows ctx, so a
// server that stops answering fails the send instead of stalling the job.
func (n *EmailNotifier) deliver(ctx context.Context, e *email.Email) error {
	deadline := time.Now().Add(sendTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	dialer := net.Dialer{Deadline: deadline}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(n.cfg.Host, n.cfg.Port))
	if err != nil {
		return err
	}
	if err := conn.SetDeadline(deadline); err != nil {
		_ = conn.Close()
		return err
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	client, err := smtp.NewClient(conn, n.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: n.cfg.Host}); err != nil {
			return err
		}
	}
	if n.cfg.Username != "" {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)); err != nil {
				return err
			}
		}
	}

	from, err := mail.ParseAddress(e.From)
	if err != nil {
		return fmt.Errorf("invalid sender %q: %w", e.From, err)
	}
	if err := client.Mail(from.Address); err != nil {
		return err
	}
	for _, rcpt := range e.To {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}
	raw, err := e.Bytes()
	if err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(raw); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

func (n *EmailNotifier) buildMessage(reminder Reminder) *email.Email {
	e := email.NewEmail()
	e.From = n.cfg.Sender
	e.To = []string{reminder.Customer.Email}
	e.Subject = "Overdue installment reminder"

	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", reminder.Customer.FullName)
	fmt.Fprintf(&b, "As of %s the following installments are overdue:\n\n", reminder.AsOf)
	for _, inst := range reminder.Installments {
		fmt.Fprintf(&b, "- Credit %s, installment %d, due %s (%d days): %s\n",
			inst.CreditID, inst.Sequence, inst.DueDate.Format("2006-01-02"), inst.DaysOverdue,
			money.Format(n.symbol, inst.PendingCents))
	}
	fmt.Fprintf(&b, "\nTotal pending: %s\n", money.Format(n.symbol, reminder.TotalPendingCents))
	b.WriteString("Please visit the store to settle your balance.\n")
	e.Text = []byte(b.String())
	return e
}

// LogNotifier only logs reminders. It is used when SMTP is not configured.
type LogNotifier struct {
	Log    logrus.FieldLogger
	Symbol string
}

func (n LogNotifier) Notify(_ context.Context, reminder Reminder) error {
	n.Log.WithFields(logrus.Fields{
		"component":     "reminder",
		"customer_id":   reminder.Customer.ID,
		"installments":  len(reminder.Installments),
		"total_pending": money.Format(n.Symbol, reminder.TotalPendingCents),
	}).Info("overdue reminder")
	return nil
}
