// Package notify emails a summary of a run when it changed something or failed.
package notify

import (
	"context"
	"fmt"
	"lodgemirror/internal/components/assert"
	"lodgemirror/internal/components/telemetry"
	"lodgemirror/internal/runner"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
)

const report_notifier_send = "notifier.send"

// SmtpConfig is the "smtp" section of config.json5.
type SmtpConfig struct {
	Server       string   `json:"server"`
	Port         int      `json:"port"`
	EmailAddress string   `json:"email_address"`
	Password     string   `json:"password"`
	Recipients   []string `json:"recipients"`
}

// Enabled is false unless both a server and at least one recipient are configured.
func (c SmtpConfig) Enabled() bool {
	return c.Server != "" && len(c.Recipients) > 0
}

type sendFunc func(mail *email.Email, addr string, auth smtp.Auth) error

func send(mail *email.Email, addr string, auth smtp.Auth) error {
	return mail.Send(addr, auth)
}

// Notifier is a runner.Hook.
type Notifier struct {
	cfg  SmtpConfig
	send sendFunc
	tel  telemetry.API
}

func New(cfg SmtpConfig, tel telemetry.API) Notifier {
	assert.NotEmptyStr(cfg.Server)
	assert.NotNil(tel)

	tel = telemetry.NewScopedAPI("notify", tel)

	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return Notifier{cfg: cfg, send: send, tel: tel}
}

func (n Notifier) RunFinished(ctx context.Context, report runner.Report) error {
	if len(report.Changes) == 0 && !report.TooManyFailures() {
		return nil
	}

	mail := Message(report)
	mail.From = fmt.Sprintf("Trainer Lodge Mirror <%s>", n.cfg.EmailAddress)
	mail.To = n.cfg.Recipients

	addr := fmt.Sprintf("%s:%d", n.cfg.Server, n.cfg.Port)
	err := n.send(
		mail,
		addr,
		smtp.PlainAuth("", n.cfg.EmailAddress, n.cfg.Password, n.cfg.Server),
	)
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = n.send(mail, addr, nil)
	}
	if err != nil {
		n.tel.ReportBroken(report_notifier_send, err, telemetry.KV{Key: "server", Value: addr})
		return err
	}

	n.tel.ReportInfo(
		"sent run summary",
		telemetry.KV{Key: "recipients", Value: len(n.cfg.Recipients)},
	)
	return nil
}

// Message builds the summary mail of a run without its sender or recipients.
func Message(report runner.Report) *email.Email {
	mail := email.NewEmail()

	switch {
	case report.TooManyFailures():
		mail.Subject = fmt.Sprintf(
			"Trainer Lodge: run failed (%d of %d trainers)",
			len(report.Failures), report.Total,
		)
	case len(report.Changes) == 1:
		mail.Subject = "Trainer Lodge: 1 change"
	default:
		mail.Subject = fmt.Sprintf("Trainer Lodge: %d changes", len(report.Changes))
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Run of %s\n", report.Metadata.LastUpdated)
	fmt.Fprintf(
		&body,
		"Scraped %d/%d trainers, %d topics in total.\n",
		report.Scraped, report.Total, report.Metadata.TotalTopics,
	)

	if len(report.Discovered) > 0 {
		fmt.Fprintf(&body, "\nNewly discovered trainers: %s\n", strings.Join(report.Discovered, ", "))
	}

	if len(report.Changes) > 0 {
		body.WriteString("\nChanges:\n")
		for _, c := range report.Changes {
			fmt.Fprintf(&body, "  %s\n", c.String())
		}
	}

	if len(report.Failures) > 0 {
		body.WriteString("\nFailed trainers:\n")
		for _, f := range report.Failures {
			fmt.Fprintf(&body, "  %s (%s)\n", f.Trainer, f.Kind)
		}
	}

	mail.Text = []byte(body.String())
	return mail
}
