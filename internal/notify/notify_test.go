package notify

import (
	"context"
	"errors"
	"lodgemirror/internal/changes"
	"lodgemirror/internal/components/telemetry"
	"lodgemirror/internal/runner"
	"lodgemirror/internal/snapshot"
	"net/smtp"
	"testing"

	"github.com/jordan-wright/email"
	"github.com/stretchr/testify/require"
)

type sentMail struct {
	mail *email.Email
	addr string
	auth smtp.Auth
}

func newTestNotifier(results ...error) (Notifier, *[]sentMail, *telemetry.TestAPI) {
	tel := telemetry.NewTestAPI()
	n := New(SmtpConfig{
		Server:       "smtp.example.com",
		EmailAddress: "mirror@example.com",
		Password:     "hunter2",
		Recipients:   []string{"ops@example.com"},
	}, tel)

	var sent []sentMail
	n.send = func(mail *email.Email, addr string, auth smtp.Auth) error {
		sent = append(sent, sentMail{mail: mail, addr: addr, auth: auth})
		if len(results) == 0 {
			return nil
		}
		err := results[0]
		results = results[1:]
		return err
	}
	return n, &sent, tel
}

func changedReport() runner.Report {
	return runner.Report{
		Total:      2,
		Scraped:    1,
		Discovered: []string{"Iono"},
		Failures:   []runner.Failure{{Trainer: "Lance", Kind: runner.FailureMalformed}},
		Changes: []changes.Change{
			{Kind: changes.KindNew, Trainer: "Iono", Summary: "1 tiers, 3 topics"},
			{Kind: changes.KindRemoved, Trainer: "Lance"},
		},
		Metadata: snapshot.Metadata{LastUpdated: "2024-10-01 09:30 UTC", TotalTopics: 3},
	}
}

func TestMessage(t *testing.T) {
	mail := Message(changedReport())
	require.Equal(t, "Trainer Lodge: 2 changes", mail.Subject)
	require.Equal(t, `Run of 2024-10-01 09:30 UTC
Scraped 1/2 trainers, 3 topics in total.

Newly discovered trainers: Iono

Changes:
  [NEW TRAINER] Iono - 1 tiers, 3 topics
  [REMOVED TRAINER] Lance

Failed trainers:
  Lance (malformed_response)
`, string(mail.Text))

	failed := runner.Report{
		Total:    3,
		Failures: []runner.Failure{{Trainer: "A"}, {Trainer: "B"}},
	}
	require.Equal(t, "Trainer Lodge: run failed (2 of 3 trainers)", Message(failed).Subject)
}

func TestRunFinishedSends(t *testing.T) {
	n, sent, tel := newTestNotifier()

	err := n.RunFinished(context.Background(), changedReport())
	require.NoError(t, err)
	require.Len(t, *sent, 1)

	mail := (*sent)[0]
	require.Equal(t, "smtp.example.com:587", mail.addr)
	require.NotNil(t, mail.auth)
	require.Equal(t, []string{"ops@example.com"}, mail.mail.To)
	require.Equal(t, "Trainer Lodge Mirror <mirror@example.com>", mail.mail.From)
	require.Len(t, tel.Reports("info", "sent run summary"), 1)
}

func TestRunFinishedQuietRun(t *testing.T) {
	n, sent, _ := newTestNotifier()

	err := n.RunFinished(context.Background(), runner.Report{Total: 50, Scraped: 50})
	require.NoError(t, err)
	require.Empty(t, *sent)
}

func TestRunFinishedWithoutAuth(t *testing.T) {
	n, sent, _ := newTestNotifier(errors.New("smtp: server doesn't support AUTH"))

	err := n.RunFinished(context.Background(), changedReport())
	require.NoError(t, err)
	require.Len(t, *sent, 2)
	require.Nil(t, (*sent)[1].auth)
}

func TestRunFinishedFailure(t *testing.T) {
	n, _, tel := newTestNotifier(errors.New("dial tcp: connection refused"))

	err := n.RunFinished(context.Background(), changedReport())
	require.Error(t, err)
	require.Len(t, tel.Reports("broken", report_notifier_send), 1)
}

func TestSmtpConfigEnabled(t *testing.T) {
	require.False(t, SmtpConfig{}.Enabled())
	require.False(t, SmtpConfig{Server: "smtp.example.com"}.Enabled())
	require.True(t, SmtpConfig{Server: "smtp.example.com", Recipients: []string{"a@example.com"}}.Enabled())
}
