package notify

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// adminFallback receives reports about the notifier's own failures.
// A notifier that cannot reach its configured recipients must still
// get word to somebody.
const adminFallback = "root@localhost"

// A Notifier delivers failure reports to operators.  Delivery is
// best effort; a notifier must never cause the run that invoked it
// to fail.
type Notifier interface {
	Report(pkg, errInfo, subject string)
	ReportAdmin(subject, body string)
}

// Mailer is an SMTP backed Notifier.
type Mailer struct {
	l hclog.Logger

	server string
	from   string
	to     string
	admin  string
}

// NewMailer returns a Mailer pointed at the given relay.
func NewMailer(l hclog.Logger, server, from, to, admin string) *Mailer {
	if admin == "" {
		admin = adminFallback
	}
	return &Mailer{
		l:      l.Named("notify"),
		server: server,
		from:   from,
		to:     to,
		admin:  admin,
	}
}

// Report sends one message about one failing package.  The subject
// is a format string receiving the package name.
func (m *Mailer) Report(pkg, errInfo, subject string) {
	subj := fmt.Sprintf(subject, pkg)
	if err := m.send(m.to, subj, errInfo); err != nil {
		m.l.Warn("Error sending report", "package", pkg, "error", err)
		// The fallback is itself best effort.
		if err := m.send(m.admin, "pkgmill notifier failure", err.Error()); err != nil {
			m.l.Error("Error reaching admin fallback", "error", err)
		}
	}
}

// ReportAdmin sends a run-level message to the administrative
// contact.
func (m *Mailer) ReportAdmin(subject, body string) {
	if err := m.send(m.admin, subject, body); err != nil {
		m.l.Error("Error sending admin report", "error", err)
	}
}

func (m *Mailer) send(to, subject, body string) error {
	msg := strings.Join([]string{
		"From: " + m.from,
		"To: " + to,
		"Subject: " + subject,
		"",
		body,
	}, "\r\n")
	return smtp.SendMail(m.server, nil, m.from, []string{to}, []byte(msg))
}
