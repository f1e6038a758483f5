package email

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"
)

// Mailer renders the application's emails and hands them to a Sender.
type Mailer struct {
	sender  Sender
	baseURL string
}

func NewMailer(sender Sender, baseURL string) *Mailer {
	return &Mailer{sender: sender, baseURL: strings.TrimRight(baseURL, "/")}
}

// SendLoginCode sends a one-time sign-in code.
func (m *Mailer) SendLoginCode(ctx context.Context, to, code, purpose string) error {
	subject := "Your CabinShare sign-in code"
	action := "sign in"
	if purpose == "register" {
		subject = "Welcome to CabinShare"
		action = "finish creating your account"
	}
	text := fmt.Sprintf("Use this code to %s:\n\n%s\n\nThe code expires in 15 minutes.", action, code)
	body := fmt.Sprintf(
		`<p>Use this code to %s:</p><p style="font-size:24px;letter-spacing:4px"><strong>%s</strong></p><p>The code expires in 15 minutes.</p>`,
		action, html.EscapeString(code),
	)
	return m.sender.Send(ctx, Message{To: to, Subject: subject, TextBody: text, HTMLBody: body})
}

// SendInvite sends a family group invitation carrying a signed link.
func (m *Mailer) SendInvite(ctx context.Context, to, orgName, groupName, token string) error {
	link := fmt.Sprintf("%s/invite?token=%s", m.baseURL, token)
	subject := fmt.Sprintf("You've been invited to %s on CabinShare", orgName)
	text := fmt.Sprintf("You have been invited to join the %s family group at %s.\n\nAccept the invitation:\n%s\n\nThe link expires in 7 days.",
		groupName, orgName, link)
	body := fmt.Sprintf(`<p>You have been invited to join the <strong>%s</strong> family group at %s.</p><p><a href="%s">Accept the invitation</a></p><p>The link expires in 7 days.</p>`,
		html.EscapeString(groupName), html.EscapeString(orgName), html.EscapeString(link))
	return m.sender.Send(ctx, Message{To: to, Subject: subject, TextBody: text, HTMLBody: body})
}

// TurnNotice describes a family group's selection turn.
type TurnNotice struct {
	OrganizationName string
	FamilyGroupName  string
	RotationYear     int
	Phase            string
	Deadline         *time.Time
}

// SendSelectionTurn tells a family group lead it is their turn to pick dates.
func (m *Mailer) SendSelectionTurn(ctx context.Context, to string, n TurnNotice) error {
	subject := fmt.Sprintf("%s: it's your turn to select %d dates", n.OrganizationName, n.RotationYear)
	deadline := "There is no deadline for this turn."
	if n.Deadline != nil {
		deadline = "Your turn ends " + n.Deadline.UTC().Format("Monday, January 2 at 15:04 MST") + "."
	}
	link := m.baseURL + "/calendar"
	text := fmt.Sprintf("It is now %s's %s selection turn for %d at %s.\n\n%s\n\nPick your dates:\n%s",
		n.FamilyGroupName, n.Phase, n.RotationYear, n.OrganizationName, deadline, link)
	body := fmt.Sprintf(`<p>It is now <strong>%s</strong>'s %s selection turn for %d at %s.</p><p>%s</p><p><a href="%s">Pick your dates</a></p>`,
		html.EscapeString(n.FamilyGroupName), html.EscapeString(n.Phase), n.RotationYear,
		html.EscapeString(n.OrganizationName), html.EscapeString(deadline), html.EscapeString(link))
	return m.sender.Send(ctx, Message{To: to, Subject: subject, TextBody: text, HTMLBody: body})
}

// ReminderLine is one outstanding payment in a reminder.
type ReminderLine struct {
	Description      string
	DueDate          string
	OutstandingCents int64
}

// PaymentReminder lists a family group's outstanding payments.
type PaymentReminder struct {
	OrganizationName string
	FamilyGroupName  string
	Lines            []ReminderLine
}

// TotalCents sums the outstanding amounts.
func (r PaymentReminder) TotalCents() int64 {
	var total int64
	for _, l := range r.Lines {
		total += l.OutstandingCents
	}
	return total
}

// SendPaymentReminder emails a family group lead their outstanding balance.
func (m *Mailer) SendPaymentReminder(ctx context.Context, to string, r PaymentReminder) error {
	subject := fmt.Sprintf("%s: payment reminder (%s outstanding)", r.OrganizationName, FormatCents(r.TotalCents()))

	var text, rows strings.Builder
	fmt.Fprintf(&text, "Outstanding payments for %s:\n\n", r.FamilyGroupName)
	for _, l := range r.Lines {
		due := l.DueDate
		if due == "" {
			due = "no due date"
		}
		fmt.Fprintf(&text, "- %s (%s): %s\n", l.Description, due, FormatCents(l.OutstandingCents))
		fmt.Fprintf(&rows, "<tr><td>%s</td><td>%s</td><td>%s</td></tr>",
			html.EscapeString(l.Description), html.EscapeString(due), FormatCents(l.OutstandingCents))
	}
	fmt.Fprintf(&text, "\nTotal: %s\n\n%s/payments", FormatCents(r.TotalCents()), m.baseURL)

	body := fmt.Sprintf(`<p>Outstanding payments for <strong>%s</strong>:</p><table>%s</table><p>Total: <strong>%s</strong></p><p><a href="%s/payments">View payments</a></p>`,
		html.EscapeString(r.FamilyGroupName), rows.String(), FormatCents(r.TotalCents()), html.EscapeString(m.baseURL))
	return m.sender.Send(ctx, Message{To: to, Subject: subject, TextBody: text.String(), HTMLBody: body})
}

// FormatCents renders cents as dollars, e.g. 123456 -> "$1,234.56".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	whole := fmt.Sprintf("%d", cents/100)
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return fmt.Sprintf("%s$%s.%02d", sign, b.String(), cents%100)
}
