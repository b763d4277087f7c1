package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SMTPDispatcher struct {
	cfg       Config
	templates *template.Template
}

var defaultTemplates = template.Must(template.New("notify").Parse(`
{{define "bill_created"}}<p>A new bill of {{.amount}} has been issued.</p>{{end}}
{{define "payment_receipt"}}<p>Payment of {{.amount}} received. Thank you.</p>{{end}}
{{define "bill_overdue"}}<p>Your bill is overdue. A late fee of {{.amount}} was applied.</p>{{end}}
{{define "service_suspended"}}<p>Your service has been suspended for non-payment.</p>{{end}}
{{define "service_reactivated"}}<p>Your service has been reactivated.</p>{{end}}
{{define "subscription_expiring"}}<p>Your subscription expires soon.</p>{{end}}
{{define "subscription_suspended"}}<p>Your subscription has been suspended.</p>{{end}}
`))

func NewSMTP(cfg Config) *SMTPDispatcher {
	return &SMTPDispatcher{cfg: cfg, templates: defaultTemplates}
}

func (p *SMTPDispatcher) Notify(ctx context.Context, recipient string, templateName string, payload map[string]any) error {
	var body bytes.Buffer
	if err := p.templates.ExecuteTemplate(&body, templateName, payload); err != nil {
		return fmt.Errorf("render template %q: %w", templateName, err)
	}

	subject := subjectFor(templateName)
	mime := "MIME-version: 1.0;\nContent-Type: text/html; charset=\"UTF-8\";\n\n"
	msg := []byte(fmt.Sprintf("To: %s\r\nSubject: %s\r\n%s\r\n%s", recipient, subject, mime, body.String()))

	auth := smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)
	addr := fmt.Sprintf("%s:%d", p.cfg.Host, p.cfg.Port)
	return smtp.SendMail(addr, auth, p.cfg.From, []string{recipient}, msg)
}

func subjectFor(templateName string) string {
	switch templateName {
	case "payment_receipt":
		return "Payment received"
	case "bill_overdue":
		return "Bill overdue"
	case "service_suspended":
		return "Service suspended"
	case "service_reactivated":
		return "Service reactivated"
	case "subscription_expiring":
		return "Subscription expiring"
	case "subscription_suspended":
		return "Subscription suspended"
	default:
		return "Billing notification"
	}
}
