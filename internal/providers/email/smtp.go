package email

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

var ErrNoRecipients = errors.New("email: no recipients")

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SMTPProvider struct {
	cfg  Config
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTP(cfg Config) *SMTPProvider {
	return &SMTPProvider{cfg: cfg, send: smtp.SendMail}
}

func (p *SMTPProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	if len(to) == 0 {
		return ErrNoRecipients
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if p.cfg.Username != "" {
		auth = smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%d", p.cfg.Host, p.cfg.Port)

	headers := []string{
		"From: " + p.cfg.From,
		"To: " + strings.Join(to, ", "),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		`Content-Type: text/html; charset="UTF-8"`,
	}
	msg := []byte(strings.Join(headers, "\r\n") + "\r\n\r\n" + htmlBody)

	return p.send(addr, auth, p.cfg.From, to, msg)
}

// SendTemplate renders templates/<name>.html. The "subject" key of data
// overrides the default subject of the template.
func (p *SMTPProvider) SendTemplate(ctx context.Context, to []string, templateName string, data map[string]any) error {
	subject, body, err := Render(templateName, data)
	if err != nil {
		return err
	}
	return p.Send(ctx, to, subject, body)
}

// Render executes a named template and resolves its subject.
func Render(templateName string, data map[string]any) (string, string, error) {
	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, templateName+".html", data); err != nil {
		return "", "", fmt.Errorf("render template %s: %w", templateName, err)
	}

	if subj, ok := data["subject"].(string); ok && subj != "" {
		return subj, body.String(), nil
	}

	orgName, _ := data["org_name"].(string)
	if orgName == "" {
		orgName = "your organization"
	}
	var subject string
	switch templateName {
	case "invite_member":
		subject = fmt.Sprintf("You're invited to join %s", orgName)
	case "member_added":
		subject = fmt.Sprintf("Welcome to %s", orgName)
	case "member_removed":
		subject = fmt.Sprintf("You were removed from %s", orgName)
	case "role_changed":
		subject = fmt.Sprintf("Your role in %s changed", orgName)
	case "ownership_transferred":
		subject = fmt.Sprintf("Ownership of %s was transferred", orgName)
	default:
		subject = "Notification from Mailseat"
	}
	return subject, body.String(), nil
}
