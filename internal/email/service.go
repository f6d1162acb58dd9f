// Package email notifies reviewers over SMTP.
package email

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
)

var ErrNotConfigured = errors.New("email not configured")

type Config struct {
	Host      string
	Port      string
	Username  string
	Password  string
	From      string
	FromName  string
	Reviewers []string
	AppURL    string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Service struct {
	config Config
	server string
	auth   smtp.Auth
	send   sendFunc
}

func NewService(config Config) *Service {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
	}
}

func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// Reviewers returns the configured recipient list with blanks removed.
func (s *Service) Reviewers() []string {
	out := make([]string, 0, len(s.config.Reviewers))
	for _, addr := range s.config.Reviewers {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

// SendHTMLEmail sends a multipart message with a plain-text fallback.
func (s *Service) SendHTMLEmail(to []string, subject, textBody, htmlBody string) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}
	if len(to) == 0 {
		return fmt.Errorf("send email: no recipients")
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}
	boundary := "boundary-modelcards"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&msg, "%s\r\n\r\n", textBody)

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&msg, "%s\r\n\r\n", htmlBody)
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	if err := s.send(s.server, s.auth, s.config.From, to, msg.Bytes()); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

// ReviewRequest describes a draft waiting for review.
type ReviewRequest struct {
	ProductName   string
	ProductID     string
	DraftID       string
	AuthorID      string
	Summary       string
	ChangedFields []string
	PacketURL     string
}

// SendReviewRequest mails every configured reviewer about a submitted
// draft.
func (s *Service) SendReviewRequest(req ReviewRequest) error {
	reviewers := s.Reviewers()
	if len(reviewers) == 0 {
		return nil
	}
	if req.PacketURL == "" && s.config.AppURL != "" {
		req.PacketURL = strings.TrimSuffix(s.config.AppURL, "/") + "/api/drafts/" + req.DraftID + "/packet"
	}

	html, err := renderTemplate(reviewRequestTemplate, req)
	if err != nil {
		return fmt.Errorf("render review request template: %w", err)
	}
	subject := fmt.Sprintf("Review requested: %s", req.ProductName)
	return s.SendHTMLEmail(reviewers, subject, reviewRequestText(req), html)
}

func reviewRequestText(req ReviewRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s submitted changes to %s for review.\r\n\r\n", req.AuthorID, req.ProductName)
	fmt.Fprintf(&b, "Summary: %s\r\n", req.Summary)
	fmt.Fprintf(&b, "Changed fields: %s\r\n", strings.Join(req.ChangedFields, ", "))
	if req.PacketURL != "" {
		fmt.Fprintf(&b, "Review packet: %s\r\n", req.PacketURL)
	}
	return b.String()
}

func renderTemplate(tmpl string, data interface{}) (string, error) {
	t := template.Must(template.New("email").Parse(tmpl))
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const reviewRequestTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Review requested: {{.ProductName}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #0066cc; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #0066cc; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        code { background: #f3f4f6; padding: 0 4px; border-radius: 3px; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.ProductName}}</h1>
    </div>

    <p><strong>{{.AuthorID}}</strong> submitted changes for review.</p>

    <h3>Summary</h3>
    <p>{{.Summary}}</p>

    <h3>Changed fields</h3>
    <ul>
    {{range .ChangedFields}}<li><code>{{.}}</code></li>{{end}}
    </ul>

    {{if .PacketURL}}
    <p><a href="{{.PacketURL}}" class="button">Open review packet</a></p>
    {{end}}
</body>
</html>`
