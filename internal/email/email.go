// Package email sends task outcome notifications over SMTP.
package email

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"time"

	"github.com/halftone-io/halftone/internal/logger"
)

// Config holds email service configuration.
type Config struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	FromAddress  string
	FromName     string
	BaseURL      string // For links in emails
}

// Service handles sending emails.
type Service struct {
	cfg Config
}

func NewService(cfg Config) *Service {
	return &Service{cfg: cfg}
}

// EmailData contains common email template data.
type EmailData struct {
	RecipientName string
	BaseURL       string
	Year          int
}

// TaskCompletedData contains data for the task completion email.
type TaskCompletedData struct {
	EmailData
	TaskID   string
	Filename string
	TaskURL  string
}

// TaskFailedData contains data for the task failure email.
type TaskFailedData struct {
	EmailData
	TaskID   string
	Filename string
	Reason   string
}

// Send sends an email with the given subject and body.
func (s *Service) Send(to, subject, htmlBody string) error {
	log := logger.Default()

	from := fmt.Sprintf("%s <%s>", s.cfg.FromName, s.cfg.FromAddress)

	msg := fmt.Sprintf("From: %s\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"MIME-Version: 1.0\r\n"+
		"Content-Type: text/html; charset=UTF-8\r\n"+
		"\r\n"+
		"%s", from, to, subject, htmlBody)

	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPHost, s.cfg.SMTPPort)

	var auth smtp.Auth
	if s.cfg.SMTPUsername != "" && s.cfg.SMTPPassword != "" {
		auth = smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	}

	err := smtp.SendMail(addr, auth, s.cfg.FromAddress, []string{to}, []byte(msg))
	if err != nil {
		log.Error("email send failed", "to", to, "subject", subject, "error", err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	log.Info("email sent", "to", to, "subject", subject)
	return nil
}

// SendTaskCompleted notifies the user their image finished processing.
// filename is the original upload name and may be empty.
func (s *Service) SendTaskCompleted(to, name, taskID, filename string) error {
	data := TaskCompletedData{
		EmailData: EmailData{
			RecipientName: name,
			BaseURL:       s.cfg.BaseURL,
			Year:          time.Now().Year(),
		},
		TaskID:   taskID,
		Filename: filename,
		TaskURL:  fmt.Sprintf("%s/tasks/%s", s.cfg.BaseURL, taskID),
	}

	html, err := s.renderTemplate(taskCompletedTemplate, data)
	if err != nil {
		return err
	}

	return s.Send(to, "Your image is ready", html)
}

// SendTaskFailed notifies the user their task could not be processed.
func (s *Service) SendTaskFailed(to, name, taskID, filename, reason string) error {
	data := TaskFailedData{
		EmailData: EmailData{
			RecipientName: name,
			BaseURL:       s.cfg.BaseURL,
			Year:          time.Now().Year(),
		},
		TaskID:   taskID,
		Filename: filename,
		Reason:   reason,
	}

	html, err := s.renderTemplate(taskFailedTemplate, data)
	if err != nil {
		return err
	}

	return s.Send(to, "Image processing failed", html)
}

func (s *Service) renderTemplate(tmpl string, data any) (string, error) {
	t, err := template.New("email").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse email template: %w", err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render email template: %w", err)
	}
	return buf.String(), nil
}

const taskCompletedTemplate = `<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #222;">
  <h2>Your image is ready</h2>
  <p>Hi {{.RecipientName}},</p>
  <p>{{if .Filename}}Your image <strong>{{.Filename}}</strong>{{else}}Your image{{end}}
  has finished processing (task <code>{{.TaskID}}</code>). You can view and
  download the result here:</p>
  <p><a href="{{.TaskURL}}">{{.TaskURL}}</a></p>
  <p style="color: #888; font-size: 12px;">&copy; {{.Year}} Halftone</p>
</body>
</html>`

const taskFailedTemplate = `<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #222;">
  <h2>Image processing failed</h2>
  <p>Hi {{.RecipientName}},</p>
  <p>{{if .Filename}}Your image <strong>{{.Filename}}</strong>{{else}}Your image{{end}}
  could not be processed (task <code>{{.TaskID}}</code>):</p>
  <p><em>{{.Reason}}</em></p>
  <p>You can create a new task from your dashboard at
  <a href="{{.BaseURL}}">{{.BaseURL}}</a>.</p>
  <p style="color: #888; font-size: 12px;">&copy; {{.Year}} Halftone</p>
</body>
</html>`
