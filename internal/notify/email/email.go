// Package email sends the club's mass emails over SMTP.
package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jon4hz/clubhub/internal/config"
	mail "github.com/xhit/go-simple-mail/v2"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNotConfigured is returned when sending emails is disabled.
	ErrNotConfigured = errors.New("email service not configured")
	// ErrInvalidMessage is returned when the subject, the message or the recipients are missing.
	ErrInvalidMessage = errors.New("subject, message and recipients are required")
)

const defaultFromName = "Club del 1500"

// Message is the content of a mass email.
type Message struct {
	Subject string `json:"subject"`
	Body    string `json:"message"`
}

// Recipient is a single addressee.
type Recipient struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Delivery is the outcome of the delivery to one recipient.
type Delivery struct {
	Success   bool   `json:"success"`
	Recipient string `json:"recipient"`
	Error     string `json:"error,omitempty"`
}

// Result summarizes a mass email.
type Result struct {
	Successful int        `json:"successful"`
	Failed     int        `json:"failed"`
	Total      int        `json:"total"`
	Details    []Delivery `json:"details"`
}

// Summary returns a one line description of the result.
func (r *Result) Summary() string {
	s := fmt.Sprintf("Emails sent successfully to %d recipients", r.Successful)
	if r.Failed > 0 {
		s += fmt.Sprintf(", %d failed", r.Failed)
	}
	return s
}

// Transport delivers one rendered email.
type Transport interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// Service sends mass emails.
type Service struct {
	config    *config.EmailConfig
	transport Transport
	now       func() time.Time
}

// New creates a new email service delivering over SMTP.
func New(cfg *config.EmailConfig) *Service {
	return NewWithTransport(cfg, &smtpTransport{config: cfg})
}

// NewWithTransport creates a new email service delivering through t.
func NewWithTransport(cfg *config.EmailConfig, t Transport) *Service {
	return &Service{
		config:    cfg,
		transport: t,
		now:       time.Now,
	}
}

// Enabled reports whether sending emails is configured.
func (s *Service) Enabled() bool {
	return s.config != nil && s.config.Enabled
}

// SendMassEmail renders msg for every recipient and delivers the emails concurrently.
// Failed deliveries are reported in the result, not as an error.
func (s *Service) SendMassEmail(ctx context.Context, msg Message, recipients []Recipient) (*Result, error) {
	if !s.Enabled() {
		return nil, ErrNotConfigured
	}
	if strings.TrimSpace(msg.Subject) == "" || strings.TrimSpace(msg.Body) == "" || len(recipients) == 0 {
		return nil, ErrInvalidMessage
	}

	log.Info("Sending mass email", "subject", msg.Subject, "recipients", len(recipients))

	result := &Result{
		Total:   len(recipients),
		Details: make([]Delivery, len(recipients)),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency())
	for i, r := range recipients {
		g.Go(func() error {
			err := s.deliver(gctx, msg, r)

			mu.Lock()
			defer mu.Unlock()
			d := Delivery{Success: err == nil, Recipient: r.Email}
			if err != nil {
				log.Error("Failed to send email", "to", r.Email, "error", err)
				d.Error = err.Error()
				result.Failed++
			} else {
				result.Successful++
			}
			result.Details[i] = d
			return nil
		})
	}
	_ = g.Wait()

	log.Info("Mass email completed", "successful", result.Successful, "failed", result.Failed)
	return result, nil
}

func (s *Service) concurrency() int {
	if s.config.Concurrency > 0 {
		return s.config.Concurrency
	}
	return 1
}

func (s *Service) deliver(ctx context.Context, msg Message, r Recipient) error {
	if strings.TrimSpace(r.Email) == "" {
		return errors.New("recipient has no email address")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := s.render(msg, r)
	if err != nil {
		return fmt.Errorf("failed to generate email body: %w", err)
	}
	return s.transport.Send(ctx, r.Email, msg.Subject, body)
}

//go:embed templates/*.html
var templatesFS embed.FS

var templates = template.Must(template.New("").ParseFS(templatesFS, "templates/*.html"))

type templateData struct {
	ClubName      string
	RecipientName string
	Lines         []string
	Year          int
}

func (s *Service) render(msg Message, r Recipient) (string, error) {
	name := r.Name
	if name == "" {
		name = r.Email
	}
	data := templateData{
		ClubName:      s.fromName(),
		RecipientName: name,
		Lines:         strings.Split(strings.ReplaceAll(msg.Body, "\r\n", "\n"), "\n"),
		Year:          s.now().Year(),
	}

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "mass_email.html", data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (s *Service) fromName() string {
	if s.config.FromName != "" {
		return s.config.FromName
	}
	return defaultFromName
}

type smtpTransport struct {
	config *config.EmailConfig
}

// Send delivers the email using go-simple-mail. Every delivery uses its own connection.
func (t *smtpTransport) Send(ctx context.Context, to, subject, body string) error {
	server := mail.NewSMTPClient()
	server.Host = t.config.SMTPHost
	server.Port = t.config.SMTPPort
	server.Username = t.config.Username
	server.Password = t.config.Password

	if t.config.UseSSL {
		server.Encryption = mail.EncryptionSSLTLS
	} else if t.config.UseTLS {
		server.Encryption = mail.EncryptionSTARTTLS
	} else {
		server.Encryption = mail.EncryptionNone
	}

	if t.config.InsecureSkipVerify {
		server.TLSConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	server.KeepAlive = false
	server.ConnectTimeout = 10 * time.Second
	server.SendTimeout = 10 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < server.SendTimeout {
			server.SendTimeout = remaining
		}
	}

	smtpClient, err := server.Connect()
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer func() {
		if closeErr := smtpClient.Close(); closeErr != nil {
			log.Warn("Failed to close SMTP client", "error", closeErr)
		}
	}()

	fromName := t.config.FromName
	if fromName == "" {
		fromName = defaultFromName
	}

	email := mail.NewMSG()
	email.SetFrom(fmt.Sprintf("%s <%s>", fromName, t.config.FromEmail))
	email.AddTo(to)
	email.SetSubject(subject)
	email.SetBody(mail.TextHTML, body)

	if err := email.Send(smtpClient); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	log.Debug("Email sent", "to", to, "subject", subject)
	return nil
}
