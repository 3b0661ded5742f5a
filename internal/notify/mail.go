package notify

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/jekabolt/grbpwr-tickets/internal/dependency"
	"github.com/jekabolt/grbpwr-tickets/internal/entity"
	gerr "github.com/jekabolt/grbpwr-tickets/internal/errors"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

//go:embed templates/*.gohtml
var templatesFS embed.FS

type MailConfig struct {
	APIKey    string `mapstructure:"sendgrid_api_key"`
	FromEmail string `mapstructure:"from_email"`
	FromName  string `mapstructure:"from_email_name"`
	ReplyTo   string `mapstructure:"reply_to"`
}

// Sender is the part of the SendGrid client the mailer uses.
type Sender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

var subjects = map[entity.NotificationKind]string{
	entity.NotificationReservationCreated:    "Your tickets are on hold",
	entity.NotificationWaitlisted:            "You are on the waitlist",
	entity.NotificationWaitlistSpotAvailable: "Tickets are available for you",
	entity.NotificationPurchaseCompleted:     "Your tickets",
	entity.NotificationReservationExpired:    "Your reservation has expired",
	entity.NotificationWaitlistClaimExpired:  "Your waitlist offer has expired",
}

// Mailer sends notifications as email through SendGrid.
type Mailer struct {
	cli       Sender
	users     dependency.Users
	from      *mail.Email
	replyTo   *mail.Email
	templates map[entity.NotificationKind]*template.Template
}

func NewMailer(c *MailConfig, users dependency.Users) (*Mailer, error) {
	if c.APIKey == "" || c.FromEmail == "" || c.FromName == "" {
		return nil, fmt.Errorf("incomplete mail config: api key, from email and from name are required")
	}
	return newMailer(c, sendgrid.NewSendClient(c.APIKey), users)
}

func newMailer(c *MailConfig, cli Sender, users dependency.Users) (*Mailer, error) {
	m := &Mailer{
		cli:       cli,
		users:     users,
		from:      mail.NewEmail(c.FromName, c.FromEmail),
		templates: make(map[entity.NotificationKind]*template.Template),
	}
	if c.ReplyTo != "" {
		m.replyTo = mail.NewEmail(c.FromName, c.ReplyTo)
	}
	if err := m.parseTemplates(); err != nil {
		return nil, fmt.Errorf("error parsing templates: %w", err)
	}
	return m, nil
}

func (m *Mailer) parseTemplates() error {
	templateDir := "templates"
	dirEntries, err := templatesFS.ReadDir(templateDir)
	if err != nil {
		return fmt.Errorf("error reading template directory: %w", err)
	}
	for _, entry := range dirEntries {
		if entry.IsDir() {
			continue
		}
		tmpl, err := template.ParseFS(templatesFS, filepath.Join(templateDir, entry.Name()))
		if err != nil {
			return fmt.Errorf("error parsing template '%s': %w", entry.Name(), err)
		}
		kind := entity.NotificationKind(strings.TrimSuffix(entry.Name(), ".gohtml"))
		m.templates[kind] = tmpl
	}
	for kind := range subjects {
		if _, ok := m.templates[kind]; !ok {
			return fmt.Errorf("no template for %s", kind)
		}
	}
	return nil
}

type mailData struct {
	Name string
	N    *entity.Notification
}

func (d mailData) Expires() string {
	return d.N.ExpiresAt.UTC().Format(time.RFC1123)
}

func (m *Mailer) build(u *entity.User, n *entity.Notification) (*mail.SGMailV3, error) {
	tmpl, ok := m.templates[n.Kind]
	if !ok {
		return nil, fmt.Errorf("template not found: %v", n.Kind)
	}
	name := u.DisplayName
	if name == "" {
		name = u.Email
	}

	body := &strings.Builder{}
	if err := tmpl.Execute(body, mailData{Name: name, N: n}); err != nil {
		return nil, fmt.Errorf("error executing template: %w", err)
	}

	msg := mail.NewSingleEmail(m.from, subjects[n.Kind], mail.NewEmail(name, u.Email), "", body.String())
	if m.replyTo != nil {
		msg.SetReplyTo(m.replyTo)
	}
	return msg, nil
}

func (m *Mailer) Notify(ctx context.Context, n *entity.Notification) error {
	u, err := m.users.GetUserById(ctx, n.UserId)
	if errors.Is(err, sql.ErrNoRows) {
		return gerr.UserNotFound
	}
	if err != nil {
		return fmt.Errorf("can't get user: %w", err)
	}
	if u.Email == "" {
		return fmt.Errorf("user %s has no email", u.Id)
	}

	msg, err := m.build(u, n)
	if err != nil {
		return err
	}
	resp, err := m.cli.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("error sending email: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("mail api limit reached")
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("error sending email bad status code: %d, body: %s", resp.StatusCode, resp.Body)
	}
	return nil
}
