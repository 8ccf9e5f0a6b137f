// Package email delivers role change notifications.
// Messages are rendered from embedded templates and sent through SendGrid,
// or written to the log when no provider is configured.
package email

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/collegeconnect/collegeconnect-hub/internal/domain/notification"
	"github.com/collegeconnect/collegeconnect-hub/internal/domain/user"
)

//go:embed templates/*.tmpl
var templateFiles embed.FS

// Message is a rendered email.
type Message struct {
	ToAddress string
	ToName    string
	Subject   string
	Text      string
	HTML      string
}

// Renderer renders role change emails.
type Renderer struct {
	html        *htmltemplate.Template
	text        *texttemplate.Template
	frontendURL string
}

// NewRenderer parses the embedded templates.
func NewRenderer(frontendURL string) (*Renderer, error) {
	html, err := htmltemplate.ParseFS(templateFiles, "templates/role_change.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("email: parse html template: %w", err)
	}
	text, err := texttemplate.ParseFS(templateFiles, "templates/role_change.txt.tmpl")
	if err != nil {
		return nil, fmt.Errorf("email: parse text template: %w", err)
	}

	return &Renderer{
		html:        html,
		text:        text,
		frontendURL: strings.TrimRight(frontendURL, "/"),
	}, nil
}

type roleChangeView struct {
	Name       string
	FromRole   string
	ToRole     string
	ProfileURL string
}

// Subject returns the subject line for a transition into role.
func Subject(to user.Role) string {
	switch to {
	case user.RoleSenior:
		return "You're now a senior on CollegeConnect"
	case user.RoleAlumni:
		return "Welcome to the CollegeConnect alumni network"
	default:
		return "Your CollegeConnect role has changed"
	}
}

// RenderRoleChange renders the notification for one transition.
func (r *Renderer) RenderRoleChange(rc notification.RoleChange) (Message, error) {
	view := roleChangeView{
		Name:     rc.Greeting(),
		FromRole: string(rc.FromRole),
		ToRole:   string(rc.ToRole),
	}
	if r.frontendURL != "" {
		view.ProfileURL = r.frontendURL + "/profile"
	}

	var html, text bytes.Buffer
	if err := r.html.Execute(&html, view); err != nil {
		return Message{}, fmt.Errorf("email: render html: %w", err)
	}
	if err := r.text.Execute(&text, view); err != nil {
		return Message{}, fmt.Errorf("email: render text: %w", err)
	}

	return Message{
		ToAddress: rc.Email,
		ToName:    rc.FullName,
		Subject:   Subject(rc.ToRole),
		Text:      strings.TrimSpace(text.String()),
		HTML:      html.String(),
	}, nil
}
