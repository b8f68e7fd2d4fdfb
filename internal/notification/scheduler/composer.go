package scheduler

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"notify-backend/internal/notification/domain"
	"notify-backend/internal/notification/usecase"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	templateSingle     = "single"
	templateAssignment = "assignment"
	templateDigest     = "digest"
)

// Composer renders digest emails.
type Composer struct {
	appName   string
	appURL    string
	templates map[string]*template.Template
}

func NewComposer(appName, appURL string) (*Composer, error) {
	c := &Composer{
		appName:   appName,
		appURL:    strings.TrimRight(appURL, "/"),
		templates: make(map[string]*template.Template),
	}
	for _, name := range []string{templateSingle, templateAssignment, templateDigest} {
		tmpl, err := template.ParseFS(templateFS, "templates/base.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		c.templates[name] = tmpl
	}
	return c, nil
}

// Composed is a rendered digest.
type Composed struct {
	Subject   string
	HTML      string
	Template  string
	ReplyLink string
}

// Compose builds one email for a person's backlog. A lone notification gets
// a tailored email; anything else is summarised.
func (c *Composer) Compose(notifications []*domain.Notification, privateMessages []*domain.PrivateMessage) (Composed, error) {
	data := map[string]any{
		"AppName":         c.appName,
		"Notifications":   notifications,
		"PrivateMessages": privateMessages,
	}

	var name, subject, replyLink string
	if len(notifications) == 1 && len(privateMessages) == 0 {
		n := notifications[0]
		subject = usecase.Title(n.ContentType, n.Message)
		name = templateSingle
		if n.ContentType == domain.ContentTypeAssignment {
			name = templateAssignment
			data["Role"] = strings.TrimPrefix(strings.TrimPrefix(subject, "Volunteer Assignment"), ": ")
		}
		data["Message"] = n.Message
		data["Link"] = n.Link
		replyLink = c.appURL + "/notifications"
		if n.Link != "" {
			replyLink = n.Link
		}
	} else {
		subject = digestSubject(len(notifications), len(privateMessages))
		name = templateDigest
		replyLink = c.appURL + "/notifications"
		if len(notifications) == 0 && len(privateMessages) > 0 {
			replyLink = c.appURL + "/messages"
		}
	}
	data["Subject"] = subject
	data["ReplyLink"] = replyLink

	var buf bytes.Buffer
	if err := c.templates[name].ExecuteTemplate(&buf, "base.html", data); err != nil {
		return Composed{}, fmt.Errorf("render %s email: %w", name, err)
	}
	return Composed{Subject: subject, HTML: buf.String(), Template: name, ReplyLink: replyLink}, nil
}

func digestSubject(notifications, messages int) string {
	var parts []string
	if notifications > 0 {
		parts = append(parts, plural(notifications, "new notification"))
	}
	if messages > 0 {
		parts = append(parts, plural(messages, "new message"))
	}
	return "You have " + strings.Join(parts, " and ")
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
