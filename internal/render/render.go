// Package render implements the pure-function template renderer
// adapter of spec.md §6: render(kind, contact, organization, links)
// never touches the network or a database, so a failure always means a
// malformed template or missing field, never a transient condition.
package render

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"

	"github.com/bluebrook/enroll-scheduler/internal/contact"
)

// Rendered is the renderer's output for one Intent.
type Rendered struct {
	Subject  string
	HTMLBody string
	TextBody string
}

// Organization is the minimal sender-identity context a template body
// may reference.
type Organization struct {
	Name      string
	FromName  string
	FromEmail string
}

// Links carries the tracking/unsubscribe URLs a template body may
// reference; both are optional.
type Links struct {
	TrackingLink    string
	UnsubscribeLink string
}

// templateSet is one message kind's subject/HTML/text bodies.
type templateSet struct {
	subject *texttemplate.Template
	html    *htmltemplate.Template
	text    *texttemplate.Template
}

// templateData is what a template body may reference.
type templateData struct {
	Contact contact.Contact
	Org     Organization
	Links   Links
}

// Renderer renders a fixed set of Go templates per message kind. There
// is no storage or versioning layer: template bodies are compiled once
// at construction.
type Renderer struct {
	sets map[string]templateSet
}

// New compiles the built-in template bodies for each known message
// kind. It panics on a malformed built-in template, since that is a
// programmer error, not a runtime condition.
func New() *Renderer {
	r := &Renderer{sets: make(map[string]templateSet)}
	for kind, bodies := range builtinBodies {
		r.sets[kind] = mustCompile(kind, bodies)
	}
	return r
}

type bodies struct {
	subject, html, text string
}

var builtinBodies = map[string]bodies{
	"birthday": {
		subject: "Happy Birthday, {{.Contact.FirstName}}!",
		html:    `<p>Happy Birthday, {{.Contact.FirstName}}! From all of us at {{.Org.Name}}.</p>`,
		text:    "Happy Birthday, {{.Contact.FirstName}}! From all of us at {{.Org.Name}}.",
	},
	"effective_date": {
		subject: "Your plan anniversary with {{.Org.Name}}",
		html:    `<p>Hi {{.Contact.FirstName}}, it's been another year with {{.Org.Name}}.</p>`,
		text:    "Hi {{.Contact.FirstName}}, it's been another year with {{.Org.Name}}.",
	},
	"aep": {
		subject: "Annual Enrollment is open",
		html:    `<p>{{.Contact.FirstName}}, Annual Enrollment is open. <a href="{{.Links.TrackingLink}}">Review your plan</a>.</p>`,
		text:    "{{.Contact.FirstName}}, Annual Enrollment is open. Review your plan: {{.Links.TrackingLink}}",
	},
	"post_window": {
		subject: "Following up from {{.Org.Name}}",
		html:    `<p>Hi {{.Contact.FirstName}}, following up after your recent window with {{.Org.Name}}.</p>`,
		text:    "Hi {{.Contact.FirstName}}, following up after your recent window with {{.Org.Name}}.",
	},
}

func mustCompile(kind string, b bodies) templateSet {
	return templateSet{
		subject: texttemplate.Must(texttemplate.New(kind + "-subject").Parse(b.subject)),
		html:    htmltemplate.Must(htmltemplate.New(kind + "-html").Parse(b.html)),
		text:    texttemplate.Must(texttemplate.New(kind + "-text").Parse(b.text)),
	}
}

// Render produces the rendered subject/html/text bodies for kind. An
// unknown kind or a template execution error is returned as an error,
// which the pipeline surfaces as a "template error" skip.
func (r *Renderer) Render(kind string, c contact.Contact, org Organization, links Links) (Rendered, error) {
	set, ok := r.sets[kind]
	if !ok {
		return Rendered{}, fmt.Errorf("render: unknown message kind %q", kind)
	}

	data := templateData{Contact: c, Org: org, Links: links}

	var subjectBuf, htmlBuf, textBuf bytes.Buffer
	if err := set.subject.Execute(&subjectBuf, data); err != nil {
		return Rendered{}, fmt.Errorf("render subject: %w", err)
	}
	if err := set.html.Execute(&htmlBuf, data); err != nil {
		return Rendered{}, fmt.Errorf("render html body: %w", err)
	}
	if err := set.text.Execute(&textBuf, data); err != nil {
		return Rendered{}, fmt.Errorf("render text body: %w", err)
	}

	return Rendered{Subject: subjectBuf.String(), HTMLBody: htmlBuf.String(), TextBody: textBuf.String()}, nil
}
