package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

type baseEmailData struct {
	Title      string
	Heading    string
	Subheading string
	CTALabel   string
	CTAURL     string
}

type milestoneEmailData struct {
	baseEmailData
	RecipientName string
	OrderNumber   string
	StageLabel    string
	ShipDate      string
}

type shipDateEmailData struct {
	baseEmailData
	RecipientName    string
	OrderNumber      string
	PreviousShipDate string
	NewShipDate      string
	ReasonLabel      string
}

type messageEmailData struct {
	baseEmailData
	RecipientName string
	OrderNumber   string
	SenderName    string
	Excerpt       string
}

type exportEmailData struct {
	baseEmailData
	RecipientName string
	RecordCount   int
	Failed        bool
	ErrorMessage  string
}

func renderEmailTemplate(name string, data any) (string, error) {
	templates := []string{"templates/base.html", "templates/" + name}
	tmpl, err := template.New("base.html").ParseFS(templateFS, templates...)
	if err != nil {
		return "", fmt.Errorf("parse email template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "email", data); err != nil {
		return "", fmt.Errorf("execute email template %s: %w", name, err)
	}
	return buf.String(), nil
}
