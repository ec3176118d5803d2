package alerting

import (
	"bytes"
	"fmt"
	"html/template"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"luxuryestates/internal/model"
)

const (
	fallbackTitle = "Luxury Property"
	priceUnknown  = "Contact for price"
	notAvailable  = "N/A"
)

var emailTemplate = template.Must(template.New("alert").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>{{.Heading}}</title></head>
<body style="font-family: 'Helvetica Neue', Helvetica, Arial, sans-serif; margin: 0; padding: 0;">
  <div style="text-align: center; border-bottom: 2px solid #f0f0f0; padding: 20px;">
    <h1 style="color: #D4AF37; font-size: 1.8rem; font-weight: 700; letter-spacing: 1px;">LuxuryEstates</h1>
    <h2 style="color: #2c3e50; margin-top: 20px;">{{.Heading}}</h2>
    {{- if .Intro}}
    <p style="font-size: 16px;">{{.Intro}}</p>
    {{- end}}
  </div>
  <div style="max-width: 1400px; margin: 2rem auto; padding: 0 5%;">
  {{- range .Cards}}
    <div style="background: #ffffff; border-radius: 16px; box-shadow: 0 4px 20px rgba(0,0,0,0.08); overflow: hidden; margin-bottom: 20px;">
      <img src="{{.ImageURL}}" alt="{{.Title}}" style="width: 100%; height: 240px; object-fit: cover;">
      <div style="padding: 1.5rem;">
        <h3 style="font-size: 1.1rem; color: #2c3e50; margin-bottom: 8px;">{{.Title}}</h3>
        {{- if .Location}}
        <p style="color: #717171; font-size: 0.95rem;">{{.Location}}</p>
        {{- end}}
        <p style="font-size: 1.2rem; font-weight: 700; color: #2c3e50;">{{.Price}}</p>
        <p style="color: #717171;">Bedrooms: {{.Bedrooms}}</p>
        <a href="{{.Link}}" style="display: inline-block; background-color: #3498db; color: white; padding: 10px 20px; text-decoration: none; border-radius: 8px; font-weight: bold;">View Details</a>
      </div>
    </div>
  {{- end}}
  </div>
  <div style="text-align: center; padding: 20px;">
    <p style="font-size: 14px; color: #7f8c8d;">You can update your preferences anytime by replying to this email.</p>
  </div>
</body>
</html>
`))

type card struct {
	Title    string
	Location string
	ImageURL string
	Price    string
	Bedrooms string
	Link     string
}

type page struct {
	Heading string
	Intro   string
	Cards   []card
}

// Renderer 生成通知邮件的主题和 HTML 正文
type Renderer struct {
	clientURL   string
	placeholder string
	printer     *message.Printer
}

func NewRenderer(clientURL, placeholderImage string) *Renderer {
	return &Renderer{
		clientURL:   strings.TrimRight(clientURL, "/"),
		placeholder: placeholderImage,
		printer:     message.NewPrinter(language.English),
	}
}

// Subject 按通知类型生成邮件主题
func Subject(kind model.NotificationKind, category model.Category) string {
	if kind == model.KindWelcome {
		return fmt.Sprintf("Alert Created for %s Properties", category)
	}
	return fmt.Sprintf("New %s Property Added", category)
}

func (r *Renderer) Render(kind model.NotificationKind, category model.Category, properties []model.PropertySnapshot) (string, error) {
	pg := page{Cards: make([]card, 0, len(properties))}
	switch kind {
	case model.KindWelcome:
		pg.Heading = "Alert Successfully Created!"
		pg.Intro = fmt.Sprintf("We've created your alert for %s properties. You'll be the first to know when new listings become available.", category)
	default:
		pg.Heading = fmt.Sprintf("New %s Properties Available!", category)
	}

	for _, p := range properties {
		pg.Cards = append(pg.Cards, r.card(p))
	}

	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, pg); err != nil {
		return "", fmt.Errorf("render %s email: %w", kind, err)
	}
	return buf.String(), nil
}

func (r *Renderer) card(p model.PropertySnapshot) card {
	c := card{
		Title:    p.Title,
		Location: p.Location,
		ImageURL: p.ImageURL,
		Price:    priceUnknown,
		Bedrooms: notAvailable,
		Link:     p.Link,
	}
	if c.Title == "" {
		c.Title = fallbackTitle
	}
	if c.ImageURL == "" {
		c.ImageURL = r.placeholder
	}
	if p.Price > 0 {
		c.Price = r.FormatPrice(p.Price)
	}
	if p.Bedrooms > 0 {
		c.Bedrooms = strconv.Itoa(p.Bedrooms)
	}
	if c.Link == "" {
		c.Link = r.clientURL + "/properties/" + strconv.FormatInt(p.ID, 10)
	}
	return c
}

// FormatPrice 1250000 -> "$1,250,000"
func (r *Renderer) FormatPrice(price int64) string {
	return r.printer.Sprintf("$%d", price)
}
