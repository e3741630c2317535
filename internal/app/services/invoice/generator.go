// Package invoice renders, stores and delivers subscription invoices.
package invoice

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"math/rand"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/seanotes/seanotes/internal/app/services/ai"
	"github.com/seanotes/seanotes/internal/logging"
)

// Data is everything printed on an invoice.
type Data struct {
	InvoiceNumber   string
	CustomerName    string
	CustomerEmail   string
	PlanName        string
	PlanDescription string
	Amount          float64
	Currency        string
	Interval        string
	Features        []string
	InvoiceDate     time.Time
	SubscriptionID  string
}

// Document is a rendered invoice.
type Document struct {
	HTML         string `json:"html"`
	Text         string `json:"text"`
	Subject      string `json:"subject"`
	UsedFallback bool   `json:"usedFallback"`
}

// GenerateInvoiceNumber formats INV-YYYYMMDD-NNNN. A negative seq picks a random one.
func GenerateInvoiceNumber(now time.Time, seq int) string {
	if seq < 0 {
		seq = 1000 + rand.Intn(9000)
	}
	return fmt.Sprintf("INV-%s-%04d", now.UTC().Format("20060102"), seq%10000)
}

const systemPrompt = "You are a professional invoice generator that outputs valid JSON {html, text, subject}."

// Generator asks the completer for an invoice document, falling back to a fixed template.
type Generator struct {
	completer ai.Completer
	log       *logging.Logger
}

// NewGenerator returns a generator. A nil completer always uses the template.
func NewGenerator(completer ai.Completer, log *logging.Logger) *Generator {
	if log == nil {
		log = logging.NewDefault("invoice")
	}
	return &Generator{completer: completer, log: log}
}

// Configured reports whether documents are authored by a model.
func (g *Generator) Configured() bool {
	return g.completer != nil
}

// Generate renders d. It never fails; any model problem yields the template document.
func (g *Generator) Generate(ctx context.Context, d Data) Document {
	fallback := Fallback(d)
	if g.completer == nil {
		return fallback
	}

	reply, err := g.completer.Complete(ctx, []ai.Message{
		{Role: ai.RoleSystem, Content: systemPrompt},
		{Role: ai.RoleUser, Content: buildPrompt(d)},
	}, ai.CompletionOptions{Temperature: 0.2, MaxTokens: 2000})
	if err != nil {
		g.log.WithError(err).WithField("invoice", d.InvoiceNumber).Warn("Invoice generation failed, using template")
		return fallback
	}

	doc, ok := ParseDocument(reply)
	if !ok {
		g.log.WithField("invoice", d.InvoiceNumber).Warn("Model reply had no usable invoice, using template")
		return fallback
	}
	if doc.Text == "" {
		doc.Text = fallback.Text
	}
	if doc.Subject == "" {
		doc.Subject = fallback.Subject
	}
	return doc
}

func buildPrompt(d Data) string {
	var b strings.Builder
	b.WriteString("Generate a professional HTML invoice for the following subscription details.\n\n")
	b.WriteString("Customer Information:\n")
	fmt.Fprintf(&b, "- Name: %s\n- Email: %s\n\n", d.CustomerName, d.CustomerEmail)
	b.WriteString("Plan:\n")
	fmt.Fprintf(&b, "- Name: %s\n- Description: %s\n- Price: %s\n- Interval: %s\n- Features: %s\n\n",
		d.PlanName, d.PlanDescription, formatAmount(d.Amount, d.Currency), d.Interval, strings.Join(d.Features, ", "))
	b.WriteString("Invoice Info:\n")
	fmt.Fprintf(&b, "- Invoice #: %s\n- Date: %s\n- Subscription ID: %s\n\n",
		d.InvoiceNumber, d.InvoiceDate.Format("January 2, 2006"), d.SubscriptionID)
	b.WriteString("Requirements:\n")
	b.WriteString("1. Include \"SeaNotes\" header branding.\n")
	b.WriteString("2. Use professional, responsive design with blue theme (#0061EB).\n")
	b.WriteString("3. Display plan, customer, and invoice details clearly.\n")
	b.WriteString("4. Return valid JSON with: { html, text, subject }.\n")
	return b.String()
}

// ParseDocument extracts {html, text, subject} from a model reply. The JSON may be
// wrapped in prose or code fences. A reply without html is rejected.
func ParseDocument(reply string) (Document, bool) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return Document{}, false
	}
	raw := reply[start : end+1]
	if !gjson.Valid(raw) {
		return Document{}, false
	}
	fields := gjson.GetMany(raw, "html", "text", "subject")
	html := strings.TrimSpace(fields[0].String())
	if html == "" || !strings.Contains(html, "<") {
		return Document{}, false
	}
	return Document{
		HTML:    html,
		Text:    strings.TrimSpace(fields[1].String()),
		Subject: strings.TrimSpace(fields[2].String()),
	}, true
}

var fallbackHTML = template.Must(template.New("invoice").Funcs(template.FuncMap{
	"amount": formatAmount,
	"date":   func(t time.Time) string { return t.Format("January 2, 2006") },
}).Parse(`<html><head><meta charset="utf-8"/><title>Invoice {{.InvoiceNumber}}</title>
<style>
body { font-family: Arial, sans-serif; margin: 2rem; background: #f8f9fa; }
.header { background: #0061EB; color: white; padding: 20px; border-radius: 8px; text-align: center; }
.details, .item { margin-top: 20px; }
.item { border-top: 1px solid #ddd; padding-top: 10px; }
.total { font-weight: bold; margin-top: 10px; }
</style></head>
<body>
<div class="header"><h1>SeaNotes</h1><h2>Invoice</h2></div>
<div class="details">
<p><strong>{{.CustomerName}}</strong><br>{{.CustomerEmail}}</p>
<p><strong>Invoice #:</strong> {{.InvoiceNumber}}<br>
<strong>Date:</strong> {{date .InvoiceDate}}</p>
</div>
<div class="item">
<h3>{{.PlanName}}</h3>
<p>{{.PlanDescription}}</p>
<ul>{{range .Features}}<li>{{.}}</li>{{end}}</ul>
<p class="total">Total: {{amount .Amount .Currency}} ({{.Interval}})</p>
</div>
</body></html>`))

// Fallback renders the fixed invoice template.
func Fallback(d Data) Document {
	var buf bytes.Buffer
	if err := fallbackHTML.Execute(&buf, d); err != nil {
		// the template only reads fields of Data
		panic(err)
	}

	var text strings.Builder
	fmt.Fprintf(&text, "INVOICE #%s\nSeaNotes\n\n", d.InvoiceNumber)
	fmt.Fprintf(&text, "Customer: %s (%s)\n", d.CustomerName, d.CustomerEmail)
	fmt.Fprintf(&text, "Date: %s\n", d.InvoiceDate.Format("January 2, 2006"))
	fmt.Fprintf(&text, "Plan: %s\n", d.PlanName)
	fmt.Fprintf(&text, "Description: %s\n", d.PlanDescription)
	text.WriteString("Features:\n")
	for _, f := range d.Features {
		fmt.Fprintf(&text, "- %s\n", f)
	}
	fmt.Fprintf(&text, "Total: %s (%s)\n\nThank you for your business!", formatAmount(d.Amount, d.Currency), d.Interval)

	return Document{
		HTML:         buf.String(),
		Text:         text.String(),
		Subject:      fmt.Sprintf("Invoice #%s - %s", d.InvoiceNumber, d.PlanName),
		UsedFallback: true,
	}
}

func formatAmount(amount float64, currency string) string {
	switch strings.ToLower(currency) {
	case "", "usd":
		return fmt.Sprintf("$%.2f", amount)
	case "eur":
		return fmt.Sprintf("€%.2f", amount)
	default:
		return fmt.Sprintf("%.2f %s", amount, strings.ToUpper(currency))
	}
}
