package email

import (
	"bytes"
	"fmt"
	"html/template"
)

const layout = `<!DOCTYPE html>
<html>
<body style="font-family: -apple-system, Helvetica, Arial, sans-serif; color: #1f2933; max-width: 560px; margin: 0 auto; padding: 24px;">
<h2 style="color: #0069ff;">SeaNotes</h2>
{{template "body" .}}
<p style="color: #7b8794; font-size: 12px; margin-top: 32px;">You received this e-mail because of activity on your SeaNotes account.</p>
</body>
</html>`

var templates = map[string]*template.Template{
	"verification": mustParse("verification", `{{define "body"}}
<p>Hi {{.Name}},</p>
<p>Please confirm your e-mail address to finish setting up your account.</p>
<p><a href="{{.Link}}" style="background: #0069ff; color: #fff; padding: 10px 18px; border-radius: 4px; text-decoration: none;">Verify e-mail</a></p>
{{end}}`),
	"magic-link": mustParse("magic-link", `{{define "body"}}
<p>Use the link below to sign in. It expires in one hour.</p>
<p><a href="{{.Link}}" style="background: #0069ff; color: #fff; padding: 10px 18px; border-radius: 4px; text-decoration: none;">Sign in</a></p>
{{end}}`),
	"password-reset": mustParse("password-reset", `{{define "body"}}
<p>Hi {{.Name}},</p>
<p>We received a request to reset your password. The link expires in one hour.</p>
<p><a href="{{.Link}}" style="background: #0069ff; color: #fff; padding: 10px 18px; border-radius: 4px; text-decoration: none;">Reset password</a></p>
<p>If you did not ask for this, you can ignore this e-mail.</p>
{{end}}`),
	"invoice": mustParse("invoice", `{{define "body"}}
<p>Hi {{.Name}},</p>
<p>Your invoice {{.Number}} is attached below.</p>
{{.Document}}
{{end}}`),
}

func mustParse(name, body string) *template.Template {
	return template.Must(template.Must(template.New(name).Parse(layout)).Parse(body))
}

type linkData struct {
	Name string
	Link string
}

type invoiceData struct {
	Name     string
	Number   string
	Document template.HTML
}

func render(name string, data interface{}) (string, error) {
	tmpl, ok := templates[name]
	if !ok {
		return "", fmt.Errorf("unknown email template %q", name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

// VerificationEmail asks the user to confirm their address.
func VerificationEmail(to, name, link string) (Message, error) {
	html, err := render("verification", linkData{Name: name, Link: link})
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      to,
		Subject: "Verify your e-mail address",
		HTML:    html,
		Text:    fmt.Sprintf("Hi %s,\n\nConfirm your e-mail address: %s\n", name, link),
	}, nil
}

// MagicLinkEmail carries a one-time sign-in link.
func MagicLinkEmail(to, link string) (Message, error) {
	html, err := render("magic-link", linkData{Link: link})
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      to,
		Subject: "Your SeaNotes sign-in link",
		HTML:    html,
		Text:    fmt.Sprintf("Sign in to SeaNotes: %s\n\nThe link expires in one hour.\n", link),
	}, nil
}

// PasswordResetEmail carries a password reset link.
func PasswordResetEmail(to, name, link string) (Message, error) {
	html, err := render("password-reset", linkData{Name: name, Link: link})
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      to,
		Subject: "Reset your password",
		HTML:    html,
		Text:    fmt.Sprintf("Hi %s,\n\nReset your password: %s\n\nThe link expires in one hour.\n", name, link),
	}, nil
}

// InvoiceEmail embeds an already rendered invoice document.
func InvoiceEmail(to, name, number, subject, documentHTML, text string) (Message, error) {
	html, err := render("invoice", invoiceData{
		Name:     name,
		Number:   number,
		Document: template.HTML(documentHTML), // generated by the invoice service
	})
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: subject, HTML: html, Text: text}, nil
}
