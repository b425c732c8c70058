package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"
)

// Receipt is the content of a purchase confirmation email.
type Receipt struct {
	PurchaseSessionID string
	ItemName          string
	// Amount is empty for subscriptions, which Stripe invoices itself.
	Amount      string
	IsPlan      bool
	CompletedAt time.Time
	BaseURL     string
}

var receiptTemplate = template.Must(template.New("receipt").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif;">
<h2>Thank you for your purchase!</h2>
{{if .IsPlan}}
<p>Your subscription <strong>{{.ItemName}}</strong> is now active. All courses are unlocked.</p>
{{else}}
<p>You now own <strong>{{.ItemName}}</strong>{{if .Amount}} ({{.Amount}}){{end}}.</p>
{{end}}
<p>Reference: {{.PurchaseSessionID}}<br>Date: {{.CompletedAt.Format "2006-01-02 15:04 MST"}}</p>
<p><a href="{{.BaseURL}}/">Start learning</a></p>
</body>
</html>`))

// RenderReceipt returns the subject and HTML body of a receipt email.
func RenderReceipt(r Receipt) (string, string, error) {
	var buf bytes.Buffer
	if err := receiptTemplate.Execute(&buf, r); err != nil {
		return "", "", fmt.Errorf("render receipt: %w", err)
	}
	subject := "Your purchase: " + r.ItemName
	if r.IsPlan {
		subject = "Your subscription is active"
	}
	return subject, buf.String(), nil
}

// FormatAmount formats a price in cents, e.g. 5000 usd as "50.00 USD".
func FormatAmount(cents int64, currency string) string {
	return fmt.Sprintf("%d.%02d %s", cents/100, cents%100, strings.ToUpper(currency))
}
