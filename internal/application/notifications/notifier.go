// Package notifications emails investors when their holdings change.
package notifications

import (
	"context"
	"fmt"

	"unitfund-backend/internal/application/allocation"
	"unitfund-backend/internal/domain"

	"gorm.io/gorm"
)

// Notifier is an allocation sink that sends a confirmation email per allocated event.
type Notifier struct {
	DB    *gorm.DB
	Brevo *BrevoClient
}

func (n *Notifier) Name() string { return "email" }

func (n *Notifier) HoldingChanged(ctx context.Context, res allocation.Result) error {
	if n.Brevo == nil || n.Brevo.APIKey == "" {
		return nil
	}
	var inv domain.Investor
	if err := n.DB.WithContext(ctx).Where("id = ?", res.InvestorID).First(&inv).Error; err != nil {
		return fmt.Errorf("load investor %s: %w", res.InvestorID, err)
	}
	subject, html := confirmationEmail(inv, res)
	return n.Brevo.Send(ctx, inv.Email, inv.FullName, subject, html)
}

func confirmationEmail(inv domain.Investor, res allocation.Result) (string, string) {
	name := inv.FullName
	if name == "" {
		name = "there"
	}
	subject := "Your deposit has been invested"
	heading := "Deposit received"
	verb := "issued"
	if res.Kind == domain.KindRedemption {
		subject = "Your withdrawal has been processed"
		heading = "Withdrawal processed"
		verb = "redeemed"
	}
	content := fmt.Sprintf(`
    <h1>%s</h1>
    <p>Hi %s,</p>
    <p>We have %s units for your %s of <strong>$%s</strong> at a NAV of %s per unit.</p>
    <table class="figures" role="presentation">
      <tr><td>Units %s</td><td>%s</td></tr>
      <tr><td>Units held</td><td>%s</td></tr>
      <tr><td>Current value</td><td>$%s</td></tr>
    </table>
`,
		heading, EscapeHTML(name), verb, res.Kind, res.AmountUSD.StringFixed(2), res.NavPerUnit.StringFixed(4),
		verb, res.UnitsDelta.Abs().StringFixed(6), res.Holding.UnitsHeld.StringFixed(6), res.Holding.CurrentValue.StringFixed(2))
	return subject, EmailLayout(content)
}
