package setup

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/boomkit/internal/domain"
	"github.com/vadiminshakov/boomkit/internal/services/valuation"
)

var (
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(highlight).Padding(0, 1)
	labelStyle = lipgloss.NewStyle().Foreground(subtle).Width(18)
	valueStyle = lipgloss.NewStyle().Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(special).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(warning).Bold(true)
)

func row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), valueStyle.Render(value))
}

func box(title string, rows ...string) string {
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, append([]string{okStyle.Render(title)}, rows...)...))
}

// RenderWallet shows the spendable balance first; virtual balance is informational.
func RenderWallet(s domain.WalletSnapshot, currency string) string {
	rows := []string{
		row("Usable", domain.FormatAmount(s.UsableBalance, currency)),
		row("Cash", domain.FormatAmount(s.CashBalance, currency)),
		row("Virtual", domain.FormatAmount(s.VirtualBalance, currency)+" (not spendable)"),
		row("Updated", fmt.Sprintf("%s #%d", s.Reason, s.AppliedSequence)),
	}
	if s.Stale {
		rows = append(rows, warnStyle.Render("last known balance, refreshing..."))
	}
	return box("Wallet", rows...)
}

// RenderHoldings lists held units per asset.
func RenderHoldings(counts map[string]int) string {
	if len(counts) == 0 {
		return box("Holdings", "none")
	}
	ids := lo.Keys(counts)
	slices.Sort(ids)
	rows := lo.Map(ids, func(id string, _ int) string {
		return row(id, fmt.Sprintf("%d", counts[id]))
	})
	return box("Holdings", rows...)
}

// RenderQuote shows a quote; estimates are labelled as such.
func RenderQuote(q domain.Quote, currency string) string {
	title := fmt.Sprintf("%s quote %s", strings.ToUpper(q.Side.String()), q.AssetID)
	rows := []string{
		row("Quantity", fmt.Sprintf("%d", q.Quantity)),
		row("Unit price", domain.FormatAmount(q.UnitPrice, currency)),
		row("Fees", domain.FormatAmount(q.FeeAmount, currency)),
		row("Total", domain.FormatAmount(q.TotalAmount, currency)),
	}
	if q.Estimated {
		rows = append(rows, warnStyle.Render("estimate: live price unavailable"))
	}
	return box(title, rows...)
}

// ValuationView is what the quote command knows about an asset.
type ValuationView struct {
	Valuation  domain.AssetValuation
	Fees       valuation.FeeBreakdown
	Progress   float64
	Milestone  decimal.Decimal
	Reached    bool
	Influence  string
	FinalLabel string
}

// RenderValuation shows the valuation breakdown and capitalization progress.
func RenderValuation(v ValuationView, currency string) string {
	feeNote := ""
	if v.Fees.Estimated {
		feeNote = " (estimated)"
	}
	milestone := domain.FormatAmount(v.Milestone, currency)
	if v.Reached {
		milestone += " " + v.FinalLabel
	}

	return box("Valuation "+v.Valuation.ID,
		row("Base value", domain.FormatAmount(v.Valuation.BaseValue, currency)),
		row("Social value", domain.FormatAmount(v.Valuation.SocialValue, currency)),
		row("Total value", domain.FormatAmount(v.Valuation.TotalValue, currency)),
		row("Buy / sell fees", fmt.Sprintf("%s%% / %s%%%s", v.Fees.BuyPercent.StringFixed(2), v.Fees.SellPercent.StringFixed(2), feeNote)),
		row("Cap progress", fmt.Sprintf("%.1f%%", v.Progress*100)),
		row("Next milestone", milestone),
		row("Your impact", v.Influence),
	)
}

// RenderReceipt confirms a trade with server figures only.
func RenderReceipt(r domain.TradeReceipt, currency string) string {
	rows := []string{
		row("Amount", domain.FormatAmount(r.Amount, currency)),
		row("Fees", domain.FormatAmount(r.Fees, currency)),
		row("Net", domain.FormatAmount(r.NetAmount, currency)),
	}
	if r.BalanceReported {
		rows = append(rows, row("New balance", domain.FormatAmount(r.NewCashBalance, currency)))
	}
	if r.Reference != "" {
		rows = append(rows, row("Reference", r.Reference))
	}
	return box(strings.ToUpper(r.Side.String())+" executed", rows...)
}

// RenderBatch summarizes a batch sell, including the holdings left untouched.
func RenderBatch(report domain.BatchSellReport, currency string) string {
	rows := lo.Map(report.Outcomes, func(o domain.SellOutcome, _ int) string {
		status := string(o.Status)
		switch o.Status {
		case domain.SellStatusSold:
			status = okStyle.Render(status)
		case domain.SellStatusFailed:
			status = warnStyle.Render(status)
		}
		return row(o.HoldingID, status)
	})
	rows = append(rows,
		row("Net received", domain.FormatAmount(report.NetAmount, currency)),
		row("Fees", domain.FormatAmount(report.Fees, currency)),
	)
	title := "Sell batch"
	if report.Partial() {
		title = fmt.Sprintf("Sell batch stopped: %d of %d sold", report.SoldCount(), len(report.Outcomes))
	}
	return box(title, rows...)
}

// RenderError turns an error into actionable copy.
func RenderError(err error) string {
	msg := domain.UserMessageFor(err)
	rows := []string{msg.Body}
	switch msg.Action {
	case domain.ActionDeposit:
		rows = append(rows, warnStyle.Render("Deposit funds to continue."))
	case domain.ActionClampQuantity:
		rows = append(rows, warnStyle.Render(fmt.Sprintf("You can sell up to %d.", msg.SuggestedQuantity)))
	case domain.ActionReload:
		rows = append(rows, warnStyle.Render("Reload your holdings and try again."))
	}
	return lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(warning).Padding(0, 1).
		Render(lipgloss.JoinVertical(lipgloss.Left, append([]string{warnStyle.Render(msg.Title)}, rows...)...))
}
