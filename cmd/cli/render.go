package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/gagliardetto/solana-go"
	"github.com/spf13/pflag"

	"github.com/ninja0404/pump-bundler/pkg/jito"
	"github.com/ninja0404/pump-bundler/pkg/pricefeed"
	"github.com/ninja0404/pump-bundler/pkg/strategy"
	"github.com/ninja0404/pump-bundler/pkg/types"
)

var (
	colorOK    = lipgloss.Color("#2AFFAA")
	colorErr   = lipgloss.Color("#FF5555")
	colorWarn  = lipgloss.Color("#FFB500")
	colorMuted = lipgloss.Color("#6C7280")
	colorTitle = lipgloss.Color("#00E5FF")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorTitle)
	okStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorOK)
	errStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorErr)
	warnStyle  = lipgloss.NewStyle().Foreground(colorWarn)
	mutedStyle = lipgloss.NewStyle().Foreground(colorMuted)
	keyStyle   = lipgloss.NewStyle().Foreground(colorMuted).Width(14)
)

func bind(a *app, f *pflag.Flag, key string) {
	if err := a.v.BindPFlag(key, f); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", f.Name, err))
	}
}

// parsePubkey converts a base58 string to a PublicKey.
func parsePubkey(label, v string) (solana.PublicKey, error) {
	if v == "" {
		return solana.PublicKey{}, types.NewValidationError(label, "is required")
	}
	pk, err := solana.PublicKeyFromBase58(v)
	if err != nil {
		return solana.PublicKey{}, types.NewValidationError(label, fmt.Sprintf("invalid public key: %v", err))
	}
	return pk, nil
}

func renderError(err error) string {
	var ve types.ValidationError
	if errors.As(err, &ve) {
		return errStyle.Render("invalid "+ve.Field) + ": " + ve.Message
	}
	return errStyle.Render("error") + ": " + err.Error()
}

// kv renders aligned key/value lines.
func kv(pairs ...string) string {
	var b strings.Builder
	for i := 0; i+1 < len(pairs); i += 2 {
		b.WriteString(keyStyle.Render(pairs[i]))
		b.WriteString(pairs[i+1])
		b.WriteByte('\n')
	}
	return b.String()
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...)
}

func stateStyle(s jito.State) lipgloss.Style {
	switch s {
	case jito.StateConfirmed:
		return okStyle
	case jito.StateFailed:
		return errStyle
	default:
		return warnStyle
	}
}

func renderBundleStatus(st jito.Status) string {
	pairs := []string{
		"bundle", st.BundleID,
		"state", stateStyle(st.State).Render(string(st.State)),
	}
	if st.LandedSlot > 0 {
		pairs = append(pairs, "slot", fmt.Sprint(st.LandedSlot))
	}
	if st.Error != "" {
		pairs = append(pairs, "error", errStyle.Render(st.Error))
	}
	return kv(pairs...)
}

func renderPrice(pd pricefeed.PriceData) string {
	pairs := []string{
		"mint", pd.Mint.String(),
		"price", fmt.Sprintf("%.10f SOL (%.6g raw)", pd.PriceSol, pd.Price),
		"market cap", fmt.Sprintf("%.4f SOL", pd.MarketCapSol),
	}
	if pd.PriceFiat > 0 {
		pairs = append(pairs,
			"price fiat", fmt.Sprintf("%.10f", pd.PriceFiat),
			"mcap fiat", fmt.Sprintf("%.2f", pd.MarketCapFiat))
	}
	pairs = append(pairs,
		"liquidity", fmt.Sprintf("%.4f SOL real / %.4f SOL virtual", pd.RealLiquiditySol, pd.VirtualLiquiditySol),
		"complete", fmt.Sprint(pd.Complete),
	)
	return kv(pairs...)
}

func renderChange(ch pricefeed.PriceChange) string {
	delta := fmt.Sprintf("%+.2f%%", ch.PercentDelta)
	switch {
	case ch.PercentDelta > 0:
		delta = okStyle.Render(delta)
	case ch.PercentDelta < 0:
		delta = errStyle.Render(delta)
	default:
		delta = mutedStyle.Render(delta)
	}
	return fmt.Sprintf("%s  %.10f SOL  mcap %.4f SOL  %s",
		mutedStyle.Render(ch.Timestamp.Format(time.TimeOnly)), ch.New.PriceSol, ch.New.MarketCapSol, delta)
}

func renderSession(st strategy.Status) string {
	state := okStyle.Render("done")
	if st.Active {
		state = warnStyle.Render("running")
	}
	pairs := []string{
		"session", st.ID,
		"state", state,
		"trades", fmt.Sprint(st.TradesExecuted),
		"sells", fmt.Sprint(st.SellsExecuted),
		"volume", fmt.Sprintf("%.4f SOL", st.Volume),
		"tokens sold", fmt.Sprint(st.TokensSold),
	}
	if st.Triggered {
		pairs = append(pairs, "triggered", st.TriggerTime.Format(time.TimeOnly))
	}
	if !st.EndTime.IsZero() {
		pairs = append(pairs, "elapsed", st.EndTime.Sub(st.StartTime).Round(time.Second).String())
	}
	if st.Errors > 0 {
		pairs = append(pairs, "errors", errStyle.Render(fmt.Sprintf("%d (last: %s)", st.Errors, st.LastError)))
	}
	return kv(pairs...)
}
