package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sigscreen/sigscreen/internal/analytics"
	"github.com/sigscreen/sigscreen/internal/signal"
	"github.com/sigscreen/sigscreen/internal/track"
)

// Notifier delivers signals, performance reports, and degradation alerts.
type Notifier interface {
	Signal(ctx context.Context, sig signal.Signal) error
	Report(ctx context.Context, stats track.Stats) error
	Alert(ctx context.Context, message string) error
}

// ConsoleNotifier renders everything through the structured logger. It is
// the default sink; other transports implement the same interface.
type ConsoleNotifier struct {
	logger zerolog.Logger
}

func NewConsoleNotifier(logger zerolog.Logger) *ConsoleNotifier {
	return &ConsoleNotifier{logger: logger.With().Str("component", "notifier").Logger()}
}

func (n *ConsoleNotifier) Signal(ctx context.Context, sig signal.Signal) error {
	n.logger.Info().
		Str("signal_id", sig.ID).
		Str("symbol", sig.Symbol).
		Str("type", string(sig.Type)).
		Int("rating", sig.Rating).
		Msg(FormatSignal(sig))
	return nil
}

func (n *ConsoleNotifier) Report(ctx context.Context, stats track.Stats) error {
	n.logger.Info().
		Int("total", stats.Overall.Total).
		Float64("win_rate", stats.Overall.WinRate).
		Msg(FormatReport(stats))
	return nil
}

func (n *ConsoleNotifier) Alert(ctx context.Context, message string) error {
	n.logger.Warn().Msg(message)
	return nil
}

// FormatSignal renders a signal as the multi-line text sent to operators.
func FormatSignal(sig signal.Signal) string {
	var b strings.Builder

	direction := "SHORT"
	if sig.Type.Bullish() {
		direction = "LONG"
	}

	fmt.Fprintf(&b, "%s %s [%s] rating %d/100 (confidence %.0f%%)\n",
		sig.Symbol, direction, sig.Type, sig.Rating, sig.Confidence*100)
	fmt.Fprintf(&b, "entry %s | SL %s | TP %s / %s\n",
		formatPrice(sig.Price), formatPrice(sig.StopLoss),
		formatPrice(sig.TPConservative), formatPrice(sig.TPAggressive))
	fmt.Fprintf(&b, "size %.2f USDT (risk %.2f USDT, quality %.0f)\n",
		sig.Sizing.SizeUSD, sig.Sizing.RiskAmountUSD, sig.Sizing.QualityScore)
	fmt.Fprintf(&b, "regime %s | trend %+d | risk %d/10",
		sig.Regime, sig.TrendScore, sig.RiskScore)

	if sig.Whale.Bias != analytics.BiasNeutral {
		fmt.Fprintf(&b, "\nwhales %s", sig.Whale.Bias)
		if sig.Whale.BidWall != nil {
			fmt.Fprintf(&b, ", bid wall %.0f @ %s",
				sig.Whale.BidWall.Size, formatPrice(sig.Whale.BidWall.Price))
		}
		if sig.Whale.AskWall != nil {
			fmt.Fprintf(&b, ", ask wall %.0f @ %s",
				sig.Whale.AskWall.Size, formatPrice(sig.Whale.AskWall.Price))
		}
	}
	if sig.Profile.Valid {
		fmt.Fprintf(&b, "\nPOC %s | VPOC %s",
			formatPrice(sig.Profile.POC), formatPrice(sig.Profile.VPOC))
	}

	return b.String()
}

// FormatReport renders the performance report.
func FormatReport(stats track.Stats) string {
	var b strings.Builder

	fmt.Fprintf(&b, "performance: %d signals, %d resolved, win rate %.0f%%, avg pnl %+.2f%%",
		stats.Overall.Total,
		stats.Overall.Success+stats.Overall.Failure+stats.Overall.Timeout,
		stats.Overall.WinRate*100, stats.Overall.AvgPnL)

	for _, sigType := range []signal.Type{
		signal.TypeBigPump, signal.TypeBigDump,
		signal.TypeReversalBullish, signal.TypeReversalBearish,
	} {
		ts, ok := stats.ByType[sigType]
		if !ok || ts.Total == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n  %s: %d total, %d win / %d loss / %d timeout (%.0f%%)",
			sigType, ts.Total, ts.Success, ts.Failure, ts.Timeout, ts.WinRate*100)
	}

	return b.String()
}

// FormatDegradationAlert names the slices that fell under the threshold.
func FormatDegradationAlert(stats track.Stats, degraded []signal.Type, threshold float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ALERT: win rate %.0f%% below %.0f%% floor",
		stats.Overall.WinRate*100, threshold*100)
	if len(degraded) > 0 {
		names := make([]string, len(degraded))
		for i, sigType := range degraded {
			names[i] = string(sigType)
		}
		fmt.Fprintf(&b, " (degraded: %s)", strings.Join(names, ", "))
	}
	return b.String()
}

// formatPrice keeps sensible precision across tick sizes.
func formatPrice(p float64) string {
	switch {
	case p >= 100:
		return fmt.Sprintf("%.2f", p)
	case p >= 1:
		return fmt.Sprintf("%.4f", p)
	default:
		return fmt.Sprintf("%.6f", p)
	}
}
