package notify

import (
	"fmt"
	"math"
	"strings"

	"scanner_bot/internal/models"
)

// fmtPrice — цена без хвостовых нулей, точность под маленькие альты.
func fmtPrice(v float64) string {
	switch {
	case math.Abs(v) >= 100:
		return fmt.Sprintf("%.2f", v)
	case math.Abs(v) >= 1:
		return fmt.Sprintf("%.4f", v)
	default:
		return fmt.Sprintf("%.6f", v)
	}
}

func formatSignal(ps *models.PendingSignal, mode string) string {
	c := &ps.Candidate

	rr1 := 0.0
	if c.Side == models.SideLong {
		if d := c.Entry - c.SL; d > 1e-9 {
			rr1 = (c.TPs[0] - c.Entry) / d
		}
	} else {
		if d := c.SL - c.Entry; d > 1e-9 {
			rr1 = (c.Entry - c.TPs[0]) / d
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*🔔 %s • %s • %s • Режим: %s*\n\n", c.Symbol, c.Side, c.Regime, mode)

	b.WriteString("*Сводка*\n")
	fmt.Fprintf(&b, "• 1H Bias: *%s*\n", orDash(string(c.Explain.HTF)))
	fmt.Fprintf(&b, "• Причина: %s\n", orDash(c.Reason))
	fmt.Fprintf(&b, "• R (до TP1): *%.2f*\n", rr1)
	fmt.Fprintf(&b, "• Скор: *%.0f* | p: *%.2f*", c.Score, c.PFinal)
	if ps.Bonus > 0 {
		fmt.Fprintf(&b, " | 5m-бонус: +%.0f", ps.Bonus)
	}
	b.WriteString("\n\n")

	b.WriteString("*Уровни*\n")
	fmt.Fprintf(&b, "• Вход: `%s`\n", fmtPrice(c.Entry))
	fmt.Fprintf(&b, "• SL  : `%s`\n", fmtPrice(c.SL))
	fmt.Fprintf(&b, "• TP1 : `%s`\n", fmtPrice(c.TPs[0]))
	fmt.Fprintf(&b, "• TP2 : `%s`\n", fmtPrice(c.TPs[1]))
	fmt.Fprintf(&b, "• TP3 : `%s`\n\n", fmtPrice(c.TPs[2]))

	b.WriteString("*Примечания*\n")
	b.WriteString("- *SL*: стоп-лосс.\n")
	b.WriteString("- *TP*: уровни фиксации прибыли.\n")
	b.WriteString("- *R*: ATR-стоп; 1.0R = расстояние до SL.")
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
