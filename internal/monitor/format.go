package monitor

import (
	"fmt"
	"strings"

	"github.com/rewired-gh/mmradar/internal/models"
)

// AlertHeader returns the emoji and label for a severity tier.
func AlertHeader(s models.Severity) (emoji, label string) {
	switch s {
	case models.SeverityCritical:
		return "🚨", "CRITICAL ALERT"
	case models.SeverityWarning:
		return "⚠️", "WARNING"
	default:
		return "📊", "INFO"
	}
}

// FormatAlert renders an assessment as a plain-text alert body.
func FormatAlert(a models.RiskAssessment) string {
	var b strings.Builder

	emoji, label := AlertHeader(a.Severity)
	fmt.Fprintf(&b, "%s %s - %s\n\n", emoji, label, a.Instrument)
	if a.Failed() {
		fmt.Fprintf(&b, "Could not analyze: %v\n\n", a.Err)
	} else {
		fmt.Fprintf(&b, "Risk Score: %d/100\n\n", a.RiskScore)
	}

	if len(a.Signals) > 0 {
		b.WriteString("🔍 Signals:\n")
		for _, s := range a.Signals {
			fmt.Fprintf(&b, "• %s\n", s.Message)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "💡 Recommendation:\n%s\n\n", a.Recommendation)
	fmt.Fprintf(&b, "⏰ %s", a.Timestamp.Format("15:04:05 02/01/2006"))
	return b.String()
}
