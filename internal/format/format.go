// Package format renders aggregated summaries as fixed-width terminal lines.
package format

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/form4-tracker/internal/models"
)

const (
	companyWidth = 28
	rolesWidth   = 18
	ellipsis     = "..."
)

var roleAbbreviations = map[string]string{
	"Chief Executive Officer":      "CEO",
	"Chief Financial Officer":      "CFO",
	"Chief Operating Officer":      "COO",
	"Chief Technology Officer":     "CTO",
	"Chief Information Officer":    "CIO",
	"Chief Accounting Officer":     "CAO",
	"Chief Legal Officer":          "CLO",
	"Principal Accounting Officer": "PAO",
	"Executive Vice President":     "EVP",
	"Senior Vice President":        "SVP",
	"Vice President":               "VP",
	"General Counsel":              "GC",
	"Director":                     "Dir",
	"10% Owner":                    "10%",
	"President":                    "Pres",
	"Secretary":                    "Sec",
	"Treasurer":                    "Treas",
}

// abbreviationOrder applies longer titles first so "Executive Vice President"
// is not consumed by "Vice President".
var abbreviationOrder = func() []string {
	keys := make([]string, 0, len(roleAbbreviations))
	for k := range roleAbbreviations {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}()

// AbbreviateRole shortens common officer titles
func AbbreviateRole(role string) string {
	out := strings.TrimSpace(role)
	for _, full := range abbreviationOrder {
		out = replaceFold(out, full, roleAbbreviations[full])
	}
	out = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(out), ","))
	return out
}

func replaceFold(s, old, repl string) string {
	lower, lowerOld := strings.ToLower(s), strings.ToLower(old)
	if len(lower) != len(s) {
		return strings.ReplaceAll(s, old, repl)
	}
	var b strings.Builder
	for {
		i := strings.Index(lower, lowerOld)
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:i])
		b.WriteString(repl)
		s, lower = s[i+len(old):], lower[i+len(old):]
	}
}

// Truncate cuts s to width runes, ending in an ellipsis when shortened
func Truncate(s string, width int) string {
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	if width <= len(ellipsis) {
		return string([]rune(s)[:width])
	}
	return string([]rune(s)[:width-len(ellipsis)]) + ellipsis
}

var (
	thousand = decimal.NewFromInt(1_000)
	million  = decimal.NewFromInt(1_000_000)
	billion  = decimal.NewFromInt(1_000_000_000)
)

// FormatAmount renders a dollar magnitude as $N, $NK, $N.NM or $N.NB. The
// unit is chosen after rounding, so 999,999 prints as $1.0M rather than $1000K.
func FormatAmount(amount decimal.Decimal) string {
	a := amount.Abs()
	if n := a.Round(0); n.LessThan(thousand) {
		return "$" + n.StringFixed(0)
	}
	if k := a.Div(thousand).Round(0); k.LessThan(thousand) {
		return "$" + k.StringFixed(0) + "K"
	}
	if m := a.Div(million).Round(1); m.LessThan(thousand) {
		return "$" + m.StringFixed(1) + "M"
	}
	return "$" + a.Div(billion).StringFixed(1) + "B"
}

// FormatSignedAmount is FormatAmount with a forced + or - sign
func FormatSignedAmount(amount decimal.Decimal) string {
	if amount.IsNegative() {
		return "-" + FormatAmount(amount)
	}
	return "+" + FormatAmount(amount)
}

// TrendArrow maps a trend onto an arrow
func TrendArrow(t models.Trend) string {
	switch {
	case t.IsBullish():
		return "↑"
	case t.IsBearish():
		return "↓"
	default:
		return "→"
	}
}

// Header returns the column titles matching FormatSummary
func Header() string {
	return fmt.Sprintf("%-11s %-28s %-7s %s %s %10s  %-18s", "Date", "Ticker / Company", "B/S", "P", "T", "Net", "Roles")
}

// FormatSummary renders one ticker-level group as a fixed-width line
func FormatSummary(s models.AggregatedSummary) string {
	subject := s.Ticker
	if subject == "" {
		subject = s.Subject
	}
	if s.CompanyName != "" {
		subject += " - " + s.CompanyName
	}
	return formatLine(s, subject)
}

// FormatInsiderLine renders one insider-level group as a fixed-width line
func FormatInsiderLine(s models.AggregatedSummary) string {
	name := s.OwnerName
	if name == "" {
		name = s.Subject
	}
	return formatLine(s, name)
}

func formatLine(s models.AggregatedSummary, subject string) string {
	planned := " "
	if s.IsMostlyPlanned {
		planned = "P"
	}
	counts := fmt.Sprintf("%dB/%dS", s.BuyCount, s.SellCount)

	return fmt.Sprintf("%-11s %s %-7s %s %s %10s  %s",
		s.LatestDate.String(),
		pad(Truncate(subject, companyWidth), companyWidth),
		counts,
		planned,
		TrendArrow(s.Trend),
		FormatSignedAmount(s.NetAmount),
		Truncate(strings.Join(s.Roles, ", "), rolesWidth),
	)
}

// pad right-pads by rune count so multi-byte names keep columns aligned
func pad(s string, width int) string {
	if n := utf8.RuneCountInString(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}
