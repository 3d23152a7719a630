package aggregate

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/form4-tracker/internal/models"
)

// DateRange is an inclusive span of calendar dates
type DateRange struct {
	Start models.Date
	End   models.Date
}

// Contains reports whether d falls within the range, bounds included
func (r DateRange) Contains(d models.Date) bool {
	return !d.Before(r.Start) && !d.After(r.End)
}

// Days returns the number of calendar days covered
func (r DateRange) Days() int {
	return int(r.End.Sub(r.Start.Time).Hours()/24) + 1
}

// ParseDateRange parses "today", "M/D - M/D", "M/D/YY - M/D/YY" or
// "YYYY-MM-DD - YYYY-MM-DD". A side without a year uses the current year, and
// an end that would precede its start rolls into the next year.
func ParseDateRange(s string, now time.Time) (DateRange, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DateRange{}, fmt.Errorf("%w: empty date range", ErrInvalidFilter)
	}
	if strings.EqualFold(s, "today") {
		today := models.DateOf(now)
		return DateRange{Start: today, End: today}, nil
	}

	startStr, endStr, ok := splitRange(s)
	if !ok {
		d, _, err := parseRangeDate(s, now)
		if err != nil {
			return DateRange{}, err
		}
		return DateRange{Start: d, End: d}, nil
	}

	start, _, err := parseRangeDate(startStr, now)
	if err != nil {
		return DateRange{}, err
	}
	end, endHasYear, err := parseRangeDate(endStr, now)
	if err != nil {
		return DateRange{}, err
	}

	if end.Before(start) {
		if endHasYear {
			return DateRange{}, fmt.Errorf("%w: %q ends before it starts", ErrInvalidFilter, s)
		}
		end = models.Date{Time: end.AddDate(1, 0, 0)}
	}
	return DateRange{Start: start, End: end}, nil
}

func splitRange(s string) (string, string, bool) {
	for _, sep := range []string{" - ", " to ", ".."} {
		if parts := strings.SplitN(s, sep, 2); len(parts) == 2 {
			return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), true
		}
	}
	if strings.Count(s, "-") == 1 {
		parts := strings.SplitN(s, "-", 2)
		return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), true
	}
	return "", "", false
}

// parseRangeDate parses one side of a range and reports whether a year was given
func parseRangeDate(s string, now time.Time) (models.Date, bool, error) {
	if strings.Count(s, "-") == 2 {
		d, err := models.ParseDate(s)
		if err != nil {
			return models.Date{}, false, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
		}
		return d, true, nil
	}

	parts := strings.Split(s, "/")
	if len(parts) != 2 && len(parts) != 3 {
		return models.Date{}, false, fmt.Errorf("%w: invalid date %q, use M/D, M/D/YY or YYYY-MM-DD", ErrInvalidFilter, s)
	}

	nums := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return models.Date{}, false, fmt.Errorf("%w: invalid date %q", ErrInvalidFilter, s)
		}
		nums[i] = n
	}

	year, hasYear := now.Year(), false
	if len(nums) == 3 {
		year, hasYear = nums[2], true
		if len(strings.TrimSpace(parts[2])) <= 2 {
			year += 2000
		}
	}

	month, day := nums[0], nums[1]
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return models.Date{}, false, fmt.Errorf("%w: invalid date %q", ErrInvalidFilter, s)
	}
	d := models.NewDate(year, time.Month(month), day)
	if d.Month() != time.Month(month) {
		return models.Date{}, false, fmt.Errorf("%w: invalid date %q", ErrInvalidFilter, s)
	}
	return d, hasYear, nil
}

// ThresholdKind says which aggregate a threshold applies to
type ThresholdKind int

// Threshold kinds
const (
	ThresholdNet ThresholdKind = iota
	ThresholdBuy
	ThresholdSell
)

// ParseThreshold parses "X" (minimum absolute net), "+X" (minimum buys) or
// "-X" (minimum sells). Values accept $, commas and K/M/B suffixes.
func ParseThreshold(s string) (ThresholdKind, decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	kind := ThresholdNet
	switch {
	case strings.HasPrefix(s, "+"):
		kind, s = ThresholdBuy, s[1:]
	case strings.HasPrefix(s, "-"):
		kind, s = ThresholdSell, s[1:]
	}

	v, err := ParseAmount(s)
	if err != nil {
		return kind, decimal.Zero, err
	}
	return kind, v, nil
}

// ParseAmount parses a non-negative dollar amount
func ParseAmount(s string) (decimal.Decimal, error) {
	clean := strings.ToUpper(strings.NewReplacer("$", "", ",", "", "_", "").Replace(strings.TrimSpace(s)))
	multiplier := decimal.NewFromInt(1)
	switch {
	case strings.HasSuffix(clean, "K"):
		multiplier, clean = decimal.NewFromInt(1_000), strings.TrimSuffix(clean, "K")
	case strings.HasSuffix(clean, "M"):
		multiplier, clean = decimal.NewFromInt(1_000_000), strings.TrimSuffix(clean, "M")
	case strings.HasSuffix(clean, "B"):
		multiplier, clean = decimal.NewFromInt(1_000_000_000), strings.TrimSuffix(clean, "B")
	}

	v, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: amount %q is not a number", ErrInvalidFilter, s)
	}
	if v.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: amount %q must not be negative", ErrInvalidFilter, s)
	}
	return v.Mul(multiplier), nil
}
