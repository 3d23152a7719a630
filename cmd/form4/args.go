package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/trogers1052/form4-tracker/internal/aggregate"
)

// legacyFlags are multi-letter flags accepted with a single dash
var legacyFlags = map[string]string{
	"-hp":  "--hp",
	"-min": "--min",
}

// normalizeArgs rewrites -hp and -min to their long forms so pflag accepts them
func normalizeArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for _, arg := range args {
		name, value, hasValue := strings.Cut(arg, "=")
		if long, ok := legacyFlags[name]; ok {
			if hasValue {
				arg = long + "=" + value
			} else {
				arg = long
			}
		}
		out = append(out, arg)
	}
	return out
}

// parsePositional reads the optional "[count] [date_range]" arguments. The
// date range may span several arguments, as in "5/1 - 5/10".
func parsePositional(args []string, now time.Time) (int, *aggregate.DateRange, error) {
	count := 0
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil {
			if n <= 0 {
				return 0, nil, fmt.Errorf("%w: count must be positive", aggregate.ErrInvalidFilter)
			}
			count = n
			args = args[1:]
		}
	}

	raw := strings.TrimSpace(strings.Join(args, " "))
	if raw == "" {
		return count, nil, nil
	}
	r, err := aggregate.ParseDateRange(raw, now)
	if err != nil {
		return 0, nil, err
	}
	return count, &r, nil
}
