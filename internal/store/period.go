package store

import (
	"fmt"
	"strconv"
	"time"

	"membership-billing/internal/common/errors"
)

// Period identifies one billing cycle. Each period maps to its own sheet
// named after String().
type Period struct {
	Year  int
	Month time.Month
}

// String renders the period as the sheet title, e.g. "202603".
func (p Period) String() string {
	return fmt.Sprintf("%04d%02d", p.Year, int(p.Month))
}

// ParsePeriod parses a six-digit YYYYMM string.
func ParsePeriod(s string) (Period, error) {
	if len(s) != 6 {
		return Period{}, errors.NewArgumentMismatchError(fmt.Sprintf("period must be YYYYMM, got %q", s))
	}
	year, err := strconv.Atoi(s[:4])
	if err != nil {
		return Period{}, errors.NewArgumentMismatchError(fmt.Sprintf("period must be YYYYMM, got %q", s))
	}
	month, err := strconv.Atoi(s[4:])
	if err != nil || month < 1 || month > 12 {
		return Period{}, errors.NewArgumentMismatchError(fmt.Sprintf("period month out of range in %q", s))
	}
	return Period{Year: year, Month: time.Month(month)}, nil
}

// CurrentPeriod derives the period from the given clock.
func CurrentPeriod(now func() time.Time) Period {
	t := now()
	return Period{Year: t.Year(), Month: t.Month()}
}
