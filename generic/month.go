package generic

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// =============================================================================
// REPORT MONTH - The YYYY-MM period a batch of field data pertains to
// =============================================================================

// ReportMonth is a calendar month. All field values and derived records
// are keyed by it.
type ReportMonth struct {
	Year  int
	Month time.Month
}

var reportMonthPattern = regexp.MustCompile(`^(\d{4})-(\d{2})$`)

// ParseReportMonth parses "YYYY-MM".
func ParseReportMonth(s string) (ReportMonth, error) {
	m := reportMonthPattern.FindStringSubmatch(s)
	if m == nil {
		return ReportMonth{}, fmt.Errorf("%w: %q", ErrInvalidReportMonth, s)
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	if month < 1 || month > 12 {
		return ReportMonth{}, fmt.Errorf("%w: %q", ErrInvalidReportMonth, s)
	}
	return ReportMonth{Year: year, Month: time.Month(month)}, nil
}

// MustParseReportMonth panics on malformed input. Use in tests.
func MustParseReportMonth(s string) ReportMonth {
	rm, err := ParseReportMonth(s)
	if err != nil {
		panic(err)
	}
	return rm
}

func MonthOf(t time.Time) ReportMonth { return ReportMonth{Year: t.Year(), Month: t.Month()} }

func (rm ReportMonth) String() string { return fmt.Sprintf("%04d-%02d", rm.Year, int(rm.Month)) }

func (rm ReportMonth) IsZero() bool { return rm.Year == 0 && rm.Month == 0 }

// Start returns the first instant of the month in UTC.
func (rm ReportMonth) Start() time.Time {
	return time.Date(rm.Year, rm.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End returns the last day of the month in UTC.
func (rm ReportMonth) End() time.Time {
	return rm.Start().AddDate(0, 1, -1)
}

func (rm ReportMonth) Next() ReportMonth     { return MonthOf(rm.Start().AddDate(0, 1, 0)) }
func (rm ReportMonth) Previous() ReportMonth { return MonthOf(rm.Start().AddDate(0, -1, 0)) }

func (rm ReportMonth) Before(other ReportMonth) bool { return rm.Start().Before(other.Start()) }
