package generic_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/remuneration-engine/generic"
)

func TestParseReportMonth_Valid(t *testing.T) {
	rm, err := generic.ParseReportMonth("2025-03")
	require.NoError(t, err)
	assert.Equal(t, 2025, rm.Year)
	assert.Equal(t, time.March, rm.Month)
	assert.Equal(t, "2025-03", rm.String())
	assert.Equal(t, time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), rm.End())
}

func TestParseReportMonth_Invalid(t *testing.T) {
	for _, s := range []string{"", "2025-3", "2025-13", "2025-00", "25-03", "2025/03", "2025-03-01"} {
		_, err := generic.ParseReportMonth(s)
		assert.ErrorIs(t, err, generic.ErrInvalidReportMonth, s)
		assert.True(t, generic.IsClientError(err), s)
	}
}

func TestReportMonth_NextPrevious(t *testing.T) {
	dec2024 := generic.MustParseReportMonth("2024-12")
	assert.Equal(t, "2025-01", dec2024.Next().String())
	assert.Equal(t, "2024-11", dec2024.Previous().String())
	assert.True(t, dec2024.Before(dec2024.Next()))
	assert.False(t, dec2024.Next().Before(dec2024))
}
