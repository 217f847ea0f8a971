package domain

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogFilter(t *testing.T) {
	t.Run("empty is unconstrained", func(t *testing.T) {
		f, err := ParseLogFilter("", "", "")
		require.NoError(t, err)
		assert.True(t, f.IsEmpty())
	})

	t.Run("all fields", func(t *testing.T) {
		f, err := ParseLogFilter("failed", "bulk", "2026-10-17")
		require.NoError(t, err)
		assert.Equal(t, LogStatusFailed, f.Status)
		assert.Equal(t, TestTypeBulk, f.TestType)
		require.NotNil(t, f.Date)
		assert.Equal(t, time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC), *f.Date)
	})

	t.Run("invalid values are reported per field", func(t *testing.T) {
		_, err := ParseLogFilter("bounced", "smoke", "17/10/2026")
		require.Error(t, err)

		var ve *ValidationError
		require.True(t, errors.As(err, &ve))
		assert.Len(t, ve.Fields, 3)
		assert.Contains(t, ve.Fields, "status")
		assert.Contains(t, ve.Fields, "type")
		assert.Contains(t, ve.Fields, "date")
		assert.Equal(t, EINVALID, ErrorCode(err))
		assert.Equal(t, "Status must be sent or failed", ErrorMessage(err))
	})
}

func TestTotalPages(t *testing.T) {
	tests := []struct {
		total, size, want int
	}{
		{0, 20, 0},
		{1, 20, 1},
		{20, 20, 1},
		{21, 20, 2},
		{45, 20, 3},
		{10, 0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TotalPages(tt.total, tt.size), "total=%d size=%d", tt.total, tt.size)
	}
}

func TestPageOffset(t *testing.T) {
	assert.Equal(t, 0, PageOffset(1, 20))
	assert.Equal(t, 40, PageOffset(3, 20))
	assert.Equal(t, 0, PageOffset(0, 20))
	assert.Equal(t, 0, PageOffset(-5, 20))
	assert.Equal(t, 0, PageOffset(3, 0))

	huge := PageOffset(math.MaxInt/20+2, 20)
	assert.GreaterOrEqual(t, huge, 0)
	assert.Equal(t, math.MaxInt/20*20, huge)
	assert.Equal(t, math.MaxInt/20*20, PageOffset(math.MaxInt, 20))
}

func TestLogPage_Navigation(t *testing.T) {
	p := LogPage{Total: 45, Page: 2, PageSize: 20}

	assert.Equal(t, 3, p.TotalPages())
	assert.True(t, p.HasPrevious())
	assert.True(t, p.HasNext())

	last := LogPage{Total: 45, Page: 3, PageSize: 20}
	assert.False(t, last.HasNext())
}

func TestBulkReport_Summary(t *testing.T) {
	report := BulkReport{Results: []RecipientResult{
		{Email: "a@x.com", Result: Sent("<1@x.com>")},
		{Email: "b@x.com", Result: Failed(errors.New("550 rejected"))},
		{Email: "c@x.com", Result: Sent("<2@x.com>")},
	}}

	assert.Equal(t, 3, report.Total())
	assert.Equal(t, 2, report.Succeeded())
	assert.False(t, report.AllSucceeded())
	assert.Equal(t, "2 of 3 succeeded", report.Summary())
	assert.Equal(t, LogStatusFailed, report.Results[1].Result.Status())
	assert.Equal(t, "550 rejected", report.Results[1].Result.Error)
}
