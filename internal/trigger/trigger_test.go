package trigger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02 15:04:05", value)
	require.NoError(t, err)
	return parsed
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"empty", ""},
		{"too few fields", "* * *"},
		{"too many fields", "* * * * * * *"},
		{"minute out of range", "60 * * * *"},
		{"hour out of range", "* 24 * * *"},
		{"day zero", "* * 0 * *"},
		{"month out of range", "* * * 13 *"},
		{"dow out of range", "* * * * 8"},
		{"bad range", "10-5 * * * *"},
		{"zero step", "*/0 * * * *"},
		{"not a number", "a * * * *"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Parse(test.expr)
			require.Error(t, err)

			var parseErr *ParseError
			assert.ErrorAs(t, err, &parseErr)
		})
	}
}

func TestNext(t *testing.T) {
	tests := []struct {
		name string
		expr string
		ref  string
		want string
	}{
		{"every five minutes", "*/5 * * * *", "2024-03-15 10:02:00", "2024-03-15 10:05:00"},
		{"exactly on a fire time moves forward", "*/5 * * * *", "2024-03-15 10:05:00", "2024-03-15 10:10:00"},
		{"daily at midnight", "0 0 * * *", "2024-03-15 10:02:00", "2024-03-16 00:00:00"},
		{"hour rollover", "30 * * * *", "2024-03-15 10:45:00", "2024-03-15 11:30:00"},
		{"month rollover", "0 0 1 * *", "2024-03-15 10:00:00", "2024-04-01 00:00:00"},
		{"year rollover", "0 0 1 1 *", "2024-03-15 10:00:00", "2025-01-01 00:00:00"},
		{"specific weekday", "0 9 * * 1", "2024-03-15 10:00:00", "2024-03-18 09:00:00"},
		{"sunday as seven", "0 9 * * 7", "2024-03-15 10:00:00", "2024-03-17 09:00:00"},
		{"list field", "0 8,12,18 * * *", "2024-03-15 13:00:00", "2024-03-15 18:00:00"},
		{"range field", "0 9-17 * * *", "2024-03-15 18:00:00", "2024-03-16 09:00:00"},
		{"six fields every five seconds", "*/5 * * * * *", "2024-03-15 10:02:02", "2024-03-15 10:02:05"},
		{"six fields top of minute", "0 */5 * * * *", "2024-03-15 10:02:00", "2024-03-15 10:05:00"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s, err := Parse(test.expr)
			require.NoError(t, err)

			got := s.Next(mustTime(t, test.ref))
			assert.Equal(t, mustTime(t, test.want), got)
		})
	}
}

// When both day fields are restricted the standard rule is OR: the job
// fires on the 15th and on every Monday.
func TestNextDayFieldsOrRule(t *testing.T) {
	s, err := Parse("0 0 15 * 1")
	require.NoError(t, err)

	// 2024-03-09 is a Saturday. Monday the 11th comes before the 15th.
	ref := mustTime(t, "2024-03-09 10:00:00")
	assert.Equal(t, mustTime(t, "2024-03-11 00:00:00"), s.Next(ref))

	// From Monday the 11th the next fire is the 15th, a Friday.
	ref = mustTime(t, "2024-03-11 10:00:00")
	assert.Equal(t, mustTime(t, "2024-03-15 00:00:00"), s.Next(ref))
}

func TestNextOnlyDomRestricted(t *testing.T) {
	s, err := Parse("0 0 15 * *")
	require.NoError(t, err)

	ref := mustTime(t, "2024-03-09 10:00:00")
	assert.Equal(t, mustTime(t, "2024-03-15 00:00:00"), s.Next(ref))
}

func TestNextIsPure(t *testing.T) {
	s, err := Parse("*/7 3 * * *")
	require.NoError(t, err)

	ref := mustTime(t, "2024-03-15 02:59:30")
	first := s.Next(ref)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, s.Next(ref))
	}
}

func TestNextImpossibleSchedule(t *testing.T) {
	// February the 30th never exists.
	s, err := Parse("0 0 30 2 *")
	require.NoError(t, err)

	got := s.Next(mustTime(t, "2024-03-15 10:00:00"))
	assert.True(t, got.IsZero())
}

func TestNextKeepsLocation(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	s, err := Parse("0 12 * * *")
	require.NoError(t, err)

	ref := time.Date(2024, 3, 15, 10, 0, 0, 0, loc)
	got := s.Next(ref)
	assert.Equal(t, loc, got.Location())
	assert.Equal(t, 12, got.Hour())
}
