package accounting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"1h 20m", 80 * time.Minute},
		{"2h", 2 * time.Hour},
		{"30m", 30 * time.Minute},
		{"45s", 45 * time.Second},
		{"1:20", 80 * time.Minute},
		{"80", 80 * time.Minute},
		{"1.5h", 90 * time.Minute},
		{" 1H 5M ", 65 * time.Minute},
	}
	for _, tt := range tests {
		got, err := ParseDuration(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"", "soon", "-5", "a:b"} {
		_, err := ParseDuration(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseAdjustment(t *testing.T) {
	d, rel, err := ParseAdjustment("+15m")
	require.NoError(t, err)
	assert.True(t, rel)
	assert.Equal(t, 15*time.Minute, d)

	d, rel, err = ParseAdjustment("-1h")
	require.NoError(t, err)
	assert.True(t, rel)
	assert.Equal(t, -time.Hour, d)

	d, rel, err = ParseAdjustment("1:20")
	require.NoError(t, err)
	assert.False(t, rel)
	assert.Equal(t, 80*time.Minute, d)

	_, _, err = ParseAdjustment("+")
	assert.Error(t, err)
}

func TestParseDurationRejectsOversized(t *testing.T) {
	d, err := ParseDuration("168h")
	require.NoError(t, err)
	assert.Equal(t, MaxDuration, d)

	for _, bad := range []string{"169h", "99999999999h", "100h 100h", "168:01", "10081", "inf", "nan"} {
		_, err := ParseDuration(bad)
		assert.Error(t, err, bad)
	}

	_, _, err = ParseAdjustment("+99999999999h")
	assert.Error(t, err)
	_, _, err = ParseAdjustment("-99999999999h")
	assert.Error(t, err)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0m", FormatDuration(0))
	assert.Equal(t, "0m", FormatDuration(-time.Minute))
	assert.Equal(t, "45s", FormatDuration(45*time.Second))
	assert.Equal(t, "5m 10s", FormatDuration(5*time.Minute+10*time.Second))
	assert.Equal(t, "1h 30m", FormatDuration(90*time.Minute+20*time.Second))
	assert.Equal(t, "2h", FormatDuration(2*time.Hour))
	assert.Equal(t, "-5m", FormatSigned(-5*time.Minute))
	assert.Equal(t, "+1h", FormatSigned(time.Hour))
}
