package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatRemaining(t *testing.T) {
	cases := []struct {
		name string
		d    time.Duration
		want string
	}{
		{"zero", 0, "0m"},
		{"negative", -time.Hour, "0m"},
		{"sub-minute rounds up", 10 * time.Second, "1m"},
		{"exact minute", time.Minute, "1m"},
		{"minute plus second rounds up", time.Minute + time.Second, "2m"},
		{"under an hour", 45 * time.Minute, "45m"},
		{"exact hour", 4 * time.Hour, "4h 0m"},
		{"hours and minutes", 2*time.Hour + 15*time.Minute, "2h 15m"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FormatRemaining(tc.d))
		})
	}
}
