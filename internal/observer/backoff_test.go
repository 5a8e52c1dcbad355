package observer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDelayTiers(t *testing.T) {
	t.Parallel()

	policy := DefaultBackoffPolicy()

	tests := []struct {
		name            string
		disconnectedFor time.Duration
		want            time.Duration
	}{
		{"just dropped", 0, 5 * time.Second},
		{"two minutes", 2 * time.Minute, 5 * time.Second},
		{"just under five minutes", 5*time.Minute - time.Second, 5 * time.Second},
		{"exactly five minutes", 5 * time.Minute, 60 * time.Second},
		{"seven minutes", 7 * time.Minute, 60 * time.Second},
		{"exactly ten minutes", 10 * time.Minute, 300 * time.Second},
		{"twelve minutes", 12 * time.Minute, 300 * time.Second},
		{"hours later", 3 * time.Hour, 300 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, policy.Delay(tt.disconnectedFor))
		})
	}
}
