package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMomentum(t *testing.T) {
	tests := []struct {
		name           string
		current, prior float64
		want           float64
	}{
		{"growth", 150, 100, 50},
		{"decline", 50, 100, -50},
		{"flat", 100, 100, 0},
		{"new activity from zero baseline", 42, 0, 100},
		{"no activity at all", 0, 0, 0},
		{"collapse to zero", 0, 80, -100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Momentum(tt.current, tt.prior), 1e-9)
		})
	}
}
