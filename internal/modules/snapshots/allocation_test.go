package snapshots

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllocationWeight(t *testing.T) {
	testCases := []struct {
		symbol   string
		expected string
	}{
		{"BTC", "40"},
		{"ETH", "35"},
		{"SOL", "15"},
		{"USDT", "10"},
		{" btc ", "40"},
		{"DOGE", "0"},
		{"", "0"},
	}

	for _, tc := range testCases {
		t.Run(tc.symbol, func(t *testing.T) {
			assert.Equal(t, tc.expected, AllocationWeight(tc.symbol).String())
		})
	}
}
