package webgpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewOptions(t *testing.T) {
	o := newOptions(nil)
	assert.Equal(t, HighPerformance, o.powerPreference)
	assert.Zero(t, o.memoryLimit)
	assert.Zero(t, o.maxBatchSize)

	o = newOptions([]Option{WithPowerPreference(LowPower), WithMemoryLimit(1 << 20), WithMaxBatchSize(4)})
	assert.Equal(t, LowPower, o.powerPreference)
	assert.Equal(t, uint64(1<<20), o.memoryLimit)
	assert.Equal(t, 4, o.maxBatchSize)
}

func TestPowerPreferenceString(t *testing.T) {
	assert.Equal(t, "high-performance", HighPerformance.String())
	assert.Equal(t, "low-power", LowPower.String())
	assert.Equal(t, "unknown", PowerPreference(7).String())
}
