package webgpu

// PowerPreference selects which adapter New requests.
type PowerPreference int

const (
	// HighPerformance prefers a discrete GPU.
	HighPerformance PowerPreference = iota
	// LowPower prefers an integrated GPU.
	LowPower
)

// String returns the preference name.
func (p PowerPreference) String() string {
	switch p {
	case HighPerformance:
		return "high-performance"
	case LowPower:
		return "low-power"
	default:
		return "unknown"
	}
}

type options struct {
	memoryLimit     uint64 // 0 = unlimited
	powerPreference PowerPreference
	maxBatchSize    int // 0 = flush only at readback
}

// Option configures a Backend.
type Option func(*options)

// WithMemoryLimit caps the bytes of device memory held by live tensors.
// Zero means no limit.
func WithMemoryLimit(bytes uint64) Option {
	return func(o *options) {
		o.memoryLimit = bytes
	}
}

// WithPowerPreference selects the adapter class.
func WithPowerPreference(p PowerPreference) Option {
	return func(o *options) {
		o.powerPreference = p
	}
}

// WithMaxBatchSize sets how many command buffers accumulate before they are
// submitted without waiting for a readback.
func WithMaxBatchSize(n int) Option {
	return func(o *options) {
		o.maxBatchSize = n
	}
}

func newOptions(opts []Option) options {
	o := options{powerPreference: HighPerformance}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
