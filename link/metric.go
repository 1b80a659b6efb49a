package link

import "sync/atomic"

// Metrics contains atomic counters for a Link.
// Metrics can be used as the value of a prometheus CounterFunc.
type Metrics struct {
	MessagesSent     atomic.Uint64
	MessagesReceived atomic.Uint64
	BytesSent        atomic.Uint64
	BytesReceived    atomic.Uint64

	// BlocksSent and BlocksReceived count FEC codewords.
	BlocksSent     atomic.Uint64
	BlocksReceived atomic.Uint64
	// CorrectedSymbols is the total number of codeword bytes repaired.
	CorrectedSymbols atomic.Uint64
	// CorrectionFailures counts codewords that could not be decoded.
	CorrectionFailures atomic.Uint64
	// DiscardedBytes counts decoded bytes beyond the requested length.
	DiscardedBytes atomic.Uint64

	Conversations atomic.Uint64
	Timeouts      atomic.Uint64
}
