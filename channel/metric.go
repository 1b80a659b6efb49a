package channel

import "sync/atomic"

// Metrics contains atomic I/O counters for a Channel.
// Metrics can be used as the value of a prometheus CounterFunc.
type Metrics struct {
	// ReadCount is the number of underlying read calls that returned data.
	ReadCount atomic.Uint64
	// BytesRead is the total number of bytes read.
	BytesRead atomic.Uint64
	// WriteCount is the number of underlying write calls.
	WriteCount atomic.Uint64
	// BytesWritten is the total number of bytes accepted by the OS.
	BytesWritten atomic.Uint64
	// ShortWriteCount is the number of writes that returned ErrShortWrite.
	ShortWriteCount atomic.Uint64
}

func (m *Metrics) incRead(n int) {
	if n <= 0 {
		return
	}
	m.ReadCount.Add(1)
	m.BytesRead.Add(uint64(n))
}

func (m *Metrics) incWrite(n int) {
	m.WriteCount.Add(1)
	if n > 0 {
		m.BytesWritten.Add(uint64(n))
	}
}
