package pool

import "sync"

// Codeword buffers are at most 255 bytes; one size class covers every
// supported FEC parameter set.
const blockBufSize = 256

var blocks = sync.Pool{
	New: func() any {
		b := make([]byte, blockBufSize)
		return &b
	},
}

// GetBlock returns a scratch buffer of length n. Buffers larger than one
// codeword are allocated directly and are not pooled.
func GetBlock(n int) *[]byte {
	if n > blockBufSize {
		b := make([]byte, n)
		return &b
	}

	bp, _ := blocks.Get().(*[]byte)
	*bp = (*bp)[:n]

	return bp
}

// PutBlock returns a buffer obtained from GetBlock.
func PutBlock(bp *[]byte) {
	if bp == nil || cap(*bp) != blockBufSize {
		return
	}

	*bp = (*bp)[:blockBufSize]
	blocks.Put(bp)
}
