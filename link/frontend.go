package link

import (
	"fmt"

	"github.com/dalspace/loris/internal/pool"
)

// ===========================================================================
// Plain front end
// ===========================================================================

type plainFrontend struct {
	l *Link
}

var _ Frontend = (*plainFrontend)(nil)

func (f *plainFrontend) Encoded() bool { return false }

func (f *plainFrontend) BlockSize() int { return 1 }

// Send writes data verbatim.
func (f *plainFrontend) Send(data []byte) error {
	l := f.l
	if len(data) == 0 {
		return nil
	}

	l.ioMu.Lock()
	defer l.ioMu.Unlock()

	if err := l.write(data); err != nil {
		return err
	}

	l.metrics.MessagesSent.Add(1)
	l.metrics.BytesSent.Add(uint64(len(data)))
	l.cfg.logger.Debug("link: sent", "bytes", len(data), "fec", false)

	return nil
}

// Recv reads up to or exactly req.Length bytes.
func (f *plainFrontend) Recv(req ReadRequest) ([]byte, error) {
	l := f.l
	if err := req.validate(); err != nil {
		return nil, err
	}

	buf := make([]byte, req.Length)
	if req.Length == 0 {
		return buf, nil
	}

	l.ioMu.Lock()
	defer l.ioMu.Unlock()

	switch req.Mode {
	case UpTo:
		n, err := l.readUpTo(buf)
		if err != nil {
			return buf[:n], err
		}
		buf = buf[:n]
	case Until:
		if err := l.readUntil(buf); err != nil {
			return nil, err
		}
	}

	l.metrics.MessagesReceived.Add(1)
	l.metrics.BytesReceived.Add(uint64(len(buf)))
	l.cfg.logger.Debug("link: received", "bytes", len(buf), "mode", req.Mode, "fec", false)

	return buf, nil
}

// ===========================================================================
// FEC front end
// ===========================================================================

type fecFrontend struct {
	l *Link
}

var _ Frontend = (*fecFrontend)(nil)

func (f *fecFrontend) Encoded() bool { return true }

func (f *fecFrontend) BlockSize() int { return f.l.codec.Params().PayloadLen }

// Send splits data into PayloadLen chunks and writes one codeword per chunk.
// An empty payload sends nothing.
func (f *fecFrontend) Send(data []byte) error {
	l := f.l
	if len(data) == 0 {
		return nil
	}

	payloadLen := l.codec.Params().PayloadLen

	l.ioMu.Lock()
	defer l.ioMu.Unlock()

	blocks := 0
	for offset := 0; offset < len(data); offset += payloadLen {
		end := min(offset+payloadLen, len(data))

		cw, err := l.codec.Encode(data[offset:end])
		if err != nil {
			return err
		}
		if err := l.write(cw); err != nil {
			return fmt.Errorf("block %d: %w", blocks, err)
		}

		blocks++
		l.metrics.BlocksSent.Add(1)
	}

	l.metrics.MessagesSent.Add(1)
	l.metrics.BytesSent.Add(uint64(len(data)))
	l.cfg.logger.Debug("link: sent", "bytes", len(data), "blocks", blocks, "fec", true)

	return nil
}

// Recv reads and decodes whole codewords. With Until it continues until at
// least req.Length plaintext bytes are decoded; with UpTo it decodes exactly
// one codeword. Decoded bytes beyond req.Length are discarded.
func (f *fecFrontend) Recv(req ReadRequest) ([]byte, error) {
	l := f.l
	if err := req.validate(); err != nil {
		return nil, err
	}

	if req.Length == 0 {
		return []byte{}, nil
	}

	params := l.codec.Params()
	cwp := pool.GetBlock(params.CodewordLen())
	defer pool.PutBlock(cwp)
	cw := *cwp
	out := make([]byte, 0, params.Blocks(req.Length)*params.PayloadLen)

	l.ioMu.Lock()
	defer l.ioMu.Unlock()

	for {
		if err := l.readUntil(cw); err != nil {
			return nil, err
		}

		plain, corrected, err := l.codec.Decode(cw)
		if err != nil {
			l.metrics.CorrectionFailures.Add(1)
			l.cfg.logger.Warn("link: block decode failed", "block", len(out)/params.PayloadLen, "error", err)

			return nil, fmt.Errorf("%w: %w", ErrTransport, err)
		}

		l.metrics.BlocksReceived.Add(1)
		if corrected > 0 {
			l.metrics.CorrectedSymbols.Add(uint64(corrected))
			l.cfg.logger.Debug("link: corrected block", "symbols", corrected)
		}

		out = append(out, plain...)

		if req.Mode == UpTo || len(out) >= req.Length {
			break
		}
	}

	if len(out) > req.Length {
		l.metrics.DiscardedBytes.Add(uint64(len(out) - req.Length))
		out = out[:req.Length]
	}

	l.metrics.MessagesReceived.Add(1)
	l.metrics.BytesReceived.Add(uint64(len(out)))
	l.cfg.logger.Debug("link: received", "bytes", len(out), "mode", req.Mode, "fec", true)

	return out, nil
}
