//go:build !linux

package channel

// OpenSerial is only implemented on Linux.
func OpenSerial(device string, opts ...Option) (*Channel, error) {
	if _, err := newConfig(opts...); err != nil {
		return nil, err
	}

	return nil, ErrUnsupported
}
