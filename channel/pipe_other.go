//go:build !unix

package channel

// OpenPipePair requires POSIX named pipes.
func OpenPipePair(rxPath, txPath string, address int, opts ...Option) (*Channel, error) {
	if _, err := newConfig(opts...); err != nil {
		return nil, err
	}

	return nil, ErrUnsupported
}
