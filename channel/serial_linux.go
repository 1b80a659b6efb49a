//go:build linux

package channel

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

var baudTable = map[int]uint32{
	1200:   unix.B1200,
	2400:   unix.B2400,
	4800:   unix.B4800,
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
	230400: unix.B230400,
}

// OpenSerial opens a UART device and configures it for raw 8N1 operation at
// the configured baud rate (DefaultBaudRate unless WithBaudRate is given).
//
// Reads return as soon as at least one byte is available (VMIN=1, VTIME=1),
// so a single Read may deliver a partial block.
func OpenSerial(device string, opts ...Option) (*Channel, error) {
	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}
	if cfg.name == "" {
		cfg.name = device
	}

	f, err := os.OpenFile(device, os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, fmt.Errorf("channel: open serial %s: %w", device, err)
	}

	if err := configureSerial(f, cfg.baudRate); err != nil {
		_ = f.Close()
		return nil, err
	}

	c := &Channel{
		name:    cfg.name,
		role:    RoleNone,
		rx:      f,
		tx:      f,
		closers: []io.Closer{f},
		cfg:     cfg,
	}
	c.setupLimiter()

	cfg.logger.Info("channel: serial open", "device", device, "baud", cfg.baudRate)

	return c, nil
}

// configureSerial applies raw mode through the file's raw connection. Using
// f.Fd() would switch the descriptor to blocking mode and disable deadlines.
func configureSerial(f *os.File, baud int) error {
	speed, ok := baudTable[baud]
	if !ok {
		return fmt.Errorf("channel: unsupported baud rate %d", baud)
	}

	rc, err := f.SyscallConn()
	if err != nil {
		return fmt.Errorf("channel: serial raw conn: %w", err)
	}

	var opErr error
	err = rc.Control(func(fd uintptr) {
		t, err := unix.IoctlGetTermios(int(fd), unix.TCGETS)
		if err != nil {
			opErr = fmt.Errorf("channel: get termios: %w", err)
			return
		}

		t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
			unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF | unix.IXANY
		t.Oflag &^= unix.OPOST
		t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
		t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB | unix.CRTSCTS | unix.CBAUD
		t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL | speed
		t.Ispeed = speed
		t.Ospeed = speed
		t.Cc[unix.VMIN] = 1
		t.Cc[unix.VTIME] = 1

		if err := unix.IoctlSetTermios(int(fd), unix.TCSETS, t); err != nil {
			opErr = fmt.Errorf("channel: set termios: %w", err)
		}
	})
	if err != nil {
		return fmt.Errorf("channel: serial control: %w", err)
	}

	return opErr
}
