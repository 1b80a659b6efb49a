package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dalspace/loris/fec"
	"github.com/dalspace/loris/filexfer"
	"github.com/dalspace/loris/hardware"
	"github.com/dalspace/loris/link"
)

// EncodedSuffix is appended to a filename by the encode-file opcode.
const EncodedSuffix = ".rs"

func (d *Dispatcher) registerHandlers() {
	d.handlers = map[Opcode]handlerFunc{
		OpBasicTelemetry:  d.telemetry(hardware.BasicTelemetry),
		OpLargeTelemetry:  d.telemetry(hardware.LargeTelemetry),
		OpDeleteTelemetry: d.action("delete telemetry", d.hw.DeleteTelemetry),
		OpRebootOBC:       d.action("reboot", d.hw.Reboot),
		OpShutdown:        d.action("shutdown", d.hw.Shutdown),
		OpResetComms:      d.action("reset comms", d.hw.ResetComms),
		OpEnableAux:       d.action("enable aux telemetry", d.hw.EnableAuxTelemetry),
		OpBurnWire:        d.action("burn wire", d.hw.FireBurnWire),
		OpEnableACS:       d.action("enable acs", d.hw.EnableACS),
		OpForwardCommand:  d.forwardCommand,
		OpPushFile:        d.pushFile,
		OpFetchFile:       d.fetchFile,
		OpListDir:         d.listDir,
		OpTakePicture:     d.takePicture,
		OpEncodeFile:      d.encodeFile,
		OpDecodeFile:      d.decodeFile,
		OpRemove:          d.remove,
		OpMove:            d.move,
	}
}

// resolve maps a remote filename into the storage root. Leading slashes and
// ".." elements cannot escape the root.
func (d *Dispatcher) resolve(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty filename", ErrInvalidField)
	}

	rel := filepath.Clean(string(filepath.Separator) + name)

	return filepath.Join(d.root, rel), nil
}

// isLinkErr reports whether err came from the link itself, in which case the
// exchange cannot be kept in step anyway.
func isLinkErr(err error) bool {
	return errors.Is(err, link.ErrTransport) || errors.Is(err, link.ErrTimeout)
}

// sendNotFound keeps the peer in step when a reply cannot be produced.
func sendNotFound(fe link.Frontend, cause error) error {
	if err := filexfer.SendSizedBytes(fe, filexfer.NotFoundSentinel); err != nil {
		return errors.Join(cause, err)
	}

	return cause
}

// --- Fire-and-forget ---

func (d *Dispatcher) action(name string, fn func(context.Context) error) handlerFunc {
	return func(ctx context.Context, _ link.Frontend) error {
		if err := fn(ctx); err != nil {
			return err
		}
		d.logger.Info("dispatch: action done", "action", name)

		return nil
	}
}

// --- Replies from hardware ---

func (d *Dispatcher) telemetry(kind hardware.TelemetryKind) handlerFunc {
	return func(ctx context.Context, fe link.Frontend) error {
		path, err := d.hw.Telemetry(ctx, kind)
		if err != nil {
			return sendNotFound(fe, err)
		}

		_, err = filexfer.SendSized(fe, path)

		return err
	}
}

func (d *Dispatcher) takePicture(ctx context.Context, fe link.Frontend) error {
	path, err := d.hw.TakePicture(ctx)
	if err != nil {
		return sendNotFound(fe, err)
	}

	_, err = filexfer.SendSized(fe, path)

	return err
}

func (d *Dispatcher) forwardCommand(ctx context.Context, fe link.Frontend) error {
	cmd, err := recvCommand(fe)
	if err != nil {
		if isLinkErr(err) {
			return err
		}
		// the operator waits for output; answer with the error text
		if serr := filexfer.SendSizedBytes(fe, []byte(err.Error())); serr != nil {
			return errors.Join(err, serr)
		}

		return err
	}

	out, execErr := d.hw.Execute(ctx, cmd)
	if execErr != nil && len(out) == 0 {
		out = []byte(execErr.Error())
	}

	if err := filexfer.SendSizedBytes(fe, out); err != nil {
		return errors.Join(execErr, err)
	}

	return execErr
}

// --- File operations ---

func (d *Dispatcher) pushFile(_ context.Context, fe link.Frontend) error {
	name, err := recvFilename(fe)
	if err != nil {
		return err
	}

	path, err := d.pushTarget(name)
	if err != nil {
		// the sized transfer follows regardless and must not be read as opcodes
		if derr := filexfer.DiscardSized(fe); derr != nil {
			return errors.Join(err, derr)
		}

		return err
	}

	s, err := filexfer.ReceiveSized(fe, path)
	if err != nil {
		return err
	}

	d.logger.Info("dispatch: file received", "path", path, "bytes", s.Transferred)

	return nil
}

// pushTarget resolves name and creates its parent directory.
func (d *Dispatcher) pushTarget(name string) (string, error) {
	path, err := d.resolve(name)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("dispatch: create directory: %w", err)
	}

	return path, nil
}

func (d *Dispatcher) fetchFile(_ context.Context, fe link.Frontend) error {
	name, err := recvFilename(fe)
	if err != nil {
		return err
	}

	path, err := d.resolve(name)
	if err != nil {
		return sendNotFound(fe, err)
	}

	_, err = filexfer.SendSized(fe, path)

	return err
}

func (d *Dispatcher) listDir(_ context.Context, fe link.Frontend) error {
	name, err := recvFilename(fe)
	if err != nil {
		return err
	}

	path, err := d.resolve(name)
	if err != nil {
		return sendNotFound(fe, err)
	}

	out, err := listing(path)
	if err != nil {
		return sendNotFound(fe, err)
	}

	return filexfer.SendSizedBytes(fe, out)
}

// listing renders one entry per line: directories end with "/", files are
// followed by a tab and their size.
func listing(dir string) ([]byte, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("dispatch: list %s: %w", dir, err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var b strings.Builder
	for _, e := range entries {
		if e.IsDir() {
			fmt.Fprintf(&b, "%s/\n", e.Name())
			continue
		}

		var size int64
		if info, err := e.Info(); err == nil {
			size = info.Size()
		}
		fmt.Fprintf(&b, "%s\t%d\n", e.Name(), size)
	}

	return []byte(b.String()), nil
}

func (d *Dispatcher) encodeFile(_ context.Context, fe link.Frontend) error {
	name, err := recvFilename(fe)
	if err != nil {
		return err
	}

	src, err := d.resolve(name)
	if err != nil {
		return err
	}

	return d.EncodeFile(src, src+EncodedSuffix)
}

func (d *Dispatcher) decodeFile(_ context.Context, fe link.Frontend) error {
	name, err := recvFilename(fe)
	if err != nil {
		return err
	}

	dst, err := d.resolve(name)
	if err != nil {
		return err
	}

	return d.DecodeFile(dst+EncodedSuffix, dst)
}

func (d *Dispatcher) remove(_ context.Context, fe link.Frontend) error {
	name, err := recvFilename(fe)
	if err != nil {
		return err
	}

	path, err := d.resolve(name)
	if err != nil {
		return err
	}

	if path == d.root {
		return fmt.Errorf("%w: refusing to remove storage root", ErrInvalidField)
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("dispatch: remove: %w", err)
	}

	d.logger.Info("dispatch: file removed", "path", path)

	return nil
}

func (d *Dispatcher) move(_ context.Context, fe link.Frontend) error {
	srcName, err := recvFilename(fe)
	if err != nil {
		return err
	}
	dstName, err := recvFilename(fe)
	if err != nil {
		return err
	}

	src, err := d.resolve(srcName)
	if err != nil {
		return err
	}
	dst, err := d.resolve(dstName)
	if err != nil {
		return err
	}

	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("dispatch: move: %w", err)
	}

	d.logger.Info("dispatch: file moved", "from", src, "to", dst)

	return nil
}

// --- Local FEC file coding ---

// EncodeFile writes the FEC-encoded form of src to dst.
func (d *Dispatcher) EncodeFile(src, dst string) error {
	return EncodeFile(d.codec, src, dst)
}

// DecodeFile recovers the plaintext of the encoded file src into dst.
func (d *Dispatcher) DecodeFile(src, dst string) error {
	stats, err := DecodeFile(d.codec, src, dst)
	if err != nil {
		return err
	}

	d.logger.Info("dispatch: file decoded", "path", dst, "blocks", stats.Blocks, "corrected", stats.Corrected)

	return nil
}

// EncodeFile writes the FEC-encoded form of src to dst using codec.
func EncodeFile(codec *fec.Codec, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("dispatch: encode: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("dispatch: encode: %w", err)
	}

	return writeAtomically(dst, func(out *os.File) error {
		return codec.EncodeStream(out, in, info.Size())
	})
}

// DecodeFile recovers the plaintext of the encoded file src into dst using codec.
func DecodeFile(codec *fec.Codec, src, dst string) (fec.StreamStats, error) {
	var stats fec.StreamStats

	in, err := os.Open(src)
	if err != nil {
		return stats, fmt.Errorf("dispatch: decode: %w", err)
	}
	defer in.Close()

	err = writeAtomically(dst, func(out *os.File) error {
		var derr error
		stats, derr = codec.DecodeStream(out, in)

		return derr
	})

	return stats, err
}

// writeAtomically writes through a temporary file that replaces path only
// when fill succeeds.
func writeAtomically(path string, fill func(*os.File) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("dispatch: create temp file: %w", err)
	}

	if err := fill(tmp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return err
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("dispatch: close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("dispatch: rename: %w", err)
	}

	return nil
}
