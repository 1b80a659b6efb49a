package dispatch

import (
	"fmt"
	"strings"
)

// OpcodeLen is the size of an opcode on the wire.
const OpcodeLen = 2

// Opcode is a two-byte ASCII command code. Opcodes are compared byte for byte.
type Opcode [OpcodeLen]byte

func (o Opcode) String() string {
	return string(o[:])
}

// Bytes returns the wire form of o.
func (o Opcode) Bytes() []byte {
	return []byte{o[0], o[1]}
}

// Shape describes the exchange that follows an opcode.
type Shape int

const (
	// FireAndForget opcodes carry no arguments and get no reply.
	FireAndForget Shape = iota
	// Immediate opcodes carry arguments and/or get a reply in the same exchange.
	Immediate
	// Destructive opcodes modify remote files; operators must confirm them.
	Destructive
)

func (s Shape) String() string {
	switch s {
	case FireAndForget:
		return "fire-and-forget"
	case Immediate:
		return "immediate"
	case Destructive:
		return "destructive"
	default:
		return "unknown"
	}
}

// Reserved opcodes.
var (
	OpBasicTelemetry  = Opcode{'A', '1'}
	OpLargeTelemetry  = Opcode{'B', '2'}
	OpDeleteTelemetry = Opcode{'C', '3'}
	OpRebootOBC       = Opcode{'D', '4'}
	OpShutdown        = Opcode{'S', 'D'}
	OpResetComms      = Opcode{'E', '5'}
	OpEnableAux       = Opcode{'F', '6'}
	OpForwardCommand  = Opcode{'C', 'C'}
	OpPushFile        = Opcode{'F', 'F'}
	OpFetchFile       = Opcode{'F', 'R'}
	OpListDir         = Opcode{'L', 'S'}
	OpTakePicture     = Opcode{'T', 'P'}
	OpEncodeFile      = Opcode{'E', 'F'}
	OpDecodeFile      = Opcode{'D', 'F'}
	OpRemove          = Opcode{'R', 'M'}
	OpMove            = Opcode{'M', 'V'}
	OpBurnWire        = Opcode{'B', 'W'}
	OpEnableACS       = Opcode{'A', 'C'}
)

// OpInfo describes a reserved opcode.
type OpInfo struct {
	Code  Opcode
	Name  string
	Shape Shape
}

var opcodeTable = []OpInfo{
	{OpBasicTelemetry, "basic telemetry", Immediate},
	{OpLargeTelemetry, "large telemetry", Immediate},
	{OpDeleteTelemetry, "delete telemetry", FireAndForget},
	{OpRebootOBC, "reboot obc", FireAndForget},
	{OpShutdown, "shutdown obc", FireAndForget},
	{OpResetComms, "reset comms", FireAndForget},
	{OpEnableAux, "enable aux telemetry", FireAndForget},
	{OpForwardCommand, "forward command", Immediate},
	{OpPushFile, "push file", Immediate},
	{OpFetchFile, "fetch file", Immediate},
	{OpListDir, "list directory", Immediate},
	{OpTakePicture, "take picture", Immediate},
	{OpEncodeFile, "encode file", Immediate},
	{OpDecodeFile, "decode file", Immediate},
	{OpRemove, "remove file", Destructive},
	{OpMove, "move file", Destructive},
	{OpBurnWire, "fire burn wire", FireAndForget},
	{OpEnableACS, "enable acs", FireAndForget},
}

// Opcodes returns the reserved opcode table.
func Opcodes() []OpInfo {
	out := make([]OpInfo, len(opcodeTable))
	copy(out, opcodeTable)

	return out
}

// Lookup returns the table entry for op.
func Lookup(op Opcode) (OpInfo, bool) {
	for _, info := range opcodeTable {
		if info.Code == op {
			return info, true
		}
	}

	return OpInfo{}, false
}

// ParseOpcode parses a two-character opcode. Letters are upper-cased.
func ParseOpcode(s string) (Opcode, error) {
	if len(s) != OpcodeLen {
		return Opcode{}, fmt.Errorf("%w: %q must be %d characters", ErrUnknownOpcode, s, OpcodeLen)
	}

	var op Opcode
	copy(op[:], strings.ToUpper(s))

	if _, ok := Lookup(op); !ok {
		return op, fmt.Errorf("%w: %s", ErrUnknownOpcode, op)
	}

	return op, nil
}
