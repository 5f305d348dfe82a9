// Package zerr defines the closed set of error kinds this driver can
// surface to a caller, so that external collaborators can branch on
// failure category with errors.Is/As instead of string matching.
package zerr

import "fmt"

// Kind is one of the closed set of error categories the driver produces.
type Kind int

const (
	TransportIO Kind = iota
	FramingBadFCS
	FramingBadLength
	FramingTruncated
	ProtocolUnexpectedSRSP
	ProtocolUnknownCmd
	ProtocolFieldDecode
	Timeout
	Cancelled
	Disconnected
	CommandStatus
	StateError
	NvramMissing
	NvramMismatch
	BackupSchemaInvalid
	BackupIncompatibleChip
	BootloaderCRC
	BootloaderSequence
	BootloaderTimeout
)

var kindNames = map[Kind]string{
	TransportIO:            "transport_io",
	FramingBadFCS:          "framing.bad_fcs",
	FramingBadLength:       "framing.bad_length",
	FramingTruncated:       "framing.truncated",
	ProtocolUnexpectedSRSP: "protocol.unexpected_srsp",
	ProtocolUnknownCmd:     "protocol.unknown_cmd",
	ProtocolFieldDecode:    "protocol.field_decode",
	Timeout:                "timeout",
	Cancelled:              "cancelled",
	Disconnected:           "disconnected",
	CommandStatus:          "command_status",
	StateError:             "state_error",
	NvramMissing:           "nvram.missing",
	NvramMismatch:          "nvram.mismatch",
	BackupSchemaInvalid:    "backup.schema_invalid",
	BackupIncompatibleChip: "backup.incompatible_chip",
	BootloaderCRC:          "bootloader.crc",
	BootloaderSequence:     "bootloader.sequence",
	BootloaderTimeout:      "bootloader.timeout",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is a tagged driver error: its Kind can be matched with errors.Is
// against a sentinel of the same Kind, its Descriptor names the offending
// MT command when one is known, and Frame carries the raw wire bytes for
// diagnostics when applicable.
type Error struct {
	Kind       Kind
	Descriptor string
	Frame      []byte
	Err        error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Descriptor != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Descriptor)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if len(e.Frame) > 0 {
		msg = fmt.Sprintf("%s (frame % x)", msg, e.Frame)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, zerr.New(k, "")) match any *Error with the same
// Kind, ignoring descriptor/frame/wrapped-error details — the intended use
// is `errors.Is(err, zerr.Sentinel(zerr.Timeout))`.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New builds an *Error of the given kind, optionally naming the command
// descriptor involved.
func New(kind Kind, descriptor string) *Error {
	return &Error{Kind: kind, Descriptor: descriptor}
}

// Wrap builds an *Error of the given kind wrapping an underlying cause.
func Wrap(kind Kind, descriptor string, err error) *Error {
	return &Error{Kind: kind, Descriptor: descriptor, Err: err}
}

// WithFrame attaches the raw frame bytes to an existing error for
// diagnostics, per §7's requirement that user-visible failures include the
// offending descriptor and raw frame hex when applicable.
func (e *Error) WithFrame(frame []byte) *Error {
	e.Frame = frame
	return e
}

// Sentinel returns a bare *Error of the given kind, suitable only as the
// target of errors.Is — never as a returned error itself.
func Sentinel(kind Kind) *Error { return &Error{Kind: kind} }
