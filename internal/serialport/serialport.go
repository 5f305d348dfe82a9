// Package serialport owns the UART link to the coprocessor. It is a thin
// wrapper over go.bug.st/serial: an opaque byte-stream duplex plus the
// DTR/RTS bootloader-skip sequence and disconnect notification the frame
// codec and bus layers above it need. It has no notion of MT framing.
package serialport

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.bug.st/serial"
)

// PinState is one step of an RTS or DTR toggle sequence.
type PinState bool

const (
	Off PinState = false
	On  PinState = true
)

// Config configures the serial link, mirroring §6's external interface.
type Config struct {
	Device   string
	BaudRate int // default 115200

	SkipBootloader   bool
	ConnectRTSStates []PinState
	ConnectDTRStates []PinState
	PinStepDelay     time.Duration // default 100ms
}

func (c Config) withDefaults() Config {
	if c.BaudRate == 0 {
		c.BaudRate = 115200
	}
	if c.PinStepDelay == 0 {
		c.PinStepDelay = 100 * time.Millisecond
	}
	if c.SkipBootloader && c.ConnectRTSStates == nil {
		c.ConnectRTSStates = []PinState{Off, On, Off}
	}
	if c.SkipBootloader && c.ConnectDTRStates == nil {
		c.ConnectDTRStates = []PinState{Off, Off, Off}
	}
	return c
}

// Port is the opaque byte-stream duplex C2/C4 read and write against.
type Port struct {
	cfg    Config
	port   serial.Port
	logger *slog.Logger
}

// ErrClosed names a closed port. Read and Write do not return it themselves:
// after Close they return the serial library's error, wrapped.
var ErrClosed = errors.New("serialport: closed")

// Open opens the UART at cfg.Device, applies the bootloader-skip pin
// sequence when configured, and returns a ready-to-use Port.
func Open(cfg Config, logger *slog.Logger) (*Port, error) {
	cfg = cfg.withDefaults()

	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	sp, err := serial.Open(cfg.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("serialport: open %s: %w", cfg.Device, err)
	}

	p := &Port{cfg: cfg, port: sp, logger: logger}

	if cfg.SkipBootloader {
		if err := p.runPinSequence(); err != nil {
			_ = sp.Close()
			return nil, err
		}
	}

	logger.Debug("serial port opened", "device", cfg.Device, "baud", cfg.BaudRate)
	return p, nil
}

// runPinSequence toggles RTS and DTR through their configured states,
// pausing PinStepDelay between each, to knock a CC2531-style bootloader
// into passing control to the application image.
func (p *Port) runPinSequence() error {
	steps := max(len(p.cfg.ConnectRTSStates), len(p.cfg.ConnectDTRStates))
	for i := 0; i < steps; i++ {
		if i < len(p.cfg.ConnectRTSStates) {
			if err := p.port.SetRTS(bool(p.cfg.ConnectRTSStates[i])); err != nil {
				return fmt.Errorf("serialport: set RTS: %w", err)
			}
		}
		if i < len(p.cfg.ConnectDTRStates) {
			if err := p.port.SetDTR(bool(p.cfg.ConnectDTRStates[i])); err != nil {
				return fmt.Errorf("serialport: set DTR: %w", err)
			}
		}
		time.Sleep(p.cfg.PinStepDelay)
	}
	return nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Read implements io.Reader against the underlying UART.
func (p *Port) Read(buf []byte) (int, error) {
	n, err := p.port.Read(buf)
	if err != nil {
		return n, fmt.Errorf("serialport: read: %w", err)
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Write implements io.Writer against the underlying UART. Writes are not
// internally serialised; callers (the bus's single writer task) are
// responsible for that.
func (p *Port) Write(buf []byte) (int, error) {
	n, err := p.port.Write(buf)
	if err != nil {
		return n, fmt.Errorf("serialport: write: %w", err)
	}
	return n, nil
}

// SetDTR and SetRTS expose direct pin control for callers that need to
// re-trigger the bootloader sequence outside of Open (e.g. a flash tool).
func (p *Port) SetDTR(v bool) error { return p.port.SetDTR(v) }
func (p *Port) SetRTS(v bool) error { return p.port.SetRTS(v) }

// Close releases the underlying UART.
func (p *Port) Close() error {
	return p.port.Close()
}
