// Copyright 2026 Edgewire. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package modbus

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/grid-x/serial"
)

const (
	// Default timeout
	serialTimeout = 5 * time.Second
)

// SerialPort has configuration and I/O controller.
type SerialPort struct {
	// Serial port configuration.
	serial.Config

	Logger logger
	// IdleTimeout closes the port after this much time without a
	// transaction. Zero leaves the port open until Close.
	IdleTimeout time.Duration

	mu sync.Mutex
	// port is platform-dependent data structure for serial port.
	port         io.ReadWriteCloser
	lastActivity time.Time
	closeTimer   *time.Timer
}

// NewSerialPort creates a serial port with default configuration.
func NewSerialPort(address string) *SerialPort {
	return &SerialPort{
		Config: serial.Config{
			Address: address,
			Timeout: serialTimeout,
		},
	}
}

// Connect opens the port. Connecting an open port or a configuration with
// parameters the device cannot express fails without touching the device.
func (mb *SerialPort) Connect() error {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if mb.port != nil {
		return fmt.Errorf("%w: %s is already open", ErrInvalidArgument, mb.Config.Address)
	}
	if err := verifySerialConfig(&mb.Config); err != nil {
		return err
	}
	port, err := serial.Open(&mb.Config)
	if err != nil {
		return fmt.Errorf("%w: could not open %s: %v", ErrTransport, mb.Config.Address, err)
	}
	mb.port = port
	return nil
}

// Close closes the port. Closing a closed port is a no-op.
func (mb *SerialPort) Close() (err error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	return mb.close()
}

// close closes the serial port if it is connected. Caller must hold the mutex.
func (mb *SerialPort) close() (err error) {
	if mb.port != nil {
		if err = mb.port.Close(); err != nil {
			err = fmt.Errorf("%w: %v", ErrTransport, err)
		}
		mb.port = nil
	}
	return
}

// verifySerialConfig rejects parameter combinations outside the supported
// domain. Zero values select the device-layer defaults.
func verifySerialConfig(c *serial.Config) error {
	if c.BaudRate < 0 {
		return fmt.Errorf("%w: baud rate '%v' must not be negative", ErrInvalidArgument, c.BaudRate)
	}
	switch c.DataBits {
	case 0, 5, 6, 7, 8:
	default:
		return fmt.Errorf("%w: data bits '%v' must be between '%v' and '%v'", ErrInvalidArgument, c.DataBits, 5, 8)
	}
	switch c.StopBits {
	case 0, 1, 2:
	default:
		return fmt.Errorf("%w: stop bits '%v' must be '%v' or '%v'", ErrInvalidArgument, c.StopBits, 1, 2)
	}
	switch c.Parity {
	case "", "N", "E", "O":
	default:
		return fmt.Errorf("%w: parity '%v' must be 'N', 'E' or 'O'", ErrInvalidArgument, c.Parity)
	}
	return nil
}

// readError classifies a serial read failure. A device-layer timeout means
// no complete response arrived within the configured window.
func readError(err error) error {
	if errors.Is(err, serial.ErrTimeout) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrTransport, err)
}

func (mb *SerialPort) logf(format string, v ...interface{}) {
	if mb.Logger != nil {
		mb.Logger.Printf(format, v...)
	}
}

func (mb *SerialPort) startCloseTimer() {
	if mb.IdleTimeout <= 0 {
		return
	}
	if mb.closeTimer == nil {
		mb.closeTimer = time.AfterFunc(mb.IdleTimeout, mb.closeIdle)
	} else {
		mb.closeTimer.Reset(mb.IdleTimeout)
	}
}

// closeIdle closes the connection if last activity is passed behind IdleTimeout.
func (mb *SerialPort) closeIdle() {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if mb.IdleTimeout <= 0 {
		return
	}

	if idle := time.Since(mb.lastActivity); idle >= mb.IdleTimeout {
		mb.logf("modbus: closing connection due to idle timeout: %v", idle)
		mb.close()
	}
}
