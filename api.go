// Copyright 2026 Edgewire. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package modbus

// Client declares the functionality of a Modbus client regardless of the underlying transport stream.
//
// A client is not safe for concurrent use: it assumes one outstanding
// transaction at a time, the next call must not start before the previous
// returned.
type Client interface {
	// Bit access

	// ReadCoils reads from 1 to 2000 contiguous status of coils in a
	// remote device and returns coil status.
	ReadCoils(address, quantity uint16) (results []bool, err error)
	// ReadDiscreteInputs reads from 1 to 2000 contiguous status of
	// discrete inputs in a remote device and returns input status.
	ReadDiscreteInputs(address, quantity uint16) (results []bool, err error)
	// WriteSingleCoil writes a single output to either ON or OFF in a
	// remote device.
	WriteSingleCoil(address uint16, value bool) error
	// WriteMultipleCoils forces each coil in a sequence of 1 to 1968
	// coils to either ON or OFF in a remote device.
	WriteMultipleCoils(address uint16, values []bool) error

	// 16-bit access

	// ReadHoldingRegisters reads the contents of a contiguous block of
	// 1 to 125 holding registers in a remote device and returns register
	// values.
	ReadHoldingRegisters(address, quantity uint16) (results []uint16, err error)
	// ReadInputRegisters reads from 1 to 125 contiguous input registers
	// in a remote device and returns input register values.
	ReadInputRegisters(address, quantity uint16) (results []uint16, err error)
	// WriteSingleRegister writes a single holding register in a remote
	// device.
	WriteSingleRegister(address, value uint16) error
	// WriteMultipleRegisters writes a block of 1 to 123 contiguous
	// registers in a remote device.
	WriteMultipleRegisters(address uint16, values []uint16) error
}
