// Copyright 2026 Edgewire. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package modbus

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// ClientHandler is the interface that groups the Packager and Transporter methods.
type ClientHandler interface {
	Packager
	Transporter
	Connector
}

type client struct {
	packager    Packager
	transporter Transporter
}

// NewClient creates a new modbus client with given backend handler.
func NewClient(handler ClientHandler) Client {
	return &client{packager: handler, transporter: handler}
}

// NewClient2 creates a new modbus client with given backend packager and transporter.
func NewClient2(packager Packager, transporter Transporter) Client {
	return &client{packager: packager, transporter: transporter}
}

// Request:
//
//	Function code         : 1 byte (0x01)
//	Starting address      : 2 bytes
//	Quantity of coils     : 2 bytes
//
// Response:
//
//	Function code         : 1 byte (0x01)
//	Byte count            : 1 byte
//	Coil status           : N* bytes (=quantity/8, rounded up)
func (mb *client) ReadCoils(address, quantity uint16) ([]bool, error) {
	if quantity < 1 || quantity > 2000 {
		return nil, fmt.Errorf("%w: quantity '%v' must be between '%v' and '%v'", ErrInvalidArgument, quantity, 1, 2000)
	}
	request := ProtocolDataUnit{
		FunctionCode: FuncCodeReadCoils,
		Data:         dataBlock(address, quantity),
	}
	response, err := mb.send(&request)
	if err != nil {
		return nil, err
	}
	return unpackBits(response.Data, quantity)
}

// Request:
//
//	Function code         : 1 byte (0x02)
//	Starting address      : 2 bytes
//	Quantity of inputs    : 2 bytes
//
// Response:
//
//	Function code         : 1 byte (0x02)
//	Byte count            : 1 byte
//	Input status          : N* bytes (=quantity/8, rounded up)
func (mb *client) ReadDiscreteInputs(address, quantity uint16) ([]bool, error) {
	if quantity < 1 || quantity > 2000 {
		return nil, fmt.Errorf("%w: quantity '%v' must be between '%v' and '%v'", ErrInvalidArgument, quantity, 1, 2000)
	}
	request := ProtocolDataUnit{
		FunctionCode: FuncCodeReadDiscreteInputs,
		Data:         dataBlock(address, quantity),
	}
	response, err := mb.send(&request)
	if err != nil {
		return nil, err
	}
	return unpackBits(response.Data, quantity)
}

// Request:
//
//	Function code         : 1 byte (0x03)
//	Starting address      : 2 bytes
//	Quantity of registers : 2 bytes
//
// Response:
//
//	Function code         : 1 byte (0x03)
//	Byte count            : 1 byte
//	Register value        : Nx2 bytes
func (mb *client) ReadHoldingRegisters(address, quantity uint16) ([]uint16, error) {
	if quantity < 1 || quantity > 125 {
		return nil, fmt.Errorf("%w: quantity '%v' must be between '%v' and '%v'", ErrInvalidArgument, quantity, 1, 125)
	}
	request := ProtocolDataUnit{
		FunctionCode: FuncCodeReadHoldingRegisters,
		Data:         dataBlock(address, quantity),
	}
	response, err := mb.send(&request)
	if err != nil {
		return nil, err
	}
	return unpackRegisters(response.Data, quantity)
}

// Request:
//
//	Function code         : 1 byte (0x04)
//	Starting address      : 2 bytes
//	Quantity of registers : 2 bytes
//
// Response:
//
//	Function code         : 1 byte (0x04)
//	Byte count            : 1 byte
//	Input registers       : Nx2 bytes
func (mb *client) ReadInputRegisters(address, quantity uint16) ([]uint16, error) {
	if quantity < 1 || quantity > 125 {
		return nil, fmt.Errorf("%w: quantity '%v' must be between '%v' and '%v'", ErrInvalidArgument, quantity, 1, 125)
	}
	request := ProtocolDataUnit{
		FunctionCode: FuncCodeReadInputRegisters,
		Data:         dataBlock(address, quantity),
	}
	response, err := mb.send(&request)
	if err != nil {
		return nil, err
	}
	return unpackRegisters(response.Data, quantity)
}

// Request:
//
//	Function code         : 1 byte (0x05)
//	Output address        : 2 bytes
//	Output value          : 2 bytes (0xFF00 or 0x0000)
//
// Response: echo of the request.
func (mb *client) WriteSingleCoil(address uint16, value bool) error {
	// The ON/OFF state is transmitted as 0xFF00 or 0x0000.
	var state uint16
	if value {
		state = 0xFF00
	}
	request := ProtocolDataUnit{
		FunctionCode: FuncCodeWriteSingleCoil,
		Data:         dataBlock(address, state),
	}
	response, err := mb.send(&request)
	if err != nil {
		return err
	}
	return verifyEcho(request.Data, response.Data)
}

// Request:
//
//	Function code         : 1 byte (0x06)
//	Register address      : 2 bytes
//	Register value        : 2 bytes
//
// Response: echo of the request.
func (mb *client) WriteSingleRegister(address, value uint16) error {
	request := ProtocolDataUnit{
		FunctionCode: FuncCodeWriteSingleRegister,
		Data:         dataBlock(address, value),
	}
	response, err := mb.send(&request)
	if err != nil {
		return err
	}
	return verifyEcho(request.Data, response.Data)
}

// Request:
//
//	Function code         : 1 byte (0x0F)
//	Starting address      : 2 bytes
//	Quantity of outputs   : 2 bytes
//	Byte count            : 1 byte
//	Outputs value         : N* bytes, LSB first within each byte
//
// Response:
//
//	Function code         : 1 byte (0x0F)
//	Starting address      : 2 bytes
//	Quantity of outputs   : 2 bytes
func (mb *client) WriteMultipleCoils(address uint16, values []bool) error {
	if len(values) < 1 || len(values) > 1968 {
		return fmt.Errorf("%w: quantity '%v' must be between '%v' and '%v'", ErrInvalidArgument, len(values), 1, 1968)
	}
	request := ProtocolDataUnit{
		FunctionCode: FuncCodeWriteMultipleCoils,
		Data:         dataBlockSuffix(packBits(values), address, uint16(len(values))),
	}
	response, err := mb.send(&request)
	if err != nil {
		return err
	}
	return verifyEcho(request.Data[:4], response.Data)
}

// Request:
//
//	Function code         : 1 byte (0x10)
//	Starting address      : 2 bytes
//	Quantity of registers : 2 bytes
//	Byte count            : 1 byte
//	Registers value       : Nx2 bytes
//
// Response:
//
//	Function code         : 1 byte (0x10)
//	Starting address      : 2 bytes
//	Quantity of registers : 2 bytes
func (mb *client) WriteMultipleRegisters(address uint16, values []uint16) error {
	if len(values) < 1 || len(values) > 123 {
		return fmt.Errorf("%w: quantity '%v' must be between '%v' and '%v'", ErrInvalidArgument, len(values), 1, 123)
	}
	request := ProtocolDataUnit{
		FunctionCode: FuncCodeWriteMultipleRegisters,
		Data:         dataBlockSuffix(dataBlock(values...), address, uint16(len(values))),
	}
	response, err := mb.send(&request)
	if err != nil {
		return err
	}
	return verifyEcho(request.Data[:4], response.Data)
}

// send runs one request/response transaction: frame the PDU, exchange it
// over the transport, verify the framing echo, and classify exception
// responses.
func (mb *client) send(request *ProtocolDataUnit) (*ProtocolDataUnit, error) {
	aduRequest, err := mb.packager.Encode(request)
	if err != nil {
		return nil, err
	}
	aduResponse, err := mb.transporter.Send(aduRequest)
	if err != nil {
		return nil, err
	}
	if len(aduResponse) == 0 {
		// Broadcast request: nothing comes back on the wire. Report
		// the address/quantity prefix as echoed so write operations
		// succeed; every request body carries at least those 4 bytes.
		return &ProtocolDataUnit{FunctionCode: request.FunctionCode, Data: request.Data[:4]}, nil
	}
	if err := mb.packager.Verify(aduRequest, aduResponse); err != nil {
		return nil, err
	}
	response, err := mb.packager.Decode(aduResponse)
	if err != nil {
		return nil, err
	}
	if response.FunctionCode&exceptionBit != 0 {
		if len(response.Data) == 0 {
			return nil, fmt.Errorf("%w: exception response without exception code", ErrMalformedResponse)
		}
		return nil, &Error{FunctionCode: response.FunctionCode, ExceptionCode: response.Data[0]}
	}
	if response.FunctionCode != request.FunctionCode {
		return nil, fmt.Errorf("%w: response function code '%v' does not match request '%v'", ErrMalformedResponse, response.FunctionCode, request.FunctionCode)
	}
	if len(response.Data) == 0 {
		return nil, fmt.Errorf("%w: response data is empty", ErrMalformedResponse)
	}
	return response, nil
}

// dataBlock creates a sequence of uint16 data.
func dataBlock(value ...uint16) []byte {
	data := make([]byte, 2*len(value))
	for i, v := range value {
		binary.BigEndian.PutUint16(data[i*2:], v)
	}
	return data
}

// dataBlockSuffix creates a sequence of uint16 data and appends the suffix
// plus its length.
func dataBlockSuffix(suffix []byte, value ...uint16) []byte {
	length := 2 * len(value)
	data := make([]byte, length+1+len(suffix))
	for i, v := range value {
		binary.BigEndian.PutUint16(data[i*2:], v)
	}
	data[length] = uint8(len(suffix))
	copy(data[length+1:], suffix)
	return data
}

// packBits packs booleans into bytes, LSB first within each byte.
func packBits(values []bool) []byte {
	data := make([]byte, (len(values)+7)/8)
	for i, v := range values {
		if v {
			data[i/8] |= 1 << (uint(i) % 8)
		}
	}
	return data
}

// unpackBits validates the byte count of a read-bits response body and
// unpacks quantity booleans, LSB first within each byte.
func unpackBits(data []byte, quantity uint16) ([]bool, error) {
	count := (int(quantity) + 7) / 8
	if len(data) != 1+count {
		return nil, &SizeMismatchError{Want: 1 + count, Got: len(data)}
	}
	if int(data[0]) != count {
		return nil, fmt.Errorf("%w: byte count '%v' does not match expected '%v'", ErrMalformedResponse, data[0], count)
	}
	values := make([]bool, quantity)
	for i := range values {
		values[i] = data[1+i/8]>>(uint(i)%8)&1 == 1
	}
	return values, nil
}

// unpackRegisters validates the byte count of a read-registers response body
// and unpacks quantity big-endian 16-bit values.
func unpackRegisters(data []byte, quantity uint16) ([]uint16, error) {
	count := 2 * int(quantity)
	if len(data) != 1+count {
		return nil, &SizeMismatchError{Want: 1 + count, Got: len(data)}
	}
	if int(data[0]) != count {
		return nil, fmt.Errorf("%w: byte count '%v' does not match expected '%v'", ErrMalformedResponse, data[0], count)
	}
	values := make([]uint16, quantity)
	for i := range values {
		values[i] = binary.BigEndian.Uint16(data[1+i*2:])
	}
	return values, nil
}

// verifyEcho checks that a write response body echoes the request body.
func verifyEcho(request, response []byte) error {
	if len(response) != len(request) {
		return &SizeMismatchError{Want: len(request), Got: len(response)}
	}
	if !bytes.Equal(request, response) {
		return &EchoMismatchError{Want: request, Got: response}
	}
	return nil
}
