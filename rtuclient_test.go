// Copyright 2026 Edgewire. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package modbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRTUEncoding(t *testing.T) {
	// Request frames for slave 0x11, CRC low byte first.
	for _, tt := range []struct {
		name string
		pdu  ProtocolDataUnit
		adu  []byte
	}{
		{
			name: "ReadCoils",
			pdu:  ProtocolDataUnit{FuncCodeReadCoils, []byte{0x00, 0x13, 0x00, 0x25}},
			adu:  []byte{0x11, 0x01, 0x00, 0x13, 0x00, 0x25, 0x0E, 0x84},
		},
		{
			name: "ReadDiscreteInputs",
			pdu:  ProtocolDataUnit{FuncCodeReadDiscreteInputs, []byte{0x00, 0xC4, 0x00, 0x16}},
			adu:  []byte{0x11, 0x02, 0x00, 0xC4, 0x00, 0x16, 0xBA, 0xA9},
		},
		{
			name: "ReadHoldingRegisters",
			pdu:  ProtocolDataUnit{FuncCodeReadHoldingRegisters, []byte{0x00, 0x6B, 0x00, 0x03}},
			adu:  []byte{0x11, 0x03, 0x00, 0x6B, 0x00, 0x03, 0x76, 0x87},
		},
		{
			name: "ReadInputRegisters",
			pdu:  ProtocolDataUnit{FuncCodeReadInputRegisters, []byte{0x00, 0x08, 0x00, 0x01}},
			adu:  []byte{0x11, 0x04, 0x00, 0x08, 0x00, 0x01, 0xB2, 0x98},
		},
		{
			name: "WriteSingleCoil",
			pdu:  ProtocolDataUnit{FuncCodeWriteSingleCoil, []byte{0x00, 0xAC, 0xFF, 0x00}},
			adu:  []byte{0x11, 0x05, 0x00, 0xAC, 0xFF, 0x00, 0x4E, 0x8B},
		},
		{
			name: "WriteSingleRegister",
			pdu:  ProtocolDataUnit{FuncCodeWriteSingleRegister, []byte{0x00, 0x01, 0x00, 0x03}},
			adu:  []byte{0x11, 0x06, 0x00, 0x01, 0x00, 0x03, 0x9A, 0x9B},
		},
		{
			name: "WriteMultipleCoils",
			pdu:  ProtocolDataUnit{FuncCodeWriteMultipleCoils, []byte{0x00, 0x13, 0x00, 0x0A, 0x02, 0xCD, 0x01}},
			adu:  []byte{0x11, 0x0F, 0x00, 0x13, 0x00, 0x0A, 0x02, 0xCD, 0x01, 0xBF, 0x0B},
		},
		{
			name: "WriteMultipleRegisters",
			pdu:  ProtocolDataUnit{FuncCodeWriteMultipleRegisters, []byte{0x00, 0x01, 0x00, 0x02, 0x04, 0x00, 0x0A, 0x01, 0x02}},
			adu:  []byte{0x11, 0x10, 0x00, 0x01, 0x00, 0x02, 0x04, 0x00, 0x0A, 0x01, 0x02, 0xC6, 0xF0},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			packager := rtuPackager{SlaveID: 0x11}
			adu, err := packager.Encode(&tt.pdu)
			require.NoError(t, err)
			assert.Equal(t, tt.adu, adu)
		})
	}
}

func TestRTUEncodingMaxSize(t *testing.T) {
	packager := rtuPackager{SlaveID: 1}

	_, err := packager.Encode(&ProtocolDataUnit{FuncCodeReadCoils, make([]byte, 253)})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestRTUDecoding(t *testing.T) {
	packager := rtuPackager{SlaveID: 0x11}
	adu := []byte{0x11, 0x01, 0x01, 0xCD, 0x94, 0xDD}

	pdu, err := packager.Decode(adu)
	require.NoError(t, err)
	assert.Equal(t, byte(FuncCodeReadCoils), pdu.FunctionCode)
	assert.Equal(t, []byte{0x01, 0xCD}, pdu.Data)
}

func TestRTUDecodingCRCMismatch(t *testing.T) {
	packager := rtuPackager{SlaveID: 0x11}
	adu := []byte{0x11, 0x01, 0x01, 0xCD, 0x94, 0xDD}
	// Flip one bit in the payload
	adu[3] ^= 0x04

	_, err := packager.Decode(adu)
	assert.ErrorIs(t, err, ErrIntegrity)

	var crcErr *CRCError
	require.ErrorAs(t, err, &crcErr)
	assert.Equal(t, uint16(0xDD94), crcErr.Got)
}

func TestRTUVerify(t *testing.T) {
	packager := rtuPackager{SlaveID: 0x11}
	request := []byte{0x11, 0x01, 0x00, 0x13, 0x00, 0x25, 0x0E, 0x84}

	// Too short to carry slave, function and CRC
	err := packager.Verify(request, []byte{0x11, 0x81, 0xC0})
	assert.ErrorIs(t, err, ErrMalformedResponse)

	// Slave id must be echoed
	err = packager.Verify(request, []byte{0x12, 0x01, 0x01, 0xCD, 0x94, 0xDD})
	assert.ErrorIs(t, err, ErrMalformedResponse)

	assert.NoError(t, packager.Verify(request, []byte{0x11, 0x01, 0x01, 0xCD, 0x94, 0xDD}))
}

func TestCalculateResponseLength(t *testing.T) {
	for _, tt := range []struct {
		adu    []byte
		length int
	}{
		{[]byte{0x11, 0x01, 0x00, 0x13, 0x00, 0x25, 0x0E, 0x84}, 4 + 1 + 5},
		{[]byte{0x11, 0x02, 0x00, 0xC4, 0x00, 0x16, 0xBA, 0xA9}, 4 + 1 + 3},
		{[]byte{0x11, 0x03, 0x00, 0x6B, 0x00, 0x03, 0x76, 0x87}, 4 + 1 + 6},
		{[]byte{0x11, 0x04, 0x00, 0x08, 0x00, 0x01, 0xB2, 0x98}, 4 + 1 + 2},
		{[]byte{0x11, 0x05, 0x00, 0xAC, 0xFF, 0x00, 0x4E, 0x8B}, 8},
		{[]byte{0x11, 0x06, 0x00, 0x01, 0x00, 0x03, 0x9A, 0x9B}, 8},
		{[]byte{0x11, 0x0F, 0x00, 0x13, 0x00, 0x0A, 0x02, 0xCD, 0x01, 0xBF, 0x0B}, 8},
		{[]byte{0x11, 0x10, 0x00, 0x01, 0x00, 0x02, 0x04, 0x00, 0x0A, 0x01, 0x02, 0xC6, 0xF0}, 8},
	} {
		assert.Equalf(t, tt.length, calculateResponseLength(tt.adu), "function %#02x", tt.adu[1])
	}
}

func TestCalculateDelay(t *testing.T) {
	transporter := rtuSerialTransporter{}

	// High (or unset) baud rates use the fixed 750us/1750us intervals.
	assert.Equal(t, 1750*time.Microsecond, transporter.calculateDelay(0))

	transporter.BaudRate = 9600
	assert.Equal(t, time.Duration(15000000/9600*16+35000000/9600)*time.Microsecond,
		transporter.calculateDelay(16))
}

func TestRTUSendNotConnected(t *testing.T) {
	handler := NewRTUClientHandler("/dev/ttyUSB0")

	_, err := handler.Send([]byte{0x11, 0x01, 0x00, 0x13, 0x00, 0x25, 0x0E, 0x84})
	assert.ErrorIs(t, err, ErrNotConnected)
}
