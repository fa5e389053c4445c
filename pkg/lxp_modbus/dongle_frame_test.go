package lxp_modbus

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testDongleSerial   = "AB12345678"
	testInverterSerial = "CD98765432"
)

func TestDongleCRCVectors(t *testing.T) {
	assert.EqualValues(t, 0xFFFF, DongleCRC(nil))
	assert.EqualValues(t, 0xFFFF, DongleCRC([]byte{}))
	assert.EqualValues(t, 0x4B37, DongleCRC([]byte("123456789")))
}

func TestEncodeReadRequest(t *testing.T) {
	require := require.New(t)

	frame, err := NewReadRequest(testDongleSerial, testInverterSerial, FuncReadInput, 0, 40)
	require.NoError(err)
	raw, err := frame.Encode()
	require.NoError(err)

	// 6 header + 14 fixed + 16 payload + 2 crc
	require.Len(raw, 38)
	require.Equal([]byte{0xA1, 0x1A, 0x02, 0x00, 0x20, 0x00, 0x01, 0xC2}, raw[:8])
	require.Equal([]byte(testDongleSerial), raw[8:18])
	// payload length includes the trailing crc
	require.Equal([]byte{0x12, 0x00}, raw[18:20])

	payload := raw[20:36]
	require.EqualValues(DongleActionRequest, payload[0])
	require.EqualValues(FuncReadInput, payload[1])
	require.Equal([]byte(testInverterSerial), payload[2:12])
	require.Equal([]byte{0x00, 0x00}, payload[12:14])
	require.Equal([]byte{0x28, 0x00}, payload[14:16])

	require.Equal(DongleCRC(payload), binary.LittleEndian.Uint16(raw[36:38]))
}

func TestScanRoundtrip(t *testing.T) {
	require := require.New(t)

	frame, err := NewWriteSingleRequest(testDongleSerial, testInverterSerial, 21, 0x0881)
	require.NoError(err)
	raw, err := frame.Encode()
	require.NoError(err)

	got, consumed, err := ScanDongleFrame(raw)
	require.NoError(err)
	require.NotNil(got)
	require.Equal(len(raw), consumed)
	require.Equal(frame.Protocol, got.Protocol)
	require.Equal(frame.Address, got.Address)
	require.Equal(frame.Function, got.Function)
	require.Equal(frame.DongleSerial, got.DongleSerial)
	require.Equal(frame.Payload, got.Payload)
}

func TestScanSkipsLeadingNoise(t *testing.T) {
	require := require.New(t)

	frame, err := NewReadRequest(testDongleSerial, testInverterSerial, FuncReadHolding, 80, 10)
	require.NoError(err)
	raw, err := frame.Encode()
	require.NoError(err)

	buf := append([]byte{0x00, 0x7E, 0x55}, raw...)
	got, consumed, err := ScanDongleFrame(buf)
	require.NoError(err)
	require.NotNil(got)
	require.Equal(3+len(raw), consumed)
	require.Equal(frame.Payload, got.Payload)
}

func TestScanIncompleteFrame(t *testing.T) {
	require := require.New(t)

	frame, err := NewReadRequest(testDongleSerial, testInverterSerial, FuncReadInput, 0, 40)
	require.NoError(err)
	raw, err := frame.Encode()
	require.NoError(err)

	// half a frame: keep everything, wait for more bytes
	got, consumed, err := ScanDongleFrame(raw[:20])
	require.NoError(err)
	require.Nil(got)
	require.Zero(consumed)

	// garbage without the magic is droppable noise
	got, consumed, err = ScanDongleFrame([]byte{0x01, 0x02, 0x03})
	require.NoError(err)
	require.Nil(got)
	require.Equal(3, consumed)

	// a trailing 0xA1 may be half a magic still in flight
	got, consumed, err = ScanDongleFrame([]byte{0x01, 0x02, 0xA1})
	require.NoError(err)
	require.Nil(got)
	require.Equal(2, consumed)
}

func TestScanRejectsCorruptCRC(t *testing.T) {
	require := require.New(t)

	frame, err := NewReadRequest(testDongleSerial, testInverterSerial, FuncReadInput, 0, 40)
	require.NoError(err)
	raw, err := frame.Encode()
	require.NoError(err)

	raw[25] ^= 0xFF
	got, consumed, err := ScanDongleFrame(raw)
	require.Error(err)
	require.Nil(got)
	// the whole frame is consumed so the scanner can resync cleanly
	require.Equal(len(raw), consumed)
}

func TestScanRejectsBogusLengths(t *testing.T) {
	require := require.New(t)

	// frame length below the fixed header size
	buf := []byte{0xA1, 0x1A, 0x02, 0x00, 0x0A, 0x00, 0x01, 0xC2}
	got, consumed, err := ScanDongleFrame(buf)
	require.Error(err)
	require.Nil(got)
	// resync just past the magic
	require.Equal(2, consumed)
}

func TestHeartbeatRoundtrip(t *testing.T) {
	require := require.New(t)

	hb := &DongleFrame{
		Protocol:     DongleProtocolVersion,
		Address:      0x01,
		Function:     DongleFuncHeartbeat,
		DongleSerial: testDongleSerial,
	}
	raw, err := hb.Encode()
	require.NoError(err)
	// empty payload still carries its crc
	require.Len(raw, 22)
	require.Equal([]byte{0xFF, 0xFF}, raw[20:22])

	got, consumed, err := ScanDongleFrame(raw)
	require.NoError(err)
	require.NotNil(got)
	require.Equal(len(raw), consumed)
	require.EqualValues(DongleFuncHeartbeat, got.Function)
	require.Empty(got.Payload)
}

func replyPayload(function byte, serial string, register uint16, body []byte) []byte {
	p := []byte{DongleActionReply, function}
	s := make([]byte, 10)
	copy(s, serial)
	p = append(p, s...)
	p = binary.LittleEndian.AppendUint16(p, register)
	return append(p, body...)
}

func TestDecodeReadReply(t *testing.T) {
	require := require.New(t)

	body := []byte{2, 0x04, 0x03, 0x02, 0x01}
	td, err := DecodeTranslatedReply(replyPayload(FuncReadInput, testInverterSerial, 40, body))
	require.NoError(err)
	require.EqualValues(DongleActionReply, td.Action)
	require.EqualValues(FuncReadInput, td.Function)
	require.Equal(testInverterSerial, td.InverterSerial)
	require.EqualValues(40, td.Register)
	require.Equal([]uint16{0x0304, 0x0102}, td.Values)
	require.False(td.IsException())
}

func TestDecodeReadReplyCountMismatch(t *testing.T) {
	body := []byte{3, 0x04, 0x03, 0x02, 0x01}
	_, err := DecodeTranslatedReply(replyPayload(FuncReadInput, testInverterSerial, 40, body))
	require.Error(t, err)
}

func TestDecodeWriteReplies(t *testing.T) {
	require := require.New(t)

	td, err := DecodeTranslatedReply(replyPayload(FuncWriteSingle, testInverterSerial, 21, []byte{0x81, 0x08}))
	require.NoError(err)
	require.EqualValues(21, td.Register)
	require.EqualValues(0x0881, td.Value)

	td, err = DecodeTranslatedReply(replyPayload(FuncWriteMulti, testInverterSerial, 85, []byte{0x02, 0x00}))
	require.NoError(err)
	require.EqualValues(2, td.Value)
}

func TestDecodeExceptionReply(t *testing.T) {
	require := require.New(t)

	td, err := DecodeTranslatedReply(replyPayload(FuncReadInput|exceptionFlag, testInverterSerial, 0, []byte{ExceptionIllegalDataAddress}))
	require.NoError(err)
	require.True(td.IsException())
	require.EqualValues(FuncReadInput, td.Function)
	require.EqualValues(ExceptionIllegalDataAddress, td.ExceptionCode)

	// an exception frame must carry a non-zero code
	_, err = DecodeTranslatedReply(replyPayload(FuncReadInput|exceptionFlag, testInverterSerial, 0, []byte{0x00}))
	require.Error(err)
	_, err = DecodeTranslatedReply(replyPayload(FuncReadInput|exceptionFlag, testInverterSerial, 0, nil))
	require.Error(err)
}

func TestDecodeShortPayload(t *testing.T) {
	_, err := DecodeTranslatedReply([]byte{0x01, 0x04})
	require.Error(t, err)
}

func TestSerialTooLong(t *testing.T) {
	_, err := NewReadRequest("THISSERIALISTOOLONG", testInverterSerial, FuncReadInput, 0, 1)
	require.Error(t, err)
}

func TestWriteMultiRequestBounds(t *testing.T) {
	require := require.New(t)

	_, err := NewWriteMultiRequest(testDongleSerial, testInverterSerial, 0, nil)
	require.Error(err)
	_, err = NewWriteMultiRequest(testDongleSerial, testInverterSerial, 0, make([]uint16, 126))
	require.Error(err)

	frame, err := NewWriteMultiRequest(testDongleSerial, testInverterSerial, 85, []uint16{0x1234, 0x5678})
	require.NoError(err)
	// body: register count then little-endian values
	require.Equal([]byte{2, 0x34, 0x12, 0x78, 0x56}, frame.Payload[translatedHeaderLen:])
}
