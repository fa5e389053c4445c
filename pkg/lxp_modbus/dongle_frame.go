package lxp_modbus

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/sigurn/crc16"
)

// WiFi dongle framing. Every frame:
//
//	offset 0   magic prefix 0xA1 0x1A
//	offset 2   protocol version, u16 LE
//	offset 4   frame length, u16 LE: every byte after this field
//	offset 6   address
//	offset 7   function class (0xC1 heartbeat, 0xC2 translated data)
//	offset 8   dongle serial, 10 ASCII bytes, null padded
//	offset 18  payload length, u16 LE: payload bytes + 2 (trailing CRC)
//	offset 20  payload
//	tail       CRC16 over the payload, u16 LE (Modbus polynomial,
//	           reflected, init 0xFFFF)
//
// Translated-data payload:
//
//	offset 0   action (0x00 request, 0x01 reply)
//	offset 1   Modbus function; replies set bit 7 on device exceptions
//	offset 2   inverter serial, 10 ASCII bytes, null padded
//	offset 12  start register, u16 LE
//	offset 14  body (see the per-function request/reply builders)
//
// The relay occasionally prepends noise bytes, so decoding scans for the
// magic prefix before trusting any length field.

const (
	dongleMagic0 = 0xA1
	dongleMagic1 = 0x1A

	DongleProtocolVersion uint16 = 2

	DongleFuncHeartbeat      = 0xC1
	DongleFuncTranslatedData = 0xC2

	DongleActionRequest = 0x00
	DongleActionReply   = 0x01

	dongleSerialLen = 10
	// magic + protocol + frame length
	dongleHeaderLen = 6
	// address + function + serial + payload length
	dongleFrameFixedLen = 14
	// action + function + serial + register
	translatedHeaderLen = 14

	exceptionFlag = 0x80
)

// Modbus functions carried inside translated-data payloads
const (
	FuncReadHolding = 0x03
	FuncReadInput   = 0x04
	FuncWriteSingle = 0x06
	FuncWriteMulti  = 0x10
)

var dongleCRCTable = crc16.MakeTable(crc16.CRC16_MODBUS)

// DongleCRC computes the frame checksum (CRC-16/MODBUS).
func DongleCRC(data []byte) uint16 {
	return crc16.Checksum(data, dongleCRCTable)
}

type DongleFrame struct {
	Protocol     uint16
	Address      byte
	Function     byte
	DongleSerial string
	Payload      []byte
}

func (f *DongleFrame) Encode() ([]byte, error) {
	serial, err := serialBytes(f.DongleSerial)
	if err != nil {
		return nil, err
	}
	frameLen := dongleFrameFixedLen + len(f.Payload) + 2
	buf := make([]byte, 0, dongleHeaderLen+frameLen)
	buf = append(buf, dongleMagic0, dongleMagic1)
	buf = binary.LittleEndian.AppendUint16(buf, f.Protocol)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(frameLen))
	buf = append(buf, f.Address, f.Function)
	buf = append(buf, serial...)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(f.Payload)+2))
	buf = append(buf, f.Payload...)
	buf = binary.LittleEndian.AppendUint16(buf, DongleCRC(f.Payload))
	return buf, nil
}

// ScanDongleFrame looks for one complete frame in buf.
//
//   - (frame, n, nil): a frame was decoded, the first n bytes of buf are done
//     (leading noise included).
//   - (nil, n, nil): no complete frame yet; the first n bytes are noise that
//     can be dropped, the rest must be kept until more data arrives.
//   - (nil, n, err): a malformed frame (bad length or CRC); skip n bytes and
//     rescan.
func ScanDongleFrame(buf []byte) (*DongleFrame, int, error) {
	start := bytes.Index(buf, []byte{dongleMagic0, dongleMagic1})
	if start < 0 {
		// keep a trailing 0xA1 in case its partner is still in flight
		if len(buf) > 0 && buf[len(buf)-1] == dongleMagic0 {
			return nil, len(buf) - 1, nil
		}
		return nil, len(buf), nil
	}
	b := buf[start:]
	if len(b) < dongleHeaderLen {
		return nil, start, nil
	}
	frameLen := int(binary.LittleEndian.Uint16(b[4:6]))
	if frameLen < dongleFrameFixedLen+2 {
		// shorter than the fixed header: not a real frame, resync past
		// the magic
		return nil, start + 2, fmt.Errorf("frame length %d below header size", frameLen)
	}
	total := dongleHeaderLen + frameLen
	if len(b) < total {
		return nil, start, nil
	}
	payloadLen := int(binary.LittleEndian.Uint16(b[18:20]))
	if payloadLen < 2 || payloadLen != frameLen-dongleFrameFixedLen {
		return nil, start + 2, fmt.Errorf("payload length %d inconsistent with frame length %d", payloadLen, frameLen)
	}
	payload := b[20 : 20+payloadLen-2]
	wantCRC := binary.LittleEndian.Uint16(b[20+payloadLen-2 : 20+payloadLen])
	if got := DongleCRC(payload); got != wantCRC {
		return nil, start + total, fmt.Errorf("crc mismatch: got 0x%04x, frame says 0x%04x", got, wantCRC)
	}
	frame := &DongleFrame{
		Protocol:     binary.LittleEndian.Uint16(b[2:4]),
		Address:      b[6],
		Function:     b[7],
		DongleSerial: serialString(b[8:18]),
		Payload:      append([]byte(nil), payload...),
	}
	return frame, start + total, nil
}

// TranslatedData is the decoded inner payload of a 0xC2 frame.
type TranslatedData struct {
	Action         byte
	Function       byte
	InverterSerial string
	Register       uint16

	// read replies and multi-write requests
	Values []uint16
	// single-write value, or register count on multi-write replies
	Value uint16

	ExceptionCode byte
}

func (t *TranslatedData) IsException() bool {
	return t.ExceptionCode != 0
}

func NewReadRequest(dongleSerial, inverterSerial string, function byte, start uint16, count uint16) (*DongleFrame, error) {
	body := make([]byte, 0, 2)
	body = binary.LittleEndian.AppendUint16(body, count)
	return translatedRequest(dongleSerial, inverterSerial, function, start, body)
}

func NewWriteSingleRequest(dongleSerial, inverterSerial string, register uint16, value uint16) (*DongleFrame, error) {
	body := make([]byte, 0, 2)
	body = binary.LittleEndian.AppendUint16(body, value)
	return translatedRequest(dongleSerial, inverterSerial, FuncWriteSingle, register, body)
}

func NewWriteMultiRequest(dongleSerial, inverterSerial string, start uint16, values []uint16) (*DongleFrame, error) {
	if len(values) == 0 || len(values) > 125 {
		return nil, fmt.Errorf("invalid register count %d", len(values))
	}
	body := make([]byte, 0, 1+2*len(values))
	body = append(body, byte(len(values)))
	for _, v := range values {
		body = binary.LittleEndian.AppendUint16(body, v)
	}
	return translatedRequest(dongleSerial, inverterSerial, FuncWriteMulti, start, body)
}

func translatedRequest(dongleSerial, inverterSerial string, function byte, register uint16, body []byte) (*DongleFrame, error) {
	serial, err := serialBytes(inverterSerial)
	if err != nil {
		return nil, err
	}
	payload := make([]byte, 0, translatedHeaderLen+len(body))
	payload = append(payload, DongleActionRequest, function)
	payload = append(payload, serial...)
	payload = binary.LittleEndian.AppendUint16(payload, register)
	payload = append(payload, body...)
	return &DongleFrame{
		Protocol:     DongleProtocolVersion,
		Address:      0x01,
		Function:     DongleFuncTranslatedData,
		DongleSerial: dongleSerial,
		Payload:      payload,
	}, nil
}

// DecodeTranslatedReply parses the payload of a translated-data frame. The
// reply is self-describing via its Modbus function byte.
func DecodeTranslatedReply(payload []byte) (*TranslatedData, error) {
	if len(payload) < translatedHeaderLen {
		return nil, fmt.Errorf("translated payload too short: %d bytes", len(payload))
	}
	td := &TranslatedData{
		Action:         payload[0],
		Function:       payload[1] &^ exceptionFlag,
		InverterSerial: serialString(payload[2:12]),
		Register:       binary.LittleEndian.Uint16(payload[12:14]),
	}
	body := payload[translatedHeaderLen:]
	if payload[1]&exceptionFlag != 0 {
		if len(body) < 1 {
			return nil, fmt.Errorf("exception reply without exception code")
		}
		td.ExceptionCode = body[0]
		if td.ExceptionCode == 0 {
			return nil, fmt.Errorf("exception reply with zero exception code")
		}
		return td, nil
	}
	switch td.Function {
	case FuncReadHolding, FuncReadInput:
		if len(body) < 1 {
			return nil, fmt.Errorf("read reply without register count")
		}
		count := int(body[0])
		if len(body) != 1+2*count {
			return nil, fmt.Errorf("read reply body is %d bytes, want %d for %d registers", len(body), 1+2*count, count)
		}
		td.Values = make([]uint16, count)
		for i := 0; i < count; i++ {
			td.Values[i] = binary.LittleEndian.Uint16(body[1+2*i : 3+2*i])
		}
	case FuncWriteSingle:
		if len(body) != 2 {
			return nil, fmt.Errorf("single-write reply body is %d bytes, want 2", len(body))
		}
		td.Value = binary.LittleEndian.Uint16(body)
	case FuncWriteMulti:
		if len(body) != 2 {
			return nil, fmt.Errorf("multi-write reply body is %d bytes, want 2", len(body))
		}
		td.Value = binary.LittleEndian.Uint16(body)
	default:
		return nil, fmt.Errorf("unsupported function 0x%02x", td.Function)
	}
	return td, nil
}

func serialBytes(serial string) ([]byte, error) {
	if len(serial) > dongleSerialLen {
		return nil, fmt.Errorf("serial %q longer than %d bytes", serial, dongleSerialLen)
	}
	out := make([]byte, dongleSerialLen)
	copy(out, serial)
	return out, nil
}

func serialString(raw []byte) string {
	if i := bytes.IndexByte(raw, 0x00); i >= 0 {
		return string(raw[:i])
	}
	return string(raw)
}
