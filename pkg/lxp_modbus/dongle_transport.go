package lxp_modbus

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

// dongle firmware rejects larger register groups
const dongleMaxGroupSize = 40

// dongleBus speaks the framed dongle protocol over one persistent TCP
// socket. The channel is strictly half-duplex: one request in flight, a
// settling delay between register groups, no pipelining. Each exchange walks
// idle -> awaiting-response -> parsing inside exchange(), with leftover bytes
// kept in rbuf between calls.
type dongleBus struct {
	host           string
	port           uint
	dongleSerial   string
	inverterSerial string
	timeout        time.Duration
	settleDelay    time.Duration
	logger         *zap.Logger

	mu           sync.Mutex
	conn         net.Conn
	rbuf         []byte
	lastExchange time.Time
}

func newDongleBus(cfg TransportConfig, logger *zap.Logger) *dongleBus {
	cfg = cfg.withDefaults()
	return &dongleBus{
		host:           cfg.Host,
		port:           cfg.Port,
		dongleSerial:   cfg.DongleSerial,
		inverterSerial: cfg.InverterSerial,
		timeout:        cfg.Timeout,
		settleDelay:    cfg.SettleDelay,
		logger:         logger,
	}
}

func (b *dongleBus) Open(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		return nil
	}
	dialer := net.Dialer{Timeout: b.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", b.host, b.port))
	if err != nil {
		return &ConnectionError{Op: "dial", Err: err}
	}
	b.conn = conn
	b.rbuf = nil
	b.lastExchange = time.Time{}
	b.logger.Debug("dongle connected", zap.String("host", b.host), zap.Uint("port", b.port))
	return nil
}

func (b *dongleBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closeLocked()
}

func (b *dongleBus) closeLocked() error {
	if b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	b.conn = nil
	b.rbuf = nil
	return err
}

func (b *dongleBus) ReadInputRegisters(ctx context.Context, start uint16, quantity uint16) ([]uint16, error) {
	return b.readRegisters(ctx, FuncReadInput, start, quantity)
}

func (b *dongleBus) ReadHoldingRegisters(ctx context.Context, start uint16, quantity uint16) ([]uint16, error) {
	return b.readRegisters(ctx, FuncReadHolding, start, quantity)
}

func (b *dongleBus) readRegisters(ctx context.Context, function byte, start uint16, quantity uint16) ([]uint16, error) {
	out := make([]uint16, 0, quantity)
	// the firmware caps group size, so large windows become several
	// exchanges, each behind the settling delay
	for quantity > 0 {
		count := quantity
		if count > dongleMaxGroupSize {
			count = dongleMaxGroupSize
		}
		req, err := NewReadRequest(b.dongleSerial, b.inverterSerial, function, start, count)
		if err != nil {
			return nil, &ReadError{Op: "read_registers", Err: err}
		}
		reply, err := b.exchange(ctx, req)
		if err != nil {
			return nil, err
		}
		if reply.IsException() {
			return nil, &ReadError{Op: "read_registers", ExceptionCode: reply.ExceptionCode}
		}
		// a stale reply from a timed-out request must not splice into this one
		if reply.Function != function || reply.Register != start {
			return nil, &ReadError{Op: "read_registers", Err: fmt.Errorf("mismatched reply: function 0x%02x register %d", reply.Function, reply.Register)}
		}
		if len(reply.Values) != int(count) {
			return nil, &ReadError{Op: "read_registers", Err: fmt.Errorf("got %d registers, want %d", len(reply.Values), count)}
		}
		out = append(out, reply.Values...)
		start += count
		quantity -= count
	}
	return out, nil
}

func (b *dongleBus) WriteHoldingRegister(ctx context.Context, address uint16, value uint16) error {
	req, err := NewWriteSingleRequest(b.dongleSerial, b.inverterSerial, address, value)
	if err != nil {
		return &WriteError{Op: "write_register", Err: err}
	}
	reply, err := b.exchange(ctx, req)
	if err != nil {
		return asWriteError(err)
	}
	if reply.IsException() {
		return &WriteError{Op: "write_register", ExceptionCode: reply.ExceptionCode}
	}
	if reply.Value != value {
		return &WriteError{Op: "write_register", Err: fmt.Errorf("device echoed 0x%04x, wrote 0x%04x", reply.Value, value)}
	}
	return nil
}

func (b *dongleBus) WriteHoldingRegisters(ctx context.Context, address uint16, values []uint16) error {
	req, err := NewWriteMultiRequest(b.dongleSerial, b.inverterSerial, address, values)
	if err != nil {
		return &WriteError{Op: "write_registers", Err: err}
	}
	reply, err := b.exchange(ctx, req)
	if err != nil {
		return asWriteError(err)
	}
	if reply.IsException() {
		return &WriteError{Op: "write_registers", ExceptionCode: reply.ExceptionCode}
	}
	if int(reply.Value) != len(values) {
		return &WriteError{Op: "write_registers", Err: fmt.Errorf("device wrote %d registers, want %d", reply.Value, len(values))}
	}
	return nil
}

// exchange sends one request frame and waits for its translated reply.
func (b *dongleBus) exchange(ctx context.Context, req *DongleFrame) (*TranslatedData, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn == nil {
		return nil, &ConnectionError{Op: "exchange", Err: errors.New("not connected")}
	}

	if err := b.settle(ctx); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(b.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	raw, err := req.Encode()
	if err != nil {
		return nil, &ReadError{Op: "encode", Err: err}
	}
	_ = b.conn.SetWriteDeadline(deadline)
	if _, err := b.conn.Write(raw); err != nil {
		return nil, b.fail("write", err)
	}

	reply, err := b.awaitReply(deadline)
	if err != nil {
		return nil, err
	}
	b.lastExchange = time.Now()
	return reply, nil
}

// awaitReply reads frames until a translated-data reply shows up. Heartbeats
// are acknowledged by echo and never surface.
func (b *dongleBus) awaitReply(deadline time.Time) (*TranslatedData, error) {
	chunk := make([]byte, 512)
	for {
		for {
			frame, consumed, err := ScanDongleFrame(b.rbuf)
			if consumed > 0 {
				b.rbuf = b.rbuf[consumed:]
			}
			if err != nil {
				return nil, &ReadError{Op: "decode_frame", Err: err}
			}
			if frame == nil {
				break
			}
			switch frame.Function {
			case DongleFuncHeartbeat:
				b.logger.Debug("dongle heartbeat", zap.String("serial", frame.DongleSerial))
				if raw, err := frame.Encode(); err == nil {
					_ = b.conn.SetWriteDeadline(deadline)
					_, _ = b.conn.Write(raw)
				}
			case DongleFuncTranslatedData:
				reply, err := DecodeTranslatedReply(frame.Payload)
				if err != nil {
					return nil, &ReadError{Op: "decode_reply", Err: err}
				}
				if b.inverterSerial != "" && reply.InverterSerial != b.inverterSerial {
					b.logger.Warn("reply for another inverter, dropped",
						zap.String("got", reply.InverterSerial), zap.String("want", b.inverterSerial))
					continue
				}
				return reply, nil
			default:
				b.logger.Debug("unexpected function class, dropped", zap.Uint8("function", frame.Function))
			}
		}

		_ = b.conn.SetReadDeadline(deadline)
		n, err := b.conn.Read(chunk)
		if n > 0 {
			b.rbuf = append(b.rbuf, chunk[:n]...)
		}
		if err != nil {
			return nil, b.fail("read", err)
		}
	}
}

// settle enforces the firmware's inter-request delay.
func (b *dongleBus) settle(ctx context.Context) error {
	if b.lastExchange.IsZero() {
		return nil
	}
	wait := b.settleDelay - time.Since(b.lastExchange)
	if wait <= 0 {
		return nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return &TimeoutError{Op: "settle", Err: ctx.Err()}
	}
}

// fail classifies a socket error and drops the connection on hard failures.
func (b *dongleBus) fail(op string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		// leave the socket up: the device may just be slow; stale bytes
		// are flushed by the next scan
		return &TimeoutError{Op: op, Err: err}
	}
	_ = b.closeLocked()
	return &ConnectionError{Op: op, Err: err}
}

func asWriteError(err error) error {
	var re *ReadError
	if errors.As(err, &re) {
		return &WriteError{Op: re.Op, ExceptionCode: re.ExceptionCode, Err: re.Err}
	}
	return err
}

// CreateDongleTransport builds the full transport for a WiFi dongle: the
// framed bus below, the family-aware register reader on top.
func CreateDongleTransport(cfg TransportConfig, logger *zap.Logger) RegisterTransport {
	cfg = cfg.withDefaults()
	return newLocalTransport(newDongleBus(cfg, logger), cfg, localCapabilities(false), logger)
}
