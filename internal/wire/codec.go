package wire

import (
	"encoding/binary"
	"fmt"
	"math"
)

// writer accumulates a tag/length-prefixed binary encoding of the
// request/response schema. It is the hand-rolled stand-in for the
// compile-time schema generator spec.md treats as an external
// collaborator: plain encoding/binary, no reflection, no codegen.
type writer struct {
	buf []byte
}

func (w *writer) putUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *writer) putUint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *writer) putByte(v byte) {
	w.buf = append(w.buf, v)
}

func (w *writer) putString(s string) {
	w.putUint32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *writer) putBytes(b []byte) {
	w.putUint32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *writer) putValue(v Value) {
	w.putByte(byte(v.Kind))
	switch v.Kind {
	case KindNone:
	case KindString:
		w.putString(v.Str)
	case KindInt:
		w.putUint64(uint64(v.Int))
	case KindBool:
		if v.Bool {
			w.putByte(1)
		} else {
			w.putByte(0)
		}
	case KindDouble:
		w.putUint64(math.Float64bits(v.Double))
	case KindBytes:
		w.putBytes(v.Bytes)
	}
}

func (w *writer) putPair(p KvPair) {
	w.putString(p.Key)
	if p.Present {
		w.putByte(1)
		w.putValue(p.Value)
	} else {
		w.putByte(0)
	}
}

// reader walks a decode buffer left to right, returning an error the
// instant it runs out of bytes instead of panicking on a short read.
type reader struct {
	buf []byte
	pos int
}

func (r *reader) need(n int) error {
	if r.pos+n > len(r.buf) {
		return fmt.Errorf("wire: truncated payload: need %d bytes at offset %d, have %d", n, r.pos, len(r.buf))
	}
	return nil
}

func (r *reader) getByte() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) getUint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

func (r *reader) getUint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos : r.pos+8])
	r.pos += 8
	return v, nil
}

func (r *reader) getString() (string, error) {
	n, err := r.getUint32()
	if err != nil {
		return "", err
	}
	if err := r.need(int(n)); err != nil {
		return "", err
	}
	s := string(r.buf[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

func (r *reader) getBytes() ([]byte, error) {
	n, err := r.getUint32()
	if err != nil {
		return nil, err
	}
	if err := r.need(int(n)); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	copy(b, r.buf[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return b, nil
}

func (r *reader) getValue() (Value, error) {
	kindByte, err := r.getByte()
	if err != nil {
		return Value{}, err
	}
	kind := ValueKind(kindByte)
	switch kind {
	case KindNone:
		return Value{}, nil
	case KindString:
		s, err := r.getString()
		if err != nil {
			return Value{}, err
		}
		return StringValue(s), nil
	case KindInt:
		v, err := r.getUint64()
		if err != nil {
			return Value{}, err
		}
		return IntValue(int64(v)), nil
	case KindBool:
		b, err := r.getByte()
		if err != nil {
			return Value{}, err
		}
		return BoolValue(b != 0), nil
	case KindDouble:
		v, err := r.getUint64()
		if err != nil {
			return Value{}, err
		}
		return DoubleValue(math.Float64frombits(v)), nil
	case KindBytes:
		b, err := r.getBytes()
		if err != nil {
			return Value{}, err
		}
		return BytesValue(b), nil
	default:
		return Value{}, fmt.Errorf("wire: unknown value kind %d", kindByte)
	}
}

func (r *reader) getPair() (KvPair, error) {
	key, err := r.getString()
	if err != nil {
		return KvPair{}, err
	}
	present, err := r.getByte()
	if err != nil {
		return KvPair{}, err
	}
	if present == 0 {
		return EmptyValue(key), nil
	}
	v, err := r.getValue()
	if err != nil {
		return KvPair{}, err
	}
	return PresentValue(key, v), nil
}

// EncodeRequest renders req as a binary payload.
func EncodeRequest(req CommandRequest) ([]byte, error) {
	if req.Op == OpUnknown {
		return nil, fmt.Errorf("wire: cannot encode request with unknown op")
	}
	w := &writer{buf: make([]byte, 0, 64)}
	w.putByte(byte(req.Op))
	w.putString(req.Table)

	switch req.Op {
	case OpHset:
		w.putString(req.Key)
		w.putValue(req.Value)
	case OpHget, OpHdel, OpHexist:
		w.putString(req.Key)
	case OpHgetall:
		// table only
	case OpHmget, OpHmdel, OpHmexist:
		w.putUint32(uint32(len(req.Keys)))
		for _, k := range req.Keys {
			w.putString(k)
		}
	case OpHmset:
		w.putUint32(uint32(len(req.Pairs)))
		for _, p := range req.Pairs {
			w.putString(p.Key)
			w.putValue(p.Value)
		}
	default:
		return nil, fmt.Errorf("wire: cannot encode unsupported op %d", req.Op)
	}
	return w.buf, nil
}

// DecodeRequest parses a payload previously produced by EncodeRequest.
// An unrecognized or missing op is a decode-time error, per spec.
func DecodeRequest(data []byte) (CommandRequest, error) {
	r := &reader{buf: data}
	opByte, err := r.getByte()
	if err != nil {
		return CommandRequest{}, fmt.Errorf("wire: decode request: %w", err)
	}
	op := Op(opByte)
	table, err := r.getString()
	if err != nil {
		return CommandRequest{}, fmt.Errorf("wire: decode request: %w", err)
	}
	req := CommandRequest{Op: op, Table: table}

	switch op {
	case OpHset:
		if req.Key, err = r.getString(); err != nil {
			return CommandRequest{}, fmt.Errorf("wire: decode hset key: %w", err)
		}
		if req.Value, err = r.getValue(); err != nil {
			return CommandRequest{}, fmt.Errorf("wire: decode hset value: %w", err)
		}
	case OpHget, OpHdel, OpHexist:
		if req.Key, err = r.getString(); err != nil {
			return CommandRequest{}, fmt.Errorf("wire: decode key: %w", err)
		}
	case OpHgetall:
	case OpHmget, OpHmdel, OpHmexist:
		count, err := r.getUint32()
		if err != nil {
			return CommandRequest{}, fmt.Errorf("wire: decode key count: %w", err)
		}
		req.Keys = make([]string, count)
		for i := range req.Keys {
			if req.Keys[i], err = r.getString(); err != nil {
				return CommandRequest{}, fmt.Errorf("wire: decode key %d: %w", i, err)
			}
		}
	case OpHmset:
		count, err := r.getUint32()
		if err != nil {
			return CommandRequest{}, fmt.Errorf("wire: decode pair count: %w", err)
		}
		req.Pairs = make([]KvPair, count)
		for i := range req.Pairs {
			key, err := r.getString()
			if err != nil {
				return CommandRequest{}, fmt.Errorf("wire: decode pair %d key: %w", i, err)
			}
			val, err := r.getValue()
			if err != nil {
				return CommandRequest{}, fmt.Errorf("wire: decode pair %d value: %w", i, err)
			}
			req.Pairs[i] = PresentValue(key, val)
		}
	default:
		return CommandRequest{}, fmt.Errorf("wire: unknown or missing command variant: %d", opByte)
	}
	return req, nil
}

// EncodeResponse renders resp as a binary payload.
func EncodeResponse(resp CommandResponse) ([]byte, error) {
	w := &writer{buf: make([]byte, 0, 64)}
	w.putUint32(resp.Status)
	w.putString(resp.Message)
	w.putUint32(uint32(len(resp.Values)))
	for _, v := range resp.Values {
		w.putValue(v)
	}
	w.putUint32(uint32(len(resp.Pairs)))
	for _, p := range resp.Pairs {
		w.putPair(p)
	}
	return w.buf, nil
}

// DecodeResponse parses a payload previously produced by EncodeResponse.
func DecodeResponse(data []byte) (CommandResponse, error) {
	r := &reader{buf: data}
	status, err := r.getUint32()
	if err != nil {
		return CommandResponse{}, fmt.Errorf("wire: decode response status: %w", err)
	}
	message, err := r.getString()
	if err != nil {
		return CommandResponse{}, fmt.Errorf("wire: decode response message: %w", err)
	}
	valueCount, err := r.getUint32()
	if err != nil {
		return CommandResponse{}, fmt.Errorf("wire: decode response value count: %w", err)
	}
	// A zero count decodes to a nil slice, matching how OKValues/OKPairs/
	// ErrorResponse leave an unused field, so a response round-trips.
	var values []Value
	if valueCount > 0 {
		values = make([]Value, valueCount)
	}
	for i := range values {
		if values[i], err = r.getValue(); err != nil {
			return CommandResponse{}, fmt.Errorf("wire: decode response value %d: %w", i, err)
		}
	}
	pairCount, err := r.getUint32()
	if err != nil {
		return CommandResponse{}, fmt.Errorf("wire: decode response pair count: %w", err)
	}
	var pairs []KvPair
	if pairCount > 0 {
		pairs = make([]KvPair, pairCount)
	}
	for i := range pairs {
		if pairs[i], err = r.getPair(); err != nil {
			return CommandResponse{}, fmt.Errorf("wire: decode response pair %d: %w", i, err)
		}
	}
	return CommandResponse{Status: status, Message: message, Values: values, Pairs: pairs}, nil
}
