// Package wire declares the request/response schema exchanged between
// kv-server clients and the server, and the binary encoding used to put
// those values on a length-prefixed frame.
package wire

import "fmt"

// ValueKind tags the variant carried by a Value.
type ValueKind uint8

const (
	// KindNone marks an absent value. It is the zero value so a bare
	// Value{} reads as "no value" rather than as the empty string.
	KindNone ValueKind = iota
	KindString
	KindInt
	KindBool
	KindDouble
	KindBytes
)

// Value is the tagged union carried by responses and hash fields: a
// UTF-8 string, a signed 64-bit integer, a bool, an IEEE-754 double, or
// a raw byte sequence. The zero Value is the well-defined "empty value"
// sentinel returned by Hset when a key did not previously exist.
type Value struct {
	Kind   ValueKind
	Str    string
	Int    int64
	Bool   bool
	Double float64
	Bytes  []byte
}

// IsEmpty reports whether v is the default/absent sentinel.
func (v Value) IsEmpty() bool {
	return v.Kind == KindNone
}

func StringValue(s string) Value  { return Value{Kind: KindString, Str: s} }
func IntValue(i int64) Value      { return Value{Kind: KindInt, Int: i} }
func BoolValue(b bool) Value      { return Value{Kind: KindBool, Bool: b} }
func DoubleValue(f float64) Value { return Value{Kind: KindDouble, Double: f} }
func BytesValue(b []byte) Value   { return Value{Kind: KindBytes, Bytes: b} }

func (v Value) String() string {
	switch v.Kind {
	case KindNone:
		return "<empty>"
	case KindString:
		return v.Str
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	case KindBool:
		return fmt.Sprintf("%t", v.Bool)
	case KindDouble:
		return fmt.Sprintf("%g", v.Double)
	case KindBytes:
		return fmt.Sprintf("%x", v.Bytes)
	default:
		return fmt.Sprintf("<unknown kind %d>", v.Kind)
	}
}

// KvPair is a (key, optional value) tuple. Pairs with Present == false
// report "key not present" inside an aggregate result; EmptyValue
// constructs one.
type KvPair struct {
	Key     string
	Value   Value
	Present bool
}

// EmptyValue builds a pair reporting that key has no value.
func EmptyValue(key string) KvPair {
	return KvPair{Key: key}
}

// PresentValue builds a pair carrying v for key.
func PresentValue(key string, v Value) KvPair {
	return KvPair{Key: key, Value: v, Present: true}
}

// Op identifies one of the nine CommandRequest variants. An Op value of
// OpUnknown (the zero value) is a decode-time error — there is no
// meaningful "empty" command.
type Op uint8

const (
	OpUnknown Op = iota
	OpHset
	OpHget
	OpHgetall
	OpHmget
	OpHmset
	OpHdel
	OpHmdel
	OpHexist
	OpHmexist
)

func (o Op) String() string {
	switch o {
	case OpHset:
		return "HSET"
	case OpHget:
		return "HGET"
	case OpHgetall:
		return "HGETALL"
	case OpHmget:
		return "HMGET"
	case OpHmset:
		return "HMSET"
	case OpHdel:
		return "HDEL"
	case OpHmdel:
		return "HMDEL"
	case OpHexist:
		return "HEXIST"
	case OpHmexist:
		return "HMEXIST"
	default:
		return "UNKNOWN"
	}
}

// CommandRequest is the discriminated union of operations a client can
// send. Only the fields relevant to Op are populated; the rest are left
// at their zero value.
type CommandRequest struct {
	Op    Op
	Table string
	Key   string
	Keys  []string
	Value Value
	Pairs []KvPair
}

// Status codes, HTTP-style, carried by CommandResponse.
const (
	StatusOK               uint32 = 200
	StatusNotFound         uint32 = 404
	StatusInvalidCommand   uint32 = 400
	StatusInternal         uint32 = 500
)

// CommandResponse is returned for every CommandRequest. Message is
// human-readable and empty on success. Within one response either
// Values or Pairs is populated per the dispatch table, never both,
// except for aggregate error responses where both are empty.
type CommandResponse struct {
	Status  uint32
	Message string
	Values  []Value
	Pairs   []KvPair
}

func OKValues(values ...Value) CommandResponse {
	return CommandResponse{Status: StatusOK, Values: values}
}

func OKPairs(pairs []KvPair) CommandResponse {
	return CommandResponse{Status: StatusOK, Pairs: pairs}
}

func ErrorResponse(status uint32, message string) CommandResponse {
	return CommandResponse{Status: status, Message: message}
}
