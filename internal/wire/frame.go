package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// compressionThreshold is near an Ethernet MTU minus headers: payloads
// under it pay no compression cost, bulk Hgetall/Hmset traffic does.
const compressionThreshold = 1436

// maxPayloadLen is the largest payload a single frame can carry: the
// low 31 bits of the header field, 2 GiB - 1.
const maxPayloadLen = 0x7FFFFFFF

const compressFlag uint32 = 1 << 31

const frameHeaderLen = 4

// FrameErrorKind distinguishes encode-time overflow from any
// decode-time failure; both are connection-fatal per the propagation
// policy, but callers sometimes want to tell them apart in logs.
type FrameErrorKind int

const (
	FrameInvalid FrameErrorKind = iota
	FrameTooLarge
)

// FrameError reports a header overflow, truncated read, decompression
// failure, or schema-decode error at the frame boundary.
type FrameError struct {
	Kind  FrameErrorKind
	Cause error
}

func (e *FrameError) Error() string {
	switch e.Kind {
	case FrameTooLarge:
		return fmt.Sprintf("wire: frame payload exceeds %d bytes: %v", maxPayloadLen, e.Cause)
	default:
		return fmt.Sprintf("wire: invalid frame: %v", e.Cause)
	}
}

func (e *FrameError) Unwrap() error { return e.Cause }

func invalidFrame(cause error) error {
	return &FrameError{Kind: FrameInvalid, Cause: cause}
}

// EncodeFrame appends one length-prefixed, optionally-compressed frame
// carrying payload to dst and returns the extended slice. dst is
// caller-owned and may already hold prior frames.
func EncodeFrame(dst []byte, payload []byte) ([]byte, error) {
	headerPos := len(dst)
	dst = append(dst, 0, 0, 0, 0)
	bodyPos := len(dst)
	dst = append(dst, payload...)

	compressed := false
	if len(payload) > compressionThreshold {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		if _, err := gz.Write(payload); err != nil {
			return nil, fmt.Errorf("wire: gzip compress: %w", err)
		}
		if err := gz.Close(); err != nil {
			return nil, fmt.Errorf("wire: gzip compress: %w", err)
		}
		dst = append(dst[:bodyPos], buf.Bytes()...)
		compressed = true
	}

	bodyLen := len(dst) - bodyPos
	if bodyLen > maxPayloadLen {
		return nil, &FrameError{Kind: FrameTooLarge, Cause: fmt.Errorf("payload is %d bytes", bodyLen)}
	}

	header := uint32(bodyLen)
	if compressed {
		header |= compressFlag
	}
	binary.BigEndian.PutUint32(dst[headerPos:bodyPos], header)
	return dst, nil
}

// DecodeFrame reads exactly one frame from r and returns its decoded
// (decompressed, if applicable) payload.
func DecodeFrame(r io.Reader) ([]byte, error) {
	var headerBuf [frameHeaderLen]byte
	if _, err := io.ReadFull(r, headerBuf[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, invalidFrame(fmt.Errorf("reading header: %w", err))
	}

	header := binary.BigEndian.Uint32(headerBuf[:])
	compressed := header&compressFlag != 0
	length := header &^ compressFlag
	if length > maxPayloadLen {
		return nil, invalidFrame(fmt.Errorf("header declares length %d over max %d", length, maxPayloadLen))
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, invalidFrame(fmt.Errorf("reading body of %d bytes: %w", length, err))
	}

	if !compressed {
		return body, nil
	}

	gz, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, invalidFrame(fmt.Errorf("opening gzip stream: %w", err))
	}
	defer gz.Close()
	decompressed, err := io.ReadAll(gz)
	if err != nil {
		return nil, invalidFrame(fmt.Errorf("decompressing gzip stream: %w", err))
	}
	return decompressed, nil
}
