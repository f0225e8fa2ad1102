package transport

import (
	"context"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// compressThreshold is the minimum frame size, in bytes, worth paying zstd's
// framing overhead for. Below it, frames are sent uncompressed with a
// one-byte passthrough marker.
const compressThreshold = 512

const (
	markerRaw  byte = 0
	markerZstd byte = 1
)

// CompressingTransport decorates a Transport, zstd-compressing outbound
// frames above compressThreshold and transparently decompressing inbound
// ones. It supplements the spec: frames are carried opaquely end to end, so
// nothing about the controller needs to know compression is happening —
// the same way the teacher's image pipeline reaches for klauspost/compress
// to decompress OCI layers without the VMM layer above it noticing.
type CompressingTransport struct {
	inner     Transport
	enc       *zstd.Encoder
	dec       *zstd.Decoder
	onMessage func([]byte)
}

// NewCompressingTransport wraps inner with zstd frame compression.
func NewCompressingTransport(inner Transport) (*CompressingTransport, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("compressing transport: new encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("compressing transport: new decoder: %w", err)
	}
	ct := &CompressingTransport{inner: inner, enc: enc, dec: dec}
	inner.OnMessage(ct.handleInbound)
	return ct, nil
}

var _ Transport = (*CompressingTransport)(nil)

func (c *CompressingTransport) Host() string { return c.inner.Host() }
func (c *CompressingTransport) IsConnected() bool { return c.inner.IsConnected() }
func (c *CompressingTransport) SetConnected(v bool) { c.inner.SetConnected(v) }

func (c *CompressingTransport) Connect(ctx context.Context) error    { return c.inner.Connect(ctx) }
func (c *CompressingTransport) Disconnect(ctx context.Context) error { return c.inner.Disconnect(ctx) }

func (c *CompressingTransport) Send(ctx context.Context, frame []byte) error {
	if len(frame) < compressThreshold {
		return c.inner.Send(ctx, append([]byte{markerRaw}, frame...))
	}
	compressed := c.enc.EncodeAll(frame, make([]byte, 0, len(frame)))
	return c.inner.Send(ctx, append([]byte{markerZstd}, compressed...))
}

func (c *CompressingTransport) OnConnected(fn func())    { c.inner.OnConnected(fn) }
func (c *CompressingTransport) OnDisconnected(fn func()) { c.inner.OnDisconnected(fn) }

func (c *CompressingTransport) OnMessage(fn func([]byte)) {
	c.onMessage = fn
}

func (c *CompressingTransport) handleInbound(raw []byte) {
	if len(raw) == 0 {
		return
	}
	marker, payload := raw[0], raw[1:]
	var frame []byte
	switch marker {
	case markerZstd:
		decoded, err := c.dec.DecodeAll(payload, nil)
		if err != nil {
			return
		}
		frame = decoded
	default:
		frame = payload
	}
	if c.onMessage != nil {
		c.onMessage(frame)
	}
}
