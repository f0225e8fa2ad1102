package transport

import (
	"bytes"
	"context"
	"sync"
	"testing"
)

// fakeTransport is a minimal Transport double used only to test
// CompressingTransport's framing, independent of any real socket.
type fakeTransport struct {
	mu        sync.Mutex
	sent      [][]byte
	onMessage func([]byte)
}

func (f *fakeTransport) Host() string                     { return "fake" }
func (f *fakeTransport) IsConnected() bool                 { return true }
func (f *fakeTransport) SetConnected(bool)                 {}
func (f *fakeTransport) Connect(ctx context.Context) error { return nil }
func (f *fakeTransport) Disconnect(context.Context) error  { return nil }
func (f *fakeTransport) Send(ctx context.Context, frame []byte) error {
	f.mu.Lock()
	cp := make([]byte, len(frame))
	copy(cp, frame)
	f.sent = append(f.sent, cp)
	f.mu.Unlock()
	return nil
}
func (f *fakeTransport) OnConnected(func())    {}
func (f *fakeTransport) OnDisconnected(func()) {}
func (f *fakeTransport) OnMessage(fn func([]byte)) {
	f.mu.Lock()
	f.onMessage = fn
	f.mu.Unlock()
}

func (f *fakeTransport) lastSent() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeTransport) deliver(raw []byte) {
	f.mu.Lock()
	fn := f.onMessage
	f.mu.Unlock()
	if fn != nil {
		fn(raw)
	}
}

func TestCompressingTransport_SmallFramePassesThroughRaw(t *testing.T) {
	inner := &fakeTransport{}
	ct, err := NewCompressingTransport(inner)
	if err != nil {
		t.Fatalf("NewCompressingTransport: %v", err)
	}

	frame := []byte(`{"messageId":"1"}`)
	if err := ct.Send(context.Background(), frame); err != nil {
		t.Fatalf("Send: %v", err)
	}

	sent := inner.lastSent()
	if sent[0] != markerRaw {
		t.Fatalf("expected raw marker for small frame, got %d", sent[0])
	}
	if !bytes.Equal(sent[1:], frame) {
		t.Fatalf("expected frame to pass through unchanged, got %s", sent[1:])
	}
}

func TestCompressingTransport_LargeFrameRoundTrips(t *testing.T) {
	inner := &fakeTransport{}
	ct, err := NewCompressingTransport(inner)
	if err != nil {
		t.Fatalf("NewCompressingTransport: %v", err)
	}

	frame := bytes.Repeat([]byte("payload-byte-stream "), 100) // > compressThreshold
	if err := ct.Send(context.Background(), frame); err != nil {
		t.Fatalf("Send: %v", err)
	}

	sent := inner.lastSent()
	if sent[0] != markerZstd {
		t.Fatalf("expected zstd marker for large frame, got %d", sent[0])
	}
	if bytes.Equal(sent[1:], frame) {
		t.Fatal("expected large frame to actually be compressed, got identical bytes")
	}

	var gotFrame []byte
	ct.OnMessage(func(f []byte) { gotFrame = f })
	inner.deliver(sent)

	if !bytes.Equal(gotFrame, frame) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d bytes", len(gotFrame), len(frame))
	}
}

func TestCompressingTransport_DelegatesHostAndConnectedness(t *testing.T) {
	inner := &fakeTransport{}
	ct, err := NewCompressingTransport(inner)
	if err != nil {
		t.Fatalf("NewCompressingTransport: %v", err)
	}
	if ct.Host() != inner.Host() {
		t.Fatalf("expected delegated host %q, got %q", inner.Host(), ct.Host())
	}
	if !ct.IsConnected() {
		t.Fatal("expected delegated IsConnected=true")
	}
}
