package stream

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/satindergrewal/astrosonic/internal/audio"
)

// --- Fakes ---

type sliceSource struct {
	frames   [][]int16
	next     int
	produced int
}

func (s *sliceSource) Next() ([]int16, bool) {
	if s.next >= len(s.frames) {
		return nil, false
	}
	f := s.frames[s.next]
	s.next++
	s.produced++
	return f, true
}

func testFrames(n, size int) [][]int16 {
	out := make([][]int16, n)
	for i := range out {
		f := make([]int16, size)
		for j := range f {
			f[j] = int16(i*size + j)
		}
		out[i] = f
	}
	return out
}

func expectedBytes(header []byte, frames [][]int16) []byte {
	var b bytes.Buffer
	b.Write(header)
	for _, f := range frames {
		b.Write(audio.SamplesToBytes(f))
	}
	return b.Bytes()
}

// shortSink accepts at most max bytes per call.
type shortSink struct {
	bytes.Buffer
	max   int
	calls int
}

func (s *shortSink) Write(p []byte) (int, error) {
	s.calls++
	if len(p) > s.max {
		p = p[:s.max]
	}
	return s.Buffer.Write(p)
}

// busySink is busy every other call until drained.
type busySink struct {
	bytes.Buffer
	busy   bool
	drains int
}

func (s *busySink) Write(p []byte) (int, error) {
	if s.busy {
		return 0, ErrSinkBusy
	}
	s.busy = true
	return s.Buffer.Write(p)
}

func (s *busySink) WaitDrain(ctx context.Context) error {
	s.drains++
	s.busy = false
	return nil
}

type failSink struct {
	bytes.Buffer
	after int
}

func (s *failSink) Write(p []byte) (int, error) {
	if s.Len()+len(p) > s.after {
		n := s.after - s.Len()
		s.Buffer.Write(p[:n])
		return n, errors.New("connection reset")
	}
	return s.Buffer.Write(p)
}

type flushSink struct {
	bytes.Buffer
	flushes int
}

func (s *flushSink) Flush() error {
	s.flushes++
	return nil
}

// --- Deliver ---

func TestDeliverWritesHeaderThenFrames(t *testing.T) {
	header := []byte("HEADER")
	frames := testFrames(3, 4)
	var sink bytes.Buffer

	res, err := Deliver(context.Background(), &sliceSource{frames: frames}, header, &sink)
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if !bytes.Equal(sink.Bytes(), expectedBytes(header, frames)) {
		t.Error("delivered bytes differ from header+frames")
	}
	if res.Frames != 3 {
		t.Errorf("Frames = %d, want 3", res.Frames)
	}
	if res.Bytes != int64(len(header)+3*4*2) {
		t.Errorf("Bytes = %d", res.Bytes)
	}
}

func TestDeliverResumesShortWrites(t *testing.T) {
	frames := testFrames(5, 7)
	sink := &shortSink{max: 3}

	if _, err := Deliver(context.Background(), &sliceSource{frames: frames}, []byte("RIFF"), sink); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if !bytes.Equal(sink.Bytes(), expectedBytes([]byte("RIFF"), frames)) {
		t.Error("short writes lost or duplicated bytes")
	}
	if sink.calls < 10 {
		t.Errorf("expected many partial writes, got %d", sink.calls)
	}
}

func TestDeliverWaitsOnBusySink(t *testing.T) {
	frames := testFrames(4, 8)
	sink := &busySink{}

	res, err := Deliver(context.Background(), &sliceSource{frames: frames}, nil, sink)
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if !bytes.Equal(sink.Bytes(), expectedBytes(nil, frames)) {
		t.Error("busy sink lost bytes")
	}
	if sink.drains != 3 || res.Waits != 3 {
		t.Errorf("drains = %d, waits = %d, want 3", sink.drains, res.Waits)
	}
}

func TestDeliverFailureKeepsSentBytes(t *testing.T) {
	frames := testFrames(4, 8) // 16 bytes per frame
	sink := &failSink{after: 40}
	src := &sliceSource{frames: frames}

	res, err := Deliver(context.Background(), src, nil, sink)
	if !errors.Is(err, ErrSinkFailure) {
		t.Fatalf("err = %v, want ErrSinkFailure", err)
	}
	if res.Frames != 2 {
		t.Errorf("Frames = %d, want 2 fully delivered", res.Frames)
	}
	want := expectedBytes(nil, frames)[:40]
	if !bytes.Equal(sink.Bytes(), want) {
		t.Error("bytes before the failure must be the exact prefix")
	}
	if src.produced != 3 {
		t.Errorf("produced %d frames, want 3 (no retry, no read-ahead)", src.produced)
	}
}

func TestDeliverFlushesEveryFrame(t *testing.T) {
	sink := &flushSink{}
	if _, err := Deliver(context.Background(), &sliceSource{frames: testFrames(5, 2)}, []byte("H"), sink); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if sink.flushes != 6 {
		t.Errorf("flushes = %d, want 6 (header + 5 frames)", sink.flushes)
	}
}

func TestDeliverStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &sliceSource{frames: testFrames(10, 4)}
	sink := &cancelAfter{n: 3, cancel: cancel}

	res, err := Deliver(ctx, src, nil, sink)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if res.Frames != 3 || src.produced != 3 {
		t.Errorf("frames = %d produced = %d, want 3/3", res.Frames, src.produced)
	}
}

type cancelAfter struct {
	bytes.Buffer
	n      int
	writes int
	cancel context.CancelFunc
}

func (s *cancelAfter) Write(p []byte) (int, error) {
	s.writes++
	if s.writes == s.n {
		s.cancel()
	}
	return s.Buffer.Write(p)
}

func TestDeliverBusyWithoutDrainerRetries(t *testing.T) {
	sink := &retrySink{busyFor: 2}
	if _, err := Deliver(context.Background(), &sliceSource{frames: testFrames(1, 4)}, nil, sink); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if sink.Len() != 8 {
		t.Errorf("wrote %d bytes, want 8", sink.Len())
	}
}

type retrySink struct {
	bytes.Buffer
	busyFor int
}

func (s *retrySink) Write(p []byte) (int, error) {
	if s.busyFor > 0 {
		s.busyFor--
		return 0, ErrSinkBusy
	}
	return s.Buffer.Write(p)
}

func TestDeliverCancelWhileBusy(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	sink := &retrySink{busyFor: 1 << 30}

	_, err := Deliver(ctx, &sliceSource{frames: testFrames(1, 4)}, nil, sink)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

// --- Data channel sink ---

type fakeDC struct {
	mu       sync.Mutex
	state    webrtc.DataChannelState
	buffered uint64
	sent     [][]byte
	lowTh    uint64
	onLow    func()
	onClose  func()

	unordered      bool
	maxRetransmits *uint16
	maxLifetime    *uint16
}

func (f *fakeDC) Send(p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, append([]byte(nil), p...))
	f.buffered += uint64(len(p))
	return nil
}

func (f *fakeDC) BufferedAmount() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buffered
}

func (f *fakeDC) SetBufferedAmountLowThreshold(th uint64) { f.lowTh = th }
func (f *fakeDC) OnBufferedAmountLow(fn func())           { f.onLow = fn }
func (f *fakeDC) OnClose(fn func())                       { f.onClose = fn }
func (f *fakeDC) ReadyState() webrtc.DataChannelState     { return f.state }
func (f *fakeDC) Ordered() bool                           { return !f.unordered }
func (f *fakeDC) MaxRetransmits() *uint16                 { return f.maxRetransmits }
func (f *fakeDC) MaxPacketLifeTime() *uint16              { return f.maxLifetime }

func (f *fakeDC) drain() {
	f.mu.Lock()
	f.buffered = 0
	f.mu.Unlock()
	f.onLow()
}

func TestDataChannelSinkBackpressure(t *testing.T) {
	dc := &fakeDC{state: webrtc.DataChannelStateOpen}
	sink := newDataChannelSink(dc, 16, 4)
	if dc.lowTh != 4 {
		t.Errorf("low threshold = %d, want 4", dc.lowTh)
	}

	if _, err := sink.Write(make([]byte, 20)); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if _, err := sink.Write(make([]byte, 4)); !errors.Is(err, ErrSinkBusy) {
		t.Fatalf("over high watermark: err = %v, want ErrSinkBusy", err)
	}

	done := make(chan error, 1)
	go func() { done <- sink.WaitDrain(context.Background()) }()
	time.Sleep(5 * time.Millisecond)
	dc.drain()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("WaitDrain: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitDrain did not return after drain")
	}
	if _, err := sink.Write(make([]byte, 4)); err != nil {
		t.Fatalf("write after drain: %v", err)
	}
}

func TestDataChannelSinkClosed(t *testing.T) {
	dc := &fakeDC{state: webrtc.DataChannelStateOpen, buffered: 100}
	sink := newDataChannelSink(dc, 16, 4)

	dc.onClose()
	if err := sink.WaitDrain(context.Background()); !errors.Is(err, ErrSinkFailure) {
		t.Errorf("WaitDrain after close: err = %v, want ErrSinkFailure", err)
	}

	dc.state = webrtc.DataChannelStateClosed
	if _, err := sink.Write([]byte{1}); !errors.Is(err, ErrSinkFailure) {
		t.Errorf("Write on closed channel: err = %v, want ErrSinkFailure", err)
	}
}

func TestDataChannelSinkRejectsUnreliableChannels(t *testing.T) {
	zero := uint16(0)
	lifetime := uint16(500)
	tests := []struct {
		name string
		dc   *fakeDC
	}{
		{"unordered", &fakeDC{unordered: true}},
		{"max retransmits", &fakeDC{maxRetransmits: &zero}},
		{"max packet lifetime", &fakeDC{maxLifetime: &lifetime}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.dc.state = webrtc.DataChannelStateOpen
			sink := newDataChannelSink(tt.dc, 32, 8)

			res, err := Deliver(context.Background(), &sliceSource{frames: testFrames(3, 8)}, []byte("RIFF"), sink)
			if !errors.Is(err, ErrSinkFailure) {
				t.Fatalf("err = %v, want ErrSinkFailure", err)
			}
			if res.Frames != 0 || res.Bytes != 0 {
				t.Errorf("result = %+v, want nothing delivered", res)
			}
			if len(tt.dc.sent) != 0 {
				t.Errorf("sent %d messages on an unreliable channel", len(tt.dc.sent))
			}
		})
	}
}

func TestDeliverThroughDataChannel(t *testing.T) {
	dc := &fakeDC{state: webrtc.DataChannelStateOpen}
	sink := newDataChannelSink(dc, 32, 8)
	frames := testFrames(6, 8) // 16 bytes each

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-stop:
				return
			case <-time.After(time.Millisecond):
				if dc.BufferedAmount() > 32 {
					dc.drain()
				}
			}
		}
	}()

	res, err := Deliver(context.Background(), &sliceSource{frames: frames}, nil, sink)
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if res.Frames != 6 {
		t.Errorf("Frames = %d, want 6", res.Frames)
	}

	dc.mu.Lock()
	var got bytes.Buffer
	for _, m := range dc.sent {
		got.Write(m)
	}
	dc.mu.Unlock()
	if !bytes.Equal(got.Bytes(), expectedBytes(nil, frames)) {
		t.Error("data channel received wrong bytes")
	}
}

// --- HTTP sink ---

func TestAudioHeaders(t *testing.T) {
	h := AudioHeaders("abc", "G", 72.5)
	if h.Get("X-Audio-Seed") != "abc" || h.Get("X-Audio-Key") != "G" || h.Get("X-Audio-Tempo") != "72.50" {
		t.Errorf("headers = %v", h)
	}
}
