package stream

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
)

// Data channel buffering watermarks in bytes.
const (
	DefaultHighWater = 1 << 20
	DefaultLowWater  = 256 << 10
)

// dataChannel is the subset of *webrtc.DataChannel the sink drives.
type dataChannel interface {
	Send(data []byte) error
	BufferedAmount() uint64
	SetBufferedAmountLowThreshold(th uint64)
	OnBufferedAmountLow(f func())
	OnClose(f func())
	ReadyState() webrtc.DataChannelState
	Ordered() bool
	MaxRetransmits() *uint16
	MaxPacketLifeTime() *uint16
}

// DataChannelSink sends PCM over a WebRTC data channel. Writes report
// ErrSinkBusy while more than the high watermark is buffered; WaitDrain
// returns once the buffer falls under the low watermark. Channels that
// are unordered or have a retransmit or lifetime limit can lose or
// reorder frames, so every write to them fails.
type DataChannelSink struct {
	dc         dataChannel
	high       uint64
	unreliable error

	low    chan struct{}
	closed chan struct{}
	once   sync.Once
}

func NewDataChannelSink(dc *webrtc.DataChannel, high, low uint64) *DataChannelSink {
	return newDataChannelSink(dc, high, low)
}

func newDataChannelSink(dc dataChannel, high, low uint64) *DataChannelSink {
	if high == 0 {
		high = DefaultHighWater
	}
	if low == 0 || low >= high {
		low = high / 4
	}
	s := &DataChannelSink{
		dc:         dc,
		high:       high,
		unreliable: checkReliable(dc),
		low:        make(chan struct{}, 1),
		closed:     make(chan struct{}),
	}
	dc.SetBufferedAmountLowThreshold(low)
	dc.OnBufferedAmountLow(func() {
		select {
		case s.low <- struct{}{}:
		default:
		}
	})
	dc.OnClose(func() {
		s.once.Do(func() { close(s.closed) })
	})
	return s
}

// checkReliable rejects channels that do not guarantee ordered delivery
// of every message.
func checkReliable(dc dataChannel) error {
	switch {
	case !dc.Ordered():
		return fmt.Errorf("%w: data channel is unordered", ErrSinkFailure)
	case dc.MaxRetransmits() != nil:
		return fmt.Errorf("%w: data channel has maxRetransmits=%d", ErrSinkFailure, *dc.MaxRetransmits())
	case dc.MaxPacketLifeTime() != nil:
		return fmt.Errorf("%w: data channel has maxPacketLifeTime=%d", ErrSinkFailure, *dc.MaxPacketLifeTime())
	}
	return nil
}

func (s *DataChannelSink) Write(p []byte) (int, error) {
	if s.unreliable != nil {
		return 0, s.unreliable
	}
	if st := s.dc.ReadyState(); st != webrtc.DataChannelStateOpen {
		return 0, fmt.Errorf("%w: data channel %s", ErrSinkFailure, st)
	}
	if s.dc.BufferedAmount() > s.high {
		return 0, ErrSinkBusy
	}
	if err := s.dc.Send(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *DataChannelSink) WaitDrain(ctx context.Context) error {
	for s.dc.BufferedAmount() > s.high {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.closed:
			return fmt.Errorf("%w: data channel closed", ErrSinkFailure)
		case <-s.low:
		}
	}
	return nil
}

// Peers negotiates WebRTC sessions and tracks the live ones.
type Peers struct {
	cfg  webrtc.Configuration
	high uint64
	low  uint64

	mu    sync.Mutex
	peers map[*webrtc.PeerConnection]context.CancelFunc
}

func NewPeers(cfg webrtc.Configuration, high, low uint64) *Peers {
	return &Peers{
		cfg:   cfg,
		high:  high,
		low:   low,
		peers: make(map[*webrtc.PeerConnection]context.CancelFunc),
	}
}

// Count returns the number of active peers.
func (p *Peers) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.peers)
}

// Answer accepts a client offer and returns the local answer once ICE
// gathering completes. When the client's data channel opens, serve runs
// in its own goroutine with a context cancelled when the peer goes away.
// A channel negotiated without reliable ordered delivery still reaches
// serve, but its sink fails the first write with ErrSinkFailure.
func (p *Peers) Answer(ctx context.Context, offer webrtc.SessionDescription, serve func(context.Context, *DataChannelSink)) (*webrtc.SessionDescription, error) {
	pc, err := webrtc.NewPeerConnection(p.cfg)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	peerCtx, cancel := context.WithCancel(context.Background())
	p.mu.Lock()
	p.peers[pc] = cancel
	p.mu.Unlock()

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		if s == webrtc.PeerConnectionStateFailed ||
			s == webrtc.PeerConnectionStateClosed ||
			s == webrtc.PeerConnectionStateDisconnected {
			p.remove(pc)
		}
	})

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		sink := NewDataChannelSink(dc, p.high, p.low)
		dc.OnOpen(func() {
			go func() {
				serve(peerCtx, sink)
				_ = dc.Close()
			}()
		})
	})

	if err := pc.SetRemoteDescription(offer); err != nil {
		p.remove(pc)
		return nil, fmt.Errorf("set remote description: %w", err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		p.remove(pc)
		return nil, fmt.Errorf("create answer: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		p.remove(pc)
		return nil, fmt.Errorf("set local description: %w", err)
	}

	select {
	case <-gatherComplete:
	case <-ctx.Done():
		p.remove(pc)
		return nil, ctx.Err()
	}
	return pc.LocalDescription(), nil
}

// Close tears down every peer.
func (p *Peers) Close() {
	p.mu.Lock()
	pcs := make([]*webrtc.PeerConnection, 0, len(p.peers))
	for pc := range p.peers {
		pcs = append(pcs, pc)
	}
	p.mu.Unlock()
	for _, pc := range pcs {
		p.remove(pc)
	}
}

func (p *Peers) remove(pc *webrtc.PeerConnection) {
	p.mu.Lock()
	cancel, ok := p.peers[pc]
	delete(p.peers, pc)
	p.mu.Unlock()
	if ok {
		cancel()
		_ = pc.Close()
	}
}
