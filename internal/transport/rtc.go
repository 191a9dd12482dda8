package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/1ureka/netbridge/internal/protocol"
	"github.com/1ureka/netbridge/internal/signaling"
	rtc "github.com/1ureka/netbridge/internal/webrtc"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
)

// Control channel frames: one type byte then a big-endian unix-nano stamp.
const (
	ctlPing byte = 0x01
	ctlPong byte = 0x02

	ctlFrameSize = 9
)

var (
	errChannelClosed = errors.New("data channel closed")
	errICEFailed     = errors.New("ice connection failed")
)

// rtcLink runs a session over three negotiated DataChannels. It is ready
// once all of them are open.
type rtcLink struct {
	pc   *webrtc.PeerConnection
	chs  *rtc.Channels
	peer *peer

	ready     chan struct{}
	opened    atomic.Int32
	readyOnce sync.Once
	closeOnce sync.Once
}

func newRTCLink(p *peer, iceServers []string) (*rtcLink, error) {
	pc, err := rtc.NewPeerConnection(iceServers)
	if err != nil {
		return nil, err
	}
	chs, err := rtc.CreateChannels(pc)
	if err != nil {
		pc.Close()
		return nil, err
	}

	l := &rtcLink{pc: pc, chs: chs, peer: p, ready: make(chan struct{})}

	for _, ch := range chs.All() {
		ch.OnOpen(l.markOpen)
		ch.OnClose(func() { p.lost(errChannelClosed) })
	}
	chs.Reliable.OnMessage(p.deliver)
	chs.Unreliable.OnMessage(p.deliver)
	chs.Control.OnMessage(l.handleControl)

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		switch s {
		case webrtc.PeerConnectionStateFailed:
			p.lost(errICEFailed)
		case webrtc.PeerConnectionStateClosed:
			p.lost(nil)
		}
	})

	return l, nil
}

func (l *rtcLink) markOpen() {
	if l.opened.Add(1) == int32(len(l.chs.All())) {
		l.readyOnce.Do(func() { close(l.ready) })
	}
}

func (l *rtcLink) handleControl(data []byte) {
	if len(data) != ctlFrameSize {
		l.peer.touch()
		return
	}
	switch data[0] {
	case ctlPing:
		l.peer.touch()
		reply := make([]byte, ctlFrameSize)
		reply[0] = ctlPong
		copy(reply[1:], data[1:])
		_ = l.chs.Control.Send(l.peer.ctx, reply)
	case ctlPong:
		l.peer.pong(int64(binary.BigEndian.Uint64(data[1:])))
	default:
		l.peer.touch()
	}
}

// negotiate runs signaling over conn until every channel is open.
func (l *rtcLink) negotiate(ctx context.Context, conn *websocket.Conn, offerer bool) error {
	return signaling.Exchange(ctx, conn, l, offerer, l.ready)
}

// Callbacks are installed before negotiation, so start has nothing to do.
func (l *rtcLink) start() {}

func (l *rtcLink) send(data []byte, delivery protocol.Delivery) error {
	ch := l.chs.Reliable
	if delivery == protocol.Unreliable {
		ch = l.chs.Unreliable
	}
	return ch.Send(l.peer.ctx, data)
}

func (l *rtcLink) ping(stamp int64) error {
	frame := make([]byte, ctlFrameSize)
	frame[0] = ctlPing
	binary.BigEndian.PutUint64(frame[1:], uint64(stamp))
	return l.chs.Control.Send(l.peer.ctx, frame)
}

func (l *rtcLink) flush(ctx context.Context) error {
	return errors.Join(l.chs.Reliable.Drain(ctx), l.chs.Unreliable.Drain(ctx))
}

// SCTP has no half-close, so a graceful close is a flush then a close. The
// remote sees its channels close and reports the disconnect.
func (l *rtcLink) close(graceful bool) error {
	var err error
	l.closeOnce.Do(func() {
		if graceful {
			ctx, cancel := context.WithTimeout(context.Background(), disconnectGrace)
			_ = l.flush(ctx)
			cancel()
		}
		err = l.pc.Close()
	})
	return err
}

func (l *rtcLink) remoteAddr() string {
	if sctp := l.pc.SCTP(); sctp != nil {
		if dtls := sctp.Transport(); dtls != nil {
			if pair, err := dtls.ICETransport().GetSelectedCandidatePair(); err == nil && pair != nil {
				return pair.Remote.String()
			}
		}
	}
	return "rtc"
}

// signaling.Negotiator

func (l *rtcLink) CreateOffer() (webrtc.SessionDescription, error) {
	return l.pc.CreateOffer(nil)
}

func (l *rtcLink) CreateAnswer() (webrtc.SessionDescription, error) {
	return l.pc.CreateAnswer(nil)
}

func (l *rtcLink) SetLocalDescription(sdp webrtc.SessionDescription) error {
	return l.pc.SetLocalDescription(sdp)
}

func (l *rtcLink) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	return l.pc.SetRemoteDescription(sdp)
}

func (l *rtcLink) AddICECandidate(c webrtc.ICECandidateInit) error {
	return l.pc.AddICECandidate(c)
}

func (l *rtcLink) OnICECandidate(fn func(*webrtc.ICECandidate)) {
	l.pc.OnICECandidate(fn)
}
