package signaling

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
)

// writeWait bounds a single signaling write.
const writeWait = 5 * time.Second

// sender is the only writer on the signaling socket. ICE callbacks and the
// receiver loop both write through it.
type sender struct {
	neg  Negotiator
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *sender) send(msg message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteJSON(msg)
}

// describe creates the local description for our side of the exchange,
// applies it and ships it to the remote.
func (s *sender) describe(offerer bool) error {
	create, typ := s.neg.CreateAnswer, msgTypeAnswer
	if offerer {
		create, typ = s.neg.CreateOffer, msgTypeOffer
	}

	var (
		sdp webrtc.SessionDescription
		err error
	)
	if sdp, err = create(); err != nil {
		return fmt.Errorf("create %s: %w", typ, err)
	}
	if err = s.neg.SetLocalDescription(sdp); err != nil {
		return fmt.Errorf("apply local %s: %w", typ, err)
	}
	return s.send(message{Type: typ, SDP: sdp.SDP})
}

func (s *sender) sendCandidate(candidate string) error {
	return s.send(message{Type: msgTypeCandidate, Candidate: candidate})
}
