package signaling

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
)

// ErrRejected is returned when the remote side refuses the session.
var ErrRejected = errors.New("session rejected by remote")

// receiver applies inbound signaling messages to the negotiator.
type receiver struct {
	neg    Negotiator
	conn   *websocket.Conn
	sender *sender

	// Candidates may overtake the description they belong to; they are held
	// until a remote description is set.
	haveRemote bool
	pending    []webrtc.ICECandidateInit
}

func (r *receiver) setRemote(desc webrtc.SessionDescription) error {
	if err := r.neg.SetRemoteDescription(desc); err != nil {
		return err
	}
	r.haveRemote = true
	for _, c := range r.pending {
		if err := r.neg.AddICECandidate(c); err != nil {
			return err
		}
	}
	r.pending = nil
	return nil
}

// watch reads messages until the WebSocket closes or a message fails to
// apply. An offer is answered immediately.
func (r *receiver) watch() error {
	for {
		var msg message
		if err := r.conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("failed to read WS message: %w", err)
		}

		switch msg.Type {
		case msgTypeOffer:
			if err := r.setRemote(webrtc.SessionDescription{
				Type: webrtc.SDPTypeOffer, SDP: msg.SDP,
			}); err != nil {
				return err
			}
			if err := r.sender.describe(false); err != nil {
				return err
			}

		case msgTypeAnswer:
			if err := r.setRemote(webrtc.SessionDescription{
				Type: webrtc.SDPTypeAnswer, SDP: msg.SDP,
			}); err != nil {
				return err
			}

		case msgTypeCandidate:
			var init webrtc.ICECandidateInit
			if err := json.Unmarshal([]byte(msg.Candidate), &init); err != nil {
				return fmt.Errorf("failed to parse ICE candidate: %w", err)
			}
			if !r.haveRemote {
				r.pending = append(r.pending, init)
				continue
			}
			if err := r.neg.AddICECandidate(init); err != nil {
				return err
			}

		case msgTypeReject:
			return fmt.Errorf("%s: %w", msg.Reason, ErrRejected)
		}
	}
}
