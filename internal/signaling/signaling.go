// Package signaling performs the WebSocket SDP/ICE exchange that sets up a
// WebRTC session. Callers own both the WebSocket and the negotiator; this
// package only moves descriptions and candidates between them.
package signaling

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
)

// Negotiator is the subset of a PeerConnection the exchange drives.
type Negotiator interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(sdp webrtc.SessionDescription) error
	SetRemoteDescription(sdp webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	OnICECandidate(fn func(*webrtc.ICECandidate))
}

// Exchange runs the signaling flow over conn until ready is closed:
//  1. Forward local ICE candidates as they are gathered
//  2. Start the receiver loop (answers offers, applies answers/candidates)
//  3. The offerer sends the Offer first
//  4. Wait for ready, a signaling error, or ctx
//
// The WebSocket is left open; the caller closes it once Exchange returns.
func Exchange(ctx context.Context, conn *websocket.Conn, neg Negotiator, offerer bool, ready <-chan struct{}) error {
	s := &sender{neg: neg, conn: conn}
	r := &receiver{neg: neg, conn: conn, sender: s}

	neg.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c != nil {
			data, _ := json.Marshal(c.ToJSON())
			// Error intentionally ignored: sendCandidate is best-effort.
			s.sendCandidate(string(data))
		}
	})

	// Exits when conn is closed by the caller.
	errCh := make(chan error, 1)
	go func() {
		errCh <- r.watch()
	}()

	if offerer {
		if err := s.describe(true); err != nil {
			return fmt.Errorf("failed to send Offer: %w", err)
		}
	}

	select {
	case <-ready:
		return nil

	case err := <-errCh:
		// The remote may close its WS right after its side became ready.
		select {
		case <-ready:
			return nil
		default:
			return fmt.Errorf("signaling failed: %w", err)
		}

	case <-ctx.Done():
		return ctx.Err()
	}
}
