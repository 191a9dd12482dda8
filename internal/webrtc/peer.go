// Package webrtc provides helpers for creating PeerConnections and the
// negotiated DataChannels a session runs on.
package webrtc

import (
	"github.com/pion/webrtc/v4"
)

// DefaultICEServers are used when no ICE servers are configured. No TURN:
// sessions either connect directly or fail.
var DefaultICEServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// Negotiated channel IDs. Both sides create the same three channels before
// signaling, so no in-band DataChannel announcement is needed.
const (
	ReliableID   uint16 = 0
	UnreliableID uint16 = 1
	ControlID    uint16 = 2
)

// NewPeerConnection creates a PeerConnection. An empty iceServers list
// gathers host candidates only.
func NewPeerConnection(iceServers []string) (*webrtc.PeerConnection, error) {
	config := webrtc.Configuration{}
	if len(iceServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: iceServers}}
	}
	return webrtc.NewPeerConnection(config)
}

// Channels groups the three negotiated DataChannels of one session.
type Channels struct {
	Reliable   *DataChannel // ordered, fully reliable
	Unreliable *DataChannel // unordered, no retransmits
	Control    *DataChannel // ordered, carries ping/pong
}

// All returns the channels in ID order.
func (c *Channels) All() []*DataChannel {
	return []*DataChannel{c.Reliable, c.Unreliable, c.Control}
}

// CreateChannels creates the negotiated channel set on pc.
func CreateChannels(pc *webrtc.PeerConnection) (*Channels, error) {
	reliable, err := createNegotiated(pc, "reliable", ReliableID, true, nil)
	if err != nil {
		return nil, err
	}

	var noRetransmits uint16
	unreliable, err := createNegotiated(pc, "unreliable", UnreliableID, false, &noRetransmits)
	if err != nil {
		return nil, err
	}

	control, err := createNegotiated(pc, "control", ControlID, true, nil)
	if err != nil {
		return nil, err
	}

	return &Channels{
		Reliable:   NewDataChannel(reliable),
		Unreliable: NewDataChannel(unreliable),
		Control:    NewDataChannel(control),
	}, nil
}

func createNegotiated(pc *webrtc.PeerConnection, label string, id uint16, ordered bool, maxRetransmits *uint16) (*webrtc.DataChannel, error) {
	negotiated := true
	return pc.CreateDataChannel(label, &webrtc.DataChannelInit{
		Ordered:        &ordered,
		MaxRetransmits: maxRetransmits,
		Negotiated:     &negotiated,
		ID:             &id,
	})
}
