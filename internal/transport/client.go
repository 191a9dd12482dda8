package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/1ureka/netbridge/internal/signaling"
)

// Client holds a single outgoing peer.
type Client struct {
	*host
	kind Kind
}

// NewClient creates a client host that connects with the given link kind.
func NewClient(kind Kind, opts Options) (*Client, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, err
	}
	return &Client{host: newHost(1, opts), kind: kind}, nil
}

func (c *Client) Connect(address string, port uint16) (Peer, error) {
	p, err := c.reserve()
	if err != nil {
		return nil, err
	}
	p.announceFailure = true

	hostport := net.JoinHostPort(address, strconv.Itoa(int(port)))
	p.mu.Lock()
	p.addr = hostport
	p.mu.Unlock()

	if !c.spawn(func() { c.dial(p, hostport) }) {
		p.terminate(EventDisconnect, ErrHostClosed)
		return nil, ErrHostClosed
	}
	return p, nil
}

func (c *Client) dial(p *peer, hostport string) {
	ctx, cancel := context.WithTimeout(p.ctx, c.opts.DialTimeout)
	defer cancel()

	var (
		l   link
		err error
	)
	switch c.kind {
	case KindWebRTC:
		l, err = c.dialRTC(ctx, p, "ws://"+hostport+rtcPath)
	default:
		l, err = c.dialWS(ctx, p, "ws://"+hostport+wsPath)
	}
	if err != nil {
		c.log.Warnf("[transport] connect to %s failed: %v", hostport, err)
		p.terminate(EventDisconnect, err)
		if l != nil {
			l.close(false)
		}
		return
	}
	p.attach(l)
}

func (c *Client) dialWS(ctx context.Context, p *peer, url string) (link, error) {
	conn, err := dialWS(ctx, url)
	if err != nil {
		return nil, err
	}
	return newWSLink(conn, p), nil
}

func (c *Client) dialRTC(ctx context.Context, p *peer, url string) (link, error) {
	conn, err := signaling.Dial(ctx, url)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	l, err := newRTCLink(p, c.opts.ICEServers)
	if err != nil {
		return nil, fmt.Errorf("failed to create PeerConnection: %w", err)
	}
	// On failure the link is still returned so the caller can close it
	// after the peer is terminated.
	if err := l.negotiate(ctx, conn, false); err != nil {
		return l, err
	}
	return l, nil
}
