package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/1ureka/netbridge/internal/signaling"
)

// Server accepts ws peers on /ws and rtc peers on /rtc of one HTTP port.
// Peers beyond maxPeers are refused.
type Server struct {
	*host

	listener net.Listener
	srv      *http.Server
}

// Listen binds address:port (port 0 picks a free one) and starts accepting.
func Listen(address string, port uint16, maxPeers int, opts Options) (*Server, error) {
	if maxPeers <= 0 {
		return nil, ErrHostFull
	}

	listener, err := net.Listen("tcp", net.JoinHostPort(address, strconv.Itoa(int(port))))
	if err != nil {
		return nil, err
	}

	s := &Server{
		host:     newHost(maxPeers, opts),
		listener: listener,
	}

	mux := http.NewServeMux()
	mux.HandleFunc(wsPath, s.handleWS)
	mux.HandleFunc(rtcPath, s.handleRTC)
	s.srv = &http.Server{
		Handler:     mux,
		BaseContext: func(net.Listener) context.Context { return s.ctx },
	}

	go func() {
		if err := s.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Errorf("[transport] HTTP server stopped: %v", err)
		}
	}()

	s.log.Infof("[transport] listening on %s (%s, %s)", listener.Addr(), wsPath, rtcPath)
	return s, nil
}

func (s *Server) Addr() net.Addr { return s.listener.Addr() }

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	p, err := s.reserve()
	if err != nil {
		s.log.Warnf("[transport] refusing %s: %v", r.RemoteAddr, err)
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("[transport] upgrade failed for %s: %v", r.RemoteAddr, err)
		p.terminate(EventDisconnect, err)
		return
	}

	p.attach(newWSLink(conn, p))
}

// handleRTC negotiates as the offerer, then discards the signaling socket.
func (s *Server) handleRTC(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("[transport] upgrade failed for %s: %v", r.RemoteAddr, err)
		return
	}
	defer conn.Close()

	p, err := s.reserve()
	if err != nil {
		s.log.Warnf("[transport] refusing %s: %v", r.RemoteAddr, err)
		signaling.Reject(conn, err.Error())
		return
	}

	l, err := newRTCLink(p, s.opts.ICEServers)
	if err != nil {
		s.log.Errorf("[transport] failed to create PeerConnection: %v", err)
		p.terminate(EventDisconnect, err)
		return
	}

	ctx, cancel := context.WithTimeout(p.ctx, s.opts.DialTimeout)
	defer cancel()
	if err := l.negotiate(ctx, conn, true); err != nil {
		s.log.Warnf("[transport] negotiation with %s failed: %v", r.RemoteAddr, err)
		p.terminate(EventDisconnect, err)
		l.close(false)
		return
	}

	p.attach(l)
}

// Close stops accepting, then closes every peer.
func (s *Server) Close() error {
	err := s.srv.Close()
	s.host.Close()
	return err
}
