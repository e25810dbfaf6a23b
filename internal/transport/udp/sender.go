// SPDX-License-Identifier: MIT
package udp

import (
	"fmt"
	"net"
	"sync"

	"fractalwave/internal/log"
	"fractalwave/internal/transport"
)

// UDPSender sends each frame as one binary packet (see AppendPacket).
type UDPSender struct {
	conn       *net.UDPConn
	targetAddr *net.UDPAddr
	log        *log.Logger

	mu     sync.Mutex // Protects conn and packet during Send/Close
	packet []byte
	closed bool
}

// NewUDPSender creates a new UDPSender targeting the specified address.
// The address should be in the format "host:port", e.g., "127.0.0.1:9090".
func NewUDPSender(targetAddress string) (*UDPSender, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", targetAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP target address '%s': %w", targetAddress, err)
	}

	// No local bind needed for sending.
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial UDP for target '%s': %w", targetAddress, err)
	}

	s := &UDPSender{
		conn:       conn,
		targetAddr: udpAddr,
		log:        log.New("transport/udp"),
	}
	s.log.Infof("sending band frames to %s", conn.RemoteAddr())
	return s, nil
}

func (s *UDPSender) Name() string { return "udp" }

// Send encodes f and transmits it as a single datagram.
func (s *UDPSender) Send(f transport.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return transport.ErrClosed
	}

	packet, err := AppendPacket(s.packet[:0], f)
	if err != nil {
		return err
	}
	s.packet = packet

	if _, err := s.conn.Write(packet); err != nil {
		return fmt.Errorf("failed to send UDP packet: %w", err)
	}
	return nil
}

// Close closes the underlying UDP connection.
func (s *UDPSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	s.log.Debugf("closing connection to %s", s.targetAddr)
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close UDP connection: %w", err)
	}
	return nil
}

var _ transport.Transport = (*UDPSender)(nil)
