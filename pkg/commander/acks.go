package commander

import (
	"net"
	"sync"

	"github.com/parol-robotics/go-parol6/internal/log"
	"github.com/parol-robotics/go-parol6/pkg/protocol"
)

// ackSender emits acknowledgment datagrams on a dedicated socket. Sends
// are queued through a buffered channel so the caller never blocks on a
// slow or unreachable peer.
type ackSender struct {
	conn *net.UDPConn

	mu     sync.Mutex
	queue  chan queuedAck
	closed bool
}

type queuedAck struct {
	addr *net.UDPAddr
	ack  protocol.Ack
}

// newAckSender binds the ack socket and starts the sender goroutine.
func newAckSender() (*ackSender, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return nil, err
	}
	s := &ackSender{
		conn:  conn,
		queue: make(chan queuedAck, 64),
	}
	go s.run()
	return s, nil
}

func (s *ackSender) run() {
	for q := range s.queue {
		data, err := q.ack.Bytes()
		if err != nil {
			log.Error("ack encode failed", "request_id", q.ack.RequestID, "err", err)
			continue
		}
		if _, err := s.conn.WriteToUDP(data, q.addr); err != nil {
			log.Warn("ack send failed", "request_id", q.ack.RequestID, "addr", q.addr.String(), "err", err)
		}
	}
}

// Send queues one ack for addr. Never blocks; if the queue is full the
// ack is dropped and logged.
func (s *ackSender) Send(addr *net.UDPAddr, ack protocol.Ack) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	select {
	case s.queue <- queuedAck{addr: addr, ack: ack}:
	default:
		log.Warn("ack queue full, dropping", "request_id", ack.RequestID)
	}
}

// Close stops the sender and releases the socket.
func (s *ackSender) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()
	return s.conn.Close()
}
