package media

import (
	"errors"
	"fmt"
	"net"

	"github.com/pion/rtp"
)

const maxPacket = 1500

// udpReader reads one RTP packet per datagram.
type udpReader struct {
	conn net.PacketConn
	buf  []byte
}

func listenUDP(addr string) (*udpReader, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return &udpReader{conn: conn, buf: make([]byte, maxPacket)}, nil
}

func (u *udpReader) ReadRTP() (*rtp.Packet, error) {
	for {
		n, _, err := u.conn.ReadFrom(u.buf)
		if err != nil {
			return nil, err
		}
		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(u.buf[:n]); err != nil {
			// Not RTP. Skip it.
			continue
		}
		return pkt, nil
	}
}

func (u *udpReader) Addr() net.Addr { return u.conn.LocalAddr() }

func (u *udpReader) Close() error { return u.conn.Close() }

// UDPSink writes RTP packets to a fixed address, for playback by an
// external player.
type UDPSink struct {
	conn net.Conn
}

func DialUDPSink(addr string) (*UDPSink, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &UDPSink{conn: conn}, nil
}

func (s *UDPSink) WriteRTP(pkt *rtp.Packet) error {
	data, err := pkt.Marshal()
	if err != nil {
		return err
	}
	_, err = s.conn.Write(data)
	return err
}

func (s *UDPSink) Close() error { return s.conn.Close() }

var errTapClosed = errors.New("audio tap closed")

// tap hands packet payloads to the recognizer. A full buffer drops the
// packet rather than stall the relay.
type tap struct {
	ch     chan []byte
	closed chan struct{}
}

func newTap(size int) *tap {
	return &tap{ch: make(chan []byte, size), closed: make(chan struct{})}
}

func (t *tap) WriteRTP(pkt *rtp.Packet) error {
	payload := make([]byte, len(pkt.Payload))
	copy(payload, pkt.Payload)
	select {
	case <-t.closed:
		return errTapClosed
	default:
	}
	select {
	case t.ch <- payload:
	case <-t.closed:
		return errTapClosed
	default:
	}
	return nil
}
