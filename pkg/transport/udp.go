// Package transport carries raw datagrams between nodes. It does no
// retransmission or address resolution; that is left to the layers above.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/netip"
	"sync"

	"github.com/ZentaChain/zentalk-groupchat/pkg/protocol"
)

var (
	ErrClosed    = errors.New("transport closed")
	ErrQueueFull = errors.New("send queue full")
)

// DefaultQueueSize bounds datagrams waiting to be written
const DefaultQueueSize = 1024

// readBufferSize fits the largest group packet
const readBufferSize = protocol.MaxGCPacketSize

type outgoing struct {
	addr   netip.AddrPort
	packet []byte
}

// UDP is a datagram transport. SendTo never blocks: datagrams are queued
// and written by a single writer goroutine.
type UDP struct {
	conn *net.UDPConn
	out  chan outgoing

	closeOnce sync.Once
	closed    chan struct{}
	wg        sync.WaitGroup
}

// Listen binds a UDP socket, e.g. "0.0.0.0:33445" or ":0"
func Listen(addr string) (*UDP, error) {
	return ListenQueue(addr, DefaultQueueSize)
}

// ListenQueue binds a UDP socket with a send queue of the given size
func ListenQueue(addr string, queueSize int) (*UDP, error) {
	ua, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", addr, err)
	}

	conn, err := net.ListenUDP("udp", ua)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	u := &UDP{
		conn:   conn,
		out:    make(chan outgoing, queueSize),
		closed: make(chan struct{}),
	}

	u.wg.Add(1)
	go u.writeLoop()

	log.Printf("✅ UDP transport listening on %s", conn.LocalAddr())
	return u, nil
}

// LocalAddr returns the bound address
func (u *UDP) LocalAddr() netip.AddrPort {
	return u.conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

// SendTo queues a datagram
func (u *UDP) SendTo(addr netip.AddrPort, packet []byte) error {
	if !addr.IsValid() {
		return fmt.Errorf("invalid address %s", addr)
	}

	select {
	case <-u.closed:
		return ErrClosed
	default:
	}

	select {
	case u.out <- outgoing{addr: addr, packet: packet}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (u *UDP) writeLoop() {
	defer u.wg.Done()

	for {
		select {
		case <-u.closed:
			return
		case o := <-u.out:
			if _, err := u.conn.WriteToUDPAddrPort(o.packet, o.addr); err != nil {
				log.Printf("⚠️  UDP write to %s failed: %v", o.addr, err)
			}
		}
	}
}

// Serve reads datagrams and hands each to handle until ctx is done or the
// transport is closed. handle receives a buffer it may keep.
func (u *UDP) Serve(ctx context.Context, handle func(src netip.AddrPort, packet []byte)) error {
	go func() {
		select {
		case <-ctx.Done():
			u.Close()
		case <-u.closed:
		}
	}()

	buf := make([]byte, readBufferSize)
	for {
		n, src, err := u.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			select {
			case <-u.closed:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Printf("⚠️  UDP read failed: %v", err)
			continue
		}
		if n == 0 {
			continue
		}

		packet := make([]byte, n)
		copy(packet, buf[:n])
		src = netip.AddrPortFrom(src.Addr().Unmap(), src.Port())
		handle(src, packet)
	}
}

// Close stops the writer and closes the socket
func (u *UDP) Close() error {
	var err error
	u.closeOnce.Do(func() {
		close(u.closed)
		err = u.conn.Close()
		u.wg.Wait()
	})
	return err
}
