package protocol

import (
	"encoding/binary"
	"errors"
	"net/netip"
)

var (
	ErrTruncated = errors.New("truncated payload")
)

// AddrSize is an IPv6 (or v4-mapped) address followed by a port
const AddrSize = 16 + 2

// PutAddr writes addr as [16 ip][2 port]. An invalid address encodes as zeros.
func PutAddr(buf []byte, addr netip.AddrPort) {
	if !addr.IsValid() {
		for i := 0; i < AddrSize; i++ {
			buf[i] = 0
		}
		return
	}
	ip := addr.Addr().As16()
	copy(buf, ip[:])
	binary.BigEndian.PutUint16(buf[16:], addr.Port())
}

// GetAddr is the inverse of PutAddr
func GetAddr(buf []byte) netip.AddrPort {
	var ip [16]byte
	copy(ip[:], buf[:16])
	port := binary.BigEndian.Uint16(buf[16:])
	if ip == [16]byte{} && port == 0 {
		return netip.AddrPort{}
	}
	return netip.AddrPortFrom(netip.AddrFrom16(ip).Unmap(), port)
}

// reader walks a payload and fails with ErrTruncated instead of panicking
type reader struct {
	buf    []byte
	offset int
}

func (r *reader) next(n int) ([]byte, error) {
	if n < 0 || len(r.buf)-r.offset < n {
		return nil, ErrTruncated
	}
	b := r.buf[r.offset : r.offset+n]
	r.offset += n
	return b, nil
}

func (r *reader) u8() (byte, error) {
	b, err := r.next(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) u16() (uint16, error) {
	b, err := r.next(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *reader) u32() (uint32, error) {
	b, err := r.next(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *reader) u64() (uint64, error) {
	b, err := r.next(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// bytes8 reads a 1-byte length prefixed field of at most limit bytes
func (r *reader) bytes8(limit int) ([]byte, error) {
	n, err := r.u8()
	if err != nil {
		return nil, err
	}
	if int(n) > limit {
		return nil, ErrTruncated
	}
	b, err := r.next(int(n))
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

func (r *reader) rest() []byte {
	return append([]byte(nil), r.buf[r.offset:]...)
}
