//go:build linux

package binder

import (
	"net"
	"unsafe"

	"golang.org/x/sys/unix"
)

// netlinkBinder adds and removes addresses via a NETLINK_ROUTE socket,
// avoiding a subprocess per slot transition. Grounded on the sticky-socket
// netlink-route-socket pattern: open one AF_NETLINK/NETLINK_ROUTE socket at
// startup and reuse it for the life of the process.
type netlinkBinder struct {
	sock int
}

func newNetlinkBinder() (*netlinkBinder, error) {
	sock, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW, unix.NETLINK_ROUTE)
	if err != nil {
		return nil, err
	}
	saddr := &unix.SockaddrNetlink{Family: unix.AF_NETLINK}
	if err := unix.Bind(sock, saddr); err != nil {
		unix.Close(sock)
		return nil, err
	}
	return &netlinkBinder{sock: sock}, nil
}

func (b *netlinkBinder) Add(iface string, addr net.IP) error {
	return b.addrReq(unix.RTM_NEWADDR, unix.NLM_F_CREATE|unix.NLM_F_REPLACE|unix.NLM_F_ACK, iface, addr)
}

func (b *netlinkBinder) Remove(iface string, addr net.IP) error {
	err := b.addrReq(unix.RTM_DELADDR, unix.NLM_F_ACK, iface, addr)
	if err == unix.EADDRNOTAVAIL {
		return nil
	}
	return err
}

// addrReq builds and sends an RTM_NEWADDR/RTM_DELADDR request carrying a
// single /128 IFA_LOCAL attribute for addr on iface, and reads back the
// kernel's ack/nack.
func (b *netlinkBinder) addrReq(msgType uint16, flags uint16, iface string, addr net.IP) error {
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return err
	}
	ip16 := addr.To16()
	if ip16 == nil {
		return unix.EINVAL
	}

	const prefixLen = 128

	type ifaddrmsg struct {
		Family    uint8
		Prefixlen uint8
		Flags     uint8
		Scope     uint8
		Index     uint32
	}

	ifa := ifaddrmsg{
		Family:    unix.AF_INET6,
		Prefixlen: prefixLen,
		Scope:     unix.RT_SCOPE_LINK,
		Index:     uint32(ifi.Index),
	}

	const ifaLocal = 2 // unix.IFA_LOCAL
	attrLen := unix.SizeofRtAttr + 16
	attrPad := (attrLen + 3) &^ 3

	msgLen := unix.SizeofNlMsghdr + int(unsafe.Sizeof(ifa)) + attrPad
	buf := make([]byte, msgLen)

	hdr := (*unix.NlMsghdr)(unsafe.Pointer(&buf[0]))
	hdr.Len = uint32(msgLen)
	hdr.Type = msgType
	hdr.Flags = unix.NLM_F_REQUEST | flags
	hdr.Seq = 1
	hdr.Pid = 0

	ifaOff := unix.SizeofNlMsghdr
	*(*ifaddrmsg)(unsafe.Pointer(&buf[ifaOff])) = ifa

	attrOff := ifaOff + int(unsafe.Sizeof(ifa))
	attr := (*unix.RtAttr)(unsafe.Pointer(&buf[attrOff]))
	attr.Len = uint16(attrLen)
	attr.Type = ifaLocal
	copy(buf[attrOff+unix.SizeofRtAttr:attrOff+unix.SizeofRtAttr+16], ip16)

	if err := unix.Send(b.sock, buf, 0); err != nil {
		return err
	}

	reply := make([]byte, 4096)
	n, err := unix.Read(b.sock, reply)
	if err != nil {
		return err
	}
	return parseAckError(reply[:n])
}

// parseAckError inspects a netlink reply for an NLMSG_ERROR message and
// returns its errno, or nil for a clean ack (errno 0).
func parseAckError(msg []byte) error {
	if len(msg) < unix.SizeofNlMsghdr {
		return nil
	}
	hdr := (*unix.NlMsghdr)(unsafe.Pointer(&msg[0]))
	if hdr.Type != unix.NLMSG_ERROR {
		return nil
	}
	if len(msg) < unix.SizeofNlMsghdr+4 {
		return nil
	}
	errno := *(*int32)(unsafe.Pointer(&msg[unix.SizeofNlMsghdr]))
	if errno == 0 {
		return nil
	}
	return unix.Errno(-errno)
}
