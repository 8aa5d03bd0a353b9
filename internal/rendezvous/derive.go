// Package rendezvous derives the short-lived IPv6 link-local rendezvous
// endpoint nodes meet at for a given (mesh secret, epoch, slot) triple.
package rendezvous

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"net"
	"strconv"

	"github.com/rng-ops/infrasim/internal/oracle"
)

// BasePort is the UDP port used for slot 0; every other slot's port is
// BasePort+slot.
const BasePort = 51821

// Endpoint is a derived, short-lived rendezvous point. It is never
// persisted — its lifetime is exactly one slot.
type Endpoint struct {
	Address net.IP
	Port    int
}

// String renders the endpoint as "[addr]:port", suitable for logging.
func (e Endpoint) String() string {
	return net.JoinHostPort(e.Address.String(), strconv.Itoa(e.Port))
}

// Derive computes the rendezvous endpoint for the given slot key using the
// canonicalized mesh MAC key (see internal/config for how the raw secret is
// turned into macKey). The algorithm is fixed by the wire contract between
// nodes and MUST NOT change:
//
//  1. msg = be_u64(epoch) || be_u32(slot)            (12 bytes)
//  2. mac = HMAC-SHA256(macKey, msg)                 (32 bytes)
//  3. iid = mac[0:8], with bit 1 of iid[0] cleared (&0xFD) — marks the
//     EUI-64 as locally administered
//  4. address = fe80:0000:0000:0000 :: iid
//  5. port = BasePort + slot
func Derive(macKey []byte, key oracle.SlotKey) Endpoint {
	msg := make([]byte, 12)
	binary.BigEndian.PutUint64(msg[0:8], key.Epoch)
	binary.BigEndian.PutUint32(msg[8:12], key.Slot)

	mac := hmac.New(sha256.New, macKey)
	mac.Write(msg)
	sum := mac.Sum(nil)

	iid := make([]byte, 8)
	copy(iid, sum[:8])
	iid[0] &= 0xfd

	addr := make(net.IP, net.IPv6len)
	addr[0], addr[1] = 0xfe, 0x80
	copy(addr[8:], iid)

	return Endpoint{Address: addr, Port: BasePort + int(key.Slot)}
}

// IsLinkLocal reports whether addr has the fe80::/10 prefix (first 10 bits
// equal to 1111111010), the structural invariant every derived address must
// satisfy.
func IsLinkLocal(addr net.IP) bool {
	ip := addr.To16()
	if ip == nil {
		return false
	}
	return ip[0] == 0xfe && ip[1]&0xc0 == 0x80
}
