// Package addr converts between textual socket addresses and the proxy
// API's protobuf address representation.
package addr

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"strings"

	pb "github.com/linkerd/linkerd2-proxy-api/go/net"
)

// ParseProxyAddr parses a "host:port" socket address into a TcpAddress.
func ParseProxyAddr(addr string) (*pb.TcpAddress, error) {
	ap, err := netip.ParseAddrPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid socket address %s", addr)
	}
	ip, err := ParseProxyIP(ap.Addr().String())
	if err != nil {
		return nil, err
	}
	return &pb.TcpAddress{
		Ip:   ip,
		Port: uint32(ap.Port()),
	}, nil
}

// ParseProxyIP parses an IPv4 or IPv6 address into an IPAddress.
func ParseProxyIP(ip string) (*pb.IPAddress, error) {
	parsed, err := netip.ParseAddr(ip)
	if err != nil {
		return nil, fmt.Errorf("invalid IP address: %s", ip)
	}
	if parsed.Is4() {
		b := parsed.As4()
		return ProxyIPV4(b[0], b[1], b[2], b[3]), nil
	}
	b := parsed.As16()
	return &pb.IPAddress{
		Ip: &pb.IPAddress_Ipv6{
			Ipv6: &pb.IPv6{
				First: binary.BigEndian.Uint64(b[:8]),
				Last:  binary.BigEndian.Uint64(b[8:]),
			},
		},
	}, nil
}

// ProxyIPV4 constructs an IPAddress from four octets.
func ProxyIPV4(a1, a2, a3, a4 uint8) *pb.IPAddress {
	ip := (uint32(a1) << 24) | (uint32(a2) << 16) | (uint32(a3) << 8) | uint32(a4)
	return &pb.IPAddress{
		Ip: &pb.IPAddress_Ipv4{
			Ipv4: ip,
		},
	}
}

// ProxyAddressToString renders a TcpAddress as "host:port".
func ProxyAddressToString(addr *pb.TcpAddress) string {
	return fmt.Sprintf("%s:%d", ProxyIPToString(addr.GetIp()), addr.GetPort())
}

// ProxyAddressesToString renders a list of TcpAddresses.
func ProxyAddressesToString(addrs []*pb.TcpAddress) string {
	addrStrs := make([]string, len(addrs))
	for i := range addrs {
		addrStrs[i] = ProxyAddressToString(addrs[i])
	}
	return "[" + strings.Join(addrStrs, ",") + "]"
}

// ProxyIPToString renders an IPAddress in its canonical textual form.
func ProxyIPToString(ip *pb.IPAddress) string {
	if v6 := ip.GetIpv6(); v6 != nil {
		var b [16]byte
		binary.BigEndian.PutUint64(b[:8], v6.GetFirst())
		binary.BigEndian.PutUint64(b[8:], v6.GetLast())
		return netip.AddrFrom16(b).String()
	}
	octets := decodeIPToOctets(ip.GetIpv4())
	return fmt.Sprintf("%d.%d.%d.%d", octets[0], octets[1], octets[2], octets[3])
}

func decodeIPToOctets(ip uint32) [4]uint8 {
	return [4]uint8{
		uint8(ip >> 24 & 255),
		uint8(ip >> 16 & 255),
		uint8(ip >> 8 & 255),
		uint8(ip & 255),
	}
}
