package mockdst

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// Dst identifies a single discoverable destination by name and port. It is
// the sole key into both the endpoints namespace and the overrides
// namespace; the two namespaces are independent.
type Dst struct {
	Name string
	Port uint16
}

func (d Dst) String() string {
	return fmt.Sprintf("%s:%d", d.Name, d.Port)
}

// ParseDst parses a "name:port" destination.
func ParseDst(dst string) (Dst, error) {
	name, port, ok := strings.Cut(dst, ":")
	if !ok || name == "" {
		return Dst{}, fmt.Errorf("invalid destination %s", dst)
	}
	p, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return Dst{}, fmt.Errorf("invalid port %s", port)
	}
	return Dst{Name: name, Port: uint16(p)}, nil
}

// Endpoint is a single concrete endpoint within a destination's snapshot.
// Full-value equality is used for change detection: any field change is
// treated as a replacement of that address.
type Endpoint struct {
	Addr              string            `json:"address"`
	H2                bool              `json:"h2"`
	Weight            uint32            `json:"weight"`
	MetricLabels      map[string]string `json:"metric_labels"`
	TLSIdentity       string            `json:"tls_identity"`
	AuthorityOverride string            `json:"authority_override"`
}

func (e Endpoint) equal(other Endpoint) bool {
	if e.Addr != other.Addr ||
		e.H2 != other.H2 ||
		e.Weight != other.Weight ||
		e.TLSIdentity != other.TLSIdentity ||
		e.AuthorityOverride != other.AuthorityOverride {
		return false
	}
	if len(e.MetricLabels) != len(other.MetricLabels) {
		return false
	}
	for k, v := range e.MetricLabels {
		if ov, ok := other.MetricLabels[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Endpoints is one complete endpoint snapshot for a destination, keyed by
// socket address. A publish always replaces the whole snapshot.
type Endpoints map[string]Endpoint

// Overrides is one complete traffic-split snapshot for a destination: the
// alternate destinations and their weights.
type Overrides map[Dst]uint32

func parseSocketAddr(addr string) (string, error) {
	ap, err := netip.ParseAddrPort(addr)
	if err != nil {
		return "", fmt.Errorf("invalid socket address %s", addr)
	}
	return ap.String(), nil
}
