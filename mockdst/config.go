package mockdst

import (
	"fmt"
	"strconv"
	"strings"
)

// defaultOverrideWeight is applied to traffic split targets that carry no
// explicit "*weight" suffix.
const defaultOverrideWeight uint32 = 1000

// ParseEndpointsSpec parses a semicolon-separated list of destination
// endpoint assignments of the form
//
//	name:port=addr[#h2[#identity]],addr2,...
//
// Each address must be a valid "host:port" socket address. A "#h2" suffix
// marks the endpoint as upgradeable to HTTP/2; a second "#" suffix attaches
// a TLS identity name, with or without the upgrade ("addr##identity"). An
// empty input yields an empty map; any malformed entry fails the whole
// parse.
func ParseEndpointsSpec(spec string) (map[Dst]Endpoints, error) {
	dsts := map[Dst]Endpoints{}
	if strings.TrimSpace(spec) == "" {
		return dsts, nil
	}

	for _, entry := range strings.Split(spec, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		dstPart, epsPart, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("invalid dst entry %q: missing '='", entry)
		}
		dst, err := ParseDst(strings.TrimSpace(dstPart))
		if err != nil {
			return nil, fmt.Errorf("invalid dst entry %q: %w", entry, err)
		}

		endpoints := Endpoints{}
		for _, epSpec := range strings.Split(epsPart, ",") {
			ep, err := parseEndpoint(strings.TrimSpace(epSpec))
			if err != nil {
				return nil, fmt.Errorf("invalid endpoint for %s: %w", dst, err)
			}
			endpoints[ep.Addr] = ep
		}
		dsts[dst] = endpoints
	}
	return dsts, nil
}

func parseEndpoint(spec string) (Endpoint, error) {
	parts := strings.SplitN(spec, "#", 3)

	addr := parts[0]
	if _, err := parseSocketAddr(addr); err != nil {
		return Endpoint{}, err
	}
	ep := Endpoint{Addr: addr}

	// Only the literal "h2" modifier enables the upgrade hint; anything
	// else, including the empty modifier in "addr##identity", leaves the
	// endpoint on HTTP/1 without invalidating the entry.
	if len(parts) > 1 {
		ep.H2 = parts[1] == "h2"
	}
	if len(parts) > 2 {
		ep.TLSIdentity = parts[2]
	}
	return ep, nil
}

// ParseOverridesSpec parses a semicolon-separated list of traffic split
// assignments of the form
//
//	name:port=target[*weight],target2,...
//
// Targets without an explicit weight default to 1000. An empty input yields
// an empty map; any malformed entry fails the whole parse.
func ParseOverridesSpec(spec string) (map[Dst]Overrides, error) {
	dsts := map[Dst]Overrides{}
	if strings.TrimSpace(spec) == "" {
		return dsts, nil
	}

	for _, entry := range strings.Split(spec, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		dstPart, ovsPart, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("invalid override entry %q: missing '='", entry)
		}
		dst, err := ParseDst(strings.TrimSpace(dstPart))
		if err != nil {
			return nil, fmt.Errorf("invalid override entry %q: %w", entry, err)
		}

		overrides := Overrides{}
		for _, ovSpec := range strings.Split(ovsPart, ",") {
			target, weight, err := parseOverride(strings.TrimSpace(ovSpec))
			if err != nil {
				return nil, fmt.Errorf("invalid override for %s: %w", dst, err)
			}
			overrides[target] = weight
		}
		dsts[dst] = overrides
	}
	return dsts, nil
}

func parseOverride(spec string) (Dst, uint32, error) {
	targetPart, weightPart, hasWeight := strings.Cut(spec, "*")
	target, err := ParseDst(targetPart)
	if err != nil {
		return Dst{}, 0, err
	}

	weight := defaultOverrideWeight
	if hasWeight {
		w, err := strconv.ParseUint(weightPart, 10, 32)
		if err != nil {
			return Dst{}, 0, fmt.Errorf("invalid weight %q in %q", weightPart, spec)
		}
		weight = uint32(w)
	}
	return target, weight, nil
}
