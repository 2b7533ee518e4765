// Package directory provides read-mostly key→name mappings (device by MAC,
// site by network, group by identity) refreshed periodically from the
// management database. The ingestion path only ever sees immutable snapshots.
package directory

import (
	"net"
	"sort"
	"strings"
)

// Snapshot is an immutable view of the three directories.
type Snapshot struct {
	devices  map[string]string
	groups   map[string]string
	networks []networkEntry
}

type networkEntry struct {
	key    string
	prefix *net.IPNet // nil for plain-IP keys
	name   string
}

// NewSnapshot builds a Snapshot from raw mappings. Device MACs are normalized
// to lowercase; network keys may be CIDRs or plain IPs.
func NewSnapshot(devices, networks, groups map[string]string) *Snapshot {
	s := &Snapshot{
		devices: make(map[string]string, len(devices)),
		groups:  make(map[string]string, len(groups)),
	}
	for mac, name := range devices {
		s.devices[strings.ToLower(mac)] = name
	}
	for identity, label := range groups {
		s.groups[identity] = label
	}
	for key, name := range networks {
		e := networkEntry{key: key, name: name}
		if _, prefix, err := net.ParseCIDR(key); err == nil {
			e.prefix = prefix
		}
		s.networks = append(s.networks, e)
	}
	// Longest prefix first so containment scans pick the most specific match.
	sort.Slice(s.networks, func(i, j int) bool {
		oi, oj := -1, -1
		if s.networks[i].prefix != nil {
			oi, _ = s.networks[i].prefix.Mask.Size()
		}
		if s.networks[j].prefix != nil {
			oj, _ = s.networks[j].prefix.Mask.Size()
		}
		if oi != oj {
			return oi > oj
		}
		return s.networks[i].key < s.networks[j].key
	})
	return s
}

// ResolveDevice looks up a display name by MAC, case-insensitively.
func (s *Snapshot) ResolveDevice(mac string) (string, bool) {
	name, ok := s.devices[strings.ToLower(mac)]
	return name, ok
}

// ResolveGroup looks up a group label by identity (display name or IP).
func (s *Snapshot) ResolveGroup(identity string) (string, bool) {
	label, ok := s.groups[identity]
	return label, ok
}

// ResolveNetwork resolves a site name for an IP: exact key match first, then
// longest-prefix CIDR containment, then a two-octet prefix match against
// plain-IP keys.
func (s *Snapshot) ResolveNetwork(ip string) (string, bool) {
	parsed := net.ParseIP(ip)
	for _, e := range s.networks {
		if e.key == ip {
			return e.name, true
		}
	}
	if parsed != nil {
		for _, e := range s.networks {
			if e.prefix != nil && e.prefix.Contains(parsed) {
				return e.name, true
			}
		}
		if p := twoOctetPrefix(ip); p != "" {
			for _, e := range s.networks {
				if e.prefix == nil && twoOctetPrefix(e.key) == p {
					return e.name, true
				}
			}
		}
	}
	return "", false
}

func twoOctetPrefix(ip string) string {
	parts := strings.SplitN(ip, ".", 3)
	if len(parts) < 3 {
		return ""
	}
	return parts[0] + "." + parts[1]
}

// Len reports the directory sizes, for refresh logging.
func (s *Snapshot) Len() (devices, networks, groups int) {
	return len(s.devices), len(s.networks), len(s.groups)
}
