package parser

import (
	"context"
	"net"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/fortilog-systems/fortilog/internal/config"
	"github.com/fortilog-systems/fortilog/internal/directory"
	"github.com/fortilog-systems/fortilog/internal/metrics"
	"github.com/fortilog-systems/fortilog/internal/models"
)

// Enricher resolves source display names. All of its caches are bounded; a
// slow or failed reverse lookup resolves to a fallback, never an error.
type Enricher struct {
	overrides  map[string]string
	prefixes   []override // overrides with trailing-dot keys, e.g. "192.168.50."
	hosts      *lru.Cache[string, string]
	dns        *expirable.LRU[string, string]
	resolver   *net.Resolver
	dnsTimeout time.Duration
}

type override struct {
	prefix string
	name   string
}

// NewEnricher builds an Enricher from config. Cache capacities are fixed at
// construction; the caches never grow past them.
func NewEnricher(cfg config.ParserConfig) (*Enricher, error) {
	hosts, err := lru.New[string, string](cfg.HostCacheSize)
	if err != nil {
		return nil, err
	}
	e := &Enricher{
		overrides:  make(map[string]string),
		hosts:      hosts,
		dns:        expirable.NewLRU[string, string](cfg.DNSCacheSize, nil, cfg.DNSCacheTTL),
		resolver:   net.DefaultResolver,
		dnsTimeout: cfg.DNSTimeout,
	}
	for key, name := range cfg.Overrides {
		if strings.HasSuffix(key, ".") {
			e.prefixes = append(e.prefixes, override{prefix: key, name: name})
		} else {
			e.overrides[key] = name
		}
	}
	return e, nil
}

// ResolveName applies the identity precedence chain and returns the display
// name. Precedence: device directory by MAC, configured overrides, explicit
// name fields in the line, the known-hosts cache, reverse DNS for private
// addresses, then a Device-<os> or raw-IP fallback.
func (e *Enricher) ResolveName(snap *directory.Snapshot, kv map[string]string, srcIP, mac string) string {
	if mac != models.UnknownMAC {
		if name, ok := snap.ResolveDevice(mac); ok {
			e.hosts.Add(srcIP, name)
			return name
		}
	}

	if name, ok := e.overrides[srcIP]; ok {
		return name
	}
	for _, o := range e.prefixes {
		if strings.HasPrefix(srcIP, o.prefix) {
			return o.name
		}
	}

	if name := firstNonEmpty(kv["srcname"], kv["unauthuser"]); name != "" {
		e.hosts.Add(srcIP, name)
		return name
	}

	if name, ok := e.hosts.Get(srcIP); ok {
		return name
	}

	if name := e.reverseLookup(srcIP); name != "" {
		return name
	}

	if osName := kv["osname"]; osName != "" {
		return "Device " + osName
	}
	return srcIP
}

// reverseLookup resolves private-range addresses via PTR with a hard timeout.
// Results, including failures, are cached so one slow resolver cannot stall
// the pipeline twice for the same host.
func (e *Enricher) reverseLookup(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil || !parsed.IsPrivate() {
		return ""
	}
	if name, ok := e.dns.Get(ip); ok {
		metrics.DNSLookups.WithLabelValues("cached").Inc()
		return name
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.dnsTimeout)
	defer cancel()

	names, err := e.resolver.LookupAddr(ctx, ip)
	if err != nil || len(names) == 0 {
		metrics.DNSLookups.WithLabelValues("miss").Inc()
		e.dns.Add(ip, "") // negative cache
		return ""
	}

	name := strings.TrimSuffix(names[0], ".")
	metrics.DNSLookups.WithLabelValues("hit").Inc()
	e.dns.Add(ip, name)
	return name
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
