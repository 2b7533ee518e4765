// Package parser turns raw firewall log lines into normalized, enriched
// events. Parsing is a single tokenizing pass followed by pure field
// extraction; lines without a source IP are discarded, not errors.
package parser

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/fortilog-systems/fortilog/internal/directory"
	"github.com/fortilog-systems/fortilog/internal/metrics"
	"github.com/fortilog-systems/fortilog/internal/models"
)

// Field defaults applied when a line omits an optional field.
const (
	DefaultService  = "Geral"
	DefaultPolicyID = "-"
	DefaultAction   = "deny"
	DefaultGroup    = "Geral"
)

// SnapshotProvider yields the current directory snapshot.
type SnapshotProvider interface {
	Snapshot() *directory.Snapshot
}

// Parser builds events from raw lines using the directory snapshot current at
// parse time.
type Parser struct {
	enricher *Enricher
	dirs     SnapshotProvider
	now      func() time.Time
}

// New creates a Parser.
func New(enricher *Enricher, dirs SnapshotProvider) *Parser {
	return &Parser{enricher: enricher, dirs: dirs, now: time.Now}
}

// Parse converts one raw line into an Event. The second return is false when
// the line is discarded (no recognizable source IP); this is expected for
// non-traffic lines interleaved in the stream.
func (p *Parser) Parse(line string) (*models.Event, bool) {
	kv := Tokenize(line)

	srcIP := kv["srcip"]
	if !validSrcIP(srcIP) {
		metrics.LinesDiscarded.Inc()
		return nil, false
	}

	snap := p.dirs.Snapshot()
	mac := normalizeMAC(kv["srcmac"])
	name := p.enricher.ResolveName(snap, kv, srcIP, mac)

	action := kv["action"]
	if action == "" {
		action = DefaultAction
	}
	service := kv["service"]
	if service == "" {
		service = DefaultService
	}
	policyID := kv["policyid"]
	if policyID == "" {
		policyID = DefaultPolicyID
	}

	ev := &models.Event{
		Timestamp:  p.timestamp(kv),
		SrcIP:      srcIP,
		SrcMAC:     mac,
		SrcName:    name,
		Group:      p.group(snap, name, srcIP),
		DstIP:      kv["dstip"],
		Service:    service,
		Action:     action,
		Status:     models.StatusFromAction(action),
		PolicyID:   policyID,
		PolicyName: kv["policyname"],
		Vendor:     Classify(kv["osname"], kv["devtype"], name),
		SentBytes:  parseBytes(kv["sentbyte"]),
		RecvBytes:  parseBytes(firstNonEmpty(kv["rcvdbyte"], kv["rcvedbyte"])),
		Raw:        line,
	}
	metrics.EventsParsed.Inc()
	return ev, true
}

// timestamp reads the source-reported date and time fields at second
// precision, falling back to the wall clock for lines without them.
func (p *Parser) timestamp(kv map[string]string) time.Time {
	if d, tm := kv["date"], kv["time"]; d != "" && tm != "" {
		if ts, err := time.ParseInLocation("2006-01-02 15:04:05", d+" "+tm, time.Local); err == nil {
			return ts
		}
	}
	return p.now().Truncate(time.Second)
}

func (p *Parser) group(snap *directory.Snapshot, name, srcIP string) string {
	if label, ok := snap.ResolveGroup(name); ok {
		return label
	}
	if label, ok := snap.ResolveGroup(srcIP); ok {
		return label
	}
	return DefaultGroup
}

// validSrcIP requires a parseable IPv4 source address. A malformed token
// must never reach the store: src_ip is cast to inet by the exclusion
// predicate, and one bad row would fail every non-elevated query.
func validSrcIP(srcIP string) bool {
	if srcIP == "" || srcIP == "unknown" {
		return false
	}
	ip := net.ParseIP(srcIP)
	return ip != nil && ip.To4() != nil
}

// normalizeMAC lowercases a MAC and converts dash separators to colons.
// Absent MACs become the sentinel.
func normalizeMAC(mac string) string {
	if mac == "" {
		return models.UnknownMAC
	}
	return strings.ReplaceAll(strings.ToLower(mac), "-", ":")
}

func parseBytes(raw string) int64 {
	if raw == "" {
		return 0
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
