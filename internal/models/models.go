package models

import (
	"strings"
	"time"
)

// Status is the canonical two-state traffic verdict.
type Status string

const (
	StatusPermitted Status = "permitted"
	StatusBlocked   Status = "blocked"
)

// StatusFromAction normalizes a raw firewall action token into a Status.
// accept/allow/permit map to permitted, everything else is blocked.
func StatusFromAction(action string) Status {
	switch strings.ToLower(action) {
	case "accept", "allow", "permit":
		return StatusPermitted
	default:
		return StatusBlocked
	}
}

// Vendor is the closed vendor/OS classification set.
type Vendor string

const (
	VendorWindows  Vendor = "Windows"
	VendorAndroid  Vendor = "Android"
	VendorApple    Vendor = "Apple"
	VendorLinux    Vendor = "Linux"
	VendorCamera   Vendor = "Intelbras/Camera"
	VendorFortinet Vendor = "Fortinet"
	VendorOther    Vendor = "Other"
)

// UnknownMAC is the sentinel stored when a line carries no source MAC.
const UnknownMAC = "unknown"

// Event is one normalized, enriched traffic-log record. Immutable once stored.
type Event struct {
	// ID is assigned by the store at commit time; zero until then.
	ID         int64     `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	SrcIP      string    `json:"src_ip"`
	SrcMAC     string    `json:"src_mac"`
	SrcName    string    `json:"src_name"`
	Group      string    `json:"group"`
	DstIP      string    `json:"dst_ip"`
	DstName    string    `json:"dst_name,omitempty"`
	Service    string    `json:"service"`
	Action     string    `json:"action"`
	Status     Status    `json:"status"`
	PolicyID   string    `json:"policy_id"`
	PolicyName string    `json:"policy_name,omitempty"`
	Vendor     Vendor    `json:"vendor"`
	SentBytes  int64     `json:"sent_bytes"`
	RecvBytes  int64     `json:"recv_bytes"`
	Raw        string    `json:"raw"`
}

// EventFilter selects events for Query and Export.
// From/To are inclusive; Text is a substring match over source name,
// source/destination IP and service. A nil Status matches both verdicts.
type EventFilter struct {
	From     *time.Time
	To       *time.Time
	Text     string
	Status   *Status
	Page     int
	PageSize int

	// Elevated disables the infrastructure exclusion list.
	Elevated bool
}

// EventPage is one page of query results plus the total match count.
type EventPage struct {
	Events []Event `json:"events"`
	Total  int     `json:"total"`
}

// MetricSample is one host resource snapshot. Network counters are deltas
// since the previous sample, floored at zero across counter resets.
type MetricSample struct {
	Timestamp    time.Time `json:"timestamp"`
	CPUPercent   float64   `json:"cpu_percent"`
	MemUsedBytes uint64    `json:"mem_used_bytes"`
	MemPercent   float64   `json:"mem_percent"`
	DiskPercent  float64   `json:"disk_percent"`
	NetSentBytes uint64    `json:"net_sent_bytes"`
	NetRecvBytes uint64    `json:"net_recv_bytes"`
}

// AlertRecord is one generated notification and its delivery outcome.
// Records live only in the bounded recent-alert cache, not durable storage.
type AlertRecord struct {
	RuleID    string    `json:"rule_id"`
	DedupKey  string    `json:"dedup_key"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Delivered bool      `json:"delivered"`
}
