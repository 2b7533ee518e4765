// Package store owns committed events: an append-only batched write path and
// a filtered, paginated query surface over PostgreSQL.
package store

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fortilog-systems/fortilog/internal/config"
	"github.com/fortilog-systems/fortilog/internal/models"
)

var eventColumns = []string{
	"ts", "src_ip", "src_mac", "src_name", "group_label", "dst_ip",
	"service", "action", "status", "policy_id", "policy_name", "vendor",
	"sent_bytes", "recv_bytes", "raw",
}

const eventSelect = `SELECT id, ts, src_ip, src_mac, src_name, group_label, dst_ip,
	service, action, status, policy_id, policy_name, vendor,
	sent_bytes, recv_bytes, raw FROM events`

// Postgres is the durable event repository.
type Postgres struct {
	pool        *pgxpool.Pool
	exportLimit int

	// Exclusion predicate for non-elevated queries.
	excludedIPs   []string
	excludedCIDRs []*net.IPNet
}

// NewPostgres wraps an existing pool. The excluded sources list accepts both
// plain IPs and CIDRs; unparseable entries are treated as plain IPs.
func NewPostgres(pool *pgxpool.Pool, cfg config.StoreConfig) *Postgres {
	p := &Postgres{pool: pool, exportLimit: cfg.ExportLimit}
	if p.exportLimit <= 0 {
		p.exportLimit = 100000
	}
	for _, src := range cfg.ExcludedSources {
		if _, ipnet, err := net.ParseCIDR(src); err == nil {
			p.excludedCIDRs = append(p.excludedCIDRs, ipnet)
		} else {
			p.excludedIPs = append(p.excludedIPs, src)
		}
	}
	return p
}

// Flush batch-inserts events using COPY. Order within the batch is preserved.
func (p *Postgres) Flush(ctx context.Context, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}
	_, err := p.pool.CopyFrom(ctx, pgx.Identifier{"events"}, eventColumns,
		pgx.CopyFromSlice(len(events), func(i int) ([]interface{}, error) {
			e := events[i]
			return []interface{}{
				e.Timestamp, e.SrcIP, e.SrcMAC, e.SrcName, e.Group, e.DstIP,
				e.Service, e.Action, string(e.Status), e.PolicyID, e.PolicyName,
				string(e.Vendor), e.SentBytes, e.RecvBytes, e.Raw,
			}, nil
		}))
	if err != nil {
		return fmt.Errorf("copy events: %w", err)
	}
	return nil
}

// Query returns one page of matching events, most recent first, plus the
// total match count.
func (p *Postgres) Query(ctx context.Context, filter models.EventFilter) (models.EventPage, error) {
	where, args := p.buildWhere(filter)

	var total int
	countSQL := "SELECT COUNT(*) FROM events" + where
	if err := p.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return models.EventPage{}, fmt.Errorf("count: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 50
	}
	offset := (page - 1) * size

	pageSQL := fmt.Sprintf("%s%s ORDER BY ts DESC, id DESC LIMIT $%d OFFSET $%d",
		eventSelect, where, len(args)+1, len(args)+2)
	rows, err := p.pool.Query(ctx, pageSQL, append(args, size, offset)...)
	if err != nil {
		return models.EventPage{}, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return models.EventPage{}, err
	}
	return models.EventPage{Events: events, Total: total}, nil
}

// Export streams every matching event to fn, most recent first, up to the
// configured export cap. Interactive pagination limits do not apply.
func (p *Postgres) Export(ctx context.Context, filter models.EventFilter, fn func(models.Event) error) error {
	where, args := p.buildWhere(filter)
	sql := fmt.Sprintf("%s%s ORDER BY ts DESC, id DESC LIMIT $%d", eventSelect, where, len(args)+1)

	rows, err := p.pool.Query(ctx, sql, append(args, p.exportLimit)...)
	if err != nil {
		return fmt.Errorf("export events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (p *Postgres) buildWhere(filter models.EventFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}

	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.From != nil {
		conds = append(conds, "ts >= "+arg(*filter.From))
	}
	if filter.To != nil {
		conds = append(conds, "ts <= "+arg(*filter.To))
	}
	if filter.Status != nil {
		conds = append(conds, "status = "+arg(string(*filter.Status)))
	}
	if filter.Text != "" {
		pattern := arg("%" + filter.Text + "%")
		conds = append(conds, fmt.Sprintf(
			"(src_name ILIKE %s OR src_ip LIKE %s OR dst_ip LIKE %s OR service ILIKE %s)",
			pattern, pattern, pattern, pattern))
	}
	if !filter.Elevated {
		for _, ip := range p.excludedIPs {
			conds = append(conds, "src_ip <> "+arg(ip))
		}
		for _, cidr := range p.excludedCIDRs {
			conds = append(conds, fmt.Sprintf("NOT (src_ip::inet <<= %s::inet)", arg(cidr.String())))
		}
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanEvents(rows pgx.Rows) ([]models.Event, error) {
	events := make([]models.Event, 0, 50)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func scanEvent(rows pgx.Rows) (models.Event, error) {
	var e models.Event
	var status, vendor string
	if err := rows.Scan(
		&e.ID, &e.Timestamp, &e.SrcIP, &e.SrcMAC, &e.SrcName, &e.Group, &e.DstIP,
		&e.Service, &e.Action, &status, &e.PolicyID, &e.PolicyName, &vendor,
		&e.SentBytes, &e.RecvBytes, &e.Raw,
	); err != nil {
		return models.Event{}, fmt.Errorf("scan event: %w", err)
	}
	e.Status = models.Status(status)
	e.Vendor = models.Vendor(vendor)
	return e, nil
}
