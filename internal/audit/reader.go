package audit

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

// Reader provides read access to the tool_audit_events table for
// audit review.
type Reader struct {
	conn   driver.Conn
	logger *zap.Logger
}

// NewReader opens a ClickHouse connection for read queries.
func NewReader(dsn string, logger *zap.Logger) (*Reader, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}
	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}

	return &Reader{conn: conn, logger: logger}, nil
}

// Close closes the ClickHouse connection.
func (r *Reader) Close() error {
	return r.conn.Close()
}

// EventRow is a single row from tool_audit_events.
type EventRow struct {
	RequestID   string
	SessionID   string
	AgentID     string
	AgentName   string
	DecidedAt   time.Time
	ToolName    string
	ArgsHash    string
	TrustLevel  string
	AccessMode  string
	Decision    string
	ReasonCode  string
	Errors      []string
	Outcome     string
	Enveloped   uint8
	NonceValid  uint8
	DetectedVia string
	OutputSize  int32
	ExecutionMs float32
	Artifacts   []string
}

// ListEventsParams holds filters and pagination for audit review.
type ListEventsParams struct {
	SessionID  string
	AgentID    *string
	Decision   *string
	ReasonCode *string
	ToolName   *string
	StartTime  *time.Time
	EndTime    *time.Time
	Page       int
	PageSize   int
}

// ListEvents returns paginated, filtered audit records and the total count.
func (r *Reader) ListEvents(ctx context.Context, params ListEventsParams) ([]EventRow, int, error) {
	conditions := []string{"session_id = @session_id"}
	args := []any{
		clickhouse.Named("session_id", params.SessionID),
	}

	if params.AgentID != nil {
		conditions = append(conditions, "agent_id = @agent_id")
		args = append(args, clickhouse.Named("agent_id", *params.AgentID))
	}
	if params.Decision != nil {
		conditions = append(conditions, "decision = @decision")
		args = append(args, clickhouse.Named("decision", *params.Decision))
	}
	if params.ReasonCode != nil {
		conditions = append(conditions, "reason_code = @reason_code")
		args = append(args, clickhouse.Named("reason_code", *params.ReasonCode))
	}
	if params.ToolName != nil {
		conditions = append(conditions, "tool_name = @tool_name")
		args = append(args, clickhouse.Named("tool_name", *params.ToolName))
	}
	if params.StartTime != nil {
		conditions = append(conditions, "decided_at >= @start_time")
		args = append(args, clickhouse.Named("start_time", *params.StartTime))
	}
	if params.EndTime != nil {
		conditions = append(conditions, "decided_at <= @end_time")
		args = append(args, clickhouse.Named("end_time", *params.EndTime))
	}

	where := strings.Join(conditions, " AND ")

	var total uint64
	countQuery := "SELECT count() FROM tool_audit_events WHERE " + where
	if err := r.conn.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListEvents count: %w", err)
	}

	page := params.Page
	if page < 1 {
		page = 1
	}
	pageSize := params.PageSize
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	query := `
		SELECT request_id, session_id, agent_id, agent_name, decided_at,
		       tool_name, args_hash, trust_level, access_mode,
		       decision, reason_code, errors, outcome,
		       enveloped, nonce_valid, detected_via,
		       output_size, execution_ms, artifacts
		FROM tool_audit_events
		WHERE ` + where + `
		ORDER BY decided_at DESC
		LIMIT @limit OFFSET @offset`
	args = append(args,
		clickhouse.Named("limit", pageSize),
		clickhouse.Named("offset", (page-1)*pageSize),
	)

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListEvents query: %w", err)
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(
			&e.RequestID, &e.SessionID, &e.AgentID, &e.AgentName, &e.DecidedAt,
			&e.ToolName, &e.ArgsHash, &e.TrustLevel, &e.AccessMode,
			&e.Decision, &e.ReasonCode, &e.Errors, &e.Outcome,
			&e.Enveloped, &e.NonceValid, &e.DetectedVia,
			&e.OutputSize, &e.ExecutionMs, &e.Artifacts,
		); err != nil {
			return nil, 0, fmt.Errorf("ListEvents scan: %w", err)
		}
		events = append(events, e)
	}

	return events, int(total), rows.Err()
}
