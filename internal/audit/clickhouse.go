package audit

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

const (
	bufferSize    = 10_000
	flushInterval = 100 * time.Millisecond
	flushBatch    = 1000
	drainTimeout  = 2 * time.Second
)

// ClickHouseWriter writes audit records to ClickHouse asynchronously.
// Write() is non-blocking — records are buffered and batch-inserted in a
// background goroutine, so slow storage can never stall the router.
type ClickHouseWriter struct {
	conn    driver.Conn
	buffer  chan *Record
	done    chan struct{}
	flushed chan struct{}
	logger  *zap.Logger
}

// NewClickHouseWriter creates a ClickHouseWriter and starts the
// background flush loop.
func NewClickHouseWriter(dsn string, logger *zap.Logger) (*ClickHouseWriter, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}

	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, err
	}

	w := &ClickHouseWriter{
		conn:    conn,
		buffer:  make(chan *Record, bufferSize),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
		logger:  logger,
	}

	go w.flushLoop()
	return w, nil
}

// Write queues an audit record for async insertion.
// Non-blocking: drops the record if the buffer is full.
func (w *ClickHouseWriter) Write(record *Record) {
	select {
	case w.buffer <- record:
	default:
		w.logger.Warn("audit buffer full, dropping record",
			zap.String("request_id", record.RequestID),
		)
	}
}

// Close signals the flush loop to drain remaining records.
func (w *ClickHouseWriter) Close() {
	close(w.done)
	<-w.flushed
}

func (w *ClickHouseWriter) flushLoop() {
	defer close(w.flushed)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*Record, 0, flushBatch)

	for {
		select {
		case record := <-w.buffer:
			batch = append(batch, record)
			if len(batch) >= flushBatch {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-w.done:
			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
		drainLoop:
			for {
				select {
				case record := <-w.buffer:
					batch = append(batch, record)
				case <-drainCtx.Done():
					break drainLoop
				default:
					break drainLoop
				}
			}
			if len(batch) > 0 {
				w.flush(batch)
			}
			return
		}
	}
}

func (w *ClickHouseWriter) flush(records []*Record) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	batch, err := w.conn.PrepareBatch(ctx, `
		INSERT INTO tool_audit_events (
			request_id, session_id, agent_id, agent_name, decided_at,
			tool_name, args_hash, trust_level, access_mode,
			decision, reason_code, errors, outcome,
			enveloped, nonce_valid, detected_via,
			output_size, execution_ms, artifacts
		)
	`)
	if err != nil {
		w.logger.Error("audit prepare batch failed", zap.Error(err))
		return
	}

	for _, r := range records {
		var envelopedUint8, nonceValidUint8 uint8
		if r.Enveloped {
			envelopedUint8 = 1
		}
		if r.NonceValid {
			nonceValidUint8 = 1
		}

		if err := batch.Append(
			r.RequestID,
			r.SessionID,
			r.AgentID,
			r.AgentName,
			r.DecidedAt,
			r.ToolName,
			r.ArgsHash,
			r.TrustLevel,
			r.AccessMode,
			r.Decision,
			r.ReasonCode,
			r.Errors,
			r.Outcome,
			envelopedUint8,
			nonceValidUint8,
			r.DetectedVia,
			r.OutputSize,
			r.ExecutionMs,
			r.Artifacts,
		); err != nil {
			w.logger.Error("audit append record failed",
				zap.String("request_id", r.RequestID),
				zap.Error(err),
			)
		}
	}

	if err := batch.Send(); err != nil {
		w.logger.Error("audit batch send failed",
			zap.Int("batch_size", len(records)),
			zap.Error(err),
		)
	}
}

// LogWriter is a fallback Writer for local development: decisions go to
// the structured log instead of ClickHouse.
type LogWriter struct {
	logger *zap.Logger
}

// NewLogWriter creates a LogWriter that outputs records to the given logger.
func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logger}
}

func (w *LogWriter) Write(record *Record) {
	w.logger.Info("tool_audit_event",
		zap.String("request_id", record.RequestID),
		zap.String("session_id", record.SessionID),
		zap.String("agent_id", record.AgentID),
		zap.String("tool_name", record.ToolName),
		zap.String("args_hash", record.ArgsHash),
		zap.String("decision", record.Decision),
		zap.String("reason_code", record.ReasonCode),
		zap.String("outcome", record.Outcome),
		zap.String("detected_via", record.DetectedVia),
		zap.Bool("enveloped", record.Enveloped),
		zap.Float32("execution_ms", record.ExecutionMs),
	)
}

func (w *LogWriter) Close() {}
