// Package router implements the Connection Router (spec.md §4.1): it
// deterministically binds partition_id -> target host by round robin and
// hands back a single, unpooled *pgx.Conn configured for bulk-load use.
//
// Grounded on platform/internal/database/db.go's pgx.ParseConfig/connect
// shape, adapted from a shared pgxpool.Pool to a per-partition raw
// connection: spec.md §5 is explicit that sink connections are never
// pooled, since COPY streams are long-lived and not multiplexable.
package router

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sakthi87/cstar2yb/internal/config"
	"github.com/sakthi87/cstar2yb/internal/errs"
	"github.com/sakthi87/cstar2yb/internal/logger"
)

// connectTimeout bounds connection attempts so a dead host fails fast
// instead of hanging the partition (spec.md §5 "Cancellation / timeouts").
const connectTimeout = 10 * time.Second

// Router produces a ready-to-use target connection for a given
// partition id. It holds no per-partition state and no shared counter:
// host selection is a pure function of partition_id.
type Router struct {
	cfg config.TargetConfig
	log *logger.Logger
}

// New validates the configured host list and returns a Router. Per
// spec.md §4.1, an empty host list fails with ConfigError at startup,
// before any connection is attempted.
func New(cfg config.TargetConfig, log *logger.Logger) (*Router, error) {
	if len(cfg.Hosts) == 0 {
		return nil, errs.New(errs.KindConfig, fmt.Errorf("target.hosts must be non-empty"))
	}
	return &Router{cfg: cfg, log: log}, nil
}

// hostFor implements the deterministic partition_id mod len(hosts) rule
// (spec.md §4.1): no shared counter state, reproducible for debugging,
// even distribution across target nodes.
func (r *Router) hostFor(partitionID int) string {
	n := len(r.cfg.Hosts)
	idx := ((partitionID % n) + n) % n
	return r.cfg.Hosts[idx]
}

// Open connects to the single host selected for partitionID and applies
// the session options spec.md §4.1 requires: simple query mode, text
// transfer, infinite socket timeout, TCP keep-alive, configured isolation,
// autocommit off (pgx connections start without an implicit transaction,
// so "autocommit off" is realized by the caller always wrapping work in
// an explicit Begin/Commit, per the Partition Executor contract).
//
// Does not retry internally — retries are the coordinator's
// responsibility (spec.md §4.1).
func (r *Router) Open(ctx context.Context, partitionID int) (*pgx.Conn, error) {
	host := r.hostFor(partitionID)

	pgxCfg, err := pgx.ParseConfig(fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=prefer",
		r.cfg.Username, r.cfg.Password, host, r.cfg.Port, r.cfg.Database,
	))
	if err != nil {
		return nil, errs.NewForPartition(errs.KindConfig, partitionID, err)
	}

	// Text transfer, simple query mode: avoid the extended protocol and
	// binary codecs entirely, matching the CSV/positional contracts of
	// the Row Encoder (spec.md §4.3), which always produce text-ish
	// values rather than wire-binary parameters.
	pgxCfg.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	// No socket read/write deadline at the connection layer: bulk COPY
	// and large batches may legitimately run for minutes (spec.md §5).
	pgxCfg.ConnectTimeout = connectTimeout

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	conn, err := pgx.ConnectConfig(connectCtx, pgxCfg)
	if err != nil {
		r.log.Error("router: connect failed", "partition_id", partitionID, "host", host, "err", err)
		return nil, errs.NewForPartition(errs.KindConnect, partitionID, err)
	}

	if err := r.applySessionOptions(ctx, conn, partitionID); err != nil {
		_ = conn.Close(ctx)
		return nil, err
	}

	r.log.Info("router: opened connection", "partition_id", partitionID, "host", host)
	return conn, nil
}

// applySessionOptions issues the per-connection directives spec.md §4.1
// requires: transaction isolation and, if configured, the target's
// session directive disabling transactional writes (the throughput/
// durability trade-off spec.md §9's "Open questions" asks implementers to
// expose as a single knob rather than enable by default).
func (r *Router) applySessionOptions(ctx context.Context, conn *pgx.Conn, partitionID int) error {
	isolation := r.cfg.IsolationLevel
	if isolation == "" {
		isolation = "READ_COMMITTED"
	}
	stmt := fmt.Sprintf("SET SESSION CHARACTERISTICS AS TRANSACTION ISOLATION LEVEL %s", sqlIsolation(isolation))
	if _, err := conn.Exec(ctx, stmt); err != nil {
		return errs.NewForPartition(errs.KindConnect, partitionID, fmt.Errorf("setting isolation level: %w", err))
	}

	if r.cfg.DisableTransactionalWrites {
		if _, err := conn.Exec(ctx, "SET yb_disable_transactional_writes = true"); err != nil {
			return errs.NewForPartition(errs.KindConnect, partitionID, fmt.Errorf("disabling transactional writes: %w", err))
		}
	}
	return nil
}

func sqlIsolation(level string) string {
	switch level {
	case "SERIALIZABLE":
		return "SERIALIZABLE"
	case "REPEATABLE_READ":
		return "REPEATABLE READ"
	default:
		return "READ COMMITTED"
	}
}

// HostFor exposes the deterministic routing decision for a partition id,
// used directly by tests verifying P5 (router fairness) without opening
// a real connection.
func (r *Router) HostFor(partitionID int) string {
	return r.hostFor(partitionID)
}
