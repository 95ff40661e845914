// Package cassandra implements the wide-column Source Reader (spec.md
// §4.2) over gocql: a partition is a half-open murmur3 token range
// [token_min, token_max); paging is the driver's responsibility, the
// reader exposes one row at a time.
//
// Session construction is grounded on kedacore-keda's
// pkg/scalers/cassandra_scaler.go (newCassandraSession): host list,
// consistency, connect timeout, keyspace.
package cassandra

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/gocql/gocql"
	"golang.org/x/time/rate"

	"github.com/sakthi87/cstar2yb/internal/config"
	"github.com/sakthi87/cstar2yb/internal/errs"
	"github.com/sakthi87/cstar2yb/internal/logger"
	"github.com/sakthi87/cstar2yb/internal/model"
	"github.com/sakthi87/cstar2yb/internal/source"
)

// minToken/maxToken are the bounds of gocql's Murmur3Partitioner token
// ring, used to split the ring into even ranges.
const (
	minToken = math.MinInt64
	maxToken = math.MaxInt64
)

// Reader reads a Cassandra (or Cassandra-wire-compatible) table as the
// wide-column source.
type Reader struct {
	session      *gocql.Session
	keyspace     string
	table        string
	partitionKey string
	columns      []string
	cfg          config.SourceConfig
	log          *logger.Logger
}

// New opens a gocql session for the configured source cluster.
func New(cfg config.SourceConfig, partitionKey string, columns []string, log *logger.Logger) (*Reader, error) {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = gocql.Quorum
	cluster.ProtoVersion = 4
	cluster.ConnectTimeout = durationMS(cfg.ReadTimeoutMS)
	cluster.Timeout = durationMS(cfg.ReadTimeoutMS)
	cluster.PageSize = pageSizeOr(cfg.FetchSize)

	if cfg.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, errs.New(errs.KindConnect, fmt.Errorf("creating cassandra session: %w", err))
	}

	return &Reader{
		session:      session,
		keyspace:     cfg.Keyspace,
		table:        cfg.Table,
		partitionKey: partitionKey,
		columns:      columns,
		cfg:          cfg,
		log:          log,
	}, nil
}

// Close releases the underlying session.
func (r *Reader) Close() { r.session.Close() }

// EnumeratePartitions splits the murmur3 token ring into hint.PartitionCount()
// even half-open ranges (spec.md §4.2: "a partition is a half-open token
// range [token_min, token_max)").
func (r *Reader) EnumeratePartitions(ctx context.Context, hint source.PlanHint) ([]model.PartitionDescriptor, error) {
	n := hint.PartitionCount()
	if n < 1 {
		n = 1
	}

	span := float64(maxToken) - float64(minToken)
	width := span / float64(n)

	out := make([]model.PartitionDescriptor, 0, n)
	for i := 0; i < n; i++ {
		lo := int64(float64(minToken) + float64(i)*width)
		hi := int64(float64(minToken) + float64(i+1)*width)
		if i == n-1 {
			hi = maxToken
		}
		out = append(out, model.PartitionDescriptor{
			PartitionID: i,
			TokenMin:    lo,
			TokenMax:    hi,
		})
	}
	return out, nil
}

// Read issues the token-range-parameterized CQL query (spec.md §4.2:
// "WHERE token(pk) >= ? AND token(pk) < ?") and returns a lazy iterator
// over the driver's own paging.
func (r *Reader) Read(ctx context.Context, d model.PartitionDescriptor) (source.RowIterator, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM %s.%s WHERE token(%s) >= ? AND token(%s) < ?",
		columnList(r.columns), r.keyspace, r.table, r.partitionKey, r.partitionKey,
	)
	iter := r.session.Query(query, d.TokenMin, d.TokenMax).WithContext(ctx).Iter()
	return &rowIterator{iter: iter, columns: r.columns, limiter: rateLimiterFor(r.cfg.MaxRowsPerSec)}, nil
}

// rateLimiterFor builds the reader-side pacing limiter (spec.md §5
// back-pressure): nil when unbounded, letting Next skip the Wait call
// entirely rather than branching on a zero rate.Limit.
func rateLimiterFor(rowsPerSec int) *rate.Limiter {
	if rowsPerSec <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rowsPerSec), rowsPerSec)
}

type rowIterator struct {
	iter    *gocql.Iter
	columns []string
	limiter *rate.Limiter
}

func (it *rowIterator) Next(ctx context.Context) (model.Row, bool, error) {
	if it.limiter != nil {
		if err := it.limiter.Wait(ctx); err != nil {
			return model.Row{}, false, errs.New(errs.KindRead, fmt.Errorf("rate limiter: %w", err))
		}
	}

	values := make([]interface{}, len(it.columns))
	ptrs := make([]interface{}, len(it.columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	if !it.iter.Scan(ptrs...) {
		if err := it.iter.Close(); err != nil {
			return model.Row{}, false, errs.New(errs.KindRead, fmt.Errorf("cassandra read: %w", err))
		}
		return model.Row{}, false, nil
	}

	row := model.Row{Values: make([]model.Value, len(values))}
	for i, v := range values {
		row.Values[i] = toValue(v)
	}
	return row, true, nil
}

func (it *rowIterator) Close() { _ = it.iter.Close() }

// toValue normalizes a gocql scan result into the engine's typed Value,
// matching spec.md §3's normalization rules (JSON for collections,
// base64 for binary, ISO-8601 for temporal, canonical hex for UUIDs).
func toValue(v interface{}) model.Value {
	if v == nil {
		return model.Null(model.KindString)
	}
	switch t := v.(type) {
	case string:
		return model.Value{Valid: true, Kind: model.KindString, Str: t}
	case []byte:
		return model.Value{Valid: true, Kind: model.KindBinary, Raw: t}
	case gocql.UUID:
		return model.Value{Valid: true, Kind: model.KindUUID, Str: t.String()}
	case time.Time:
		return model.Value{Valid: true, Kind: model.KindTimestamp, Raw: t}
	case bool:
		return model.Value{Valid: true, Kind: model.KindBool, Str: boolStr(t)}
	case int, int32, int64:
		return model.Value{Valid: true, Kind: model.KindInt, Str: fmt.Sprintf("%d", t)}
	case float32, float64:
		return model.Value{Valid: true, Kind: model.KindFloat, Str: fmt.Sprintf("%v", t)}
	case []string, map[string]interface{}, []interface{}:
		return model.Value{Valid: true, Kind: model.KindJSON, Raw: t}
	default:
		return model.Value{Valid: true, Kind: model.KindJSON, Raw: t}
	}
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func columnList(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}

func pageSizeOr(n int) int {
	if n <= 0 {
		return source.DefaultPrefetch
	}
	return n
}

func durationMS(ms int) time.Duration {
	if ms <= 0 {
		ms = 30000
	}
	return time.Duration(ms) * time.Millisecond
}
