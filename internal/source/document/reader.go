// Package document implements the document Source Reader (spec.md §4.2)
// over the MongoDB driver: a partition is a sampled sub-range of the
// collection's _id ordering, since documents have no uniform hash-token
// ring the way wide-column stores do.
//
// Client construction mirrors the options.Client pattern used across the
// retrieved driver examples (SetHosts, context-bound Connect/Ping).
package document

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"golang.org/x/time/rate"

	"github.com/sakthi87/cstar2yb/internal/config"
	"github.com/sakthi87/cstar2yb/internal/errs"
	"github.com/sakthi87/cstar2yb/internal/logger"
	"github.com/sakthi87/cstar2yb/internal/model"
	"github.com/sakthi87/cstar2yb/internal/source"
)

// Reader reads a MongoDB collection as the document source, partitioned
// by sampled _id sub-ranges.
type Reader struct {
	client     *mongo.Client
	collection *mongo.Collection
	columns    []string
	cfg        config.SourceConfig
	log        *logger.Logger
}

// New connects to the configured document source cluster.
func New(ctx context.Context, cfg config.SourceConfig, columns []string, log *logger.Logger) (*Reader, error) {
	opts := options.Client().
		SetHosts(cfg.Hosts).
		SetConnectTimeout(durationMS(cfg.ReadTimeoutMS))

	if cfg.Username != "" {
		opts.SetAuth(options.Credential{Username: cfg.Username, Password: cfg.Password})
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, errs.New(errs.KindConnect, fmt.Errorf("connecting to document source: %w", err))
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, errs.New(errs.KindConnect, fmt.Errorf("pinging document source: %w", err))
	}

	return &Reader{
		client:     client,
		collection: client.Database(cfg.Keyspace).Collection(cfg.Table),
		columns:    columns,
		cfg:        cfg,
		log:        log,
	}, nil
}

// Close disconnects the underlying client.
func (r *Reader) Close(ctx context.Context) { _ = r.client.Disconnect(ctx) }

// EnumeratePartitions samples hint.PartitionCount()-1 boundary _id values
// across the collection (via an evenly-strided $sort+$skip sample, the
// document-store analogue of a token range split) and returns the
// resulting half-open [lowBound, highBound) sub-ranges encoded into
// ResidualState, since _id has no fixed-width integer form to carry in
// TokenMin/TokenMax (spec.md §9 "Open questions": residual state carries
// reader-specific partition bounds opaquely).
func (r *Reader) EnumeratePartitions(ctx context.Context, hint source.PlanHint) ([]model.PartitionDescriptor, error) {
	n := hint.PartitionCount()
	if n < 1 {
		n = 1
	}

	total, err := r.collection.EstimatedDocumentCount(ctx)
	if err != nil {
		return nil, errs.New(errs.KindRead, fmt.Errorf("estimating document count: %w", err))
	}

	if n == 1 || total == 0 {
		return []model.PartitionDescriptor{{PartitionID: 0, TokenMin: 0, TokenMax: 0}}, nil
	}

	stride := total / int64(n)
	bounds := make([]interface{}, 0, n-1)
	for i := int64(1); i < int64(n); i++ {
		id, err := r.sampleBoundaryID(ctx, i*stride)
		if err != nil {
			return nil, err
		}
		if id != nil {
			bounds = append(bounds, id)
		}
	}

	out := make([]model.PartitionDescriptor, 0, n)
	var prev interface{}
	for i := 0; i <= len(bounds); i++ {
		var high interface{}
		if i < len(bounds) {
			high = bounds[i]
		}
		out = append(out, model.PartitionDescriptor{
			PartitionID: i,
			TokenMin:    int64(i),
			TokenMax:    int64(i),
			ResidualState: map[string]interface{}{
				"low_id":  prev,
				"high_id": high,
			},
		})
		prev = high
	}
	return out, nil
}

// sampleBoundaryID finds the _id at the given zero-based offset into the
// collection's ascending _id order, returned as its native BSON-decoded
// type (commonly primitive.ObjectID) rather than a string: BSON orders
// types before values, so a stringified ObjectID compared against the
// real field in Read's $gte/$lt filter would never match as intended.
func (r *Reader) sampleBoundaryID(ctx context.Context, offset int64) (interface{}, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "_id", Value: 1}}).SetSkip(offset)
	var doc bson.M
	if err := r.collection.FindOne(ctx, bson.D{}, opts).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, errs.New(errs.KindRead, fmt.Errorf("sampling partition boundary: %w", err))
	}
	return doc["_id"], nil
}

// Read issues a range-bounded find() over the _id field for the given
// partition's sampled bounds and returns a lazy cursor-backed iterator.
func (r *Reader) Read(ctx context.Context, d model.PartitionDescriptor) (source.RowIterator, error) {
	filter := bson.D{}
	if low := d.ResidualState["low_id"]; low != nil {
		filter = append(filter, bson.E{Key: "_id", Value: bson.D{{Key: "$gte", Value: low}}})
	}
	if high := d.ResidualState["high_id"]; high != nil {
		filter = append(filter, bson.E{Key: "_id", Value: bson.D{{Key: "$lt", Value: high}}})
	}

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}).SetBatchSize(int32(batchSizeOr(r.cfg.FetchSize)))
	cur, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, errs.New(errs.KindRead, fmt.Errorf("opening document cursor: %w", err))
	}
	return &rowIterator{cursor: cur, columns: r.columns, limiter: rateLimiterFor(r.cfg.MaxRowsPerSec)}, nil
}

// rateLimiterFor mirrors the wide-column reader's back-pressure knob
// (spec.md §5): nil when unbounded.
func rateLimiterFor(rowsPerSec int) *rate.Limiter {
	if rowsPerSec <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rowsPerSec), rowsPerSec)
}

type rowIterator struct {
	cursor  *mongo.Cursor
	columns []string
	limiter *rate.Limiter
}

func (it *rowIterator) Next(ctx context.Context) (model.Row, bool, error) {
	if it.limiter != nil {
		if err := it.limiter.Wait(ctx); err != nil {
			return model.Row{}, false, errs.New(errs.KindRead, fmt.Errorf("rate limiter: %w", err))
		}
	}

	if !it.cursor.Next(ctx) {
		if err := it.cursor.Err(); err != nil {
			return model.Row{}, false, errs.New(errs.KindRead, fmt.Errorf("document cursor: %w", err))
		}
		return model.Row{}, false, nil
	}

	var doc bson.M
	if err := it.cursor.Decode(&doc); err != nil {
		return model.Row{}, false, errs.New(errs.KindRead, fmt.Errorf("decoding document: %w", err))
	}

	row := model.Row{Values: make([]model.Value, len(it.columns))}
	for i, col := range it.columns {
		row.Values[i] = toValue(doc[col])
	}
	return row, true, nil
}

func (it *rowIterator) Close() { _ = it.cursor.Close(context.Background()) }

// toValue normalizes a decoded BSON field into the engine's typed Value
// (spec.md §3 normalization: nested documents/arrays become JSON,
// binary stays binary, everything else keeps its natural shape).
func toValue(v interface{}) model.Value {
	if v == nil {
		return model.Null(model.KindString)
	}
	switch t := v.(type) {
	case string:
		return model.Value{Valid: true, Kind: model.KindString, Str: t}
	case bool:
		return model.Value{Valid: true, Kind: model.KindBool, Str: boolStr(t)}
	case int32, int64:
		return model.Value{Valid: true, Kind: model.KindInt, Str: fmt.Sprintf("%d", t)}
	case float64:
		return model.Value{Valid: true, Kind: model.KindFloat, Str: fmt.Sprintf("%v", t)}
	case primitive.Binary:
		return model.Value{Valid: true, Kind: model.KindBinary, Raw: t.Data}
	case bson.M, bson.D, bson.A, []interface{}:
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

func batchSizeOr(n int) int {
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
