package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/cimetrics/reporter/config"
	"github.com/cimetrics/reporter/types"
)

// MongoStore reads and writes build snapshots in a MongoDB collection
type MongoStore struct {
	settings *config.StoreSettings
	client   *mongo.Client
	coll     *mongo.Collection
	log      logrus.FieldLogger
}

// NewMongoStore creates a store; call Connect before use
func NewMongoStore(settings *config.StoreSettings, log logrus.FieldLogger) *MongoStore {
	return &MongoStore{
		settings: settings,
		log:      log.WithField("component", "mongo"),
	}
}

// Connect establishes the connection and checks it with a ping
func (s *MongoStore) Connect(ctx context.Context) error {
	timeout := s.settings.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	opts := options.Client().
		ApplyURI(s.settings.Connection).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to connect to mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return fmt.Errorf("failed to ping mongo: %w", err)
	}

	s.client = client
	s.coll = client.Database(s.settings.Database).Collection(s.settings.Collection)
	s.log.WithFields(logrus.Fields{
		"db":         s.settings.Database,
		"collection": s.settings.Collection,
	}).Info("Connected to MongoDB")
	return nil
}

// FindMatching implements HistoryStore
func (s *MongoStore) FindMatching(ctx context.Context, sel types.Selector, limit int, before *int64) ([]*types.MetricRecord, error) {
	if err := checkQuery(sel, limit); err != nil {
		return nil, err
	}

	// Discover build ids by descending creation time
	discover := options.Find().
		SetSort(bson.D{{Key: "created", Value: -1}}).
		SetProjection(bson.D{{Key: "build_id", Value: 1}, {Key: "created", Value: 1}})

	cur, err := s.coll.Find(ctx, selectorFilter(sel), discover)
	if err != nil {
		return nil, fmt.Errorf("failed to query build ids: %w", err)
	}

	collector := newBuildCollector(limit, before)
	for cur.Next(ctx) {
		var doc struct {
			BuildID bson.RawValue `bson:"build_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			s.log.WithError(err).Warn("Skipping document with undecodable build id")
			continue
		}
		if !collector.Add(rawBuildID(doc.BuildID)) {
			break
		}
	}
	if err := cur.Err(); err != nil {
		cur.Close(ctx)
		return nil, fmt.Errorf("failed to iterate build ids: %w", err)
	}
	cur.Close(ctx)

	if len(collector.IDs()) == 0 {
		return nil, nil
	}

	// Older publishers stored build ids as strings
	in := make(bson.A, 0, 2*len(collector.IDs()))
	for _, id := range collector.IDs() {
		in = append(in, id, strconv.FormatInt(id, 10))
	}
	filter := selectorFilter(sel)
	filter["build_id"] = bson.M{"$in": in}

	records, err := s.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created", Value: 1}}))
	if err != nil {
		return nil, err
	}
	sortByBuild(records)

	s.log.WithFields(logrus.Fields{
		"selector": sel.String(),
		"builds":   len(collector.IDs()),
		"records":  len(records),
	}).Debug("Loaded history")
	return records, nil
}

// List implements HistoryStore
func (s *MongoStore) List(ctx context.Context, sel types.Selector) ([]*types.MetricRecord, error) {
	filter := bson.M{}
	if !sel.IsZero() {
		filter = selectorFilter(sel)
	}
	return s.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created", Value: -1}}))
}

// Insert implements HistoryStore
func (s *MongoStore) Insert(ctx context.Context, rec *types.MetricRecord) error {
	res, err := s.coll.InsertOne(ctx, rec)
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	s.log.WithFields(logrus.Fields{
		"id":       res.InsertedID,
		"build_id": rec.BuildID,
		"branch":   rec.Branch,
	}).Debug("Inserted record")
	return nil
}

// Close implements HistoryStore
func (s *MongoStore) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*types.MetricRecord, error) {
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer cur.Close(ctx)

	var records []*types.MetricRecord
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			s.log.WithError(err).Warn("Skipping undecodable document")
			continue
		}
		data, err := json.Marshal(normalizeBSON(doc))
		if err != nil {
			s.log.WithError(err).Warn("Skipping unserializable document")
			continue
		}
		rec, err := DecodeDocument(data)
		if err != nil {
			s.log.WithError(err).WithField("id", doc["_id"]).Warn("Skipping malformed document")
			continue
		}
		records = append(records, rec)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return records, nil
}

func selectorFilter(sel types.Selector) bson.M {
	if sel.PullRequestID != "" {
		return bson.M{"pr_id": sel.PullRequestID}
	}
	return bson.M{"branch": sel.Branch}
}

// rawBuildID reads a build id stored as a number or a decimal string. It
// returns zero for anything else.
func rawBuildID(v bson.RawValue) int64 {
	switch v.Type {
	case bson.TypeInt32:
		return int64(v.Int32())
	case bson.TypeInt64:
		return v.Int64()
	case bson.TypeDouble:
		return int64(v.Double())
	case bson.TypeString:
		id, err := strconv.ParseInt(v.StringValue(), 10, 64)
		if err != nil {
			return 0
		}
		return id
	default:
		return 0
	}
}

// normalizeBSON converts decoded BSON values into plain JSON friendly ones
func normalizeBSON(v interface{}) interface{} {
	switch t := v.(type) {
	case primitive.M:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = normalizeBSON(val)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = normalizeBSON(val)
		}
		return out
	case primitive.D:
		out := make(map[string]interface{}, len(t))
		for _, e := range t {
			out[e.Key] = normalizeBSON(e.Value)
		}
		return out
	case primitive.A:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = normalizeBSON(val)
		}
		return out
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.ObjectID:
		return t.Hex()
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil
		}
		return t
	default:
		return t
	}
}
