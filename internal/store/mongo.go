package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lumenfest/core/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	collSubscriptions = "subscriptions"
	collRateLimits    = "rateLimits"
	collMetrics       = "subscriptionMetrics"
	collAbuseLog      = "abuseLog"

	connectTimeout = 10 * time.Second
)

var _ Store = (*Mongo)(nil)

// Mongo implements Store on a MongoDB database.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect opens a MongoDB client and verifies connectivity.
func Connect(ctx context.Context, uri, database string) (*Mongo, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("mongo ping failed: %w", err)
	}
	return &Mongo{client: client, db: client.Database(database)}, nil
}

// Close disconnects the underlying client.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// Ping verifies the connection is alive.
func (m *Mongo) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

func (m *Mongo) GetSubscription(ctx context.Context, emailHash string) (*models.SubscriptionRecord, error) {
	var rec models.SubscriptionRecord
	err := m.db.Collection(collSubscriptions).FindOne(ctx, bson.M{"_id": emailHash}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return &rec, nil
}

func (m *Mongo) PutSubscription(ctx context.Context, rec *models.SubscriptionRecord) error {
	_, err := m.db.Collection(collSubscriptions).ReplaceOne(ctx,
		bson.M{"_id": rec.EmailHash}, rec, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("put subscription: %w", err)
	}
	return nil
}

func (m *Mongo) FindSubscriptionByToken(ctx context.Context, token string) (*models.SubscriptionRecord, error) {
	var rec models.SubscriptionRecord
	err := m.db.Collection(collSubscriptions).FindOne(ctx, bson.M{"unsubscribeToken": token}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find subscription by token: %w", err)
	}
	return &rec, nil
}

func (m *Mongo) ListSubscriptions(ctx context.Context, offset, limit int64) ([]models.SubscriptionRecord, int64, error) {
	coll := m.db.Collection(collSubscriptions)
	total, err := coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, fmt.Errorf("count subscriptions: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(offset).
		SetLimit(limit)
	cur, err := coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list subscriptions: %w", err)
	}
	defer cur.Close(ctx)

	var recs []models.SubscriptionRecord
	if err := cur.All(ctx, &recs); err != nil {
		return nil, 0, fmt.Errorf("decode subscriptions: %w", err)
	}
	return recs, total, nil
}

// rateKey builds the document id for a counter, e.g. "byIP:ab12..." or
// "global:hourly".
func rateKey(scope, key string) string { return scope + ":" + key }

func (m *Mongo) GetRateCounter(ctx context.Context, scope, key string) (*models.RateCounter, error) {
	var doc struct {
		models.RateCounter `bson:",inline"`
		ID                 string `bson:"_id"`
	}
	err := m.db.Collection(collRateLimits).FindOne(ctx, bson.M{"_id": rateKey(scope, key)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get rate counter: %w", err)
	}
	c := doc.RateCounter
	return &c, nil
}

func (m *Mongo) PutRateCounter(ctx context.Context, scope, key string, counter *models.RateCounter) error {
	update := bson.M{"$set": bson.M{
		"count":         counter.Count,
		"windowStart":   counter.WindowStart,
		"lastAttempt":   counter.LastAttempt,
		"blockedUntil":  counter.BlockedUntil,
		"totalAttempts": counter.TotalAttempts,
		"updatedAt":     time.Now().UTC(),
	}}
	_, err := m.db.Collection(collRateLimits).UpdateOne(ctx,
		bson.M{"_id": rateKey(scope, key)}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("put rate counter: %w", err)
	}
	return nil
}

func (m *Mongo) PurgeRateCounters(ctx context.Context, cutoff int64) (int64, error) {
	filter := bson.M{
		"lastAttempt": bson.M{"$lt": cutoff},
		"$or": []bson.M{
			{"blockedUntil": bson.M{"$exists": false}},
			{"blockedUntil": bson.M{"$lt": time.Now().UnixMilli()}},
		},
	}
	res, err := m.db.Collection(collRateLimits).DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("purge rate counters: %w", err)
	}
	return res.DeletedCount, nil
}

func (m *Mongo) BumpDailyMetrics(ctx context.Context, date string, delta MetricsDelta) error {
	inc := bson.M{
		"newSubscriptions": delta.NewSubscriptions,
		"unsubscriptions":  delta.Unsubscriptions,
		"netGrowth":        delta.NewSubscriptions - delta.Unsubscriptions,
		"rateLimited":      delta.RateLimited,
		"spamAttempts":     delta.SpamAttempts,
	}
	update := bson.M{
		"$inc":         inc,
		"$setOnInsert": bson.M{"createdAt": time.Now().UTC()},
		"$set":         bson.M{"updatedAt": time.Now().UTC()},
	}
	if delta.IPHash != "" {
		update["$addToSet"] = bson.M{"ipHashes": delta.IPHash}
	}
	_, err := m.db.Collection(collMetrics).UpdateOne(ctx,
		bson.M{"_id": date}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("bump daily metrics: %w", err)
	}
	return nil
}

func (m *Mongo) GetDailyMetrics(ctx context.Context, date string) (*models.DailyMetrics, error) {
	var doc models.DailyMetrics
	err := m.db.Collection(collMetrics).FindOne(ctx, bson.M{"_id": date}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get daily metrics: %w", err)
	}
	doc.UniqueIPs = len(doc.IPHashes)
	return &doc, nil
}

func (m *Mongo) AppendAbuseEvent(ctx context.Context, event models.AbuseEvent) error {
	_, err := m.db.Collection(collAbuseLog).InsertOne(ctx, event)
	if err != nil {
		return fmt.Errorf("append abuse event: %w", err)
	}
	return nil
}

func (m *Mongo) ListAbuseEvents(ctx context.Context, limit int64) ([]models.AbuseEvent, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(limit)
	cur, err := m.db.Collection(collAbuseLog).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list abuse events: %w", err)
	}
	defer cur.Close(ctx)

	var events []models.AbuseEvent
	if err := cur.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("decode abuse events: %w", err)
	}
	return events, nil
}
