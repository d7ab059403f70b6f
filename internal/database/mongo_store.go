package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Collection names match the documents written by earlier deployments
const (
	tokensCollection   = "tokens"
	paymentsCollection = "payments"
	logsCollection     = "logs"
)

type tokenDoc struct {
	ID      primitive.ObjectID `bson:"_id,omitempty"`
	Token   string             `bson:"token"`
	Legend  string             `bson:"legend,omitempty"`
	Credits int                `bson:"credits"`
	Created time.Time          `bson:"created"`
	Updated time.Time          `bson:"updated"`
	Expires time.Time          `bson:"expires"`
}

func (d *tokenDoc) model() *Token {
	return &Token{
		ID:      d.ID.Hex(),
		Token:   d.Token,
		Legend:  d.Legend,
		Credits: d.Credits,
		Created: d.Created,
		Updated: d.Updated,
		Expires: d.Expires,
	}
}

type paymentDoc struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	Date          time.Time          `bson:"date"`
	TransactionID string             `bson:"transactionId"`
	Reference     string             `bson:"reference"`
	Href          string             `bson:"href"`
	RegNumber     string             `bson:"regNumber"`
	VIN           string             `bson:"vin"`
	RegType       string             `bson:"regType"`
	Used          *time.Time         `bson:"used"`
}

func (d *paymentDoc) model() *Payment {
	return &Payment{
		ID:            d.ID.Hex(),
		Date:          d.Date,
		TransactionID: d.TransactionID,
		Reference:     d.Reference,
		Href:          d.Href,
		RegNumber:     d.RegNumber,
		VIN:           d.VIN,
		RegType:       d.RegType,
		Used:          d.Used,
	}
}

type logDoc struct {
	Date       time.Time `bson:"date"`
	Status     string    `bson:"status"`
	Note       string    `bson:"note"`
	QueryType  string    `bson:"queryType"`
	RegType    *string   `bson:"regType"`
	IP         string    `bson:"ip"`
	Duration   float64   `bson:"duration"`
	Route      string    `bson:"rte"`
	Version    string    `bson:"version"`
	PromoToken string    `bson:"promoToken,omitempty"`
}

// MongoStore is the MongoDB implementation of Store
type MongoStore struct {
	client   *mongo.Client
	db       *mongo.Database
	logger   zerolog.Logger
	tokens   *mongo.Collection
	payments *mongo.Collection
	logs     *mongo.Collection
}

// NewMongoStore connects to MongoDB and verifies the connection. When the URI
// names no database, database is used.
func NewMongoStore(ctx context.Context, uri, database string, logger zerolog.Logger) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	opts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(25).
		SetServerSelectionTimeout(5 * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("unable to ping mongodb: %w", err)
	}

	if cs, err := parseDatabaseName(uri); err == nil && cs != "" {
		database = cs
	}

	db := client.Database(database)
	logger = logger.With().Str("component", "mongodb").Logger()
	logger.Info().Str("database", database).Msg("Connected to MongoDB")

	return &MongoStore{
		client:   client,
		db:       db,
		logger:   logger,
		tokens:   db.Collection(tokensCollection),
		payments: db.Collection(paymentsCollection),
		logs:     db.Collection(logsCollection),
	}, nil
}

// Ping checks the primary is reachable
func (s *MongoStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return storeErr("ping", err)
	}
	return nil
}

// Migrate creates the unique and lookup indexes
func (s *MongoStore) Migrate(ctx context.Context) error {
	s.logger.Info().Msg("Ensuring MongoDB indexes")

	indexes := []struct {
		coll  *mongo.Collection
		model mongo.IndexModel
	}{
		{s.tokens, mongo.IndexModel{
			Keys:    bson.D{{Key: "token", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		{s.payments, mongo.IndexModel{
			Keys:    bson.D{{Key: "transactionId", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		{s.logs, mongo.IndexModel{Keys: bson.D{{Key: "date", Value: -1}}}},
		{s.logs, mongo.IndexModel{Keys: bson.D{{Key: "status", Value: 1}}}},
	}

	for i, idx := range indexes {
		if _, err := idx.coll.Indexes().CreateOne(ctx, idx.model); err != nil {
			return storeErr("migrate", fmt.Errorf("index %d: %w", i+1, err))
		}
	}
	return nil
}

// Close disconnects the client
func (s *MongoStore) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		return storeErr("close", err)
	}
	s.logger.Info().Msg("MongoDB connection closed")
	return nil
}

// ConsumePayment marks an unused payment as used with a single
// find-and-modify. A null or missing used field counts as unused.
func (s *MongoStore) ConsumePayment(ctx context.Context, transactionID string, now time.Time) (*Payment, error) {
	filter := bson.M{"transactionId": transactionID, "used": nil}
	update := bson.M{"$set": bson.M{"used": now}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc paymentDoc
	err := s.payments.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr("consume payment", err)
	}
	return doc.model(), nil
}

// FindPaymentByTransactionID retrieves a payment regardless of its used state
func (s *MongoStore) FindPaymentByTransactionID(ctx context.Context, transactionID string) (*Payment, error) {
	var doc paymentDoc
	err := s.payments.FindOne(ctx, bson.M{"transactionId": transactionID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr("find payment", err)
	}
	return doc.model(), nil
}

// CreatePayment inserts a new payment
func (s *MongoStore) CreatePayment(ctx context.Context, p *Payment) error {
	if p.Date.IsZero() {
		p.Date = time.Now().UTC()
	}
	doc := paymentDoc{
		Date:          p.Date,
		TransactionID: p.TransactionID,
		Reference:     p.Reference,
		Href:          p.Href,
		RegNumber:     p.RegNumber,
		VIN:           p.VIN,
		RegType:       p.RegType,
		Used:          p.Used,
	}
	res, err := s.payments.InsertOne(ctx, doc)
	if err != nil {
		return storeErr("create payment", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		p.ID = oid.Hex()
	}
	return nil
}

// ConsumeToken spends one credit of a live token with a single
// find-and-modify.
func (s *MongoStore) ConsumeToken(ctx context.Context, token string, now time.Time) (*Token, error) {
	filter := bson.M{
		"token":   token,
		"credits": bson.M{"$gt": 0},
		"expires": bson.M{"$gt": now},
	}
	update := bson.M{
		"$inc": bson.M{"credits": -1},
		"$set": bson.M{"updated": now},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc tokenDoc
	err := s.tokens.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr("consume token", err)
	}
	return doc.model(), nil
}

// FindToken retrieves a token without spending it
func (s *MongoStore) FindToken(ctx context.Context, token string) (*Token, error) {
	var doc tokenDoc
	err := s.tokens.FindOne(ctx, bson.M{"token": token}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr("find token", err)
	}
	return doc.model(), nil
}

// CreateToken inserts a new token
func (s *MongoStore) CreateToken(ctx context.Context, t *Token) error {
	now := time.Now().UTC()
	if t.Created.IsZero() {
		t.Created = now
	}
	if t.Updated.IsZero() {
		t.Updated = now
	}
	doc := tokenDoc{
		Token:   t.Token,
		Legend:  t.Legend,
		Credits: t.Credits,
		Created: t.Created,
		Updated: t.Updated,
		Expires: t.Expires,
	}
	res, err := s.tokens.InsertOne(ctx, doc)
	if err != nil {
		return storeErr("create token", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		t.ID = oid.Hex()
	}
	return nil
}

// InsertLog appends an audit record. An empty regType is stored as null.
func (s *MongoStore) InsertLog(ctx context.Context, entry *LogEntry) error {
	doc := logDoc{
		Date:       entry.Date,
		Status:     entry.Status,
		Note:       entry.Note,
		QueryType:  entry.QueryType,
		IP:         entry.IP,
		Duration:   entry.Duration,
		Route:      entry.Route,
		Version:    entry.Version,
		PromoToken: entry.PromoToken,
	}
	if entry.RegType != "" {
		rt := entry.RegType
		doc.RegType = &rt
	}
	if _, err := s.logs.InsertOne(ctx, doc); err != nil {
		return storeErr("insert log", err)
	}
	return nil
}
