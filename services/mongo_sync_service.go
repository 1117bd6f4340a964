package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"turnover_backend/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDB collection names
const (
	MongoDBName             = "register_turnover"
	MongoTurnoverCollection = "turnover_records"
	MongoSOICollection      = "soi_snapshots"
)

// MongoMirror mirrors the turnover tables to MongoDB Atlas as an off-site
// copy for dashboards. It is strictly one-way: the pipeline never reads it,
// and mirror failures are logged, never fatal. When MONGODB_URI is unset the
// mirror is disabled and every sync is a no-op.
type MongoMirror struct {
	client      *mongo.Client
	database    *mongo.Database
	mu          sync.RWMutex
	isConnected bool
	uriSet      bool
	lastError   string
	lastSyncAt  *time.Time
}

// MongoTurnoverDoc is one mirrored turnover row
type MongoTurnoverDoc struct {
	ID                 string    `bson:"_id"` // ticker|date|venue
	Ticker             string    `bson:"ticker"`
	Date               string    `bson:"date"`
	Venue              string    `bson:"venue"`
	RegisterTurnover   float64   `bson:"register_turnover"`
	CumulativeTurnover float64   `bson:"cumulative_turnover"`
	SyncedAt           time.Time `bson:"synced_at"`
}

// MongoSOIDoc is one mirrored SOI row
type MongoSOIDoc struct {
	ID       string    `bson:"_id"` // ticker|date|venue
	Ticker   string    `bson:"ticker"`
	Date     string    `bson:"date"`
	Venue    string    `bson:"venue"`
	SOI      float64   `bson:"soi"`
	SyncedAt time.Time `bson:"synced_at"`
}

// Global mirror instance
var GlobalMongoMirror *MongoMirror

// InitMongoMirror initializes the mirror from MONGODB_URI
func InitMongoMirror(mongoURI string) error {
	if mongoURI == "" {
		log.Println("MONGODB_URI not set, Mongo mirror disabled")
		GlobalMongoMirror = &MongoMirror{
			uriSet:    false,
			lastError: "MONGODB_URI environment variable not set",
		}
		return nil
	}

	GlobalMongoMirror = &MongoMirror{uriSet: true}
	return GlobalMongoMirror.Connect(mongoURI)
}

// Connect establishes the Atlas connection
func (m *MongoMirror) Connect(mongoURI string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(mongoURI).
		SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1)).
		SetMaxPoolSize(10).
		SetConnectTimeout(30 * time.Second).
		SetRetryWrites(true)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		m.setError(fmt.Sprintf("Failed to connect: %v", err))
		log.Printf("Failed to connect to MongoDB Atlas: %v", err)
		return err
	}

	if err := client.Ping(ctx, nil); err != nil {
		m.setError(fmt.Sprintf("Failed to ping: %v", err))
		log.Printf("Failed to ping MongoDB Atlas: %v", err)
		client.Disconnect(ctx)
		return err
	}

	m.mu.Lock()
	m.client = client
	m.database = client.Database(MongoDBName)
	m.isConnected = true
	m.lastError = ""
	m.mu.Unlock()

	log.Println("MongoDB Atlas mirror connected")
	return nil
}

func (m *MongoMirror) setError(msg string) {
	m.mu.Lock()
	m.lastError = msg
	m.mu.Unlock()
}

// IsConfigured reports whether the mirror is connected and usable
func (m *MongoMirror) IsConfigured() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isConnected
}

// Status returns connection and sync state for the admin API
func (m *MongoMirror) Status() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := map[string]interface{}{
		"uri_set":   m.uriSet,
		"connected": m.isConnected,
	}
	if m.lastError != "" {
		status["error"] = m.lastError
	}
	if m.lastSyncAt != nil {
		status["last_sync_at"] = m.lastSyncAt.Format(time.RFC3339)
	}
	return status
}

// Close disconnects from Atlas
func (m *MongoMirror) Close() error {
	if m.client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return m.client.Disconnect(ctx)
	}
	return nil
}

// SyncStore mirrors the current contents of both tables. Called after each
// pipeline run and from the manual sync endpoint. Returns the number of
// documents written.
func (m *MongoMirror) SyncStore(store *TurnoverStore) (int, error) {
	if !m.IsConfigured() {
		return 0, nil
	}

	records, err := store.ListTurnover("", "")
	if err != nil {
		return 0, fmt.Errorf("failed to read turnover records: %w", err)
	}
	snaps, err := store.ListSOI("")
	if err != nil {
		return 0, fmt.Errorf("failed to read soi snapshots: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	now := time.Now()
	written := 0

	turnoverColl := m.database.Collection(MongoTurnoverCollection)
	for _, rec := range records {
		doc := MongoTurnoverDoc{
			ID:                 mirrorKey(rec.Ticker, rec.Date, rec.Venue),
			Ticker:             rec.Ticker,
			Date:               rec.Date,
			Venue:              string(rec.Venue),
			RegisterTurnover:   rec.RegisterTurnover,
			CumulativeTurnover: rec.CumulativeTurnover,
			SyncedAt:           now,
		}
		_, err := turnoverColl.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
		if err != nil {
			m.setError(fmt.Sprintf("Turnover sync failed: %v", err))
			return written, err
		}
		written++
	}

	soiColl := m.database.Collection(MongoSOICollection)
	for _, snap := range snaps {
		doc := MongoSOIDoc{
			ID:       mirrorKey(snap.Ticker, snap.Date, snap.Venue),
			Ticker:   snap.Ticker,
			Date:     snap.Date,
			Venue:    string(snap.Venue),
			SOI:      snap.SOI,
			SyncedAt: now,
		}
		_, err := soiColl.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
		if err != nil {
			m.setError(fmt.Sprintf("SOI sync failed: %v", err))
			return written, err
		}
		written++
	}

	m.mu.Lock()
	m.lastSyncAt = &now
	m.lastError = ""
	m.mu.Unlock()

	log.Printf("Mirrored %d documents to MongoDB Atlas", written)
	return written, nil
}

func mirrorKey(ticker, date string, venue models.Venue) string {
	return fmt.Sprintf("%s|%s|%s", ticker, date, venue)
}
