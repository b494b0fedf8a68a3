package invitations

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Repository provides invitation persistence operations. The per-recipient
// rate cap is computed from persisted rows (CountRecent) so it survives
// process restarts.
type Repository interface {
	Create(ctx context.Context, inv *Invitation) error
	GetByID(ctx context.Context, id string) (*Invitation, error)
	GetByTokenHash(ctx context.Context, hash string) (*Invitation, error)
	// FindPending returns the pending invitation for (docID, email), or nil.
	FindPending(ctx context.Context, docID, email string) (*Invitation, error)
	// CountRecent counts invitations to (docID, email) created since the
	// given time, regardless of status.
	CountRecent(ctx context.Context, docID, email string, since time.Time) (int64, error)
	ListByDoc(ctx context.Context, docID string) ([]*Invitation, error)
	Update(ctx context.Context, inv *Invitation) error
	// ExpirePending transitions every pending invitation past its expiry to
	// expired and returns the number of rows changed. Idempotent.
	ExpirePending(ctx context.Context, now time.Time) (int64, error)
}

// MongoRepository implements Repository using a Mongo collection.
type MongoRepository struct {
	col *mongo.Collection
}

func NewMongoRepository(col *mongo.Collection) *MongoRepository {
	// tokenHash lookups must be unique and fast; the compound indexes serve
	// the pending-duplicate check and the expiry sweep
	ctx := context.Background()
	col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "tokenHash", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "docId", Value: 1}, {Key: "email", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "expiresAt", Value: 1}, {Key: "status", Value: 1}}},
	})
	return &MongoRepository{col: col}
}

func (r *MongoRepository) Create(ctx context.Context, inv *Invitation) error {
	now := time.Now().UTC()
	if inv.ID == "" {
		inv.ID = primitive.NewObjectID().Hex()
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = now
	}
	if inv.ExpiresAt.IsZero() {
		inv.ExpiresAt = now.Add(DefaultTTL)
	}
	if inv.Status == "" {
		inv.Status = StatusPending
	}
	_, err := r.col.InsertOne(ctx, inv)
	return err
}

func (r *MongoRepository) GetByID(ctx context.Context, id string) (*Invitation, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoRepository) GetByTokenHash(ctx context.Context, hash string) (*Invitation, error) {
	return r.findOne(ctx, bson.M{"tokenHash": hash})
}

func (r *MongoRepository) FindPending(ctx context.Context, docID, email string) (*Invitation, error) {
	return r.findOne(ctx, bson.M{"docId": docID, "email": email, "status": StatusPending})
}

func (r *MongoRepository) findOne(ctx context.Context, filter bson.M) (*Invitation, error) {
	var inv Invitation
	if err := r.col.FindOne(ctx, filter).Decode(&inv); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &inv, nil
}

func (r *MongoRepository) CountRecent(ctx context.Context, docID, email string, since time.Time) (int64, error) {
	return r.col.CountDocuments(ctx, bson.M{
		"docId":     docID,
		"email":     email,
		"createdAt": bson.M{"$gte": since},
	})
}

func (r *MongoRepository) ListByDoc(ctx context.Context, docID string) ([]*Invitation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cur, err := r.col.Find(ctx, bson.M{"docId": docID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*Invitation{}
	for cur.Next(ctx) {
		var inv Invitation
		if err := cur.Decode(&inv); err != nil {
			return nil, err
		}
		out = append(out, &inv)
	}
	return out, cur.Err()
}

func (r *MongoRepository) Update(ctx context.Context, inv *Invitation) error {
	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": inv.ID}, inv)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoRepository) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.col.UpdateMany(ctx,
		bson.M{"status": StatusPending, "expiresAt": bson.M{"$lt": now}},
		bson.M{"$set": bson.M{"status": StatusExpired}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}
