package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/docsy-app/docsy/backend/go-services/internal/document"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoRepo implements a MongoDB-backed repository for documents.
type MongoRepo struct {
	col *mongo.Collection
}

func NewMongoRepo(col *mongo.Collection) *MongoRepo {
	// index for permission lookups by collaborator
	idxModel := mongo.IndexModel{Keys: bson.D{{Key: "collaborators.userId", Value: 1}}}
	col.Indexes().CreateOne(context.Background(), idxModel)
	return &MongoRepo{col: col}
}

func (m *MongoRepo) Create(ctx context.Context, doc *document.Document) (string, error) {
	now := time.Now().UTC()
	if doc.ID == "" {
		doc.ID = fmt.Sprintf("doc_%d", now.UnixNano())
	}
	doc.CreatedAt = now
	doc.UpdatedAt = now
	if doc.Collaborators == nil {
		doc.Collaborators = []document.Collaborator{}
	}
	if _, err := m.col.InsertOne(ctx, doc); err != nil {
		return "", err
	}
	return doc.ID, nil
}

func (m *MongoRepo) Get(ctx context.Context, id string) (*document.Document, error) {
	var d document.Document
	err := m.col.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (m *MongoRepo) UpdateContent(ctx context.Context, id, content, modifiedBy string) error {
	set := bson.M{"content": content, "lastModifiedBy": modifiedBy, "updatedAt": time.Now().UTC()}
	res, err := m.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoRepo) SetPermissions(ctx context.Context, id string, isPublic *bool, collaborators []document.Collaborator) error {
	set := bson.M{"updatedAt": time.Now().UTC()}
	if isPublic != nil {
		set["isPublic"] = *isPublic
	}
	if collaborators != nil {
		// owner/duplicate filtering needs the stored ownerId
		cur, err := m.Get(ctx, id)
		if err != nil {
			return err
		}
		set["collaborators"] = dedupeGrants(cur.OwnerID, collaborators)
	}
	res, err := m.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoRepo) AddCollaborator(ctx context.Context, id string, c document.Collaborator) error {
	// push only when the principal is not the owner and not already granted;
	// a non-matching filter here means the grant already exists, which is fine
	filter := bson.M{
		"_id":                  id,
		"ownerId":              bson.M{"$ne": c.UserID},
		"collaborators.userId": bson.M{"$ne": c.UserID},
	}
	update := bson.M{
		"$push": bson.M{"collaborators": c},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	}
	res, err := m.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		// distinguish "already granted" (ok) from "no such document"
		if _, err := m.Get(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (m *MongoRepo) Delete(ctx context.Context, id string) error {
	res, err := m.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
