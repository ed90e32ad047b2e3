package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	paidEmailsCollection = "paid_emails"
	usersCollection      = "users"
)

// MongoStore implements Store on top of a MongoDB database.
type MongoStore struct {
	paidEmails *mongo.Collection
	users      *mongo.Collection
}

// NewMongoStore creates a Store backed by the given database.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		paidEmails: db.Collection(paidEmailsCollection),
		users:      db.Collection(usersCollection),
	}
}

// paidEmailDoc wraps Record with the normalized email key used as the
// document ID.
type paidEmailDoc struct {
	ID     string `bson:"_id"`
	Record `bson:",inline"`
}

// GetPaidEmail implements Store.
func (s *MongoStore) GetPaidEmail(ctx context.Context, email string) (*Record, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, ErrEmailRequired
	}

	var doc paidEmailDoc
	err := s.paidEmails.FindOne(ctx, bson.M{"_id": EmailKey(email)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get paid email document: %w", err)
	}

	rec := doc.Record
	return &rec, nil
}

// SetPaidEmail implements Store.
func (s *MongoStore) SetPaidEmail(ctx context.Context, email string, rec Record) error {
	email = NormalizeEmail(email)
	if email == "" {
		return ErrEmailRequired
	}

	rec.Email = email
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}

	doc := paidEmailDoc{ID: EmailKey(email), Record: rec}
	_, err := s.paidEmails.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to set paid email document: %w", err)
	}
	return nil
}

// MergePaidEmail implements Store.
func (s *MongoStore) MergePaidEmail(ctx context.Context, email string, rec Record) error {
	email = NormalizeEmail(email)
	if email == "" {
		return ErrEmailRequired
	}

	rec.Email = email
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}

	_, err := s.paidEmails.UpdateOne(ctx,
		bson.M{"_id": EmailKey(email)},
		bson.M{"$set": premiumFields(rec)},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to merge paid email document: %w", err)
	}
	return nil
}

// GetUserByEmail implements Store.
func (s *MongoStore) GetUserByEmail(ctx context.Context, email string) (*Record, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, ErrEmailRequired
	}

	var rec Record
	err := s.users.FindOne(ctx, bson.M{"email": email}).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user document: %w", err)
	}

	return &rec, nil
}

// UpdateUserPremium implements Store.
func (s *MongoStore) UpdateUserPremium(ctx context.Context, email string, rec Record) error {
	email = NormalizeEmail(email)
	if email == "" {
		return ErrEmailRequired
	}

	rec.Email = email
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}

	_, err := s.users.UpdateOne(ctx,
		bson.M{"email": email},
		bson.M{"$set": premiumFields(rec)},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to update user premium status: %w", err)
	}
	return nil
}

// premiumFields builds the partial update used by merge operations. Only the
// premium-status fields are written so unrelated user fields survive.
func premiumFields(rec Record) bson.M {
	fields := bson.M{
		"email":              rec.Email,
		"isPremium":          rec.IsPremium,
		"cancelAtPeriodEnd":  rec.CancelAtPeriodEnd,
		"subscriptionStatus": rec.SubscriptionStatus,
		"updatedAt":          rec.UpdatedAt,
	}
	if rec.PremiumSince != nil {
		fields["premiumSince"] = *rec.PremiumSince
	}
	if rec.CustomerID != "" {
		fields["customerId"] = rec.CustomerID
	}
	if rec.SubscriptionID != "" {
		fields["subscriptionId"] = rec.SubscriptionID
	}
	return fields
}
