package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/alb1nut/homebase/internal/models"
	"github.com/alb1nut/homebase/internal/utils"
)

// IProfileService defines the interface for user profile operations.
type IProfileService interface {
	GetOrCreateProfile(ctx context.Context, user *models.User) (*models.UserProfile, error)
	UpdateProfile(ctx context.Context, userID utils.SixID, updates map[string]interface{}) (*models.UserProfile, error)
}

const profilesCollection = "user_profiles"

// profileService implements IProfileService.
type profileService struct {
	db *mongo.Database
}

// NewProfileService creates a new ProfileService.
func NewProfileService(db *mongo.Database) IProfileService {
	return &profileService{db: db}
}

// GetOrCreateProfile returns the profile for an account, creating it on
// first access. Accounts never require a profile row to exist up front; the
// row materializes the first time anything reads it. The upsert makes
// concurrent first reads safe: exactly one row per account.
func (s *profileService) GetOrCreateProfile(ctx context.Context, user *models.User) (*models.UserProfile, error) {
	collection := s.db.Collection(profilesCollection)
	now := time.Now().UTC()

	update := bson.M{
		"$setOnInsert": bson.M{
			"_id":                 utils.NewSixID(),
			"user_id":             user.ID,
			"full_name":           user.FullName,
			"is_agent":            user.IsAgent,
			"is_verified":         false,
			"email_notifications": true,
			"sms_notifications":   false,
			"created_at":          now,
			"updated_at":          now,
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var profile models.UserProfile
	err := collection.FindOneAndUpdate(ctx, bson.M{"user_id": user.ID}, update, opts).Decode(&profile)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create profile for user %s: %w", user.ID.String(), err)
	}
	return &profile, nil
}

// UpdateProfile updates mutable profile fields for an account.
func (s *profileService) UpdateProfile(ctx context.Context, userID utils.SixID, updates map[string]interface{}) (*models.UserProfile, error) {
	collection := s.db.Collection(profilesCollection)

	allowedUpdates := bson.M{}
	for key, value := range updates {
		switch key {
		case "full_name", "phone", "bio", "location", "avatar_url", "email_notifications", "sms_notifications":
			allowedUpdates[key] = value
		default:
			return nil, fmt.Errorf("field '%s' cannot be updated via UpdateProfile", key)
		}
	}
	if len(allowedUpdates) == 0 {
		return nil, fmt.Errorf("no valid fields provided for update")
	}
	allowedUpdates["updated_at"] = time.Now().UTC()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var profile models.UserProfile
	err := collection.FindOneAndUpdate(ctx, bson.M{"user_id": userID}, bson.M{"$set": allowedUpdates}, opts).Decode(&profile)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("failed to update profile for user %s: %w", userID.String(), err)
	}
	return &profile, nil
}
