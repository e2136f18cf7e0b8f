package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/alb1nut/homebase/internal/config"
	"github.com/alb1nut/homebase/internal/db"
	"github.com/alb1nut/homebase/internal/models"
	"github.com/alb1nut/homebase/internal/utils"
)

// ErrNotPropertyOwner is returned when a mutation targets a property owned by
// someone else.
var ErrNotPropertyOwner = errors.New("property does not belong to user")

// PropertyInput carries the caller-supplied fields for creating a property.
type PropertyInput struct {
	Title        string              `json:"title"`
	Description  string              `json:"description"`
	Price        float64             `json:"price"`
	Location     string              `json:"location"`
	Beds         int                 `json:"beds"`
	Baths        int                 `json:"baths"`
	Sqft         int                 `json:"sqft"`
	PropertyType models.PropertyType `json:"property_type"`
	ImageURL     string              `json:"image_url"`
}

// IPropertyService defines the interface for property listing operations.
type IPropertyService interface {
	CreateProperty(ctx context.Context, userID utils.SixID, input PropertyInput) (*models.Property, error)
	FindPropertyByID(ctx context.Context, propertyID utils.SixID) (*models.Property, error)
	FindAllProperties(ctx context.Context) ([]models.Property, error)
	FindPropertiesByUserID(ctx context.Context, userID utils.SixID) ([]models.Property, error)
	CountPropertiesByUserID(ctx context.Context, userID utils.SixID) (int64, error)
	UpdateProperty(ctx context.Context, propertyID, userID utils.SixID, updates map[string]interface{}) (*models.Property, error)
	DeleteProperty(ctx context.Context, propertyID, userID utils.SixID) error
}

const propertiesCollection = "properties"

// propertyService implements IPropertyService.
type propertyService struct {
	db  *mongo.Database
	cfg *config.Config
}

// NewPropertyService creates a new PropertyService.
func NewPropertyService(db *mongo.Database, cfg *config.Config) IPropertyService {
	return &propertyService{db: db, cfg: cfg}
}

func validatePropertyInput(input *PropertyInput) error {
	if input.Title == "" {
		return fmt.Errorf("title is required")
	}
	if input.Location == "" {
		return fmt.Errorf("location is required")
	}
	if input.Price <= 0 {
		return fmt.Errorf("price must be positive")
	}
	if input.PropertyType != models.PropertyTypeForSale && input.PropertyType != models.PropertyTypeForRent {
		return fmt.Errorf("invalid property type: %s", input.PropertyType)
	}
	return nil
}

// CreateProperty creates a new property listing owned by userID.
func (s *propertyService) CreateProperty(ctx context.Context, userID utils.SixID, input PropertyInput) (*models.Property, error) {
	if err := validatePropertyInput(&input); err != nil {
		return nil, err
	}

	collection := s.db.Collection(propertiesCollection)
	now := time.Now().UTC()

	var newProperty *models.Property

	operation := func() error {
		newProperty = &models.Property{
			ID:           utils.NewSixID(),
			UserID:       userID,
			Title:        input.Title,
			Description:  input.Description,
			Price:        input.Price,
			Location:     input.Location,
			Beds:         input.Beds,
			Baths:        input.Baths,
			Sqft:         input.Sqft,
			PropertyType: input.PropertyType,
			ImageURL:     input.ImageURL,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		_, insertErr := collection.InsertOne(ctx, newProperty)
		return insertErr
	}

	if err := db.Try(operation); err != nil {
		propertyIDStr := "<unknown>"
		if newProperty != nil {
			propertyIDStr = newProperty.ID.String()
		}
		return nil, fmt.Errorf("failed to insert new property for user %s (last attempted property ID: %s) after multiple retries: %w",
			userID.String(), propertyIDStr, err)
	}

	return newProperty, nil
}

// FindPropertyByID finds a property by its ID. It does NOT check ownership.
func (s *propertyService) FindPropertyByID(ctx context.Context, propertyID utils.SixID) (*models.Property, error) {
	var property models.Property
	collection := s.db.Collection(propertiesCollection)

	err := collection.FindOne(ctx, bson.M{"_id": propertyID}).Decode(&property)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding property by ID %s: %w", propertyID.String(), err)
	}
	return &property, nil
}

// FindAllProperties returns all properties, newest first. Filtering happens
// in-memory in the search engine, so this returns the full set in the order
// the browse pages rely on.
func (s *propertyService) FindAllProperties(ctx context.Context) ([]models.Property, error) {
	collection := s.db.Collection(propertiesCollection)
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query properties: %w", err)
	}
	defer cursor.Close(ctx)

	var properties []models.Property
	if err = cursor.All(ctx, &properties); err != nil {
		return nil, fmt.Errorf("failed to decode properties: %w", err)
	}
	return properties, nil
}

// FindPropertiesByUserID returns the properties owned by a user, newest first.
func (s *propertyService) FindPropertiesByUserID(ctx context.Context, userID utils.SixID) ([]models.Property, error) {
	collection := s.db.Collection(propertiesCollection)
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query properties for user %s: %w", userID.String(), err)
	}
	defer cursor.Close(ctx)

	var properties []models.Property
	if err = cursor.All(ctx, &properties); err != nil {
		return nil, fmt.Errorf("failed to decode properties for user %s: %w", userID.String(), err)
	}
	return properties, nil
}

// CountPropertiesByUserID counts the properties owned by a user.
func (s *propertyService) CountPropertiesByUserID(ctx context.Context, userID utils.SixID) (int64, error) {
	collection := s.db.Collection(propertiesCollection)
	count, err := collection.CountDocuments(ctx, bson.M{"user_id": userID})
	if err != nil {
		return 0, fmt.Errorf("failed to count properties for user %s: %w", userID.String(), err)
	}
	return count, nil
}

// UpdateProperty updates mutable fields of a property owned by the specified
// user. `updates` maps BSON field names to new values; ownership and ID can
// never change through this path.
func (s *propertyService) UpdateProperty(ctx context.Context, propertyID, userID utils.SixID, updates map[string]interface{}) (*models.Property, error) {
	collection := s.db.Collection(propertiesCollection)

	allowedUpdates := bson.M{}
	for key, value := range updates {
		switch key {
		case "title", "description", "price", "location", "beds", "baths", "sqft", "property_type", "image_url":
			allowedUpdates[key] = value
		default:
			return nil, fmt.Errorf("field '%s' cannot be updated via UpdateProperty", key)
		}
	}
	if len(allowedUpdates) == 0 {
		return nil, fmt.Errorf("no valid fields provided for update")
	}
	if pt, ok := allowedUpdates["property_type"]; ok {
		if pts, isStr := pt.(string); isStr {
			if models.PropertyType(pts) != models.PropertyTypeForSale && models.PropertyType(pts) != models.PropertyTypeForRent {
				return nil, fmt.Errorf("invalid property type: %s", pts)
			}
		}
	}
	allowedUpdates["updated_at"] = time.Now().UTC()

	filter := bson.M{
		"_id":     propertyID,
		"user_id": userID,
	}
	update := bson.M{"$set": allowedUpdates}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updatedProperty models.Property
	err := collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updatedProperty)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			// Distinguish missing from not-owned for a useful error
			var existing models.Property
			errCheck := collection.FindOne(ctx, bson.M{"_id": propertyID}).Decode(&existing)
			if errors.Is(errCheck, mongo.ErrNoDocuments) {
				return nil, mongo.ErrNoDocuments
			}
			return nil, ErrNotPropertyOwner
		}
		return nil, fmt.Errorf("failed to update property %s: %w", propertyID.String(), err)
	}

	return &updatedProperty, nil
}

// DeleteProperty permanently removes a property owned by the specified user.
// Deletion is hard: the record is gone, there is no tombstone to filter out
// of searches.
func (s *propertyService) DeleteProperty(ctx context.Context, propertyID, userID utils.SixID) error {
	collection := s.db.Collection(propertiesCollection)

	result, err := collection.DeleteOne(ctx, bson.M{"_id": propertyID, "user_id": userID})
	if err != nil {
		return fmt.Errorf("db error deleting property %s: %w", propertyID.String(), err)
	}
	if result.DeletedCount == 0 {
		var existing models.Property
		errCheck := collection.FindOne(ctx, bson.M{"_id": propertyID}).Decode(&existing)
		if errors.Is(errCheck, mongo.ErrNoDocuments) {
			return mongo.ErrNoDocuments
		}
		return ErrNotPropertyOwner
	}
	return nil
}
