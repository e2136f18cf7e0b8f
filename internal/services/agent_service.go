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

// ErrInvalidRating is returned when a review rating is outside 1..5.
var ErrInvalidRating = errors.New("rating must be between 1 and 5")

// AgentProfileInput carries the fields an agent fills in during setup.
type AgentProfileInput struct {
	Name            string   `json:"name"`
	Title           string   `json:"title"`
	Company         string   `json:"company"`
	Location        string   `json:"location"`
	Phone           string   `json:"phone"`
	Bio             string   `json:"bio"`
	Specialties     []string `json:"specialties"`
	Languages       []string `json:"languages"`
	ExperienceYears int      `json:"experience_years"`
	ImageURL        string   `json:"image_url"`
}

// ContactInput carries a contact request submitted through the directory.
type ContactInput struct {
	UserID     utils.SixID  `json:"-"` // Zero when the sender is not logged in
	PropertyID *utils.SixID `json:"property_id"`
	Name       string       `json:"name" binding:"required"`
	Email      string       `json:"email" binding:"required,email"`
	Phone      string       `json:"phone"`
	Message    string       `json:"message" binding:"required"`
}

// IAgentService defines the interface for agent directory operations.
type IAgentService interface {
	FindActiveAgents(ctx context.Context) ([]models.Agent, error)
	FindAgentByID(ctx context.Context, agentID utils.SixID) (*models.Agent, error)
	FindAgentByUserID(ctx context.Context, userID utils.SixID) (*models.Agent, error)
	CreateMinimalAgent(ctx context.Context, userID utils.SixID, name, email string) (*models.Agent, error)
	CompleteAgentProfile(ctx context.Context, userID utils.SixID, input AgentProfileInput) (*models.Agent, error)
	CreateContact(ctx context.Context, agentID utils.SixID, input ContactInput) (*models.AgentContact, error)
	FindContactByID(ctx context.Context, contactID utils.SixID) (*models.AgentContact, error)
	MarkContactSent(ctx context.Context, contactID utils.SixID) error
	AddReview(ctx context.Context, agentID, userID utils.SixID, rating int, text string, propertyID *utils.SixID) (*models.AgentReview, error)
	ListReviews(ctx context.Context, agentID utils.SixID) ([]models.AgentReview, error)
	RefreshAgentStats(ctx context.Context, agentID utils.SixID) error
}

const (
	agentsCollection        = "agents"
	agentContactsCollection = "agent_contacts"
	agentReviewsCollection  = "agent_reviews"
)

// agentService implements IAgentService.
type agentService struct {
	db  *mongo.Database
	cfg *config.Config
}

// NewAgentService creates a new AgentService.
func NewAgentService(db *mongo.Database, cfg *config.Config) IAgentService {
	return &agentService{db: db, cfg: cfg}
}

// FindActiveAgents returns all active agents sorted by rating, best first.
// Further filtering and re-sorting happens in the search engine.
func (s *agentService) FindActiveAgents(ctx context.Context) ([]models.Agent, error) {
	collection := s.db.Collection(agentsCollection)
	opts := options.Find().SetSort(bson.D{{Key: "rating", Value: -1}})

	cursor, err := collection.Find(ctx, bson.M{"is_active": true}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query active agents: %w", err)
	}
	defer cursor.Close(ctx)

	var agents []models.Agent
	if err = cursor.All(ctx, &agents); err != nil {
		return nil, fmt.Errorf("failed to decode agents: %w", err)
	}
	return agents, nil
}

// FindAgentByID finds an agent by its directory ID.
func (s *agentService) FindAgentByID(ctx context.Context, agentID utils.SixID) (*models.Agent, error) {
	var agent models.Agent
	collection := s.db.Collection(agentsCollection)

	err := collection.FindOne(ctx, bson.M{"_id": agentID}).Decode(&agent)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding agent by ID %s: %w", agentID.String(), err)
	}
	return &agent, nil
}

// FindAgentByUserID finds the agent directory entry linked to an account.
// Returns nil and mongo.ErrNoDocuments when the account has no entry.
func (s *agentService) FindAgentByUserID(ctx context.Context, userID utils.SixID) (*models.Agent, error) {
	var agent models.Agent
	collection := s.db.Collection(agentsCollection)

	err := collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&agent)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding agent by user ID %s: %w", userID.String(), err)
	}
	return &agent, nil
}

// CreateMinimalAgent creates the bare directory entry for a freshly
// registered agent account. Title, company and bio stay empty until the
// agent completes setup, which keeps the entry in the "incomplete" state the
// sign-in flow checks for.
func (s *agentService) CreateMinimalAgent(ctx context.Context, userID utils.SixID, name, email string) (*models.Agent, error) {
	collection := s.db.Collection(agentsCollection)
	now := time.Now().UTC()

	var newAgent *models.Agent

	operation := func() error {
		newAgent = &models.Agent{
			Base:       models.NewBase(),
			UserID:     userID,
			Name:       name,
			Email:      email,
			Languages:  []string{"English"},
			IsActive:   true,
			IsVerified: false,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		_, insertErr := collection.InsertOne(ctx, newAgent)
		return insertErr
	}

	if err := db.Try(operation); err != nil {
		agentIDStr := "<unknown>"
		if newAgent != nil {
			agentIDStr = newAgent.ID.String()
		}
		return nil, fmt.Errorf("failed to insert agent entry for user %s (last attempted agent ID: %s) after multiple retries: %w",
			userID.String(), agentIDStr, err)
	}

	return newAgent, nil
}

// CompleteAgentProfile fills in the directory entry for an account from the
// setup form. Upserts: agents registered before the directory entry existed
// get one created here.
func (s *agentService) CompleteAgentProfile(ctx context.Context, userID utils.SixID, input AgentProfileInput) (*models.Agent, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	if input.Title == "" || input.Company == "" || input.Bio == "" {
		return nil, fmt.Errorf("title, company and bio are required to complete the profile")
	}
	languages := input.Languages
	if len(languages) == 0 {
		languages = []string{"English"}
	}

	collection := s.db.Collection(agentsCollection)
	now := time.Now().UTC()

	update := bson.M{
		"$set": bson.M{
			"name":             input.Name,
			"title":            input.Title,
			"company":          input.Company,
			"location":         input.Location,
			"phone":            input.Phone,
			"bio":              input.Bio,
			"specialties":      input.Specialties,
			"languages":        languages,
			"experience_years": input.ExperienceYears,
			"image_url":        input.ImageURL,
			"is_active":        true,
			"updated_at":       now,
		},
		"$setOnInsert": bson.M{
			"_id":        utils.NewSixID(),
			"user_id":    userID,
			"created_at": now,
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var agent models.Agent
	err := collection.FindOneAndUpdate(ctx, bson.M{"user_id": userID}, update, opts).Decode(&agent)
	if err != nil {
		return nil, fmt.Errorf("failed to complete agent profile for user %s: %w", userID.String(), err)
	}
	return &agent, nil
}

// CreateContact records a contact request for an agent. The email to the
// agent is delivered by a background task; Sent flips to true once it goes
// out.
func (s *agentService) CreateContact(ctx context.Context, agentID utils.SixID, input ContactInput) (*models.AgentContact, error) {
	if input.Message == "" {
		return nil, fmt.Errorf("contact request must have a message")
	}
	if input.Email == "" {
		return nil, fmt.Errorf("contact request must have a reply-to email")
	}

	// The agent must exist
	if _, err := s.FindAgentByID(ctx, agentID); err != nil {
		return nil, err
	}

	collection := s.db.Collection(agentContactsCollection)
	now := time.Now().UTC()

	var contact *models.AgentContact

	operation := func() error {
		contact = &models.AgentContact{
			ID:         utils.NewSixID(),
			AgentID:    agentID,
			UserID:     input.UserID,
			PropertyID: input.PropertyID,
			Name:       input.Name,
			Email:      input.Email,
			Phone:      input.Phone,
			Message:    input.Message,
			CreatedAt:  now,
			Sent:       false,
		}
		_, insertErr := collection.InsertOne(ctx, contact)
		return insertErr
	}

	if err := db.Try(operation); err != nil {
		return nil, fmt.Errorf("failed to insert contact request for agent %s after multiple retries: %w", agentID.String(), err)
	}

	return contact, nil
}

// FindContactByID finds a contact request by ID.
func (s *agentService) FindContactByID(ctx context.Context, contactID utils.SixID) (*models.AgentContact, error) {
	var contact models.AgentContact
	collection := s.db.Collection(agentContactsCollection)

	err := collection.FindOne(ctx, bson.M{"_id": contactID}).Decode(&contact)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding contact %s: %w", contactID.String(), err)
	}
	return &contact, nil
}

// MarkContactSent flags a contact request as delivered.
func (s *agentService) MarkContactSent(ctx context.Context, contactID utils.SixID) error {
	collection := s.db.Collection(agentContactsCollection)
	result, err := collection.UpdateOne(ctx,
		bson.M{"_id": contactID},
		bson.M{"$set": bson.M{"sent": true}})
	if err != nil {
		return fmt.Errorf("db error marking contact %s sent: %w", contactID.String(), err)
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// AddReview records a review for an agent. Aggregates on the agent document
// are recomputed by the stats refresh task, not here.
func (s *agentService) AddReview(ctx context.Context, agentID, userID utils.SixID, rating int, text string, propertyID *utils.SixID) (*models.AgentReview, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidRating
	}

	if _, err := s.FindAgentByID(ctx, agentID); err != nil {
		return nil, err
	}

	collection := s.db.Collection(agentReviewsCollection)
	now := time.Now().UTC()

	var review *models.AgentReview

	operation := func() error {
		review = &models.AgentReview{
			ID:         utils.NewSixID(),
			AgentID:    agentID,
			UserID:     userID,
			PropertyID: propertyID,
			Rating:     rating,
			Text:       text,
			CreatedAt:  now,
		}
		_, insertErr := collection.InsertOne(ctx, review)
		return insertErr
	}

	if err := db.Try(operation); err != nil {
		return nil, fmt.Errorf("failed to insert review for agent %s after multiple retries: %w", agentID.String(), err)
	}

	return review, nil
}

// ListReviews returns the reviews for an agent, newest first.
func (s *agentService) ListReviews(ctx context.Context, agentID utils.SixID) ([]models.AgentReview, error) {
	collection := s.db.Collection(agentReviewsCollection)
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := collection.Find(ctx, bson.M{"agent_id": agentID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query reviews for agent %s: %w", agentID.String(), err)
	}
	defer cursor.Close(ctx)

	var reviews []models.AgentReview
	if err = cursor.All(ctx, &reviews); err != nil {
		return nil, fmt.Errorf("failed to decode reviews for agent %s: %w", agentID.String(), err)
	}
	return reviews, nil
}

// RefreshAgentStats recomputes the denormalized rating, review count and
// properties count on the agent document from the source collections.
func (s *agentService) RefreshAgentStats(ctx context.Context, agentID utils.SixID) error {
	agent, err := s.FindAgentByID(ctx, agentID)
	if err != nil {
		return err
	}

	reviews, err := s.ListReviews(ctx, agentID)
	if err != nil {
		return err
	}

	var rating float64
	if len(reviews) > 0 {
		total := 0
		for _, r := range reviews {
			total += r.Rating
		}
		rating = float64(total) / float64(len(reviews))
	}

	var propertiesCount int64
	if agent.UserID != (utils.SixID{}) {
		propertiesCount, err = s.db.Collection(propertiesCollection).CountDocuments(ctx, bson.M{"user_id": agent.UserID})
		if err != nil {
			return fmt.Errorf("failed to count properties for agent %s: %w", agentID.String(), err)
		}
	}

	update := bson.M{"$set": bson.M{
		"rating":           rating,
		"reviews":          len(reviews),
		"properties_count": propertiesCount,
		"updated_at":       time.Now().UTC(),
	}}
	result, err := s.db.Collection(agentsCollection).UpdateOne(ctx, bson.M{"_id": agentID}, update)
	if err != nil {
		return fmt.Errorf("db error refreshing stats for agent %s: %w", agentID.String(), err)
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}
