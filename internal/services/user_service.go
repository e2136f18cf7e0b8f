package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/alb1nut/homebase/internal/auth"
	"github.com/alb1nut/homebase/internal/db"
	"github.com/alb1nut/homebase/internal/models"
	"github.com/alb1nut/homebase/internal/utils"
)

// ErrEmailExists is returned when an attempt is made to use an email that already exists.
var ErrEmailExists = errors.New("email already in use by another account")

// ErrInvalidCredentials is returned on a failed login attempt. It is the same
// for unknown emails and wrong passwords so the API does not leak which
// accounts exist.
var ErrInvalidCredentials = errors.New("invalid email or password")

// ErrAccountSuspended is returned when a suspended account attempts to log in.
var ErrAccountSuspended = errors.New("account is suspended")

// IUserService defines the interface for account operations.
// This allows for easier mocking in tests.
type IUserService interface {
	Register(ctx context.Context, email, password, fullName string, isAgent bool) (*models.User, error)
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, userID utils.SixID) (*models.User, error)
	SuspendUser(ctx context.Context, userIDToSuspend, adminUserID utils.SixID) error
	UnsuspendUser(ctx context.Context, userIDToUnsuspend utils.SixID) error
}

const usersCollection = "users"

// userService implements IUserService.
type userService struct {
	db       *mongo.Database
	agentSvc IAgentService
}

// NewUserService creates a new UserService. The agent service provisions the
// minimal directory entry for accounts registered as agents.
func NewUserService(db *mongo.Database, agentSvc IAgentService) IUserService {
	return &userService{db: db, agentSvc: agentSvc}
}

// Register creates a new account with a bcrypt password hash. When the
// account is registered as an agent, a minimal directory entry is created in
// the same call so the setup flow always has a record to complete.
func (s *userService) Register(ctx context.Context, email, password, fullName string, isAgent bool) (*models.User, error) {
	collection := s.db.Collection(usersCollection)

	// Uniqueness pre-check; the unique index on email is the real guard
	count, err := collection.CountDocuments(ctx, bson.M{"email": email})
	if err != nil {
		return nil, fmt.Errorf("error checking email uniqueness for %s: %w", email, err)
	}
	if count > 0 {
		return nil, ErrEmailExists
	}

	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password for %s: %w", email, err)
	}

	now := time.Now().UTC()
	var newUser *models.User

	operation := func() error {
		newUser = &models.User{
			Base:         models.NewBase(), // ID regenerated on each attempt
			Email:        email,
			PasswordHash: hashedPassword,
			FullName:     fullName,
			IsAgent:      isAgent,
			IsAdmin:      false,
			Suspended:    false,
			CreatedAt:    now,
			UpdatedAt:    now,
			NotificationPreferences: &models.NotificationPreferences{
				AgentContact: true,
				AgentReview:  true,
				Newsletter:   false,
			},
		}
		_, insertErr := collection.InsertOne(ctx, newUser)
		return insertErr
	}

	if err = db.Try(operation); err != nil {
		if mongo.IsDuplicateKeyError(err) && strings.Contains(err.Error(), "email_1") {
			return nil, ErrEmailExists
		}
		userIDStr := "<unknown>"
		if newUser != nil {
			userIDStr = newUser.ID.String()
		}
		return nil, fmt.Errorf("error inserting new user for %s (last attempted user ID: %s) after multiple retries: %w",
			email, userIDStr, err)
	}

	if isAgent {
		if _, agentErr := s.agentSvc.CreateMinimalAgent(ctx, newUser.ID, fullName, email); agentErr != nil {
			// The account exists; the setup flow recovers from a missing
			// directory entry, so log rather than fail registration.
			log.Printf("WARN: failed to provision agent entry for new user %s: %v", newUser.ID, agentErr)
		}
	}

	return newUser, nil
}

// Authenticate verifies an email/password pair and returns the account.
func (s *userService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !auth.CheckPasswordHash(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if user.Suspended {
		return nil, ErrAccountSuspended
	}
	return user, nil
}

// FindByEmail finds an account by its email address.
// Returns nil and mongo.ErrNoDocuments if not found.
func (s *userService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	collection := s.db.Collection(usersCollection)

	err := collection.FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding user by email %s: %w", email, err)
	}
	return &user, nil
}

// FindByID finds an account by its ID.
func (s *userService) FindByID(ctx context.Context, userID utils.SixID) (*models.User, error) {
	var user models.User
	collection := s.db.Collection(usersCollection)

	err := collection.FindOne(ctx, bson.M{"_id": userID}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding user by ID %s: %w", userID.String(), err)
	}
	return &user, nil
}

// SuspendUser marks an account as suspended.
// Ensures an admin cannot suspend themselves.
func (s *userService) SuspendUser(ctx context.Context, userIDToSuspend, adminUserID utils.SixID) error {
	if userIDToSuspend == adminUserID {
		return fmt.Errorf("admin cannot suspend themselves")
	}
	collection := s.db.Collection(usersCollection)
	update := bson.M{"$set": bson.M{"suspended": true, "updated_at": time.Now().UTC()}}
	result, err := collection.UpdateOne(ctx, bson.M{"_id": userIDToSuspend}, update)
	if err != nil {
		return fmt.Errorf("db error suspending user %s: %w", userIDToSuspend.String(), err)
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	log.Printf("User %s suspended by admin %s", userIDToSuspend.String(), adminUserID.String())
	return nil
}

// UnsuspendUser marks an account as not suspended.
func (s *userService) UnsuspendUser(ctx context.Context, userIDToUnsuspend utils.SixID) error {
	collection := s.db.Collection(usersCollection)
	update := bson.M{"$set": bson.M{"suspended": false, "updated_at": time.Now().UTC()}}
	result, err := collection.UpdateOne(ctx, bson.M{"_id": userIDToUnsuspend}, update)
	if err != nil {
		return fmt.Errorf("db error unsuspending user %s: %w", userIDToUnsuspend.String(), err)
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	log.Printf("User %s unsuspended", userIDToUnsuspend.String())
	return nil
}
