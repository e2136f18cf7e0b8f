package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/alb1nut/homebase/internal/config"
	"github.com/alb1nut/homebase/internal/utils"
)

func setupAgentServiceTest(t *testing.T) (*mongo.Database, IAgentService) {
	dbName := fmt.Sprintf("testdb_agent_service_%d", time.Now().UnixNano())
	db := utils.SetupTestDB(t, dbName, "agents", "agent_contacts", "agent_reviews", "properties")
	svc := NewAgentService(db, &config.Config{})
	return db, svc
}

func completeInput() AgentProfileInput {
	return AgentProfileInput{
		Name:            "Ama Mensah",
		Title:           "Senior Property Consultant",
		Company:         "Prime Homes",
		Location:        "Accra, Ghana",
		Phone:           "+233201234567",
		Bio:             "Ten years selling homes in Accra.",
		Specialties:     []string{"Residential", "Luxury Homes"},
		Languages:       []string{"English", "Twi"},
		ExperienceYears: 10,
	}
}

func TestAgentService_MinimalAgentIsIncomplete(t *testing.T) {
	_, svc := setupAgentServiceTest(t)
	ctx := context.Background()
	userID := utils.NewSixID()

	agent, err := svc.CreateMinimalAgent(ctx, userID, "Ama Mensah", "ama@example.com")
	require.NoError(t, err)
	assert.False(t, agent.ProfileComplete())
	assert.Equal(t, []string{"English"}, agent.Languages)
	assert.True(t, agent.IsActive)

	found, err := svc.FindAgentByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, agent.ID, found.ID)

	_, err = svc.FindAgentByUserID(ctx, utils.NewSixID())
	assert.True(t, errors.Is(err, mongo.ErrNoDocuments))
}

func TestAgentService_CompleteProfileUpdatesExistingEntry(t *testing.T) {
	_, svc := setupAgentServiceTest(t)
	ctx := context.Background()
	userID := utils.NewSixID()

	minimal, err := svc.CreateMinimalAgent(ctx, userID, "Ama Mensah", "ama@example.com")
	require.NoError(t, err)

	agent, err := svc.CompleteAgentProfile(ctx, userID, completeInput())
	require.NoError(t, err)
	assert.Equal(t, minimal.ID, agent.ID, "setup must complete the existing entry, not create a second one")
	assert.True(t, agent.ProfileComplete())
	assert.Equal(t, []string{"English", "Twi"}, agent.Languages)
}

func TestAgentService_CompleteProfileUpsertsWhenMissing(t *testing.T) {
	_, svc := setupAgentServiceTest(t)
	ctx := context.Background()
	userID := utils.NewSixID()

	agent, err := svc.CompleteAgentProfile(ctx, userID, completeInput())
	require.NoError(t, err)
	assert.True(t, agent.ProfileComplete())
	assert.Equal(t, userID, agent.UserID)
}

func TestAgentService_CompleteProfileRequiresAllFields(t *testing.T) {
	_, svc := setupAgentServiceTest(t)
	ctx := context.Background()

	input := completeInput()
	input.Bio = ""
	_, err := svc.CompleteAgentProfile(ctx, utils.NewSixID(), input)
	assert.Error(t, err)

	input = completeInput()
	input.Company = ""
	_, err = svc.CompleteAgentProfile(ctx, utils.NewSixID(), input)
	assert.Error(t, err)
}

func TestAgentService_FindActiveAgents(t *testing.T) {
	_, svc := setupAgentServiceTest(t)
	ctx := context.Background()

	a1, err := svc.CreateMinimalAgent(ctx, utils.NewSixID(), "First", "a@example.com")
	require.NoError(t, err)
	_, err = svc.CreateMinimalAgent(ctx, utils.NewSixID(), "Second", "b@example.com")
	require.NoError(t, err)

	agents, err := svc.FindActiveAgents(ctx)
	require.NoError(t, err)
	assert.Len(t, agents, 2)

	_ = a1
}

func TestAgentService_Contacts(t *testing.T) {
	_, svc := setupAgentServiceTest(t)
	ctx := context.Background()

	agent, err := svc.CreateMinimalAgent(ctx, utils.NewSixID(), "Ama Mensah", "ama@example.com")
	require.NoError(t, err)

	contact, err := svc.CreateContact(ctx, agent.ID, ContactInput{
		Name:    "Kwame Asante",
		Email:   "kwame@example.com",
		Message: "Is the East Legon listing still available?",
	})
	require.NoError(t, err)
	assert.False(t, contact.Sent)

	err = svc.MarkContactSent(ctx, contact.ID)
	require.NoError(t, err)

	reloaded, err := svc.FindContactByID(ctx, contact.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.Sent)

	// Message and reply-to are mandatory
	_, err = svc.CreateContact(ctx, agent.ID, ContactInput{Email: "kwame@example.com"})
	assert.Error(t, err)
	_, err = svc.CreateContact(ctx, agent.ID, ContactInput{Message: "hi"})
	assert.Error(t, err)

	// Unknown agent
	_, err = svc.CreateContact(ctx, utils.NewSixID(), ContactInput{
		Email: "kwame@example.com", Message: "hello",
	})
	assert.True(t, errors.Is(err, mongo.ErrNoDocuments))
}

func TestAgentService_ReviewsAndStatsRefresh(t *testing.T) {
	db, svc := setupAgentServiceTest(t)
	ctx := context.Background()
	agentUserID := utils.NewSixID()

	agent, err := svc.CreateMinimalAgent(ctx, agentUserID, "Ama Mensah", "ama@example.com")
	require.NoError(t, err)
	assert.Zero(t, agent.Rating)

	_, err = svc.AddReview(ctx, agent.ID, utils.NewSixID(), 5, "Great agent", nil)
	require.NoError(t, err)
	_, err = svc.AddReview(ctx, agent.ID, utils.NewSixID(), 4, "Helpful", nil)
	require.NoError(t, err)

	// Ratings outside 1..5 are rejected
	_, err = svc.AddReview(ctx, agent.ID, utils.NewSixID(), 0, "", nil)
	assert.ErrorIs(t, err, ErrInvalidRating)
	_, err = svc.AddReview(ctx, agent.ID, utils.NewSixID(), 6, "", nil)
	assert.ErrorIs(t, err, ErrInvalidRating)

	reviews, err := svc.ListReviews(ctx, agent.ID)
	require.NoError(t, err)
	assert.Len(t, reviews, 2)

	// A property owned by the agent's account counts into properties_count
	propSvc := NewPropertyService(db, &config.Config{})
	_, err = propSvc.CreateProperty(ctx, agentUserID, saleInput("Agent Listing"))
	require.NoError(t, err)

	err = svc.RefreshAgentStats(ctx, agent.ID)
	require.NoError(t, err)

	refreshed, err := svc.FindAgentByID(ctx, agent.ID)
	require.NoError(t, err)
	assert.InDelta(t, 4.5, refreshed.Rating, 0.0001)
	assert.Equal(t, 2, refreshed.Reviews)
	assert.Equal(t, 1, refreshed.PropertiesCount)
}
