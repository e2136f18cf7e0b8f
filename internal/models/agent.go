package models

import (
	"time"

	"github.com/alb1nut/homebase/internal/utils"
)

// Agent represents an entry in the agent directory. UserID links the entry to
// an account; directory-only agents (seeded, unclaimed) have a zero UserID.
type Agent struct {
	Base            `bson:",inline"`
	UserID          utils.SixID `bson:"user_id,omitempty" json:"user_id,omitempty"`
	Name            string      `bson:"name" json:"name"`
	Email           string      `bson:"email,omitempty" json:"email,omitempty"`
	Title           string      `bson:"title,omitempty" json:"title,omitempty"` // Professional title, e.g. "Senior Property Consultant"
	Company         string      `bson:"company,omitempty" json:"company,omitempty"`
	Location        string      `bson:"location,omitempty" json:"location,omitempty"`
	Phone           string      `bson:"phone,omitempty" json:"phone,omitempty"`
	Bio             string      `bson:"bio,omitempty" json:"bio,omitempty"`
	Specialties     []string    `bson:"specialties,omitempty" json:"specialties,omitempty"`
	Languages       []string    `bson:"languages,omitempty" json:"languages,omitempty"`
	ExperienceYears int         `bson:"experience_years,omitempty" json:"experience_years"`
	Rating          float64     `bson:"rating,omitempty" json:"rating"` // 0 until first review
	Reviews         int         `bson:"reviews,omitempty" json:"reviews"`
	PropertiesCount int         `bson:"properties_count,omitempty" json:"properties_count"`
	SalesVolume     string      `bson:"sales_volume,omitempty" json:"sales_volume,omitempty"`
	ImageURL        string      `bson:"image_url,omitempty" json:"image_url,omitempty"`
	IsActive        bool        `bson:"is_active" json:"is_active"`
	IsVerified      bool        `bson:"is_verified" json:"is_verified"`
	CreatedAt       time.Time   `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time   `bson:"updated_at" json:"updated_at"`
}

// ProfileComplete reports whether the agent has finished onboarding.
// Title, company and bio must all be filled in; anything less sends the
// agent back through setup on sign-in.
func (a *Agent) ProfileComplete() bool {
	return a.Title != "" && a.Company != "" && a.Bio != ""
}

// AgentContact is a contact request submitted to an agent through the
// directory. Delivery to the agent happens via a background email task.
type AgentContact struct {
	ID         utils.SixID  `bson:"_id,omitempty" json:"id,omitempty"`
	AgentID    utils.SixID  `bson:"agent_id" json:"agent_id"`
	UserID     utils.SixID  `bson:"user_id,omitempty" json:"user_id,omitempty"` // If logged in
	PropertyID *utils.SixID `bson:"property_id,omitempty" json:"property_id,omitempty"`
	Name       string       `bson:"name" json:"name"`
	Email      string       `bson:"email" json:"email"` // Reply-to address
	Phone      string       `bson:"phone,omitempty" json:"phone,omitempty"`
	Message    string       `bson:"message" json:"message"`
	CreatedAt  time.Time    `bson:"created_at" json:"created_at"`
	Sent       bool         `bson:"sent" json:"sent"` // True after the background task delivers the email
}

// AgentReview is a rating left for an agent. Aggregates on the Agent record
// are recomputed by a background task, not on write.
type AgentReview struct {
	ID         utils.SixID  `bson:"_id,omitempty" json:"id,omitempty"`
	AgentID    utils.SixID  `bson:"agent_id" json:"agent_id"`
	UserID     utils.SixID  `bson:"user_id" json:"user_id"` // Reviewer
	PropertyID *utils.SixID `bson:"property_id,omitempty" json:"property_id,omitempty"`
	Rating     int          `bson:"rating" json:"rating"` // 1..5
	Text       string       `bson:"text,omitempty" json:"text,omitempty"`
	CreatedAt  time.Time    `bson:"created_at" json:"created_at"`
}
