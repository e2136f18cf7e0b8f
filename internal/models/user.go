package models

import (
	"time"
)

// NotificationPreferences controls which email notifications an account receives.
type NotificationPreferences struct {
	AgentContact bool `bson:"agent_contact" json:"agent_contact"`
	AgentReview  bool `bson:"agent_review" json:"agent_review"`
	Newsletter   bool `bson:"newsletter" json:"newsletter"`
}

// User represents an account in the system.
type User struct {
	Base                    `bson:",inline"`
	Email                   string                   `bson:"email" json:"email"`
	PasswordHash            string                   `bson:"password" json:"-"` // bcrypt hash, never the plaintext
	FullName                string                   `bson:"full_name" json:"full_name"`
	IsAgent                 bool                     `bson:"is_agent" json:"is_agent"` // Chosen at signup; provisions a directory entry
	IsAdmin                 bool                     `bson:"is_admin" json:"is_admin"`
	Suspended               bool                     `bson:"suspended" json:"suspended"`
	NotificationPreferences *NotificationPreferences `bson:"notification_preferences,omitempty" json:"notification_preferences,omitempty"`
	CreatedAt               time.Time                `bson:"created_at" json:"created_at"`
	UpdatedAt               time.Time                `bson:"updated_at" json:"updated_at"`
}
