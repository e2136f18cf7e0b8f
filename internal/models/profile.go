package models

import (
	"time"

	"github.com/alb1nut/homebase/internal/utils"
)

// UserProfile holds display data for an account. It is created lazily on the
// first profile read so accounts never require a profile row to exist.
type UserProfile struct {
	Base               `bson:",inline"`
	UserID             utils.SixID `bson:"user_id" json:"user_id"` // One profile per account
	FullName           string      `bson:"full_name,omitempty" json:"full_name,omitempty"`
	Phone              string      `bson:"phone,omitempty" json:"phone,omitempty"`
	Bio                string      `bson:"bio,omitempty" json:"bio,omitempty"`
	Location           string      `bson:"location,omitempty" json:"location,omitempty"`
	AvatarURL          string      `bson:"avatar_url,omitempty" json:"avatar_url,omitempty"`
	IsAgent            bool        `bson:"is_agent" json:"is_agent"`
	IsVerified         bool        `bson:"is_verified" json:"is_verified"`
	EmailNotifications bool        `bson:"email_notifications" json:"email_notifications"`
	SmsNotifications   bool        `bson:"sms_notifications" json:"sms_notifications"`
	CreatedAt          time.Time   `bson:"created_at" json:"created_at"`
	UpdatedAt          time.Time   `bson:"updated_at" json:"updated_at"`
}
