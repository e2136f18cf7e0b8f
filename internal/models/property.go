package models

import (
	"time"

	"github.com/alb1nut/homebase/internal/utils"
)

// PropertyType distinguishes sale listings from rentals. Rental prices are
// monthly, sale prices are totals; price range filters bucket them separately.
type PropertyType string

const (
	PropertyTypeForSale PropertyType = "For Sale"
	PropertyTypeForRent PropertyType = "For Rent"
)

// Property represents a property listing.
type Property struct {
	ID           utils.SixID  `bson:"_id,omitempty" json:"id,omitempty"`
	UserID       utils.SixID  `bson:"user_id" json:"user_id"` // Owner (lister)
	Title        string       `bson:"title" json:"title"`
	Description  string       `bson:"description,omitempty" json:"description,omitempty"`
	Price        float64      `bson:"price" json:"price"`
	Location     string       `bson:"location" json:"location"` // Free-form, e.g. "East Legon, Accra"
	Beds         int          `bson:"beds,omitempty" json:"beds"`
	Baths        int          `bson:"baths,omitempty" json:"baths"`
	Sqft         int          `bson:"sqft,omitempty" json:"sqft"`
	PropertyType PropertyType `bson:"property_type" json:"property_type"`
	ImageURL     string       `bson:"image_url,omitempty" json:"image_url,omitempty"` // Opaque URL, never fetched server-side
	CreatedAt    time.Time    `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `bson:"updated_at" json:"updated_at"`
}
