package models

import (
	"time"
)

// MenuItem is a dish in the catalogue. Embedding is produced once at
// indexing time and regenerated whenever the item is re-indexed.
type MenuItem struct {
	ID             string         `bson:"_id" json:"id"`
	RestaurantID   string         `bson:"restaurant_id" json:"restaurant_id"`
	RestaurantName string         `bson:"restaurant_name,omitempty" json:"restaurant_name,omitempty"`
	Name           string         `bson:"name" json:"name" binding:"required"`
	Description    string         `bson:"description" json:"description"`
	Price          float64        `bson:"price" json:"price"`
	Category       string         `bson:"category,omitempty" json:"category,omitempty"`
	Tags           []string       `bson:"tags,omitempty" json:"tags,omitempty"`
	Allergens      []string       `bson:"allergens,omitempty" json:"allergens,omitempty"`
	Meta           MenuItemMeta   `bson:"meta" json:"meta"`
	IsActive       bool           `bson:"is_active" json:"is_active"`
	Embedding      []float32      `bson:"embedding,omitempty" json:"-"`
	EmbeddingModel string         `bson:"embedding_model,omitempty" json:"-"`
	Extra          map[string]any `bson:"extra,omitempty" json:"extra,omitempty"`
	UpdatedAt      time.Time      `bson:"updated_at" json:"updated_at"`
}

type MenuItemMeta struct {
	Cuisine    string `bson:"cuisine,omitempty" json:"cuisine,omitempty"`
	SpiceLevel string `bson:"spice_level,omitempty" json:"spice_level,omitempty"`
}

// SpiceTolerance values shared by preferences and item meta.
const (
	SpiceLow    = "LOW"
	SpiceMedium = "MEDIUM"
	SpiceHigh   = "HIGH"
)

// UserPreferences is the stored preferences document for one user.
type UserPreferences struct {
	UserID              string   `bson:"user_id" json:"user_id"`
	PreferredCuisines   []string `bson:"preferred_cuisines" json:"preferred_cuisines"`
	DietaryRestrictions []string `bson:"dietary_restrictions" json:"dietary_restrictions"`
	SpiceTolerance      string   `bson:"spice_tolerance" json:"spice_tolerance"`
	Allergies           []string `bson:"allergies" json:"allergies"`
}

type Favorite struct {
	UserID     string `bson:"user_id" json:"user_id"`
	MenuItemID string `bson:"menu_item_id" json:"menu_item_id"`
}

type Order struct {
	ID        string      `bson:"_id" json:"id"`
	UserID    string      `bson:"user_id" json:"user_id"`
	Items     []OrderLine `bson:"items" json:"items"`
	CreatedAt time.Time   `bson:"created_at" json:"created_at"`
}

type OrderLine struct {
	MenuItemID string `bson:"menu_item_id,omitempty" json:"menu_item_id,omitempty"`
	Name       string `bson:"name" json:"name"`
	Quantity   int    `bson:"quantity" json:"quantity"`
}

// UserProfile is the read-only projection the personalization scorer works
// from. It is assembled per request and never written back.
type UserProfile struct {
	UserID              string
	PreferredCuisines   []string
	DietaryRestrictions []string
	SpiceTolerance      string
	Allergies           []string
	FavoriteItemIDs     map[string]struct{}
	OrderedItemIDs      map[string]struct{}
	// lower-cased dish names from order history line items
	OrderedItemNames map[string]struct{}
}

// RestaurantMenuCount is one row of the catalogue distribution shown in debug info.
type RestaurantMenuCount struct {
	RestaurantName string `bson:"_id" json:"restaurant_name"`
	MenuCount      int    `bson:"menu_count" json:"menu_count"`
}

type IndexMenuItemsRequest struct {
	Items []MenuItem `json:"items" binding:"required,min=1,dive"`
}

type IndexMenuItemsResponse struct {
	Indexed          int    `json:"indexed"`
	Model            string `json:"model"`
	ProcessingTimeMs int64  `json:"processing_time_ms"`
	Status           string `json:"status"`
}
