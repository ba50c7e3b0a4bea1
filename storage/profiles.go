package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/blavejr/craveconnect/models"
)

// how much order history feeds the "previously ordered" signal
const recentOrderLimit = 50

// GetUserProfile assembles preferences, favorites and recent orders. It
// returns nil, nil when the user has no preferences document.
func (s *MongoStore) GetUserProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	var prefs models.UserPreferences
	err := s.database.Collection(PreferencesCollection).FindOne(ctx, bson.M{"user_id": userID}).Decode(&prefs)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}

	profile := &models.UserProfile{
		UserID:              userID,
		PreferredCuisines:   prefs.PreferredCuisines,
		DietaryRestrictions: prefs.DietaryRestrictions,
		SpiceTolerance:      prefs.SpiceTolerance,
		Allergies:           prefs.Allergies,
		FavoriteItemIDs:     map[string]struct{}{},
		OrderedItemIDs:      map[string]struct{}{},
		OrderedItemNames:    map[string]struct{}{},
	}

	var favorites []models.Favorite
	cursor, err := s.database.Collection(FavoritesCollection).Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to load favorites: %w", err)
	}
	if err := cursor.All(ctx, &favorites); err != nil {
		return nil, fmt.Errorf("failed to decode favorites: %w", err)
	}
	for _, f := range favorites {
		profile.FavoriteItemIDs[f.MenuItemID] = struct{}{}
	}

	var orders []models.Order
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(recentOrderLimit)
	cursor, err = s.database.Collection(OrdersCollection).Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load orders: %w", err)
	}
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("failed to decode orders: %w", err)
	}
	for _, o := range orders {
		for _, line := range o.Items {
			if line.MenuItemID != "" {
				profile.OrderedItemIDs[line.MenuItemID] = struct{}{}
			}
			if name := strings.ToLower(strings.TrimSpace(line.Name)); name != "" {
				profile.OrderedItemNames[name] = struct{}{}
			}
		}
	}

	return profile, nil
}

// RecordQuery stores the query and its recommendation rows.
func (s *MongoStore) RecordQuery(ctx context.Context, query models.QueryRecord, recs []models.RecommendationRecord) error {
	if _, err := s.database.Collection(QueriesCollection).InsertOne(ctx, query); err != nil {
		return fmt.Errorf("failed to insert query: %w", err)
	}
	if len(recs) == 0 {
		return nil
	}

	docs := make([]interface{}, len(recs))
	for i, r := range recs {
		docs[i] = r
	}
	if _, err := s.database.Collection(RecommendationsCollection).InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to insert recommendations: %w", err)
	}
	return nil
}
