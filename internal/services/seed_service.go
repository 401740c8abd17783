package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"seedbed/internal/models"
	"seedbed/internal/projection"
	"seedbed/pkg/utils"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SeedService is the write side for seeds, tags and sprouts. Every edit
// is a transaction append; nothing here ever mutates projected state
// directly.
type SeedService struct {
	db     *gorm.DB
	txs    *TransactionService
	logger *logrus.Logger
}

func NewSeedService(db *gorm.DB, txs *TransactionService, logger *logrus.Logger) *SeedService {
	if logger == nil {
		logger = logrus.New()
	}
	return &SeedService{db: db, txs: txs, logger: logger}
}

// CreateSeed inserts the identity row and the create_seed transaction
// that seeds the log.
func (s *SeedService) CreateSeed(ctx context.Context, userID, content string, tags, categories []string) (*models.Seed, error) {
	if !utils.ValidateContent(content) {
		return nil, fmt.Errorf("content must be between 1 and 65536 bytes")
	}
	seed := &models.Seed{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(seed).Error; err != nil {
		return nil, fmt.Errorf("create seed: %w", err)
	}
	data, err := json.Marshal(map[string]interface{}{
		"content":    content,
		"tags":       tags,
		"categories": categories,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal create_seed data: %w", err)
	}
	if err := s.txs.Append(ctx, &models.Transaction{
		OwnerID: seed.ID,
		Type:    models.TxCreateSeed,
		Data:    string(data),
	}); err != nil {
		return nil, err
	}
	return seed, nil
}

// GetSeed projects the seed's current state.
func (s *SeedService) GetSeed(ctx context.Context, seedID string) (*projection.SeedState, error) {
	return s.txs.ProjectSeed(ctx, seedID)
}

// EditContent appends an edit_content transaction.
func (s *SeedService) EditContent(ctx context.Context, seedID, content string) error {
	if !utils.ValidateContent(content) {
		return fmt.Errorf("content must be between 1 and 65536 bytes")
	}
	return s.appendKV(ctx, seedID, models.TxEditContent, map[string]string{"content": content})
}

func (s *SeedService) AddTag(ctx context.Context, seedID, tagID string) error {
	return s.appendKV(ctx, seedID, models.TxAddTag, map[string]string{"tag_id": tagID})
}

func (s *SeedService) RemoveTag(ctx context.Context, seedID, tagID string) error {
	return s.appendKV(ctx, seedID, models.TxRemoveTag, map[string]string{"tag_id": tagID})
}

func (s *SeedService) SetCategory(ctx context.Context, seedID, categoryID string) error {
	return s.appendKV(ctx, seedID, models.TxSetCategory, map[string]string{"category_id": categoryID})
}

func (s *SeedService) RemoveCategory(ctx context.Context, seedID, categoryID string) error {
	return s.appendKV(ctx, seedID, models.TxRemoveCategory, map[string]string{"category_id": categoryID})
}

func (s *SeedService) SetMetadata(ctx context.Context, seedID, key, value string) error {
	return s.appendKV(ctx, seedID, models.TxSetMetadata, map[string]string{"key": key, "value": value})
}

func (s *SeedService) appendKV(ctx context.Context, ownerID string, txType models.TransactionType, fields map[string]string) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal %s data: %w", txType, err)
	}
	return s.txs.Append(ctx, &models.Transaction{
		OwnerID: ownerID,
		Type:    txType,
		Data:    string(data),
	})
}

// SeedsByCategories projects every seed and keeps those whose current
// category set intersects the given ids. Seeds whose logs fail to load
// are skipped with a warning; one bad log never sinks the batch.
func (s *SeedService) SeedsByCategories(ctx context.Context, categoryIDs []string) ([]*projection.SeedState, error) {
	wanted := map[string]struct{}{}
	for _, id := range categoryIDs {
		wanted[id] = struct{}{}
	}

	var seeds []models.Seed
	if err := s.db.WithContext(ctx).Find(&seeds).Error; err != nil {
		return nil, fmt.Errorf("list seeds: %w", err)
	}

	var out []*projection.SeedState
	for _, seed := range seeds {
		state, err := s.txs.ProjectSeed(ctx, seed.ID)
		if err != nil {
			s.logger.Warnf("seeds by category: project %s: %v", seed.ID, err)
			continue
		}
		state.UserID = seed.UserID
		for _, c := range state.Categories {
			if _, ok := wanted[c]; ok {
				out = append(out, state)
				break
			}
		}
	}
	return out, nil
}

// ListSeeds returns projected states for all of a user's seeds. Used by
// the batch classifier's scheduler.
func (s *SeedService) ListSeeds(ctx context.Context, userID string) ([]*projection.SeedState, error) {
	var seeds []models.Seed
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&seeds).Error; err != nil {
		return nil, fmt.Errorf("list seeds: %w", err)
	}
	var out []*projection.SeedState
	for _, seed := range seeds {
		state, err := s.txs.ProjectSeed(ctx, seed.ID)
		if err != nil {
			s.logger.Warnf("list seeds: project %s: %v", seed.ID, err)
			continue
		}
		state.UserID = seed.UserID
		out = append(out, state)
	}
	return out, nil
}

// ListAllSeeds returns projected states for every seed. Used by the
// batch classification scheduler.
func (s *SeedService) ListAllSeeds(ctx context.Context) ([]*projection.SeedState, error) {
	var seeds []models.Seed
	if err := s.db.WithContext(ctx).Find(&seeds).Error; err != nil {
		return nil, fmt.Errorf("list seeds: %w", err)
	}
	var out []*projection.SeedState
	for _, seed := range seeds {
		state, err := s.txs.ProjectSeed(ctx, seed.ID)
		if err != nil {
			s.logger.Warnf("list all seeds: project %s: %v", seed.ID, err)
			continue
		}
		state.UserID = seed.UserID
		out = append(out, state)
	}
	return out, nil
}

// CreateSprout inserts the sprout identity row plus its creation
// transaction. Sprouts consolidate the legacy follow-up and musing
// records under one schema with a sprout_type discriminator.
func (s *SeedService) CreateSprout(ctx context.Context, seedID, userID string, sproutType models.SproutType, message string, dueTime *time.Time) (*models.Sprout, error) {
	if message == "" {
		return nil, fmt.Errorf("message required")
	}
	sprout := &models.Sprout{
		ID:         uuid.NewString(),
		SeedID:     seedID,
		UserID:     userID,
		SproutType: sproutType,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(sprout).Error; err != nil {
		return nil, fmt.Errorf("create sprout: %w", err)
	}
	fields := map[string]string{
		"sprout_type": string(sproutType),
		"message":     message,
	}
	if dueTime != nil {
		fields["due_time"] = dueTime.UTC().Format(time.RFC3339)
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal creation data: %w", err)
	}
	if err := s.txs.Append(ctx, &models.Transaction{
		OwnerID: sprout.ID,
		Type:    models.TxCreation,
		Data:    string(data),
	}); err != nil {
		return nil, err
	}
	return sprout, nil
}

// CreateTag inserts a tag identity row plus its creation transaction.
func (s *SeedService) CreateTag(ctx context.Context, userID, name, color string) (*models.Tag, error) {
	if name == "" {
		return nil, fmt.Errorf("name required")
	}
	tag := &models.Tag{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(tag).Error; err != nil {
		return nil, fmt.Errorf("create tag: %w", err)
	}
	data, err := json.Marshal(map[string]string{"name": name, "color": color})
	if err != nil {
		return nil, fmt.Errorf("marshal creation data: %w", err)
	}
	if err := s.txs.Append(ctx, &models.Transaction{
		OwnerID: tag.ID,
		Type:    models.TxCreation,
		Data:    string(data),
	}); err != nil {
		return nil, err
	}
	return tag, nil
}
