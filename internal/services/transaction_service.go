package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"seedbed/internal/models"
	"seedbed/internal/projection"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// TransactionService is the append-only log store. Payloads are validated
// here, at append time; projection downstream never re-validates.
type TransactionService struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewTransactionService(db *gorm.DB, logger *logrus.Logger) *TransactionService {
	if logger == nil {
		logger = logrus.New()
	}
	return &TransactionService{db: db, logger: logger}
}

// Append validates and inserts a single transaction. The insert is a
// single-row write; no cross-entity locking is needed. Missing id and
// timestamp are assigned here so no two appends share an id.
func (s *TransactionService) Append(ctx context.Context, tx *models.Transaction) error {
	if tx == nil {
		return fmt.Errorf("transaction required")
	}
	if tx.OwnerID == "" {
		return fmt.Errorf("owner id required")
	}
	if err := validatePayload(tx.Type, tx.Data); err != nil {
		return fmt.Errorf("invalid %s transaction: %w", tx.Type, err)
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	// Seq breaks created_at ties per owner. The unique (owner_id, seq)
	// index makes the assignment race-safe: a losing writer fails the
	// insert instead of silently sharing a position.
	err := s.db.WithContext(ctx).Transaction(func(dtx *gorm.DB) error {
		var maxSeq int64
		if err := dtx.Model(&models.Transaction{}).
			Where("owner_id = ?", tx.OwnerID).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&maxSeq).Error; err != nil {
			return err
		}
		tx.Seq = maxSeq + 1
		return dtx.Create(tx).Error
	})
	if err != nil {
		return fmt.Errorf("append transaction: %w", err)
	}
	return nil
}

// ListByOwner returns the owner's full log in authoritative order:
// created_at ascending, insertion sequence breaking ties.
func (s *TransactionService) ListByOwner(ctx context.Context, ownerID string) ([]models.Transaction, error) {
	var txs []models.Transaction
	if err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at, seq").
		Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

// ListByOwnerAndType returns only one transaction type, same ordering.
// Used to fetch a creation transaction specifically.
func (s *TransactionService) ListByOwnerAndType(ctx context.Context, ownerID string, txType models.TransactionType) ([]models.Transaction, error) {
	var txs []models.Transaction
	if err := s.db.WithContext(ctx).
		Where("owner_id = ? AND type = ?", ownerID, txType).
		Order("created_at, seq").
		Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("list transactions by type: %w", err)
	}
	return txs, nil
}

// ProjectSeed loads and folds a seed's log. A log without a creation
// transaction is a data-integrity condition: it still projects (implicit
// default state) but gets a warning here, not an error.
func (s *TransactionService) ProjectSeed(ctx context.Context, seedID string) (*projection.SeedState, error) {
	txs, err := s.ListByOwner(ctx, seedID)
	if err != nil {
		return nil, err
	}
	state := projection.ProjectSeed(seedID, txs)
	if len(txs) > 0 && !state.HasCreation {
		s.logger.Warnf("seed %s log has no creation transaction", seedID)
	}
	return state, nil
}

// ProjectTag loads and folds a tag's log.
func (s *TransactionService) ProjectTag(ctx context.Context, tagID string) (*projection.TagState, error) {
	txs, err := s.ListByOwner(ctx, tagID)
	if err != nil {
		return nil, err
	}
	state := projection.ProjectTag(tagID, txs)
	if len(txs) > 0 && !state.HasCreation {
		s.logger.Warnf("tag %s log has no creation transaction", tagID)
	}
	return state, nil
}

// ProjectSprout loads and folds a sprout's log.
func (s *TransactionService) ProjectSprout(ctx context.Context, sproutID string) (*projection.SproutState, error) {
	txs, err := s.ListByOwner(ctx, sproutID)
	if err != nil {
		return nil, err
	}
	state := projection.ProjectSprout(sproutID, txs)
	if len(txs) > 0 && !state.HasCreation {
		s.logger.Warnf("sprout %s log has no creation transaction", sproutID)
	}
	return state, nil
}

// validatePayload rejects unknown types and malformed or incomplete data.
// Legacy add_followup payloads may be double-encoded; both forms pass.
func validatePayload(txType models.TransactionType, data string) error {
	fields, err := decodePayload(data)
	if err != nil {
		return err
	}

	switch txType {
	case models.TxCreateSeed, models.TxEditContent:
		return requireString(fields, "content")
	case models.TxAddTag, models.TxRemoveTag:
		return requireString(fields, "tag_id")
	case models.TxSetCategory, models.TxRemoveCategory:
		return requireString(fields, "category_id")
	case models.TxSetMetadata, models.TxRemoveMetadata:
		return requireString(fields, "key")
	case models.TxAddFollowup:
		return requireString(fields, "message")
	case models.TxCreation:
		if requireString(fields, "name") == nil {
			return nil // tag creation
		}
		if err := requireString(fields, "sprout_type"); err != nil {
			return fmt.Errorf("creation needs name or sprout_type")
		}
		return requireString(fields, "message")
	case models.TxRenameTag:
		return requireString(fields, "name")
	case models.TxSetStatus:
		if err := requireString(fields, "status"); err != nil {
			return err
		}
		status, _ := fields["status"].(string)
		switch status {
		case projection.SproutStatusOpen, projection.SproutStatusDone, projection.SproutStatusDismissed:
			return nil
		default:
			return fmt.Errorf("unknown status %q", status)
		}
	default:
		return fmt.Errorf("unknown transaction type %q", txType)
	}
}

func decodePayload(data string) (map[string]interface{}, error) {
	if data == "" {
		return nil, fmt.Errorf("data required")
	}
	fields := map[string]interface{}{}
	if err := json.Unmarshal([]byte(data), &fields); err == nil {
		return fields, nil
	}
	// Legacy encoding: the object arrives as a JSON string.
	var inner string
	if err := json.Unmarshal([]byte(data), &inner); err != nil {
		return nil, fmt.Errorf("data is not a JSON object")
	}
	if err := json.Unmarshal([]byte(inner), &fields); err != nil {
		return nil, fmt.Errorf("data is not a JSON object")
	}
	return fields, nil
}

func requireString(fields map[string]interface{}, key string) error {
	v, ok := fields[key]
	if !ok {
		return fmt.Errorf("%s required", key)
	}
	str, ok := v.(string)
	if !ok || str == "" {
		return fmt.Errorf("%s required", key)
	}
	return nil
}
