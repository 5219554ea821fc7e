package productioncards

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lastline-erp/lastline-backend/pkg/db/models"
)

// Repository defines persistence for production cards. Reads skip
// soft-deleted cards.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, card *models.ProductionCard) error
	Update(ctx context.Context, card *models.ProductionCard) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ProductionCard, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.ProductionCard, error)
	Delete(ctx context.Context, id uuid.UUID) (time.Time, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a production card repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, card *models.ProductionCard) error {
	if card.ID == uuid.Nil {
		card.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(card).Error
}

func (r *repository) Update(ctx context.Context, card *models.ProductionCard) error {
	return r.db.WithContext(ctx).
		Model(&models.ProductionCard{}).
		Where("id = ?", card.ID).
		Updates(map[string]any{
			"allocation_quantity": card.AllocationQuantity,
			"assigned_plant":      card.AssignedPlant,
			"start_date":          card.StartDate,
			"end_date":            card.EndDate,
			"remarks":             card.Remarks,
			"updated_at":          time.Now().UTC(),
		}).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ProductionCard, error) {
	var card models.ProductionCard
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&card).Error; err != nil {
		return nil, err
	}
	return &card, nil
}

func (r *repository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.ProductionCard, error) {
	var cards []models.ProductionCard
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&cards).Error
	if err != nil {
		return nil, err
	}
	return cards, nil
}

// Delete soft-deletes the card and reports when.
func (r *repository) Delete(ctx context.Context, id uuid.UUID) (time.Time, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&models.ProductionCard{}).
		Where("id = ?", id).
		Update("deleted_at", now)
	if res.Error != nil {
		return time.Time{}, res.Error
	}
	if res.RowsAffected == 0 {
		return time.Time{}, gorm.ErrRecordNotFound
	}
	return now, nil
}
