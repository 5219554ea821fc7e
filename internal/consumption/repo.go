package consumption

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lastline-erp/lastline-backend/pkg/db/models"
	"github.com/lastline-erp/lastline-backend/pkg/enums"
)

// Repository reads and replaces cost sheet rows.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a cost line repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the supplied transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// ListByCategory returns one category of a project's sheet in sheet order.
func (r *Repository) ListByCategory(ctx context.Context, projectID uuid.UUID, category enums.CostCategory) ([]models.CostLine, error) {
	var rows []models.CostLine
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND category = ?", projectID, category).
		Order("position ASC").
		Order("item_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ListByProject returns every cost line of a project.
func (r *Repository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.CostLine, error) {
	var rows []models.CostLine
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("position ASC").
		Order("item_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ReplaceCategory swaps the rows of one category for the supplied set.
func (r *Repository) ReplaceCategory(ctx context.Context, projectID uuid.UUID, category enums.CostCategory, rows []models.CostLine) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("project_id = ? AND category = ?", projectID, category).Delete(&models.CostLine{}).Error; err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	return db.Create(&rows).Error
}
