package projects

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lastline-erp/lastline-backend/pkg/db/models"
)

// Repository defines persistence for projects and the card allocations
// counted against them.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, project *models.Project) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Project, error)
	FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Project, error)
	OrderQuantity(ctx context.Context, id uuid.UUID) (decimal.Decimal, error)
	UpdateOrderQuantity(ctx context.Context, id uuid.UUID, quantity decimal.Decimal) error
	ListCards(ctx context.Context, projectID uuid.UUID) ([]models.ProductionCard, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a project repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, project *models.Project) error {
	if project.ID == uuid.Nil {
		project.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(project).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	var project models.Project
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&project).Error; err != nil {
		return nil, err
	}
	return &project, nil
}

// FindForUpdate row-locks the project; every allocation write takes this
// lock first so capacity checks on one project are serialized.
func (r *repository) FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	var project models.Project
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&project).Error
	if err != nil {
		return nil, err
	}
	return &project, nil
}

// OrderQuantity reads the approved order quantity; an unapproved PO reads as zero.
func (r *repository) OrderQuantity(ctx context.Context, id uuid.UUID) (decimal.Decimal, error) {
	project, err := r.FindByID(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return project.OrderQuantityOrZero(), nil
}

func (r *repository) UpdateOrderQuantity(ctx context.Context, id uuid.UUID, quantity decimal.Decimal) error {
	return r.db.WithContext(ctx).
		Model(&models.Project{}).
		Where("id = ?", id).
		Update("order_quantity", decimal.NewNullDecimal(quantity)).Error
}

// ListCards returns the live cards of a project; soft-deleted cards no longer
// hold allocation.
func (r *repository) ListCards(ctx context.Context, projectID uuid.UUID) ([]models.ProductionCard, error) {
	var cards []models.ProductionCard
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Find(&cards).Error
	if err != nil {
		return nil, err
	}
	return cards, nil
}
