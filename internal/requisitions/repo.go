package requisitions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lastline-erp/lastline-backend/pkg/db/models"
	"github.com/lastline-erp/lastline-backend/pkg/enums"
	pkgpagination "github.com/lastline-erp/lastline-backend/pkg/pagination"
)

// Repository defines persistence for requisitions and their lines.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, header *models.MaterialRequisition, lines []models.MaterialLine) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.MaterialRequisition, error)
	FindByCardID(ctx context.Context, cardID uuid.UUID) (*models.MaterialRequisition, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.MaterialRequisition, error)
	LockByCardID(ctx context.Context, cardID uuid.UUID) (*models.MaterialRequisition, error)
	ListLines(ctx context.Context, requisitionIDs ...uuid.UUID) ([]models.MaterialLine, error)
	ReplaceLines(ctx context.Context, requisitionID uuid.UUID, lines []models.MaterialLine) error
	UpdateHeader(ctx context.Context, header *models.MaterialRequisition) error
	List(ctx context.Context, query listQuery) ([]models.MaterialRequisition, error)
	CountByStatus(ctx context.Context) (map[enums.RequisitionStatus]int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a requisition repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, header *models.MaterialRequisition, lines []models.MaterialLine) error {
	db := r.db.WithContext(ctx)
	if header.ID == uuid.Nil {
		header.ID = uuid.New()
	}
	if err := db.Create(header).Error; err != nil {
		return err
	}
	if len(lines) == 0 {
		return nil
	}
	for i := range lines {
		lines[i].RequisitionID = header.ID
		if lines[i].ID == uuid.Nil {
			lines[i].ID = uuid.New()
		}
	}
	return db.Create(&lines).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.MaterialRequisition, error) {
	return r.first(r.db.WithContext(ctx), "id = ?", id)
}

func (r *repository) FindByCardID(ctx context.Context, cardID uuid.UUID) (*models.MaterialRequisition, error) {
	return r.first(r.db.WithContext(ctx), "card_id = ?", cardID)
}

// LockByID reads the header with a row lock; call inside a transaction.
func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.MaterialRequisition, error) {
	return r.first(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), "id = ?", id)
}

func (r *repository) LockByCardID(ctx context.Context, cardID uuid.UUID) (*models.MaterialRequisition, error) {
	return r.first(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), "card_id = ?", cardID)
}

func (r *repository) first(db *gorm.DB, query string, arg any) (*models.MaterialRequisition, error) {
	var header models.MaterialRequisition
	if err := db.Where(query, arg).First(&header).Error; err != nil {
		return nil, err
	}
	return &header, nil
}

func (r *repository) ListLines(ctx context.Context, requisitionIDs ...uuid.UUID) ([]models.MaterialLine, error) {
	if len(requisitionIDs) == 0 {
		return nil, nil
	}
	var rows []models.MaterialLine
	err := r.db.WithContext(ctx).
		Where("requisition_id IN ?", requisitionIDs).
		Order("position ASC").
		Order("item_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ReplaceLines makes the stored lines of a requisition exactly lines. Rows
// keep their ids so line history stays addressable.
func (r *repository) ReplaceLines(ctx context.Context, requisitionID uuid.UUID, lines []models.MaterialLine) error {
	db := r.db.WithContext(ctx)
	keep := make([]uuid.UUID, 0, len(lines))
	for i := range lines {
		lines[i].RequisitionID = requisitionID
		if lines[i].ID == uuid.Nil {
			lines[i].ID = uuid.New()
		}
		keep = append(keep, lines[i].ID)
	}

	stale := db.Where("requisition_id = ?", requisitionID)
	if len(keep) > 0 {
		stale = stale.Where("id NOT IN ?", keep)
	}
	if err := stale.Delete(&models.MaterialLine{}).Error; err != nil {
		return err
	}
	for i := range lines {
		if err := db.Save(&lines[i]).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *repository) UpdateHeader(ctx context.Context, header *models.MaterialRequisition) error {
	header.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.MaterialRequisition{}).
		Where("id = ?", header.ID).
		Updates(map[string]any{
			"status":           header.Status,
			"remarks":          header.Remarks,
			"sent_to_store_at": header.SentToStoreAt,
			"cancelled_at":     header.CancelledAt,
			"updated_at":       header.UpdatedAt,
		}).Error
}

func (r *repository) List(ctx context.Context, opts listQuery) ([]models.MaterialRequisition, error) {
	query := r.db.WithContext(ctx).Model(&models.MaterialRequisition{})
	if opts.status != nil {
		query = query.Where("status = ?", *opts.status)
	}
	query = query.Scopes(pkgpagination.Keyset(opts.cursor, opts.limit))

	var rows []models.MaterialRequisition
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) CountByStatus(ctx context.Context) (map[enums.RequisitionStatus]int64, error) {
	var rows []struct {
		Status enums.RequisitionStatus
		Total  int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.MaterialRequisition{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[enums.RequisitionStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}
