package repository

import (
	"context"

	"bomcore/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CustomerRepository resolves customer identities for BOM-edge scoping. The
// directory collaborator owns the data; this core treats it as a read-mostly
// lookup.
type CustomerRepository interface {
	Create(ctx context.Context, c *model.Customer) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Customer, error)
	FindByCode(ctx context.Context, code string) (*model.Customer, error)
	ListActive(ctx context.Context) ([]model.Customer, error)
}

type customerRepo struct{ db *gorm.DB }

func NewCustomerRepository(db *gorm.DB) CustomerRepository { return &customerRepo{db: db} }

func (r *customerRepo) Create(ctx context.Context, c *model.Customer) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *customerRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Customer, error) {
	var c model.Customer
	err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *customerRepo) FindByCode(ctx context.Context, code string) (*model.Customer, error) {
	var c model.Customer
	err := r.db.WithContext(ctx).Where("code = ? AND active = true", code).First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *customerRepo) ListActive(ctx context.Context) ([]model.Customer, error) {
	var customers []model.Customer
	err := r.db.WithContext(ctx).Where("active = true").Order("code ASC").Find(&customers).Error
	return customers, err
}
