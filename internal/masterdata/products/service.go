package products

import (
	"context"

	"github.com/labgig/labgig-crm/internal/masterdata/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, companyID int64, filters shared.ListFilters) ([]Product, int, error) {
	if filters.Page <= 0 {
		filters.Page = shared.DefaultPage
	}
	if filters.Limit <= 0 {
		filters.Limit = shared.DefaultLimit
	}
	return s.repo.List(ctx, companyID, filters)
}

func (s *Service) Get(ctx context.Context, companyID, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, shared.ErrInvalidID
	}
	return s.repo.Get(ctx, companyID, id)
}

func (s *Service) Create(ctx context.Context, companyID int64, form CreateProductForm) (Product, error) {
	product := fromForm(form.ProductForm)
	product.CompanyID = companyID
	product.StockQuantity = form.InitialStock
	if err := s.validate(product); err != nil {
		return Product{}, err
	}
	return s.repo.Create(ctx, product)
}

func (s *Service) Update(ctx context.Context, companyID, id int64, form ProductForm) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	product := fromForm(form)
	product.CompanyID = companyID
	if err := s.validate(product); err != nil {
		return err
	}
	return s.repo.Update(ctx, companyID, id, product)
}

func (s *Service) Delete(ctx context.Context, companyID, id int64) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	return s.repo.Delete(ctx, companyID, id)
}

func fromForm(form ProductForm) Product {
	return Product{
		ReferenceNo:   form.ReferenceNo,
		Name:          form.Name,
		Description:   form.Description,
		Category:      form.Category,
		Price:         form.Price,
		MinStockLevel: form.MinStockLevel,
		ReorderLevel:  form.ReorderLevel,
		BinLocation:   form.BinLocation,
		IsActive:      form.IsActive,
	}
}
