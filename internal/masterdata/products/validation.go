package products

import (
	"strings"

	"github.com/labgig/labgig-crm/internal/masterdata/shared"
)

func (s *Service) validate(p Product) error {
	if p.CompanyID <= 0 {
		return shared.ErrValidation
	}
	if strings.TrimSpace(p.ReferenceNo) == "" {
		return shared.ErrRequiredField
	}
	if strings.TrimSpace(p.Name) == "" {
		return shared.ErrRequiredField
	}
	if p.Price < 0 || p.MinStockLevel < 0 || p.ReorderLevel < 0 || p.StockQuantity < 0 {
		return shared.ErrValidation
	}
	return nil
}
