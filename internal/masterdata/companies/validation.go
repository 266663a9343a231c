package companies

import (
	"strings"

	"github.com/labgig/labgig-crm/internal/masterdata/shared"
)

func (s *Service) validate(c Company) error {
	if strings.TrimSpace(c.Code) == "" {
		return shared.ErrRequiredField
	}
	if strings.TrimSpace(c.Name) == "" {
		return shared.ErrRequiredField
	}
	return nil
}
