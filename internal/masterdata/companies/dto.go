package companies

// CompanyForm carries create and update payloads for a tenant record.
type CompanyForm struct {
	Code     string `json:"code" validate:"required,max=32"`
	Name     string `json:"name" validate:"required,max=255"`
	Industry string `json:"industry" validate:"max=128"`
	Address  string `json:"address"`
	Phone    string `json:"phone" validate:"max=32"`
	Email    string `json:"email" validate:"omitempty,email"`
	IsActive bool   `json:"is_active"`
}
