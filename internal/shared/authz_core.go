package shared

// Core platform permissions.
const (
	PermUsersView = "users.view"
	PermUsersEdit = "users.edit"

	PermRolesView = "roles.view"
	PermRolesEdit = "roles.edit"

	PermPermissionsView = "permissions.view"
)

// Operational module permissions.
const (
	PermInventoryView    = "inventory.view"
	PermInventoryEdit    = "inventory.edit"
	PermInventoryApprove = "inventory.approve"

	PermProductsView = "products.view"
	PermProductsEdit = "products.edit"

	PermCompaniesManage = "companies.manage"

	PermCRMView = "crm.view"
	PermCRMEdit = "crm.edit"

	PermSalesView = "sales.view"
	PermSalesEdit = "sales.edit"

	PermDashboardView = "dashboard.view"
	PermAuditView     = "audit.view"
)

// CoreScopes lists all permissions related to the core platform.
func CoreScopes() []string {
	return []string{
		PermUsersView,
		PermUsersEdit,
		PermRolesView,
		PermRolesEdit,
		PermPermissionsView,
	}
}

// OperationalScopes lists the permissions gating the business modules.
func OperationalScopes() []string {
	return []string{
		PermInventoryView,
		PermInventoryEdit,
		PermInventoryApprove,
		PermProductsView,
		PermProductsEdit,
		PermCompaniesManage,
		PermCRMView,
		PermCRMEdit,
		PermSalesView,
		PermSalesEdit,
		PermDashboardView,
		PermAuditView,
	}
}

// AllScopes concatenates every known permission, used when provisioning the
// permission catalog.
func AllScopes() []string {
	return append(CoreScopes(), OperationalScopes()...)
}
