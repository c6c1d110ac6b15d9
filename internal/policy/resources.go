package policy

import (
	"github.com/vantage-pos/vantage-pos/internal/shared"
)

// Well-known role names used by the scope rules.
const (
	RoleAdministrator = "Administrator"
	RoleAuditor       = "Auditor"
	RoleCashier       = "Cashier"
	RoleStockkeeper   = "Stockkeeper"
	RoleAccountant    = "Accountant"
)

// frontlineScope is the common rule for point-of-sale records: cashiers see
// their own records, auditors see everything read-only, administrators see
// everything. Any other role combination falls through to deny.
func frontlineScope(roles []string) Decision {
	decision := Decision{}
	for _, role := range roles {
		switch role {
		case RoleAdministrator:
			return Decision{Visibility: VisibilityAll}
		case RoleAuditor:
			decision = Decision{Visibility: VisibilityAll, ReadOnly: true}
		case RoleCashier:
			if decision.Visibility == VisibilityNone {
				decision = Decision{Visibility: VisibilityOwned}
			}
		}
	}
	return decision
}

// backofficeScope covers records created by clerks: accountants and
// stockkeepers own what they record, auditors read everything.
func backofficeScope(roles []string) Decision {
	decision := Decision{}
	for _, role := range roles {
		switch role {
		case RoleAdministrator:
			return Decision{Visibility: VisibilityAll}
		case RoleAuditor:
			decision = Decision{Visibility: VisibilityAll, ReadOnly: true}
		case RoleAccountant, RoleStockkeeper:
			if decision.Visibility == VisibilityNone {
				decision = Decision{Visibility: VisibilityOwned}
			}
		}
	}
	return decision
}

// catalogScope covers shared master data: anyone holding the view permission
// sees the full catalog, ownership does not apply.
func catalogScope(roles []string) Decision {
	for _, role := range roles {
		switch role {
		case RoleAdministrator:
			return Decision{Visibility: VisibilityAll}
		case RoleAuditor:
			return Decision{Visibility: VisibilityAll, ReadOnly: true}
		case RoleCashier, RoleStockkeeper, RoleAccountant:
			return Decision{Visibility: VisibilityAll}
		}
	}
	return Decision{}
}

// RegisterDefaults installs the policies for every protected resource type.
// Called once at startup; a registration error is a programming mistake and
// should abort boot.
func RegisterDefaults(reg *Registry) error {
	resources := []Resource{
		{
			Tag:    "orders",
			View:   shared.PermOrdersView,
			Create: shared.PermOrdersCreate,
			Edit:   shared.PermOrdersEdit,
			Delete: shared.PermOrdersDelete,
			Scope:  frontlineScope,
		},
		{
			Tag:    "receipts",
			View:   shared.PermReceiptsView,
			Create: shared.PermReceiptsCreate,
			Edit:   shared.PermReceiptsEdit,
			Delete: shared.PermReceiptsDelete,
			Scope:  frontlineScope,
		},
		{
			Tag:    "products",
			View:   shared.PermProductsView,
			Create: shared.PermProductsCreate,
			Edit:   shared.PermProductsEdit,
			Delete: shared.PermProductsDelete,
			Scope:  catalogScope,
		},
		{
			Tag:    "invoices",
			View:   shared.PermInvoicesView,
			Create: shared.PermInvoicesCreate,
			Edit:   shared.PermInvoicesEdit,
			Delete: shared.PermInvoicesDelete,
			Scope:  backofficeScope,
		},
		{
			Tag:    "transactions",
			View:   shared.PermTransactionsView,
			Create: shared.PermTransactionsCreate,
			Edit:   shared.PermTransactionsEdit,
			Delete: shared.PermTransactionsDelete,
			Scope:  backofficeScope,
		},
		{
			Tag:    "stock_adjustments",
			View:   shared.PermStockView,
			Create: shared.PermStockCreate,
			Edit:   shared.PermStockEdit,
			Delete: shared.PermStockDelete,
			Scope:  backofficeScope,
		},
		{
			Tag:    "reports",
			View:   shared.PermReportsView,
			Create: shared.PermReportsCreate,
			Edit:   shared.PermReportsEdit,
			Delete: shared.PermReportsDelete,
			Scope:  backofficeScope,
		},
	}
	for _, res := range resources {
		if err := reg.Register(res); err != nil {
			return err
		}
	}
	return nil
}
