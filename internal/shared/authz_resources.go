package shared

// Permissions protecting the business resources. Names follow the
// <domain>.<action>_<resource> convention so the native synchronizer can
// derive deterministic codenames from them.
const (
	PermOrdersView   = "orders.view_order"
	PermOrdersCreate = "orders.create_order"
	PermOrdersEdit   = "orders.edit_order"
	PermOrdersDelete = "orders.delete_order"

	PermProductsView   = "products.view_product"
	PermProductsCreate = "products.create_product"
	PermProductsEdit   = "products.edit_product"
	PermProductsDelete = "products.delete_product"

	PermInvoicesView   = "invoices.view_invoice"
	PermInvoicesCreate = "invoices.create_invoice"
	PermInvoicesEdit   = "invoices.edit_invoice"
	PermInvoicesDelete = "invoices.delete_invoice"

	PermTransactionsView   = "transactions.view_transaction"
	PermTransactionsCreate = "transactions.create_transaction"
	PermTransactionsEdit   = "transactions.edit_transaction"
	PermTransactionsDelete = "transactions.delete_transaction"

	PermStockView   = "stock.view_adjustment"
	PermStockCreate = "stock.create_adjustment"
	PermStockEdit   = "stock.edit_adjustment"
	PermStockDelete = "stock.delete_adjustment"

	PermReportsView   = "reports.view_report"
	PermReportsCreate = "reports.create_report"
	PermReportsEdit   = "reports.edit_report"
	PermReportsDelete = "reports.delete_report"

	PermReceiptsView   = "receipts.view_receipt"
	PermReceiptsCreate = "receipts.create_receipt"
	PermReceiptsEdit   = "receipts.edit_receipt"
	PermReceiptsDelete = "receipts.delete_receipt"
)

// ResourceScopes lists all permissions protecting business resources.
func ResourceScopes() []string {
	return []string{
		PermOrdersView, PermOrdersCreate, PermOrdersEdit, PermOrdersDelete,
		PermProductsView, PermProductsCreate, PermProductsEdit, PermProductsDelete,
		PermInvoicesView, PermInvoicesCreate, PermInvoicesEdit, PermInvoicesDelete,
		PermTransactionsView, PermTransactionsCreate, PermTransactionsEdit, PermTransactionsDelete,
		PermStockView, PermStockCreate, PermStockEdit, PermStockDelete,
		PermReportsView, PermReportsCreate, PermReportsEdit, PermReportsDelete,
		PermReceiptsView, PermReceiptsCreate, PermReceiptsEdit, PermReceiptsDelete,
	}
}
