package rbac

// Operation names a public engine entry point gated by the policy table.
type Operation string

const (
	OpAssignCustody  Operation = "custody.assign"
	OpReclaimCustody Operation = "custody.reclaim"
	OpListCustody    Operation = "custody.list"
	OpCreateProduct  Operation = "product.create"
	OpAdjustStock    Operation = "product.adjust_stock"
	OpCreateSale     Operation = "sale.create"
	OpGetSale        Operation = "sale.get"
	OpCancelSale     Operation = "sale.cancel"
	OpCreateReturn   Operation = "sale.return"
	OpRecordShipment Operation = "shipment.record"
	OpPeriodReport   Operation = "finance.period"
	OpMonthlyReport  Operation = "finance.monthly"
	OpAnnualReport   Operation = "finance.annual"
	OpTopSellers     Operation = "finance.top_sellers"
	OpRefreshPrices  Operation = "pricing.refresh"
	OpWarrantyCheck  Operation = "pricing.warranty_check"
)
