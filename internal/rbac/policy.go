package rbac

import (
	"fmt"

	"github.com/habana-express/market-engine/internal/shared"
)

// Policy maps each operation to the roles allowed to run it. Admin is
// allowed everywhere and is not listed.
type Policy map[Operation][]shared.Role

// DefaultPolicy is the engine's role table.
var DefaultPolicy = Policy{
	OpAssignCustody:  {shared.RoleStorekeeper},
	OpReclaimCustody: {shared.RoleStorekeeper},
	OpListCustody:    {shared.RoleSeller, shared.RoleStorekeeper},
	OpCreateProduct:  {shared.RoleStorekeeper},
	OpAdjustStock:    {shared.RoleStorekeeper},
	OpCreateSale:     {shared.RoleSeller},
	OpGetSale:        {shared.RoleSeller, shared.RoleStorekeeper},
	OpCancelSale:     {},
	OpCreateReturn:   {shared.RoleStorekeeper},
	OpRecordShipment: {},
	OpPeriodReport:   {},
	OpMonthlyReport:  {},
	OpAnnualReport:   {},
	OpTopSellers:     {shared.RoleSeller, shared.RoleStorekeeper},
	OpRefreshPrices:  {},
	OpWarrantyCheck:  {},
}

// Authorize checks caller against the default policy.
func Authorize(caller shared.Identity, op Operation) error {
	return DefaultPolicy.Authorize(caller, op)
}

// Authorize returns Unauthorized for an absent or malformed identity and
// Forbidden when the caller's role is not allowed. Unknown operations are
// denied for everyone but admin.
func (p Policy) Authorize(caller shared.Identity, op Operation) error {
	if caller.IsZero() || !caller.Role.Valid() {
		return shared.Unauthorized("caller identity missing or invalid")
	}
	if caller.IsAdmin() {
		return nil
	}
	for _, role := range p[op] {
		if role == caller.Role {
			return nil
		}
	}
	return shared.Forbidden(string(op), fmt.Sprintf("role %q not allowed", caller.Role))
}

// RequireSelf enforces that non-admin callers act on their own seller id.
func RequireSelf(caller shared.Identity, op Operation, sellerID int64) error {
	if caller.IsAdmin() || caller.ID == sellerID {
		return nil
	}
	return shared.Forbidden(string(op), fmt.Sprintf("caller %d may not act for seller %d", caller.ID, sellerID))
}
