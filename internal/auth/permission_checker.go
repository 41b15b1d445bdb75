package auth

// Admin permissions. "admin" implies every other one.
const (
	PermissionViewPayments     = "view_payments"
	PermissionRefundPayments   = "refund_payments"
	PermissionSyncOrders       = "sync_orders"
	PermissionResolveConflicts = "resolve_conflicts"
	PermissionAdmin            = "admin"
)

// AllPermissions is the seeded permission catalogue.
var AllPermissions = map[string]string{
	PermissionViewPayments:     "Read gateway orders, payments and reconciliation events",
	PermissionRefundPayments:   "Issue refunds through the payment provider",
	PermissionSyncOrders:       "Trigger a provider sync for a gateway order",
	PermissionResolveConflicts: "Resolve entries in the reconciliation review queue",
	PermissionAdmin:            "Full access",
}

type PermissionChecker interface {
	HasAnyPermission(userPermissions []string, requiredPermissions []string) bool
	IsAdmin(userPermissions []string) bool
}

type DefaultPermissionChecker struct{}

func NewPermissionChecker() PermissionChecker {
	return &DefaultPermissionChecker{}
}

func (c *DefaultPermissionChecker) HasAnyPermission(userPermissions []string, requiredPermissions []string) bool {
	for _, userPerm := range userPermissions {
		if userPerm == PermissionAdmin {
			return true
		}
		for _, requiredPerm := range requiredPermissions {
			if userPerm == requiredPerm {
				return true
			}
		}
	}
	return false
}

func (c *DefaultPermissionChecker) IsAdmin(userPermissions []string) bool {
	return c.HasAnyPermission(userPermissions, []string{PermissionAdmin})
}
