package shared

import "fmt"

// PriceRefreshLockKey guards the price refresh so only one worker runs it per day.
func PriceRefreshLockKey(day string) string {
	return fmt.Sprintf("market:pricing:refresh:%s:lock", day)
}

// IdempotencyKey namespaces client supplied keys per module.
func IdempotencyKey(module, key string) string {
	return fmt.Sprintf("market:idem:%s:%s", module, key)
}
