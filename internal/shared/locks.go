package shared

import (
	"fmt"
	"time"
)

// CloseDayLockKey builds the redis key guarding close-day runs for a date.
func CloseDayLockKey(date time.Time) string {
	return fmt.Sprintf("closeday:%s:lock", FormatDate(date))
}
