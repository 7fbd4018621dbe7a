package shared

import "github.com/kitchenstock/kitchenstock/internal/platform/httpx"

// ErrFutureDate is returned when an operation targets a business day that has not started.
var ErrFutureDate = httpx.NewError(httpx.ErrValidation, "date is in the future")
