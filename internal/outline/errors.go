package outline

import "fmt"

// InsufficientUnitsError means the provider returned fewer units than requested.
// No course is created.
type InsufficientUnitsError struct {
	Requested int
	Returned  int
}

func (e *InsufficientUnitsError) Error() string {
	return fmt.Sprintf("provider returned %d units, %d requested", e.Returned, e.Requested)
}
