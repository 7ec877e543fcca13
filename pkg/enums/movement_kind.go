package enums

import "fmt"

// MovementKind discriminates rows of the retiradas log.
type MovementKind string

const (
	MovementKindWithdrawal       MovementKind = "withdrawal"
	MovementKindManualAdjustment MovementKind = "manual_adjustment"
)

var validMovementKinds = []MovementKind{
	MovementKindWithdrawal,
	MovementKindManualAdjustment,
}

// String implements fmt.Stringer.
func (k MovementKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known MovementKind.
func (k MovementKind) IsValid() bool {
	for _, candidate := range validMovementKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseMovementKind converts raw input into a MovementKind.
func ParseMovementKind(value string) (MovementKind, error) {
	for _, candidate := range validMovementKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid movement kind %q", value)
}
