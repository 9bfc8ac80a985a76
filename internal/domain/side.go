package domain

// Side direction of a quote or trade.
type Side string

const (
	// SideBuy purchase of units.
	SideBuy Side = "buy"
	// SideSell sale of a held unit.
	SideSell Side = "sell"
)

// String returns the string representation.
func (s Side) String() string {
	return string(s)
}

// IsValid checks if the Side value is valid.
func (s Side) IsValid() bool {
	return s == SideBuy || s == SideSell
}
