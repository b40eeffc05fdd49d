package converter

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Decimal converts a decimal.Decimal to and from its database string
// representation, avoiding the float64 rounding a naive numeric column
// would introduce for money values.
type Decimal struct{}

func (Decimal) ToDatabase(v any) (any, error) {
	d, ok := v.(decimal.Decimal)
	if !ok {
		return nil, fmt.Errorf("storm: Decimal converter expects decimal.Decimal, got %T", v)
	}
	return d.String(), nil
}

func (Decimal) FromDatabase(v any) (any, error) {
	if v == nil {
		return decimal.Decimal{}, nil
	}
	switch t := v.(type) {
	case string:
		return decimal.NewFromString(t)
	case []byte:
		return decimal.NewFromString(string(t))
	case float64:
		return decimal.NewFromFloat(t), nil
	default:
		return nil, fmt.Errorf("storm: Decimal converter cannot read %T", v)
	}
}
