package values

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money represents a monetary value with currency and precision handling
type Money struct {
	amount   decimal.Decimal
	currency string
}

// Common currency codes (ISO 4217)
const (
	USD = "USD"
	EUR = "EUR"
	GBP = "GBP"
	CAD = "CAD"
)

// NewMoney creates a new Money value object
func NewMoney(amount decimal.Decimal, currency string) (Money, error) {
	if err := validateCurrency(currency); err != nil {
		return Money{}, err
	}

	return Money{
		amount:   amount,
		currency: currency,
	}, nil
}

// NewMoneyFromString creates Money from string amount and currency
func NewMoneyFromString(amount, currency string) (Money, error) {
	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount: %w", err)
	}

	return NewMoney(dec, currency)
}

// NewMoneyFromFloat creates Money from float64 amount and currency
// Note: Use with caution due to floating point precision issues
func NewMoneyFromFloat(amount float64, currency string) (Money, error) {
	return NewMoney(decimal.NewFromFloat(amount), currency)
}

// MustNewMoneyFromFloat creates Money from float and panics on error (for constants/tests)
func MustNewMoneyFromFloat(amount float64, currency string) Money {
	m, err := NewMoneyFromFloat(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// Zero returns a zero Money value in the given currency
func Zero(currency string) Money {
	m, err := NewMoney(decimal.Zero, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// Amount returns the decimal amount
func (m Money) Amount() decimal.Decimal {
	return m.amount
}

// Currency returns the currency code
func (m Money) Currency() string {
	return m.currency
}

// String returns money with currency code (e.g., "123.45 USD")
func (m Money) String() string {
	return m.amount.StringFixed(2) + " " + m.currency
}

// IsZero checks if the amount is zero
func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

// IsNegative checks if the amount is negative
func (m Money) IsNegative() bool {
	return m.amount.IsNegative()
}

// Equal checks if two Money values are equal (same amount and currency)
func (m Money) Equal(other Money) bool {
	return m.amount.Equal(other.amount) && m.currency == other.currency
}

// IsMultipleOf reports whether the amount is an exact multiple of n
// currency units. Used by the round-number suspicion check.
func (m Money) IsMultipleOf(n int64) bool {
	if n == 0 {
		return false
	}
	return m.amount.Mod(decimal.NewFromInt(n)).IsZero()
}

// IsAllNines reports whether the amount's integer digits are all 9s and the
// fractional part is zero (e.g. 9999, 99999).
func (m Money) IsAllNines() bool {
	if m.amount.IsNegative() || m.amount.IsZero() {
		return false
	}
	if !m.amount.Equal(m.amount.Truncate(0)) {
		return false
	}
	s := m.amount.Truncate(0).String()
	return strings.Count(s, "9") == len(s)
}

// GreaterThanFloat compares the amount against a float threshold.
func (m Money) GreaterThanFloat(threshold float64) bool {
	return m.amount.GreaterThan(decimal.NewFromFloat(threshold))
}

// ToFloat64 converts to float64 (use with caution for precision)
func (m Money) ToFloat64() float64 {
	f, _ := m.amount.Float64()
	return f
}

// MarshalJSON implements json.Marshaler
func (m Money) MarshalJSON() ([]byte, error) {
	data := struct {
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
	}{
		Amount:   m.amount.String(),
		Currency: m.currency,
	}
	return json.Marshal(data)
}

// UnmarshalJSON implements json.Unmarshaler
func (m *Money) UnmarshalJSON(data []byte) error {
	var temp struct {
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
	}

	if err := json.Unmarshal(data, &temp); err != nil {
		return err
	}

	return m.scanParts(temp.Amount, temp.Currency)
}

// Scan implements sql.Scanner. The database stores the plain numeric amount;
// currency defaults to USD when scanning a bare value.
func (m *Money) Scan(value interface{}) error {
	if value == nil {
		*m = Money{}
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return m.scanParts(string(v), USD)
	case string:
		return m.scanParts(v, USD)
	case float64:
		money, err := NewMoneyFromFloat(v, USD)
		if err != nil {
			return err
		}
		*m = money
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Money", value)
	}
}

func (m *Money) scanParts(amount, currency string) error {
	money, err := NewMoneyFromString(amount, currency)
	if err != nil {
		return err
	}
	*m = money
	return nil
}

func validateCurrency(currency string) error {
	switch currency {
	case USD, EUR, GBP, CAD:
		return nil
	default:
		return fmt.Errorf("unsupported currency: %q", currency)
	}
}
