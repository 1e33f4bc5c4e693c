package domain

import (
	"bytes"
	"fmt"

	"github.com/shopspring/decimal"
)

// minorUnitExponent — количество знаков минорной единицы (центы для usd).
const minorUnitExponent = 2

// Money — денежная сумма в основной единице валюты магазина.
// Арифметика выполняется в десятичном виде, чтобы 29.99*2+12.99 давало ровно 72.97.
type Money struct {
	d decimal.Decimal
}

// Zero возвращает нулевую сумму.
func Zero() Money {
	return Money{d: decimal.Zero}
}

// MoneyFromFloat строит сумму из числа, пришедшего из JSON-документа.
func MoneyFromFloat(v float64) Money {
	return Money{d: decimal.NewFromFloat(v)}
}

// MoneyFromMinor строит сумму из минорных единиц (центов).
func MoneyFromMinor(minor int64) Money {
	return Money{d: decimal.New(minor, -minorUnitExponent)}
}

// ParseMoney разбирает строковое представление суммы.
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("parse money %q: %w", s, err)
	}
	return Money{d: d}, nil
}

// Add складывает суммы.
func (m Money) Add(other Money) Money {
	return Money{d: m.d.Add(other.d)}
}

// Mul умножает сумму на количество.
func (m Money) Mul(qty int) Money {
	return Money{d: m.d.Mul(decimal.NewFromInt(int64(qty)))}
}

// MinorUnits переводит сумму в минорные единицы с округлением до ближайшего целого.
func (m Money) MinorUnits() int64 {
	return m.d.Shift(minorUnitExponent).Round(0).IntPart()
}

// Float64 возвращает приближённое значение для документных хранилищ.
func (m Money) Float64() float64 {
	return m.d.InexactFloat64()
}

// Equal сравнивает суммы по значению (29.90 == 29.9).
func (m Money) Equal(other Money) bool {
	return m.d.Equal(other.d)
}

// IsNegative сообщает, что сумма меньше нуля.
func (m Money) IsNegative() bool {
	return m.d.IsNegative()
}

// IsZero сообщает, что сумма равна нулю.
func (m Money) IsZero() bool {
	return m.d.IsZero()
}

func (m Money) String() string {
	return m.d.StringFixed(minorUnitExponent)
}

// MarshalJSON пишет сумму числом, как её ожидает клиент.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.d.String()), nil
}

// UnmarshalJSON принимает как число, так и строку.
func (m *Money) UnmarshalJSON(data []byte) error {
	raw := bytes.Trim(bytes.TrimSpace(data), `"`)
	if len(raw) == 0 || string(raw) == "null" {
		m.d = decimal.Zero
		return nil
	}
	d, err := decimal.NewFromString(string(raw))
	if err != nil {
		return fmt.Errorf("decode money: %w", err)
	}
	m.d = d
	return nil
}
