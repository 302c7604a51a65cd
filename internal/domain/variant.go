package domain

import "time"

// LowStockThreshold — порог остатка, при котором (и ниже которого) каждое
// успешное списание порождает low-stock сигнал.
const LowStockThreshold int32 = 10

// LowStockSeverity — важность low-stock сигнала.
type LowStockSeverity string

const (
	// LowStockWarning — остаток на пороге или ниже, но товар ещё есть.
	LowStockWarning LowStockSeverity = "warning"
	// LowStockCritical — остаток исчерпан полностью.
	LowStockCritical LowStockSeverity = "critical"
)

// Variant — конкретная покупаемая комбинация цвет+размер со своим остатком.
// Quantity мутируется только через VariantRepository: никаких прямых
// присваиваний из постороннего кода.
type Variant struct {
	ID        string
	ProductID string
	Color     string
	Size      string
	Quantity  int32
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LineItem — строка чекаута/заказа: ссылка на SKU и количество.
type LineItem struct {
	SKU        string
	Qty        int32
	PriceMinor int64
}

// Validate проверяет базовые инварианты варианта.
func (v *Variant) Validate() []error {
	var errs []error

	if v.ProductID == "" {
		errs = append(errs, ErrProductIDRequired)
	}
	if v.Quantity < 0 {
		errs = append(errs, ErrQuantityNegative)
	}

	return errs
}

// LowStockSeverityFor возвращает важность сигнала для текущего остатка.
func LowStockSeverityFor(quantity int32) LowStockSeverity {
	if quantity <= 0 {
		return LowStockCritical
	}
	return LowStockWarning
}

// ValidateLines проверяет строки перед списанием/возвратом.
func ValidateLines(lines []LineItem) []error {
	var errs []error

	if len(lines) == 0 {
		errs = append(errs, ErrLinesRequired)
	}
	for _, line := range lines {
		if line.SKU == "" {
			errs = append(errs, ErrLineSKURequired)
		}
		if line.Qty <= 0 {
			errs = append(errs, ErrLineQtyInvalid)
		}
	}

	return errs
}
