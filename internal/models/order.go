package models

import (
	"strings"
	"time"
)

// Статусы ордеров нормализуются адаптерами к нижнему регистру:
// биржи отдают FILLED/partiallyFilled/NEW вперемешку.
const (
	OrderStatusFilled    = "filled"
	OrderStatusPartially = "partiallyfilled"
	OrderStatusCanceled  = "canceled"
	OrderStatusNew       = "new"

	// статус записи в БД после завершения жизненного цикла
	OrderStatusExecuted = "executed"
)

type Order struct {
	OrderID       string
	ClientOrderID string
	Symbol        string
	Side          string
	Type          string
	Status        string
	Quantity      float64 // запрошенное количество
	Filled        float64 // исполненное количество (cumQuantity/executedQty)
	Price         float64
	Fee           float64
}

// Filled — терминальное "исполнен целиком".
func (o Order) IsFilled() bool {
	return strings.EqualFold(o.Status, OrderStatusFilled)
}

type Trade struct {
	Symbol string
	Side   string
	Price  float64
	Qty    float64
	Fee    float64
	Time   time.Time
}
