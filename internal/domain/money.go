package domain

import "github.com/shopspring/decimal"

// MoneyPlaces is the fixed precision of every stored price and total.
const MoneyPlaces = 2

// RoundMoney rounds half away from zero to MoneyPlaces.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

func (i TransactionItem) LineTotal() decimal.Decimal {
	return RoundMoney(i.Price.Mul(decimal.NewFromInt(int64(i.Quantity))))
}

func SumItems(items []TransactionItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return RoundMoney(total)
}

func CloneItems(items []TransactionItem) []TransactionItem {
	dup := make([]TransactionItem, len(items))
	copy(dup, items)
	return dup
}

func CloneTransaction(src *Transaction) *Transaction {
	if src == nil {
		return nil
	}
	dup := *src
	dup.Items = CloneItems(src.Items)
	return &dup
}
