package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"storefront/backend/internal/domain"
)

// FinancialReport sums the ledger between from and to, both optional
// YYYY-MM-DD dates with to inclusive. Total income counts sales and manual
// income; expenses are summed by magnitude.
func (s *Service) FinancialReport(ctx context.Context, from string, to string) (domain.FinancialReport, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.FinancialReport{}, err
	}

	filter := domain.TransactionFilter{}
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)
	if from != "" {
		day, err := parseDay(from)
		if err != nil {
			return domain.FinancialReport{}, err
		}
		filter.From = day
	}
	if to != "" {
		day, err := parseDay(to)
		if err != nil {
			return domain.FinancialReport{}, err
		}
		filter.To = day.Add(24 * time.Hour)
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && !filter.From.Before(filter.To) {
		return domain.FinancialReport{}, fmt.Errorf("%w: from must not be after to", ErrValidation)
	}

	transactions, err := s.repo.ListTransactions(ctx, filter)
	if err != nil {
		return domain.FinancialReport{}, err
	}
	products, err := s.repo.ListProducts(ctx, domain.ProductFilter{})
	if err != nil {
		return domain.FinancialReport{}, err
	}

	report := summarize(transactions)
	report.Period = describePeriod(from, to)
	report.ProductCount = len(products)
	return report, nil
}

func summarize(transactions []domain.Transaction) domain.FinancialReport {
	sales := decimal.Zero
	income := decimal.Zero
	expenses := decimal.Zero
	for _, tx := range transactions {
		switch tx.Type {
		case domain.TxTypeSale:
			sales = sales.Add(tx.TotalAmount)
		case domain.TxTypeIncome:
			income = income.Add(tx.TotalAmount)
		case domain.TxTypeExpense:
			expenses = expenses.Add(tx.TotalAmount.Abs())
		}
	}

	totalIncome := sales.Add(income)
	return domain.FinancialReport{
		TotalSales:       domain.RoundMoney(sales),
		TotalIncome:      domain.RoundMoney(totalIncome),
		TotalExpenses:    domain.RoundMoney(expenses),
		NetProfit:        domain.RoundMoney(totalIncome.Sub(expenses)),
		TransactionCount: len(transactions),
		Transactions:     transactions,
	}
}

func describePeriod(from string, to string) string {
	switch {
	case from != "" && to != "":
		return from + " to " + to
	case from != "":
		return "since " + from
	case to != "":
		return "until " + to
	default:
		return "all time"
	}
}
