// Package report renders financial reports for download and printing.
package report

import (
	"bytes"
	"encoding/csv"
	"html/template"
	"strconv"

	"github.com/shopspring/decimal"

	"storefront/backend/internal/domain"
)

// CSV renders the summary followed by one row per transaction.
func CSV(r domain.FinancialReport) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	rows := [][]string{
		{"section", "key", "value"},
		{"summary", "period", r.Period},
		{"summary", "total_sales", money(r.TotalSales)},
		{"summary", "total_income", money(r.TotalIncome)},
		{"summary", "total_expenses", money(r.TotalExpenses)},
		{"summary", "net_profit", money(r.NetProfit)},
		{"summary", "transaction_count", strconv.Itoa(r.TransactionCount)},
		{"summary", "product_count", strconv.Itoa(r.ProductCount)},
	}
	if err := w.WriteAll(rows); err != nil {
		return "", err
	}

	if err := w.Write([]string{"id", "date", "type", "status", "description", "category", "total_amount"}); err != nil {
		return "", err
	}
	for _, tx := range r.Transactions {
		err := w.Write([]string{
			tx.ID,
			tx.Date.Format("2006-01-02 15:04:05"),
			string(tx.Type),
			tx.Status,
			tx.Description,
			tx.Category,
			money(tx.TotalAmount),
		})
		if err != nil {
			return "", err
		}
	}
	w.Flush()
	return buf.String(), w.Error()
}

var htmlTmpl = template.Must(template.New("financial-report").Funcs(template.FuncMap{
	"money": money,
	"date":  func(tx domain.Transaction) string { return tx.Date.Format("2006-01-02 15:04") },
}).Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <title>Financial Report {{.Period}}</title>
  <style>
    body { font-family: sans-serif; margin: 24px; }
    table { width: 100%; border-collapse: collapse; margin-top: 8px; }
    th, td { border: 1px solid #ddd; padding: 6px; font-size: 13px; }
    td.num { text-align: right; }
    h2, h3 { margin-bottom: 4px; }
  </style>
</head>
<body>
  <h2>Financial Report</h2>
  <p>Period: {{.Period}}</p>
  <p>Total Sales: {{money .TotalSales}} | Total Income: {{money .TotalIncome}} | Total Expenses: {{money .TotalExpenses}} | Net Profit: {{money .NetProfit}}</p>
  <p>Transactions: {{.TransactionCount}} | Products: {{.ProductCount}}</p>

  <h3>Transactions</h3>
  <table>
    <thead><tr><th>ID</th><th>Date</th><th>Type</th><th>Description</th><th>Category</th><th>Amount</th></tr></thead>
    <tbody>{{range .Transactions}}<tr><td>{{.ID}}</td><td>{{date .}}</td><td>{{.Type}}</td><td>{{.Description}}</td><td>{{.Category}}</td><td class="num">{{money .TotalAmount}}</td></tr>{{end}}</tbody>
  </table>
</body>
</html>
`))

// HTML renders a printable page. Field values are escaped by html/template.
func HTML(r domain.FinancialReport) (string, error) {
	var buf bytes.Buffer
	if err := htmlTmpl.Execute(&buf, r); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func money(d decimal.Decimal) string {
	return d.StringFixed(domain.MoneyPlaces)
}
