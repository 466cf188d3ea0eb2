// Package summary maintains the date-keyed rollup of realized cash.
package summary

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/majidshakoor42/rozanahisab/internal/domain"
)

const dateLayout = "2006-01-02"

// Book maps a business-local ISO date to its running totals.
type Book map[string]domain.DailySummary

type Aggregator struct {
	Location        *time.Location
	DefaultCurrency string
}

func (a Aggregator) location() *time.Location {
	if a.Location == nil {
		return time.Local
	}
	return a.Location
}

// DateKey returns the calendar date of t in the aggregator's zone.
func (a Aggregator) DateKey(t time.Time) string {
	return t.In(a.location()).Format(dateLayout)
}

// Apply adds amount to the bucket for the day containing at, creating it on
// first use. Only positive amounts count as transactions; reversals lower the
// total and leave the count alone.
func (a Aggregator) Apply(book Book, amount decimal.Decimal, currency string, at time.Time) domain.DailySummary {
	key := a.DateKey(at)
	bucket, ok := book[key]
	if !ok {
		if currency == "" {
			currency = a.DefaultCurrency
		}
		if currency == "" {
			currency = domain.DefaultCurrency
		}
		bucket = domain.DailySummary{TotalSales: decimal.Zero, Currency: currency}
	}

	bucket.TotalSales = bucket.TotalSales.Add(amount)
	if amount.IsPositive() {
		bucket.NumberOfTransactions++
	}
	book[key] = bucket
	return bucket
}

// Day returns the bucket for the day containing at, or a zero bucket in the
// fallback currency.
func (a Aggregator) Day(book Book, at time.Time, fallbackCurrency string) domain.DailySummary {
	if bucket, ok := book[a.DateKey(at)]; ok {
		return bucket
	}
	if fallbackCurrency == "" {
		fallbackCurrency = domain.DefaultCurrency
	}
	return domain.DailySummary{TotalSales: decimal.Zero, Currency: fallbackCurrency}
}

// Window returns the last days calendar days ending on end, oldest first.
func (a Aggregator) Window(book Book, end time.Time, days int) []domain.DaySales {
	if days < 1 {
		return nil
	}
	end = end.In(a.location())
	out := make([]domain.DaySales, 0, days)
	for i := days - 1; i >= 0; i-- {
		day := end.AddDate(0, 0, -i)
		key := day.Format(dateLayout)
		total := decimal.Zero
		if bucket, ok := book[key]; ok {
			total = bucket.TotalSales
		}
		out = append(out, domain.DaySales{
			Date:    key,
			Weekday: day.Format("Mon"),
			Total:   total,
		})
	}
	return out
}
