package repository

import (
	"context"
	"time"

	"github.com/majidshakoor42/rozanahisab/internal/domain"
	"github.com/majidshakoor42/rozanahisab/internal/store"
)

type entitySpec[T any] struct {
	key    string
	prefix string
	id     func(*T) string
	assign func(rec *T, id string, at time.Time)
}

var customerSpec = entitySpec[domain.Customer]{
	key:    store.KeyCustomers,
	prefix: "cus",
	id:     func(c *domain.Customer) string { return c.CustomerID },
	assign: func(c *domain.Customer, id string, at time.Time) {
		c.CustomerID = id
		c.CreatedDate = at
	},
}

var saleSpec = entitySpec[domain.Sale]{
	key:    store.KeySales,
	prefix: "sal",
	id:     func(s *domain.Sale) string { return s.SaleID },
	assign: func(s *domain.Sale, id string, at time.Time) {
		s.SaleID = id
		s.Date = at
	},
}

var saleItemSpec = entitySpec[domain.SaleItem]{
	key:    store.KeySaleItems,
	prefix: "itm",
	id:     func(i *domain.SaleItem) string { return i.ItemID },
	assign: func(i *domain.SaleItem, id string, at time.Time) {
		i.ItemID = id
		i.CreatedDate = at
	},
}

var paymentSpec = entitySpec[domain.Payment]{
	key:    store.KeyPayments,
	prefix: "pay",
	id:     func(p *domain.Payment) string { return p.PaymentID },
	assign: func(p *domain.Payment, id string, at time.Time) {
		p.PaymentID = id
		p.Date = at
	},
}

// Collection is a typed view of one stored sequence of records.
type Collection[T any] struct {
	tx   *Tx
	spec entitySpec[T]
}

// ListAll returns every record in insertion order. A never-written collection
// is empty, not an error.
func (c Collection[T]) ListAll(ctx context.Context) ([]T, error) {
	var records []T
	if _, err := c.tx.load(ctx, c.spec.key, &records); err != nil {
		return nil, err
	}
	if records == nil {
		records = []T{}
	}
	return records, nil
}

func (c Collection[T]) FindByID(ctx context.Context, id string) (T, bool, error) {
	var zero T
	records, err := c.ListAll(ctx)
	if err != nil {
		return zero, false, err
	}
	for i := range records {
		if c.spec.id(&records[i]) == id {
			return records[i], true, nil
		}
	}
	return zero, false, nil
}

func (c Collection[T]) Where(ctx context.Context, pred func(T) bool) ([]T, error) {
	records, err := c.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(records))
	for _, rec := range records {
		if pred(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Insert appends rec under a freshly generated id and creation timestamp.
func (c Collection[T]) Insert(ctx context.Context, rec T) (T, error) {
	created, err := c.InsertAll(ctx, []T{rec})
	if err != nil {
		var zero T
		return zero, err
	}
	return created[0], nil
}

func (c Collection[T]) InsertAll(ctx context.Context, recs []T) ([]T, error) {
	records, err := c.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	now := c.tx.store.now()
	created := make([]T, 0, len(recs))
	for _, rec := range recs {
		c.spec.assign(&rec, c.tx.store.newID(c.spec.prefix), now)
		created = append(created, rec)
	}
	records = append(records, created...)
	if err := c.tx.stage(c.spec.key, records); err != nil {
		return nil, err
	}
	return created, nil
}

// ReplaceWhere swaps every record matching pred for updated and reports how
// many were replaced.
func (c Collection[T]) ReplaceWhere(ctx context.Context, pred func(T) bool, updated T) (int, error) {
	records, err := c.ListAll(ctx)
	if err != nil {
		return 0, err
	}
	replaced := 0
	for i := range records {
		if pred(records[i]) {
			records[i] = updated
			replaced++
		}
	}
	if replaced == 0 {
		return 0, nil
	}
	return replaced, c.tx.stage(c.spec.key, records)
}

func (c Collection[T]) DeleteWhere(ctx context.Context, pred func(T) bool) (int, error) {
	records, err := c.ListAll(ctx)
	if err != nil {
		return 0, err
	}
	kept := make([]T, 0, len(records))
	for _, rec := range records {
		if !pred(rec) {
			kept = append(kept, rec)
		}
	}
	removed := len(records) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	return removed, c.tx.stage(c.spec.key, kept)
}

// ReplaceAll overwrites the whole collection.
func (c Collection[T]) ReplaceAll(records []T) error {
	if records == nil {
		records = []T{}
	}
	return c.tx.stage(c.spec.key, records)
}

// MatchID returns a predicate selecting the record with the given id.
func (c Collection[T]) MatchID(id string) func(T) bool {
	return func(rec T) bool {
		return c.spec.id(&rec) == id
	}
}
