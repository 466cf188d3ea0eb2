package store

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("not found")
	ErrClosed   = errors.New("store closed")
)

const (
	KeyCustomers    = "khata_customers"
	KeySales        = "khata_sales"
	KeySaleItems    = "khata_sale_items"
	KeyPayments     = "khata_payments"
	KeySettings     = "khata_settings"
	KeyDailySummary = "khata_daily_summary"
	KeyInventory    = "khata_inventory"
)

// Keys lists every collection key the ledger owns, in backup order.
func Keys() []string {
	return []string{
		KeyCustomers,
		KeySales,
		KeySaleItems,
		KeyPayments,
		KeySettings,
		KeyDailySummary,
		KeyInventory,
	}
}

func IsKnownKey(key string) bool {
	for _, k := range Keys() {
		if k == key {
			return true
		}
	}
	return false
}

// Backend persists whole collections as encoded strings. Get reports ok=false
// for a key that was never written. SetMany must apply all values or none.
type Backend interface {
	Get(ctx context.Context, key string) (string, bool, error)
	SetMany(ctx context.Context, values map[string]string) error
	Clear(ctx context.Context) error
}

type Pinger interface {
	Ping(ctx context.Context) error
}

func Set(ctx context.Context, b Backend, key string, value string) error {
	return b.SetMany(ctx, map[string]string{key: value})
}
