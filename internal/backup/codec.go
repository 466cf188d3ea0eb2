// Package backup converts the whole store to and from the portable backup
// document: a flat JSON object mapping each storage key to the string-encoded
// collection it holds.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/majidshakoor42/rozanahisab/internal/domain"
	"github.com/majidshakoor42/rozanahisab/internal/store"
	"github.com/majidshakoor42/rozanahisab/internal/summary"
)

var ErrMalformed = errors.New("malformed backup document")

// Document maps a storage key to its encoded value; nil marks a key that was
// never written.
type Document map[string]*string

func FileName(t time.Time) string {
	return fmt.Sprintf("khata_backup_%s.json", t.Format("2006-01-02"))
}

var shapes = map[string]func(string) error{
	store.KeyCustomers:    decodeAs[[]domain.Customer],
	store.KeySales:        decodeAs[[]domain.Sale],
	store.KeySaleItems:    decodeAs[[]domain.SaleItem],
	store.KeyPayments:     decodeAs[[]domain.Payment],
	store.KeySettings:     decodeObject[domain.Settings],
	store.KeyDailySummary: decodeAs[summary.Book],
	store.KeyInventory:    decodeAs[[]json.RawMessage],
}

func decodeAs[T any](raw string) error {
	var v T
	return json.Unmarshal([]byte(raw), &v)
}

func decodeObject[T any](raw string) error {
	var v *T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return err
	}
	if v == nil {
		return errors.New("must be an object")
	}
	return nil
}

func Export(ctx context.Context, backend store.Backend) (Document, error) {
	doc := make(Document, len(store.Keys()))
	for _, key := range store.Keys() {
		raw, ok, err := backend.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", key, err)
		}
		if !ok {
			doc[key] = nil
			continue
		}
		value := raw
		doc[key] = &value
	}
	return doc, nil
}

func (d Document) Marshal() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// Decode validates the whole document and returns the values to restore.
// Unknown keys are skipped, as are null or empty values.
func Decode(raw []byte) (map[string]string, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: document must be an object", ErrMalformed)
	}

	values := make(map[string]string)
	for key, encoded := range doc {
		if !store.IsKnownKey(key) {
			continue
		}
		check := shapes[key]
		var value *string
		if err := json.Unmarshal(encoded, &value); err != nil {
			return nil, fmt.Errorf("%w: %s must be a string or null", ErrMalformed, key)
		}
		if value == nil || *value == "" {
			continue
		}
		if err := check(*value); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, key, err)
		}
		values[key] = *value
	}
	return values, nil
}

// Import restores every recognized collection in one write. Nothing is
// written unless the entire document decodes.
func Import(ctx context.Context, backend store.Backend, raw []byte) (int, error) {
	values, err := Decode(raw)
	if err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, nil
	}
	if err := backend.SetMany(ctx, values); err != nil {
		return 0, fmt.Errorf("restore: %w", err)
	}
	return len(values), nil
}
