package backup

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majidshakoor42/rozanahisab/internal/domain"
	"github.com/majidshakoor42/rozanahisab/internal/store"
	"github.com/majidshakoor42/rozanahisab/internal/store/memory"
)

const salesJSON = `[{"sale_id":"sal_1","customer_id":"cus_1","total_amount":"250","paid_amount":"250","due_amount":"0","payment_status":"paid","currency":"PKR","date":"2024-03-15T10:00:00Z"}]`

func TestFileName(t *testing.T) {
	assert.Equal(t, "khata_backup_2024-03-15.json", FileName(time.Date(2024, 3, 15, 23, 0, 0, 0, time.UTC)))
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := memory.NewSeeded(map[string]string{
		store.KeySales:     salesJSON,
		store.KeyCustomers: `[{"customer_id":"cus_1","name":"Ali","created_date":"2024-03-15T09:00:00Z"}]`,
	})

	doc, err := Export(ctx, src)
	require.NoError(t, err)
	assert.Len(t, doc, len(store.Keys()))
	assert.Nil(t, doc[store.KeyPayments])
	require.NotNil(t, doc[store.KeySales])

	raw, err := doc.Marshal()
	require.NoError(t, err)

	dst := memory.New()
	restored, err := Import(ctx, dst, raw)
	require.NoError(t, err)
	assert.Equal(t, 2, restored)
	assert.Equal(t, src.Snapshot(), dst.Snapshot())
}

func TestImportAcceptsLegacyNumbers(t *testing.T) {
	raw := []byte(`{"khata_payments": "[{\"payment_id\":\"pay_1\",\"sale_id\":\"sal_1\",\"amount\":50,\"date\":\"2024-03-15T10:00:00Z\",\"method\":\"cash\"}]"}`)
	values, err := Decode(raw)
	require.NoError(t, err)
	assert.Contains(t, values, store.KeyPayments)
}

func TestImportAcceptsFractionalQuantities(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	raw := []byte(`{"khata_sale_items": "[{\"item_id\":\"itm_1\",\"sale_id\":\"sal_1\",\"product_name\":\"Rice\",\"quantity\":1.5,\"unit_price\":200,\"total_price\":300}]"}`)

	restored, err := Import(ctx, backend, raw)
	require.NoError(t, err)
	assert.Equal(t, 1, restored)

	var items []domain.SaleItem
	require.NoError(t, json.Unmarshal([]byte(backend.Snapshot()[store.KeySaleItems]), &items))
	require.Len(t, items, 1)
	assert.True(t, items[0].Quantity.Equal(decimal.RequireFromString("1.5")))
}

func TestDecodeSkipsUnknownNullAndEmpty(t *testing.T) {
	raw := []byte(`{"khata_sales": null, "khata_settings": "", "khata_theme": "dark", "khata_inventory": "[]"}`)
	values, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{store.KeyInventory: "[]"}, values)
}

func TestImportRejectsMalformedDocuments(t *testing.T) {
	cases := map[string]string{
		"not json":        `{"khata_sales":`,
		"array document":  `[1, 2]`,
		"null document":   `null`,
		"non-string":      `{"khata_sales": [1]}`,
		"bad collection":  `{"khata_sales": "{\"oops\": true}"}`,
		"trailing data":   `{} {}`,
		"bad amount type": `{"khata_sales": "[{\"total_amount\": true}]"}`,
		"null settings":   `{"khata_settings": "null"}`,
		"array settings":  `{"khata_settings": "[]"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			backend := memory.NewSeeded(map[string]string{store.KeySales: salesJSON})
			restored, err := Import(context.Background(), backend, []byte(raw))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed))
			assert.Zero(t, restored)
			assert.Equal(t, map[string]string{store.KeySales: salesJSON}, backend.Snapshot())
		})
	}
}

func TestImportIsAllOrNothing(t *testing.T) {
	backend := memory.NewSeeded(map[string]string{store.KeySales: salesJSON})
	raw := []byte(`{"khata_customers": "[]", "khata_sales": "not json"}`)
	_, err := Import(context.Background(), backend, raw)
	require.ErrorIs(t, err, ErrMalformed)
	_, ok, _ := backend.Get(context.Background(), store.KeyCustomers)
	assert.False(t, ok)
}

type staticSource struct {
	doc Document
	err error
}

func (s staticSource) Backup(context.Context) (Document, error) {
	return s.doc, s.err
}

func TestSchedulerRunOnceWritesAndPrunes(t *testing.T) {
	dir := t.TempDir()
	sales := salesJSON
	sched := NewScheduler(staticSource{doc: Document{store.KeySales: &sales}}, dir, 2, time.UTC)

	day := time.Date(2024, 3, 10, 23, 0, 0, 0, time.UTC)
	var paths []string
	for i := 0; i < 4; i++ {
		current := day.AddDate(0, 0, i)
		sched.now = func() time.Time { return current }
		path, err := sched.RunOnce(context.Background())
		require.NoError(t, err)
		paths = append(paths, path)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"khata_backup_2024-03-12.json", "khata_backup_2024-03-13.json"}, names)

	raw, err := os.ReadFile(paths[3])
	require.NoError(t, err)
	values, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, salesJSON, values[store.KeySales])
}

func TestSchedulerRunOnceSurfacesSourceError(t *testing.T) {
	dir := t.TempDir()
	sched := NewScheduler(staticSource{err: errors.New("store offline")}, dir, 3, time.UTC)
	_, err := sched.RunOnce(context.Background())
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	sched := NewScheduler(staticSource{}, filepath.Join(t.TempDir(), "backups"), 3, time.UTC)
	require.Error(t, sched.Start("not a cron spec"))
}
