package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/majidshakoor42/rozanahisab/internal/domain"
	"github.com/majidshakoor42/rozanahisab/internal/repository"
	"github.com/majidshakoor42/rozanahisab/internal/service"
	"github.com/majidshakoor42/rozanahisab/internal/store/memory"
)

type testServer struct {
	handler http.Handler
	token   string
}

func newTestAPI(t *testing.T) *API {
	t.Helper()
	repo := repository.New(memory.New())
	svc := service.New(repo, service.Options{Location: time.UTC})
	return New(svc, newTestAuth(t), Options{AllowedOrigin: "http://127.0.0.1:3000", LoginRatePerMinute: 3})
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	api := newTestAPI(t)
	srv := testServer{handler: api.Handler()}
	rec := srv.do(t, http.MethodPost, "/api/v1/auth/login", `{"passphrase":"`+testPassphrase+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp domain.LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	srv.token = resp.AccessToken
	return srv
}

func (s testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (s testServer) createCustomer(t *testing.T, name string) domain.Customer {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/customers", `{"name":"`+name+`","phone":"0300-1112223"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[domain.Customer](t, rec)
}

func (s testServer) createSale(t *testing.T, customerID string, status string, paid string) domain.Sale {
	t.Helper()
	body := `{"customer_id":"` + customerID + `","payment_status":"` + status + `","paid_amount":` + paid +
		`,"items":[{"product_name":"Rice","quantity":2,"unit_price":100},{"product_name":"Sugar","quantity":1,"unit_price":"50"}]}`
	rec := s.do(t, http.MethodPost, "/api/v1/sales", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[domain.SaleResult](t, rec).Sale
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok":true`)
}

func TestHandleLogin(t *testing.T) {
	srv := testServer{handler: newTestAPI(t).Handler()}

	rec := srv.do(t, http.MethodPost, "/api/v1/auth/login", `{"passphrase":"nope-nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/v1/auth/login", `{"passphrase":"`+testPassphrase+`","extra":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/v1/auth/login", `{"passphrase":"`+testPassphrase+`"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[domain.LoginResponse](t, rec)
	assert.Equal(t, RoleOwner, resp.Role)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	srv := testServer{handler: newTestAPI(t).Handler()}
	rec := srv.do(t, http.MethodGet, "/api/v1/customers", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	srv.token = "not-a-token"
	rec = srv.do(t, http.MethodGet, "/api/v1/dashboard", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCustomerRoutes(t *testing.T) {
	srv := newTestServer(t)
	ali := srv.createCustomer(t, "Ali Raza")
	srv.createCustomer(t, "Bilal")

	rec := srv.do(t, http.MethodPost, "/api/v1/customers", `{"name":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodGet, "/api/v1/customers?q=raza", "")
	require.Equal(t, http.StatusOK, rec.Code)
	found := decodeBody[[]domain.Customer](t, rec)
	require.Len(t, found, 1)
	assert.Equal(t, ali.CustomerID, found[0].CustomerID)

	rec = srv.do(t, http.MethodPatch, "/api/v1/customers/"+ali.CustomerID, `{"name":"Ali Khan"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Ali Khan", decodeBody[domain.Customer](t, rec).Name)

	rec = srv.do(t, http.MethodPatch, "/api/v1/customers/cus_missing", `{"name":"X"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	srv.createSale(t, ali.CustomerID, "partial", "100")
	rec = srv.do(t, http.MethodGet, "/api/v1/customers/"+ali.CustomerID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	profile := decodeBody[domain.CustomerProfile](t, rec)
	assert.Len(t, profile.Sales, 1)
	assert.Equal(t, "150", profile.TotalPending.String())

	rec = srv.do(t, http.MethodGet, "/api/v1/customers/cus_missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSaleLifecycle(t *testing.T) {
	srv := newTestServer(t)
	c := srv.createCustomer(t, "Ali")
	sale := srv.createSale(t, c.CustomerID, "partial", "200")
	assert.Equal(t, "250", sale.TotalAmount.String())
	assert.Equal(t, "50", sale.DueAmount.String())

	rec := srv.do(t, http.MethodPost, "/api/v1/sales", `{"customer_id":"`+c.CustomerID+`","payment_status":"partial","paid_amount":300,"items":[{"product_name":"Rice","quantity":2,"unit_price":100},{"product_name":"Sugar","quantity":1,"unit_price":50}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/v1/sales/"+sale.SaleID+"/payments", `{"amount":50}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	paid := decodeBody[domain.Sale](t, rec)
	assert.Equal(t, domain.StatusPaid, paid.PaymentStatus)
	assert.True(t, paid.DueAmount.IsZero())

	rec = srv.do(t, http.MethodPost, "/api/v1/sales/sal_missing/payments", `{"amount":50}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = srv.do(t, http.MethodPost, "/api/v1/sales/"+sale.SaleID+"/payments", `{"amount":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodGet, "/api/v1/sales/"+sale.SaleID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	details := decodeBody[domain.SaleDetails](t, rec)
	assert.Len(t, details.Items, 2)
	assert.Len(t, details.Payments, 2)

	rec = srv.do(t, http.MethodPost, "/api/v1/sales/"+sale.SaleID+"/return", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StatusReturned, decodeBody[domain.Sale](t, rec).PaymentStatus)

	rec = srv.do(t, http.MethodPost, "/api/v1/sales/"+sale.SaleID+"/payments", `{"amount":10}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = srv.do(t, http.MethodPut, "/api/v1/sales/"+sale.SaleID, `{"customer_id":"`+c.CustomerID+`","payment_status":"paid","items":[{"product_name":"Tea","quantity":1,"unit_price":10}]}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = srv.do(t, http.MethodDelete, "/api/v1/sales/"+sale.SaleID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = srv.do(t, http.MethodDelete, "/api/v1/sales/"+sale.SaleID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = srv.do(t, http.MethodGet, "/api/v1/sales/"+sale.SaleID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateSaleRoute(t *testing.T) {
	srv := newTestServer(t)
	c := srv.createCustomer(t, "Ali")
	sale := srv.createSale(t, c.CustomerID, "paid", "0")

	rec := srv.do(t, http.MethodPut, "/api/v1/sales/"+sale.SaleID, `{"customer_id":"`+c.CustomerID+`","payment_status":"pending","items":[{"product_name":"Flour","quantity":3,"unit_price":40}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decodeBody[domain.SaleResult](t, rec)
	assert.Equal(t, sale.SaleID, result.Sale.SaleID)
	assert.Equal(t, "120", result.Sale.DueAmount.String())
	require.NotNil(t, result.Sale.UpdatedDate)

	rec = srv.do(t, http.MethodPut, "/api/v1/sales/sal_missing", `{"customer_id":"`+c.CustomerID+`","payment_status":"paid","items":[{"product_name":"Tea","quantity":1,"unit_price":10}]}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListSalesFilters(t *testing.T) {
	srv := newTestServer(t)
	c := srv.createCustomer(t, "Ali")
	srv.createSale(t, c.CustomerID, "paid", "0")
	pending := srv.createSale(t, c.CustomerID, "pending", "0")

	rec := srv.do(t, http.MethodGet, "/api/v1/sales?status=pending", "")
	require.Equal(t, http.StatusOK, rec.Code)
	views := decodeBody[[]domain.SaleView](t, rec)
	require.Len(t, views, 1)
	assert.Equal(t, pending.SaleID, views[0].SaleID)
	assert.Equal(t, "Ali", views[0].CustomerName)

	today := time.Now().UTC().Format("2006-01-02")
	rec = srv.do(t, http.MethodGet, "/api/v1/sales?from="+today+"&to="+today, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]domain.SaleView](t, rec), 2)

	rec = srv.do(t, http.MethodGet, "/api/v1/sales?status=lost", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = srv.do(t, http.MethodGet, "/api/v1/sales?from=15-03-2024", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDashboardReportsAndSettings(t *testing.T) {
	srv := newTestServer(t)
	c := srv.createCustomer(t, "Ali")
	srv.createSale(t, c.CustomerID, "partial", "100")

	rec := srv.do(t, http.MethodGet, "/api/v1/dashboard", "")
	require.Equal(t, http.StatusOK, rec.Code)
	dash := decodeBody[domain.Dashboard](t, rec)
	assert.Equal(t, "150", dash.TotalDue.String())
	assert.Len(t, dash.LastSevenDays, 7)

	rec = srv.do(t, http.MethodGet, "/api/v1/reports", "")
	require.Equal(t, http.StatusOK, rec.Code)
	report := decodeBody[domain.Reports](t, rec)
	require.Len(t, report.TopItems, 2)
	assert.Equal(t, "Rice", report.TopItems[0].Name)

	rec = srv.do(t, http.MethodPatch, "/api/v1/settings", `{"currency":"usd","businessName":"Ali Kiryana"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	settings := decodeBody[domain.Settings](t, rec)
	assert.Equal(t, "USD", settings.Currency)
	assert.Equal(t, "Ali Kiryana", settings.BusinessName)

	rec = srv.do(t, http.MethodPatch, "/api/v1/settings", `{"taxRate":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportRoutes(t *testing.T) {
	srv := newTestServer(t)
	c := srv.createCustomer(t, "Khan, Traders")
	srv.createSale(t, c.CustomerID, "paid", "0")

	rec := srv.do(t, http.MethodGet, "/api/v1/export/sales.csv", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "sales_export.csv")
	assert.Contains(t, rec.Body.String(), `"Khan, Traders"`)

	rec = srv.do(t, http.MethodGet, "/api/v1/export/sales.xlsx", "")
	require.Equal(t, http.StatusOK, rec.Code)
	book, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer book.Close()
	name, err := book.GetCellValue("Sales", "C2")
	require.NoError(t, err)
	assert.Equal(t, "Khan, Traders", name)
}

func TestBackupRestoreAndClear(t *testing.T) {
	srv := newTestServer(t)
	c := srv.createCustomer(t, "Ali")
	srv.createSale(t, c.CustomerID, "paid", "0")

	rec := srv.do(t, http.MethodGet, "/api/v1/backup", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "khata_backup_")
	doc := rec.Body.String()

	rec = srv.do(t, http.MethodPost, "/api/v1/maintenance/clear", `{"confirm":"yes"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = srv.do(t, http.MethodPost, "/api/v1/maintenance/clear", `{"confirm":"DELETE"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = srv.do(t, http.MethodGet, "/api/v1/customers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[[]domain.Customer](t, rec))

	rec = srv.do(t, http.MethodPost, "/api/v1/backup", `{"khata_sales": 42}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/v1/backup", doc)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = srv.do(t, http.MethodGet, "/api/v1/customers", "")
	customers := decodeBody[[]domain.Customer](t, rec)
	require.Len(t, customers, 1)
	assert.Equal(t, c.CustomerID, customers[0].CustomerID)
}

func TestMaintenanceRoutes(t *testing.T) {
	srv := newTestServer(t)
	c := srv.createCustomer(t, "Ali")
	srv.createSale(t, c.CustomerID, "paid", "0")

	rec := srv.do(t, http.MethodGet, "/api/v1/maintenance/check", "")
	require.Equal(t, http.StatusOK, rec.Code)
	report := decodeBody[domain.ReconcileReport](t, rec)
	assert.Equal(t, 1, report.CheckedSales)
	assert.Empty(t, report.Issues)

	rec = srv.do(t, http.MethodPost, "/api/v1/maintenance/reconcile", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeBody[domain.ReconcileReport](t, rec).Repaired)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(service.ErrValidation))
	assert.Equal(t, http.StatusConflict, statusFor(service.ErrSaleReturned))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}
