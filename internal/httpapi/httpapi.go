package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/majidshakoor42/rozanahisab/internal/backup"
	"github.com/majidshakoor42/rozanahisab/internal/domain"
	"github.com/majidshakoor42/rozanahisab/internal/export"
	"github.com/majidshakoor42/rozanahisab/internal/service"
	"github.com/majidshakoor42/rozanahisab/internal/store"
)

const (
	maxJSONBody      = 1 << 20
	maxBackupBody    = 32 << 20
	clearConfirmWord = "DELETE"
	dateParam        = "2006-01-02"
	actorKey         = "actor"
	requestIDKey     = "request_id"
)

type Options struct {
	AllowedOrigin      string
	LoginRatePerMinute int
}

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *loginLimiter
}

func New(svc *service.Service, auth *AuthManager, opts Options) *API {
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: opts.AllowedOrigin,
		loginLimiter:  newLoginLimiter(opts.LoginRatePerMinute),
	}
}

func (a *API) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	_ = router.SetTrustedProxies(nil)
	router.Use(gin.Recovery())
	router.Use(requestLogger())
	router.Use(securityHeaders())
	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{a.allowedOrigin},
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "Origin"},
		ExposeHeaders: []string{"Content-Disposition", "X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}))

	router.GET("/healthz", a.handleHealth)

	v1 := router.Group("/api/v1")
	v1.POST("/auth/login", a.handleLogin)

	protected := v1.Group("")
	protected.Use(a.requireAuth(RoleOwner))

	protected.GET("/customers", a.handleListCustomers)
	protected.POST("/customers", a.handleCreateCustomer)
	protected.GET("/customers/:id", a.handleCustomerProfile)
	protected.PATCH("/customers/:id", a.handleUpdateCustomer)

	protected.GET("/sales", a.handleListSales)
	protected.POST("/sales", a.handleCreateSale)
	protected.GET("/sales/:id", a.handleGetSale)
	protected.PUT("/sales/:id", a.handleUpdateSale)
	protected.DELETE("/sales/:id", a.handleDeleteSale)
	protected.POST("/sales/:id/payments", a.handleAddPayment)
	protected.POST("/sales/:id/return", a.handleReturnSale)

	protected.GET("/dashboard", a.handleDashboard)
	protected.GET("/reports", a.handleReports)

	protected.GET("/settings", a.handleGetSettings)
	protected.PATCH("/settings", a.handleUpdateSettings)

	protected.GET("/export/sales.csv", a.handleExportCSV)
	protected.GET("/export/sales.xlsx", a.handleExportXLSX)

	protected.GET("/backup", a.handleBackup)
	protected.POST("/backup", a.handleRestore)

	protected.GET("/maintenance/check", a.handleCheck)
	protected.POST("/maintenance/reconcile", a.handleReconcile)
	protected.POST("/maintenance/clear", a.handleClear)

	return router
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader("X-Request-ID"))
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.New().String()
		}
		c.Set(requestIDKey, requestID)
		c.Header("X-Request-ID", requestID)

		startedAt := time.Now()
		c.Next()

		short := requestID
		if len(short) > 8 {
			short = short[:8]
		}
		log.Printf("[%s] %s %s %d %s", short, c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(startedAt))
		for _, e := range c.Errors {
			log.Printf("[%s] error: %v", short, e.Err)
		}
	}
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Cross-Origin-Opener-Policy", "same-origin")
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}

func (a *API) requireAuth(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authorization := strings.TrimSpace(c.GetHeader("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			abortWithError(c, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		actor, err := a.auth.ParseToken(strings.TrimSpace(authorization[len("Bearer "):]))
		if err != nil {
			abortWithError(c, http.StatusUnauthorized, err)
			return
		}
		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			abortWithError(c, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		c.Set(actorKey, actor)
		c.Request = c.Request.WithContext(service.WithActor(c.Request.Context(), actor))
		c.Next()
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(c *gin.Context) {
	if err := a.service.Ping(c.Request.Context()); err != nil {
		log.Printf("[httpapi] WARN: health check failed: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(c *gin.Context) {
	if !a.loginLimiter.Allow(c.ClientIP()) {
		writeError(c, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(c, &req); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(req)
	if err != nil {
		writeError(c, http.StatusUnauthorized, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a *API) handleListCustomers(c *gin.Context) {
	customers, err := a.service.SearchCustomers(c.Request.Context(), c.Query("q"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, customers)
}

func (a *API) handleCreateCustomer(c *gin.Context) {
	var in domain.CustomerInput
	if err := decodeJSON(c, &in); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	customer, err := a.service.CreateCustomer(c.Request.Context(), in)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, customer)
}

func (a *API) handleCustomerProfile(c *gin.Context) {
	profile, ok, err := a.service.CustomerProfile(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if !ok {
		writeError(c, http.StatusNotFound, errors.New("customer not found"))
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (a *API) handleUpdateCustomer(c *gin.Context) {
	var in domain.CustomerInput
	if err := decodeJSON(c, &in); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	customer, err := a.service.UpdateCustomer(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, customer)
}

func (a *API) parseSaleFilter(c *gin.Context) (domain.SaleFilter, error) {
	filter := domain.SaleFilter{Query: c.Query("q")}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status := domain.PaymentStatus(strings.ToLower(raw))
		if !status.Valid() {
			return filter, fmt.Errorf("unknown status %q", raw)
		}
		filter.Status = status
	}
	loc := a.service.Location()
	if raw := strings.TrimSpace(c.Query("from")); raw != "" {
		from, err := time.ParseInLocation(dateParam, raw, loc)
		if err != nil {
			return filter, fmt.Errorf("from must be YYYY-MM-DD")
		}
		filter.From = &from
	}
	if raw := strings.TrimSpace(c.Query("to")); raw != "" {
		day, err := time.ParseInLocation(dateParam, raw, loc)
		if err != nil {
			return filter, fmt.Errorf("to must be YYYY-MM-DD")
		}
		// Inclusive of the whole end day.
		to := day.AddDate(0, 0, 1).Add(-time.Nanosecond)
		filter.To = &to
	}
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return filter, errors.New("from must not be after to")
	}
	return filter, nil
}

func (a *API) handleListSales(c *gin.Context) {
	filter, err := a.parseSaleFilter(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	sales, err := a.service.ListSales(c.Request.Context(), filter)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, sales)
}

func (a *API) handleCreateSale(c *gin.Context) {
	var req domain.SaleRequest
	if err := decodeJSON(c, &req); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	req.SaleID = ""
	result, err := a.service.SaveSale(c.Request.Context(), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (a *API) handleGetSale(c *gin.Context) {
	details, ok, err := a.service.GetSale(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if !ok {
		writeError(c, http.StatusNotFound, errors.New("sale not found"))
		return
	}
	c.JSON(http.StatusOK, details)
}

func (a *API) handleUpdateSale(c *gin.Context) {
	var req domain.SaleRequest
	if err := decodeJSON(c, &req); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	req.SaleID = c.Param("id")
	result, err := a.service.SaveSale(c.Request.Context(), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (a *API) handleDeleteSale(c *gin.Context) {
	if err := a.service.DeleteSale(c.Request.Context(), c.Param("id")); err != nil {
		writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) handleAddPayment(c *gin.Context) {
	var req domain.PaymentRequest
	if err := decodeJSON(c, &req); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	sale, ok, err := a.service.AddPayment(c.Request.Context(), c.Param("id"), req.Amount)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if !ok {
		writeError(c, http.StatusNotFound, errors.New("sale not found"))
		return
	}
	c.JSON(http.StatusOK, sale)
}

func (a *API) handleReturnSale(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if err := a.service.ReturnSale(ctx, id); err != nil {
		writeServiceError(c, err)
		return
	}
	details, ok, err := a.service.GetSale(ctx, id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if !ok {
		writeError(c, http.StatusNotFound, errors.New("sale not found"))
		return
	}
	c.JSON(http.StatusOK, details.Sale)
}

func (a *API) handleDashboard(c *gin.Context) {
	dash, err := a.service.Dashboard(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, dash)
}

func (a *API) handleReports(c *gin.Context) {
	report, err := a.service.Reports(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (a *API) handleGetSettings(c *gin.Context) {
	settings, err := a.service.Settings(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (a *API) handleUpdateSettings(c *gin.Context) {
	var patch domain.SettingsPatch
	if err := decodeJSON(c, &patch); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	settings, err := a.service.UpdateSettings(c.Request.Context(), patch)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (a *API) handleExportCSV(c *gin.Context) {
	rows, err := a.service.SalesExport(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, rows); err != nil {
		writeServiceError(c, err)
		return
	}
	attachment(c, export.CSVFileName)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (a *API) handleExportXLSX(c *gin.Context) {
	rows, err := a.service.SalesExport(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, rows); err != nil {
		writeServiceError(c, err)
		return
	}
	attachment(c, export.XLSXFileName)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

func (a *API) handleBackup(c *gin.Context) {
	doc, err := a.service.Backup(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	payload, err := doc.Marshal()
	if err != nil {
		writeServiceError(c, err)
		return
	}
	attachment(c, backup.FileName(time.Now().In(a.service.Location())))
	c.Data(http.StatusOK, "application/json", payload)
}

func (a *API) handleRestore(c *gin.Context) {
	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBackupBody))
	if err != nil {
		writeError(c, http.StatusRequestEntityTooLarge, errors.New("backup document too large"))
		return
	}
	restored, err := a.service.Restore(c.Request.Context(), raw)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"restored": restored})
}

func (a *API) handleCheck(c *gin.Context) {
	report, err := a.service.CheckInvariants(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (a *API) handleReconcile(c *gin.Context) {
	report, err := a.service.Reconcile(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

type clearRequest struct {
	Confirm string `json:"confirm"`
}

func (a *API) handleClear(c *gin.Context) {
	var req clearRequest
	if err := decodeJSON(c, &req); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	if req.Confirm != clearConfirmWord {
		writeError(c, http.StatusBadRequest, fmt.Errorf("confirm must be %q", clearConfirmWord))
		return
	}
	if err := a.service.ClearData(c.Request.Context()); err != nil {
		writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func attachment(c *gin.Context, name string) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
}

func decodeJSON(c *gin.Context, dest any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(c.Writer, c.Request.Body, maxJSONBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation), errors.Is(err, backup.ErrMalformed):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrSaleReturned):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(c *gin.Context, err error) {
	writeError(c, statusFor(err), err)
}

func writeError(c *gin.Context, status int, err error) {
	// 5xx details stay in the log; 4xx messages are meant for the client.
	msg := err.Error()
	if status >= 500 {
		_ = c.Error(err)
		msg = "internal server error"
	}
	c.JSON(status, gin.H{"error": msg})
}

func abortWithError(c *gin.Context, status int, err error) {
	writeError(c, status, err)
	c.Abort()
}
