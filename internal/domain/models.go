package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	StatusPending  PaymentStatus = "pending"
	StatusPartial  PaymentStatus = "partial"
	StatusPaid     PaymentStatus = "paid"
	StatusReturned PaymentStatus = "returned"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusPartial, StatusPaid, StatusReturned:
		return true
	}
	return false
}

const (
	DefaultCurrency      = "PKR"
	DefaultBusinessName  = "My Business"
	DefaultPaymentMethod = "cash"
	UnknownCustomerName  = "Unknown"
)

type Customer struct {
	CustomerID  string    `json:"customer_id"`
	Name        string    `json:"name"`
	Phone       string    `json:"phone,omitempty"`
	Email       string    `json:"email,omitempty"`
	Address     string    `json:"address,omitempty"`
	CreatedDate time.Time `json:"created_date"`
}

type CustomerInput struct {
	Name    string `json:"name" validate:"required,max=120"`
	Phone   string `json:"phone" validate:"omitempty,max=32"`
	Email   string `json:"email" validate:"omitempty,email"`
	Address string `json:"address" validate:"omitempty,max=240"`
}

type Sale struct {
	SaleID        string          `json:"sale_id"`
	CustomerID    string          `json:"customer_id"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	DueAmount     decimal.Decimal `json:"due_amount"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	Currency      string          `json:"currency"`
	Date          time.Time       `json:"date"`
	UpdatedDate   *time.Time      `json:"updated_date,omitempty"`
}

type SaleItem struct {
	ItemID      string          `json:"item_id"`
	SaleID      string          `json:"sale_id"`
	ProductName string          `json:"product_name"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	CreatedDate time.Time       `json:"created_date"`
}

type Payment struct {
	PaymentID string          `json:"payment_id"`
	SaleID    string          `json:"sale_id"`
	Amount    decimal.Decimal `json:"amount"`
	Date      time.Time       `json:"date"`
	Method    string          `json:"method"`
}

type DailySummary struct {
	TotalSales           decimal.Decimal `json:"total_sales"`
	Currency             string          `json:"currency"`
	NumberOfTransactions int             `json:"number_of_transactions"`
}

type Settings struct {
	Currency     string          `json:"currency"`
	BusinessName string          `json:"businessName"`
	TaxRate      decimal.Decimal `json:"taxRate"`
	Created      time.Time       `json:"created"`
}

type SettingsPatch struct {
	Currency     *string          `json:"currency,omitempty" validate:"omitempty,iso4217"`
	BusinessName *string          `json:"businessName,omitempty" validate:"omitempty,min=1,max=120"`
	TaxRate      *decimal.Decimal `json:"taxRate,omitempty"`
}

type SaleItemInput struct {
	ProductName string          `json:"product_name"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// SaleRequest drives both creation and edit. SaleID selects the sale to edit.
type SaleRequest struct {
	SaleID        string          `json:"sale_id,omitempty"`
	CustomerID    string          `json:"customer_id"`
	Items         []SaleItemInput `json:"items"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	Currency      string          `json:"currency"`
}

type SaleResult struct {
	Sale  Sale       `json:"sale"`
	Items []SaleItem `json:"items"`
}

type SaleDetails struct {
	Sale     Sale       `json:"sale"`
	Items    []SaleItem `json:"items"`
	Payments []Payment  `json:"payments"`
}

type PaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type SaleFilter struct {
	Status PaymentStatus
	From   *time.Time
	To     *time.Time
	Query  string
}

type SaleView struct {
	Sale
	CustomerName string `json:"customer_name"`
}

type CustomerProfile struct {
	Customer     Customer        `json:"customer"`
	Sales        []Sale          `json:"sales"`
	TotalSpent   decimal.Decimal `json:"total_spent"`
	TotalPending decimal.Decimal `json:"total_pending"`
}

type DaySales struct {
	Date    string          `json:"date"`
	Weekday string          `json:"weekday"`
	Total   decimal.Decimal `json:"total"`
}

type Dashboard struct {
	Today         DailySummary    `json:"today"`
	TotalDue      decimal.Decimal `json:"total_due"`
	LastSevenDays []DaySales      `json:"last_seven_days"`
	RecentSales   []SaleView      `json:"recent_sales"`
}

type MonthlyEarning struct {
	Month    string          `json:"month"`
	Earnings decimal.Decimal `json:"earnings"`
}

type CustomerSpending struct {
	CustomerID string          `json:"customer_id"`
	Name       string          `json:"name"`
	Total      decimal.Decimal `json:"total"`
}

type CustomerPurchases struct {
	CustomerID string `json:"customer_id"`
	Name       string `json:"name"`
	Purchases  int    `json:"purchases"`
}

type ItemQuantity struct {
	Name     string          `json:"name"`
	Quantity decimal.Decimal `json:"quantity"`
}

type Reports struct {
	MonthlyEarnings         []MonthlyEarning    `json:"monthly_earnings"`
	TopCustomersBySpending  []CustomerSpending  `json:"top_customers_by_spending"`
	TopCustomersByPurchases []CustomerPurchases `json:"top_customers_by_purchases"`
	TopItems                []ItemQuantity      `json:"top_items"`
}

type IssueKind string

const (
	IssueDueMismatch     IssueKind = "due_mismatch"
	IssueStatusMismatch  IssueKind = "status_mismatch"
	IssuePaidMismatch    IssueKind = "paid_mismatch"
	IssueTotalMismatch   IssueKind = "total_mismatch"
	IssueItemTotal       IssueKind = "item_total_mismatch"
	IssueOrphanItem      IssueKind = "orphan_item"
	IssueOrphanPayment   IssueKind = "orphan_payment"
	IssueMissingCustomer IssueKind = "missing_customer"
)

type Issue struct {
	Kind     IssueKind `json:"kind"`
	SaleID   string    `json:"sale_id,omitempty"`
	RecordID string    `json:"record_id,omitempty"`
	Detail   string    `json:"detail"`
	// Warning issues are reported but never repaired.
	Warning bool `json:"warning,omitempty"`
}

type ReconcileReport struct {
	CheckedSales int     `json:"checked_sales"`
	Issues       []Issue `json:"issues"`
	Repaired     bool    `json:"repaired"`
}

// Clean reports whether no blocking issue was found.
func (r ReconcileReport) Clean() bool {
	for _, issue := range r.Issues {
		if !issue.Warning {
			return false
		}
	}
	return true
}

type LoginRequest struct {
	Passphrase string `json:"passphrase"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Subject string `json:"subject"`
	Role    string `json:"role"`
}
