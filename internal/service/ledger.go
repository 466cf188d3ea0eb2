package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/majidshakoor42/rozanahisab/internal/domain"
	"github.com/majidshakoor42/rozanahisab/internal/repository"
	"github.com/majidshakoor42/rozanahisab/internal/store"
)

func validItems(items []domain.SaleItemInput) []domain.SaleItemInput {
	out := make([]domain.SaleItemInput, 0, len(items))
	for _, item := range items {
		item.ProductName = strings.TrimSpace(item.ProductName)
		if item.ProductName == "" || !item.Quantity.IsPositive() || !item.Quantity.IsInteger() || item.UnitPrice.IsNegative() {
			continue
		}
		out = append(out, item)
	}
	return out
}

func lineTotal(quantity, unitPrice decimal.Decimal) decimal.Decimal {
	return unitPrice.Mul(quantity)
}

func dueFor(total, paid decimal.Decimal) decimal.Decimal {
	due := total.Sub(paid)
	if due.IsNegative() {
		return decimal.Zero
	}
	return due
}

func settledStatus(paid, due decimal.Decimal) domain.PaymentStatus {
	switch {
	case due.IsZero() && paid.IsPositive():
		return domain.StatusPaid
	case paid.IsZero():
		return domain.StatusPending
	default:
		return domain.StatusPartial
	}
}

// Returned sales are frozen and always agree.
func statusAgrees(sale domain.Sale) bool {
	switch sale.PaymentStatus {
	case domain.StatusReturned:
		return true
	case domain.StatusPaid:
		return sale.DueAmount.IsZero()
	case domain.StatusPending:
		return sale.PaidAmount.IsZero()
	case domain.StatusPartial:
		return sale.PaidAmount.IsPositive() && sale.DueAmount.IsPositive()
	}
	return false
}

func sumPayments(payments []domain.Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p.Amount)
	}
	return total
}

func itemsOf(saleID string) func(domain.SaleItem) bool {
	return func(item domain.SaleItem) bool { return item.SaleID == saleID }
}

func paymentsOf(saleID string) func(domain.Payment) bool {
	return func(p domain.Payment) bool { return p.SaleID == saleID }
}

// SaveSale creates a sale, or fully replaces the one named by req.SaleID.
// Edits never touch the daily summary.
func (s *Service) SaveSale(ctx context.Context, req domain.SaleRequest) (domain.SaleResult, error) {
	customerID := strings.TrimSpace(req.CustomerID)
	if customerID == "" {
		return domain.SaleResult{}, invalid("customer is required")
	}
	items := validItems(req.Items)
	if len(items) == 0 {
		return domain.SaleResult{}, invalid("at least one valid item is required")
	}

	total := decimal.Zero
	for _, item := range items {
		total = total.Add(lineTotal(item.Quantity, item.UnitPrice))
	}

	var paid decimal.Decimal
	switch req.PaymentStatus {
	case domain.StatusPaid:
		paid = total
	case domain.StatusPending:
		paid = decimal.Zero
	case domain.StatusPartial:
		if !req.PaidAmount.IsPositive() || req.PaidAmount.GreaterThanOrEqual(total) {
			return domain.SaleResult{}, invalid("partial payment must be greater than 0 and less than the total %s", total)
		}
		paid = req.PaidAmount
	default:
		return domain.SaleResult{}, invalid("payment status must be pending, partial or paid")
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency != "" {
		if err := s.validate.Var(currency, "iso4217"); err != nil {
			return domain.SaleResult{}, invalid("unknown currency %q", currency)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.repo.Begin()
	if _, ok, err := tx.Customers().FindByID(ctx, customerID); err != nil {
		return domain.SaleResult{}, err
	} else if !ok {
		return domain.SaleResult{}, invalid("customer %s does not exist", customerID)
	}
	if currency == "" {
		settings, err := s.settingsIn(ctx, tx)
		if err != nil {
			return domain.SaleResult{}, err
		}
		currency = settings.Currency
	}

	now := s.repo.Now()
	sales := tx.Sales()
	editing := strings.TrimSpace(req.SaleID) != ""

	var sale domain.Sale
	if editing {
		existing, ok, err := sales.FindByID(ctx, strings.TrimSpace(req.SaleID))
		if err != nil {
			return domain.SaleResult{}, err
		}
		if !ok {
			return domain.SaleResult{}, store.ErrNotFound
		}
		if existing.PaymentStatus == domain.StatusReturned {
			return domain.SaleResult{}, ErrSaleReturned
		}
		sale = existing
		sale.CustomerID = customerID
		sale.TotalAmount = total
		sale.PaidAmount = paid
		sale.DueAmount = dueFor(total, paid)
		sale.PaymentStatus = req.PaymentStatus
		sale.Currency = currency
		sale.UpdatedDate = &now
		if _, err := sales.ReplaceWhere(ctx, sales.MatchID(sale.SaleID), sale); err != nil {
			return domain.SaleResult{}, err
		}
		if _, err := tx.SaleItems().DeleteWhere(ctx, itemsOf(sale.SaleID)); err != nil {
			return domain.SaleResult{}, err
		}
		if _, err := tx.Payments().DeleteWhere(ctx, paymentsOf(sale.SaleID)); err != nil {
			return domain.SaleResult{}, err
		}
	} else {
		created, err := sales.Insert(ctx, domain.Sale{
			CustomerID:    customerID,
			TotalAmount:   total,
			PaidAmount:    paid,
			DueAmount:     dueFor(total, paid),
			PaymentStatus: req.PaymentStatus,
			Currency:      currency,
		})
		if err != nil {
			return domain.SaleResult{}, err
		}
		sale = created
	}

	records := make([]domain.SaleItem, 0, len(items))
	for _, item := range items {
		records = append(records, domain.SaleItem{
			SaleID:      sale.SaleID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			TotalPrice:  lineTotal(item.Quantity, item.UnitPrice),
		})
	}
	createdItems, err := tx.SaleItems().InsertAll(ctx, records)
	if err != nil {
		return domain.SaleResult{}, err
	}

	if paid.IsPositive() {
		if _, err := tx.Payments().Insert(ctx, domain.Payment{
			SaleID: sale.SaleID,
			Amount: paid,
			Method: domain.DefaultPaymentMethod,
		}); err != nil {
			return domain.SaleResult{}, err
		}
	}

	if !editing {
		if err := s.applySummary(ctx, tx, paid, currency); err != nil {
			return domain.SaleResult{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.SaleResult{}, err
	}

	action := "sale_create"
	if editing {
		action = "sale_update"
	}
	s.audit(ctx, action, sale.SaleID, fmt.Sprintf("total=%s paid=%s status=%s", total, paid, sale.PaymentStatus))
	return domain.SaleResult{Sale: sale, Items: createdItems}, nil
}

func (s *Service) applySummary(ctx context.Context, tx *repository.Tx, amount decimal.Decimal, currency string) error {
	book, err := tx.Summaries().Load(ctx)
	if err != nil {
		return err
	}
	s.aggregator.Apply(book, amount, currency, s.repo.Now())
	return tx.Summaries().Save(book)
}

// Overpayment is accepted and clamps due at zero.
func (s *Service) AddPayment(ctx context.Context, saleID string, amount decimal.Decimal) (domain.Sale, bool, error) {
	if !amount.IsPositive() {
		return domain.Sale{}, false, invalid("payment amount must be greater than 0")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.repo.Begin()
	sales := tx.Sales()
	sale, ok, err := sales.FindByID(ctx, saleID)
	if err != nil || !ok {
		return domain.Sale{}, false, err
	}
	if sale.PaymentStatus == domain.StatusReturned {
		return domain.Sale{}, true, ErrSaleReturned
	}

	sale.PaidAmount = sale.PaidAmount.Add(amount)
	due := sale.TotalAmount.Sub(sale.PaidAmount)
	if !due.IsPositive() {
		sale.PaymentStatus = domain.StatusPaid
		sale.DueAmount = decimal.Zero
	} else {
		sale.PaymentStatus = domain.StatusPartial
		sale.DueAmount = due
	}

	if _, err := sales.ReplaceWhere(ctx, sales.MatchID(saleID), sale); err != nil {
		return domain.Sale{}, false, err
	}
	if _, err := tx.Payments().Insert(ctx, domain.Payment{
		SaleID: saleID,
		Amount: amount,
		Method: domain.DefaultPaymentMethod,
	}); err != nil {
		return domain.Sale{}, false, err
	}
	if err := s.applySummary(ctx, tx, amount, sale.Currency); err != nil {
		return domain.Sale{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Sale{}, false, err
	}

	s.audit(ctx, "payment_add", saleID, fmt.Sprintf("amount=%s status=%s", amount, sale.PaymentStatus))
	return sale, true, nil
}

// DeleteSale keeps the sale's cash in the daily summary unless the service
// was built with ReverseSummaryOnDelete.
func (s *Service) DeleteSale(ctx context.Context, saleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.repo.Begin()
	sales := tx.Sales()
	sale, ok, err := sales.FindByID(ctx, saleID)
	if err != nil || !ok {
		return err
	}

	payments, err := tx.Payments().Where(ctx, paymentsOf(saleID))
	if err != nil {
		return err
	}
	reversed := decimal.Zero
	if s.reverseOnDelete && sale.PaymentStatus != domain.StatusReturned {
		reversed = sumPayments(payments)
		if reversed.IsPositive() {
			if err := s.applySummary(ctx, tx, reversed.Neg(), sale.Currency); err != nil {
				return err
			}
		}
	}

	if _, err := sales.DeleteWhere(ctx, sales.MatchID(saleID)); err != nil {
		return err
	}
	if _, err := tx.SaleItems().DeleteWhere(ctx, itemsOf(saleID)); err != nil {
		return err
	}
	if _, err := tx.Payments().DeleteWhere(ctx, paymentsOf(saleID)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	s.audit(ctx, "sale_delete", saleID, fmt.Sprintf("payments=%d reversed=%s", len(payments), reversed))
	return nil
}

func (s *Service) ReturnSale(ctx context.Context, saleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.repo.Begin()
	sales := tx.Sales()
	sale, ok, err := sales.FindByID(ctx, saleID)
	if err != nil || !ok {
		return err
	}
	if sale.PaymentStatus == domain.StatusReturned {
		return nil
	}

	now := s.repo.Now()
	sale.PaymentStatus = domain.StatusReturned
	sale.UpdatedDate = &now
	if _, err := sales.ReplaceWhere(ctx, sales.MatchID(saleID), sale); err != nil {
		return err
	}

	payments, err := tx.Payments().Where(ctx, paymentsOf(saleID))
	if err != nil {
		return err
	}
	received := sumPayments(payments)
	if received.IsPositive() {
		if err := s.applySummary(ctx, tx, received.Neg(), sale.Currency); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	s.audit(ctx, "sale_return", saleID, fmt.Sprintf("reversed=%s", received))
	return nil
}

func (s *Service) GetSale(ctx context.Context, saleID string) (domain.SaleDetails, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.repo.Begin()
	sale, ok, err := tx.Sales().FindByID(ctx, saleID)
	if err != nil || !ok {
		return domain.SaleDetails{}, false, err
	}
	items, err := tx.SaleItems().Where(ctx, itemsOf(saleID))
	if err != nil {
		return domain.SaleDetails{}, false, err
	}
	payments, err := tx.Payments().Where(ctx, paymentsOf(saleID))
	if err != nil {
		return domain.SaleDetails{}, false, err
	}
	return domain.SaleDetails{Sale: sale, Items: items, Payments: payments}, true, nil
}
