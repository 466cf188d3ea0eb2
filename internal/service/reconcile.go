package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/majidshakoor42/rozanahisab/internal/domain"
	"github.com/majidshakoor42/rozanahisab/internal/repository"
)

type ledgerSnapshot struct {
	customers []domain.Customer
	sales     []domain.Sale
	items     []domain.SaleItem
	payments  []domain.Payment
}

func loadSnapshot(ctx context.Context, tx *repository.Tx) (ledgerSnapshot, error) {
	var snap ledgerSnapshot
	var err error
	if snap.customers, err = tx.Customers().ListAll(ctx); err != nil {
		return snap, err
	}
	if snap.sales, err = tx.Sales().ListAll(ctx); err != nil {
		return snap, err
	}
	if snap.items, err = tx.SaleItems().ListAll(ctx); err != nil {
		return snap, err
	}
	if snap.payments, err = tx.Payments().ListAll(ctx); err != nil {
		return snap, err
	}
	return snap, nil
}

func inspect(snap ledgerSnapshot) []domain.Issue {
	issues := []domain.Issue{}
	saleIDs := make(map[string]bool, len(snap.sales))
	for _, sale := range snap.sales {
		saleIDs[sale.SaleID] = true
	}
	customerIDs := make(map[string]bool, len(snap.customers))
	for _, c := range snap.customers {
		customerIDs[c.CustomerID] = true
	}

	itemTotals := map[string]decimal.Decimal{}
	for _, item := range snap.items {
		if !saleIDs[item.SaleID] {
			issues = append(issues, domain.Issue{
				Kind:     domain.IssueOrphanItem,
				SaleID:   item.SaleID,
				RecordID: item.ItemID,
				Detail:   "item references a missing sale",
			})
			continue
		}
		want := lineTotal(item.Quantity, item.UnitPrice)
		if !item.TotalPrice.Equal(want) {
			issues = append(issues, domain.Issue{
				Kind:     domain.IssueItemTotal,
				SaleID:   item.SaleID,
				RecordID: item.ItemID,
				Detail:   fmt.Sprintf("total_price %s, expected %s", item.TotalPrice, want),
			})
		}
		itemTotals[item.SaleID] = itemTotals[item.SaleID].Add(want)
	}

	paid := map[string]decimal.Decimal{}
	for _, p := range snap.payments {
		if !saleIDs[p.SaleID] {
			issues = append(issues, domain.Issue{
				Kind:     domain.IssueOrphanPayment,
				SaleID:   p.SaleID,
				RecordID: p.PaymentID,
				Detail:   "payment references a missing sale",
			})
			continue
		}
		paid[p.SaleID] = paid[p.SaleID].Add(p.Amount)
	}

	for _, sale := range snap.sales {
		if total := itemTotals[sale.SaleID]; !sale.TotalAmount.Equal(total) {
			issues = append(issues, domain.Issue{
				Kind:   domain.IssueTotalMismatch,
				SaleID: sale.SaleID,
				Detail: fmt.Sprintf("total_amount %s, items sum to %s", sale.TotalAmount, total),
			})
		}
		if received := paid[sale.SaleID]; !sale.PaidAmount.Equal(received) {
			issues = append(issues, domain.Issue{
				Kind:   domain.IssuePaidMismatch,
				SaleID: sale.SaleID,
				Detail: fmt.Sprintf("paid_amount %s, payments sum to %s", sale.PaidAmount, received),
			})
		}
		if want := dueFor(sale.TotalAmount, sale.PaidAmount); !sale.DueAmount.Equal(want) {
			issues = append(issues, domain.Issue{
				Kind:   domain.IssueDueMismatch,
				SaleID: sale.SaleID,
				Detail: fmt.Sprintf("due_amount %s, expected %s", sale.DueAmount, want),
			})
		}
		if !statusAgrees(sale) {
			issues = append(issues, domain.Issue{
				Kind:   domain.IssueStatusMismatch,
				SaleID: sale.SaleID,
				Detail: fmt.Sprintf("status %s with paid %s and due %s", sale.PaymentStatus, sale.PaidAmount, sale.DueAmount),
			})
		}
		if !customerIDs[sale.CustomerID] {
			issues = append(issues, domain.Issue{
				Kind:    domain.IssueMissingCustomer,
				SaleID:  sale.SaleID,
				Detail:  fmt.Sprintf("customer %s not found", sale.CustomerID),
				Warning: true,
			})
		}
	}
	return issues
}

// Returned sales keep their status.
func repair(snap ledgerSnapshot) ledgerSnapshot {
	saleIDs := make(map[string]bool, len(snap.sales))
	for _, sale := range snap.sales {
		saleIDs[sale.SaleID] = true
	}

	out := ledgerSnapshot{customers: snap.customers}
	totals := map[string]decimal.Decimal{}
	for _, item := range snap.items {
		if !saleIDs[item.SaleID] {
			continue
		}
		item.TotalPrice = lineTotal(item.Quantity, item.UnitPrice)
		totals[item.SaleID] = totals[item.SaleID].Add(item.TotalPrice)
		out.items = append(out.items, item)
	}
	paid := map[string]decimal.Decimal{}
	for _, p := range snap.payments {
		if !saleIDs[p.SaleID] {
			continue
		}
		paid[p.SaleID] = paid[p.SaleID].Add(p.Amount)
		out.payments = append(out.payments, p)
	}
	for _, sale := range snap.sales {
		sale.TotalAmount = totals[sale.SaleID]
		sale.PaidAmount = paid[sale.SaleID]
		sale.DueAmount = dueFor(sale.TotalAmount, sale.PaidAmount)
		if !statusAgrees(sale) {
			sale.PaymentStatus = settledStatus(sale.PaidAmount, sale.DueAmount)
		}
		out.sales = append(out.sales, sale)
	}
	return out
}

func (s *Service) CheckInvariants(ctx context.Context) (domain.ReconcileReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := loadSnapshot(ctx, s.repo.Begin())
	if err != nil {
		return domain.ReconcileReport{}, err
	}
	return domain.ReconcileReport{CheckedSales: len(snap.sales), Issues: inspect(snap)}, nil
}

// Missing customers are only reported.
func (s *Service) Reconcile(ctx context.Context) (domain.ReconcileReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.repo.Begin()
	snap, err := loadSnapshot(ctx, tx)
	if err != nil {
		return domain.ReconcileReport{}, err
	}
	report := domain.ReconcileReport{CheckedSales: len(snap.sales), Issues: inspect(snap)}
	if report.Clean() {
		return report, nil
	}

	fixed := repair(snap)
	if err := tx.Sales().ReplaceAll(fixed.sales); err != nil {
		return domain.ReconcileReport{}, err
	}
	if err := tx.SaleItems().ReplaceAll(fixed.items); err != nil {
		return domain.ReconcileReport{}, err
	}
	if err := tx.Payments().ReplaceAll(fixed.payments); err != nil {
		return domain.ReconcileReport{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.ReconcileReport{}, err
	}

	report.Repaired = true
	s.audit(ctx, "reconcile", "ledger", fmt.Sprintf("issues=%d", len(report.Issues)))
	return report, nil
}
