package service

import (
	"context"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/majidshakoor42/rozanahisab/internal/domain"
	"github.com/majidshakoor42/rozanahisab/internal/export"
)

const (
	recentSalesLimit = 5
	topListLimit     = 5
	dashboardDays    = 7
)

func customerNames(customers []domain.Customer) map[string]string {
	names := make(map[string]string, len(customers))
	for _, c := range customers {
		names[c.CustomerID] = c.Name
	}
	return names
}

func nameOrUnknown(names map[string]string, id string) string {
	if name, ok := names[id]; ok {
		return name
	}
	return domain.UnknownCustomerName
}

func (s *Service) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.SaleView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.repo.Begin()
	sales, err := tx.Sales().ListAll(ctx)
	if err != nil {
		return nil, err
	}
	customers, err := tx.Customers().ListAll(ctx)
	if err != nil {
		return nil, err
	}
	names := customerNames(customers)
	query := strings.ToLower(strings.TrimSpace(filter.Query))

	out := make([]domain.SaleView, 0, len(sales))
	for i := len(sales) - 1; i >= 0; i-- {
		sale := sales[i]
		if filter.Status != "" && sale.PaymentStatus != filter.Status {
			continue
		}
		if filter.From != nil && sale.Date.Before(*filter.From) {
			continue
		}
		if filter.To != nil && sale.Date.After(*filter.To) {
			continue
		}
		name := nameOrUnknown(names, sale.CustomerID)
		if query != "" {
			_, known := names[sale.CustomerID]
			matchesName := known && strings.Contains(strings.ToLower(name), query)
			if !matchesName && !strings.Contains(strings.ToLower(sale.SaleID), query) {
				continue
			}
		}
		out = append(out, domain.SaleView{Sale: sale, CustomerName: name})
	}
	return out, nil
}

// Returned sales are listed but count toward neither total.
func (s *Service) CustomerProfile(ctx context.Context, customerID string) (domain.CustomerProfile, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.repo.Begin()
	customer, ok, err := tx.Customers().FindByID(ctx, customerID)
	if err != nil || !ok {
		return domain.CustomerProfile{}, false, err
	}
	sales, err := tx.Sales().ListAll(ctx)
	if err != nil {
		return domain.CustomerProfile{}, false, err
	}

	profile := domain.CustomerProfile{
		Customer:     customer,
		Sales:        []domain.Sale{},
		TotalSpent:   decimal.Zero,
		TotalPending: decimal.Zero,
	}
	for i := len(sales) - 1; i >= 0; i-- {
		sale := sales[i]
		if sale.CustomerID != customerID {
			continue
		}
		profile.Sales = append(profile.Sales, sale)
		if sale.PaymentStatus == domain.StatusReturned {
			continue
		}
		profile.TotalSpent = profile.TotalSpent.Add(sale.TotalAmount)
		profile.TotalPending = profile.TotalPending.Add(sale.DueAmount)
	}
	return profile, true, nil
}

func (s *Service) Dashboard(ctx context.Context) (domain.Dashboard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.repo.Begin()
	settings, err := s.settingsIn(ctx, tx)
	if err != nil {
		return domain.Dashboard{}, err
	}
	book, err := tx.Summaries().Load(ctx)
	if err != nil {
		return domain.Dashboard{}, err
	}
	sales, err := tx.Sales().ListAll(ctx)
	if err != nil {
		return domain.Dashboard{}, err
	}
	customers, err := tx.Customers().ListAll(ctx)
	if err != nil {
		return domain.Dashboard{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Dashboard{}, err
	}

	now := s.repo.Now()
	dash := domain.Dashboard{
		Today:         s.aggregator.Day(book, now, settings.Currency),
		TotalDue:      decimal.Zero,
		LastSevenDays: s.aggregator.Window(book, now, dashboardDays),
		RecentSales:   make([]domain.SaleView, 0, recentSalesLimit),
	}
	for _, sale := range sales {
		if sale.PaymentStatus != domain.StatusReturned {
			dash.TotalDue = dash.TotalDue.Add(sale.DueAmount)
		}
	}
	names := customerNames(customers)
	for i := len(sales) - 1; i >= 0 && len(dash.RecentSales) < recentSalesLimit; i-- {
		dash.RecentSales = append(dash.RecentSales, domain.SaleView{
			Sale:         sales[i],
			CustomerName: nameOrUnknown(names, sales[i].CustomerID),
		})
	}
	return dash, nil
}

func (s *Service) Reports(ctx context.Context) (domain.Reports, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.repo.Begin()
	sales, err := tx.Sales().ListAll(ctx)
	if err != nil {
		return domain.Reports{}, err
	}
	items, err := tx.SaleItems().ListAll(ctx)
	if err != nil {
		return domain.Reports{}, err
	}
	customers, err := tx.Customers().ListAll(ctx)
	if err != nil {
		return domain.Reports{}, err
	}
	names := customerNames(customers)

	live := make(map[string]bool, len(sales))
	monthly := map[string]*domain.MonthlyEarning{}
	spending := map[string]decimal.Decimal{}
	purchases := map[string]int{}
	for _, sale := range sales {
		if sale.PaymentStatus == domain.StatusReturned {
			continue
		}
		live[sale.SaleID] = true

		local := sale.Date.In(s.Location())
		key := local.Format("2006-01")
		entry, ok := monthly[key]
		if !ok {
			entry = &domain.MonthlyEarning{Month: local.Format("Jan 06"), Earnings: decimal.Zero}
			monthly[key] = entry
		}
		entry.Earnings = entry.Earnings.Add(sale.PaidAmount)

		spending[sale.CustomerID] = spending[sale.CustomerID].Add(sale.TotalAmount)
		purchases[sale.CustomerID]++
	}

	report := domain.Reports{
		MonthlyEarnings:         make([]domain.MonthlyEarning, 0, len(monthly)),
		TopCustomersBySpending:  make([]domain.CustomerSpending, 0, topListLimit),
		TopCustomersByPurchases: make([]domain.CustomerPurchases, 0, topListLimit),
		TopItems:                make([]domain.ItemQuantity, 0, topListLimit),
	}

	months := make([]string, 0, len(monthly))
	for key := range monthly {
		months = append(months, key)
	}
	sort.Strings(months)
	for _, key := range months {
		report.MonthlyEarnings = append(report.MonthlyEarnings, *monthly[key])
	}

	for id, total := range spending {
		report.TopCustomersBySpending = append(report.TopCustomersBySpending, domain.CustomerSpending{
			CustomerID: id,
			Name:       nameOrUnknown(names, id),
			Total:      total,
		})
	}
	sort.Slice(report.TopCustomersBySpending, func(i, j int) bool {
		a, b := report.TopCustomersBySpending[i], report.TopCustomersBySpending[j]
		if !a.Total.Equal(b.Total) {
			return a.Total.GreaterThan(b.Total)
		}
		return a.CustomerID < b.CustomerID
	})
	report.TopCustomersBySpending = truncate(report.TopCustomersBySpending, topListLimit)

	for id, count := range purchases {
		report.TopCustomersByPurchases = append(report.TopCustomersByPurchases, domain.CustomerPurchases{
			CustomerID: id,
			Name:       nameOrUnknown(names, id),
			Purchases:  count,
		})
	}
	sort.Slice(report.TopCustomersByPurchases, func(i, j int) bool {
		a, b := report.TopCustomersByPurchases[i], report.TopCustomersByPurchases[j]
		if a.Purchases != b.Purchases {
			return a.Purchases > b.Purchases
		}
		return a.CustomerID < b.CustomerID
	})
	report.TopCustomersByPurchases = truncate(report.TopCustomersByPurchases, topListLimit)

	byName := map[string]*domain.ItemQuantity{}
	for _, item := range items {
		if !live[item.SaleID] {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(item.ProductName))
		entry, ok := byName[key]
		if !ok {
			entry = &domain.ItemQuantity{Name: item.ProductName, Quantity: decimal.Zero}
			byName[key] = entry
		}
		entry.Quantity = entry.Quantity.Add(item.Quantity)
	}
	for _, entry := range byName {
		report.TopItems = append(report.TopItems, *entry)
	}
	sort.Slice(report.TopItems, func(i, j int) bool {
		a, b := report.TopItems[i], report.TopItems[j]
		if !a.Quantity.Equal(b.Quantity) {
			return a.Quantity.GreaterThan(b.Quantity)
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	})
	report.TopItems = truncate(report.TopItems, topListLimit)

	return report, nil
}

func truncate[T any](list []T, limit int) []T {
	if len(list) > limit {
		return list[:limit]
	}
	return list
}

func (s *Service) SalesExport(ctx context.Context) ([]export.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.repo.Begin()
	sales, err := tx.Sales().ListAll(ctx)
	if err != nil {
		return nil, err
	}
	customers, err := tx.Customers().ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return export.BuildRows(sales, customers, s.Location()), nil
}
