package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/majidshakoor42/rozanahisab/internal/backup"
	"github.com/majidshakoor42/rozanahisab/internal/domain"
	"github.com/majidshakoor42/rozanahisab/internal/repository"
	"github.com/majidshakoor42/rozanahisab/internal/store"
	"github.com/majidshakoor42/rozanahisab/internal/summary"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrSaleReturned = errors.New("sale is returned")
)

var maxTaxRate = decimal.NewFromInt(100)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	Location *time.Location
	// ReverseSummaryOnDelete makes DeleteSale take the sale's payments back out
	// of the daily summary, the way ReturnSale does.
	ReverseSummaryOnDelete bool
}

// Service holds mu for the whole of every public method.
type Service struct {
	mu              sync.Mutex
	repo            *repository.Store
	aggregator      summary.Aggregator
	validate        *validator.Validate
	reverseOnDelete bool
}

func New(repo *repository.Store, opts Options) *Service {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		repo:            repo,
		aggregator:      summary.Aggregator{Location: loc, DefaultCurrency: domain.DefaultCurrency},
		validate:        validator.New(validator.WithRequiredStructEnabled()),
		reverseOnDelete: opts.ReverseSummaryOnDelete,
	}
}

func (s *Service) Location() *time.Location {
	return s.aggregator.Location
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func (s *Service) validateStruct(v any) error {
	if err := s.validate.Struct(v); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return invalid("%s failed %s", strings.ToLower(fe.Field()), fe.Tag())
		}
		return invalid("%v", err)
	}
	return nil
}

func (s *Service) audit(ctx context.Context, action string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Subject: "system", Role: "system"}
	}
	log.Printf("[audit] actor=%s action=%s id=%s %s", actor.Subject, action, entityID, detail)
}

func (s *Service) Ping(ctx context.Context) error {
	if pinger, ok := s.repo.Backend().(store.Pinger); ok {
		return pinger.Ping(ctx)
	}
	return nil
}

func normalizeCustomerInput(in domain.CustomerInput) domain.CustomerInput {
	return domain.CustomerInput{
		Name:    strings.TrimSpace(in.Name),
		Phone:   strings.TrimSpace(in.Phone),
		Email:   strings.TrimSpace(in.Email),
		Address: strings.TrimSpace(in.Address),
	}
}

func (s *Service) CreateCustomer(ctx context.Context, in domain.CustomerInput) (domain.Customer, error) {
	in = normalizeCustomerInput(in)
	if err := s.validateStruct(in); err != nil {
		return domain.Customer{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.repo.Begin()
	created, err := tx.Customers().Insert(ctx, domain.Customer{
		Name:    in.Name,
		Phone:   in.Phone,
		Email:   in.Email,
		Address: in.Address,
	})
	if err != nil {
		return domain.Customer{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Customer{}, err
	}

	s.audit(ctx, "customer_create", created.CustomerID, fmt.Sprintf("name=%q", created.Name))
	return created, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, id string, in domain.CustomerInput) (domain.Customer, error) {
	in = normalizeCustomerInput(in)
	if err := s.validateStruct(in); err != nil {
		return domain.Customer{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.repo.Begin()
	customers := tx.Customers()
	existing, ok, err := customers.FindByID(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	if !ok {
		return domain.Customer{}, store.ErrNotFound
	}

	existing.Name = in.Name
	existing.Phone = in.Phone
	existing.Email = in.Email
	existing.Address = in.Address
	if _, err := customers.ReplaceWhere(ctx, customers.MatchID(id), existing); err != nil {
		return domain.Customer{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Customer{}, err
	}

	s.audit(ctx, "customer_update", id, "")
	return existing, nil
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.Begin().Customers().FindByID(ctx, id)
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.Begin().Customers().ListAll(ctx)
}

// SearchCustomers matches a case-insensitive substring of the name or a
// substring of the phone number. An empty query returns everyone.
func (s *Service) SearchCustomers(ctx context.Context, query string) ([]domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	customers := s.repo.Begin().Customers()
	query = strings.TrimSpace(query)
	if query == "" {
		return customers.ListAll(ctx)
	}
	lowered := strings.ToLower(query)
	return customers.Where(ctx, func(c domain.Customer) bool {
		return strings.Contains(strings.ToLower(c.Name), lowered) ||
			(c.Phone != "" && strings.Contains(c.Phone, query))
	})
}

func defaultSettings(now time.Time) domain.Settings {
	return domain.Settings{
		Currency:     domain.DefaultCurrency,
		BusinessName: domain.DefaultBusinessName,
		TaxRate:      decimal.Zero,
		Created:      now,
	}
}

func (s *Service) settingsIn(ctx context.Context, tx *repository.Tx) (domain.Settings, error) {
	settings, ok, err := tx.Settings().Get(ctx)
	if err != nil {
		return domain.Settings{}, err
	}
	if ok {
		return settings, nil
	}
	settings = defaultSettings(s.repo.Now())
	if err := tx.Settings().Put(settings); err != nil {
		return domain.Settings{}, err
	}
	return settings, nil
}

func (s *Service) Settings(ctx context.Context) (domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.repo.Begin()
	settings, err := s.settingsIn(ctx, tx)
	if err != nil {
		return domain.Settings{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Settings{}, err
	}
	return settings, nil
}

func (s *Service) UpdateSettings(ctx context.Context, patch domain.SettingsPatch) (domain.Settings, error) {
	if patch.Currency != nil {
		upper := strings.ToUpper(strings.TrimSpace(*patch.Currency))
		patch.Currency = &upper
	}
	if patch.BusinessName != nil {
		trimmed := strings.TrimSpace(*patch.BusinessName)
		patch.BusinessName = &trimmed
	}
	if err := s.validateStruct(patch); err != nil {
		return domain.Settings{}, err
	}
	if patch.TaxRate != nil && (patch.TaxRate.IsNegative() || patch.TaxRate.GreaterThan(maxTaxRate)) {
		return domain.Settings{}, invalid("tax rate must be between 0 and 100")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.repo.Begin()
	settings, err := s.settingsIn(ctx, tx)
	if err != nil {
		return domain.Settings{}, err
	}
	if patch.Currency != nil {
		settings.Currency = *patch.Currency
	}
	if patch.BusinessName != nil {
		settings.BusinessName = *patch.BusinessName
	}
	if patch.TaxRate != nil {
		settings.TaxRate = *patch.TaxRate
	}
	if err := tx.Settings().Put(settings); err != nil {
		return domain.Settings{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Settings{}, err
	}

	s.audit(ctx, "settings_update", "settings", fmt.Sprintf("currency=%s", settings.Currency))
	return settings, nil
}

func (s *Service) Backup(ctx context.Context) (backup.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return backup.Export(ctx, s.repo.Backend())
}

// A malformed document leaves the store untouched.
func (s *Service) Restore(ctx context.Context, raw []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	restored, err := backup.Import(ctx, s.repo.Backend(), raw)
	if err != nil {
		return 0, err
	}
	s.audit(ctx, "backup_restore", "store", fmt.Sprintf("collections=%d", restored))
	return restored, nil
}

func (s *Service) ClearData(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Backend().Clear(ctx); err != nil {
		return err
	}
	log.Printf("[service] WARN: all ledger data cleared")
	s.audit(ctx, "clear_data", "store", "")
	return nil
}
