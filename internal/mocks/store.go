package mocks

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/cradoe/songbid/internal/models"
	"github.com/cradoe/songbid/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Store is an in-memory repository.Database. Transactions are serialised on a
// single mutex and roll back by restoring a snapshot, which gives tests the
// same all-or-nothing visibility a real database transaction does.
type Store struct {
	mu     sync.Mutex
	state  *memState
	faults map[string]error
}

// errors standing in for the postgres constraint violations
var (
	errCheckViolation  = errors.New("mocks: check constraint violated")
	errUniqueViolation = errors.New("mocks: unique constraint violated")
)

type memState struct {
	users       map[string]models.User
	wallets     map[string]models.Wallet
	entries     []models.LedgerEntry
	payments    map[string]models.PendingPayment
	withdrawals map[string]models.WithdrawalRequest
	methods     map[string]models.WithdrawalMethod
	bids        map[string]models.Bid
	activity    []models.ActivityLog
}

func NewStore() *Store {
	return &Store{
		state: &memState{
			users:       map[string]models.User{},
			wallets:     map[string]models.Wallet{},
			payments:    map[string]models.PendingPayment{},
			withdrawals: map[string]models.WithdrawalRequest{},
			methods:     map[string]models.WithdrawalMethod{},
			bids:        map[string]models.Bid{},
		},
		faults: map[string]error{},
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		users:       make(map[string]models.User, len(s.users)),
		wallets:     make(map[string]models.Wallet, len(s.wallets)),
		entries:     append([]models.LedgerEntry(nil), s.entries...),
		payments:    make(map[string]models.PendingPayment, len(s.payments)),
		withdrawals: make(map[string]models.WithdrawalRequest, len(s.withdrawals)),
		methods:     make(map[string]models.WithdrawalMethod, len(s.methods)),
		bids:        make(map[string]models.Bid, len(s.bids)),
		activity:    append([]models.ActivityLog(nil), s.activity...),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.wallets {
		c.wallets[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.withdrawals {
		c.withdrawals[k] = v
	}
	for k, v := range s.methods {
		c.methods[k] = v
	}
	for k, v := range s.bids {
		c.bids[k] = v
	}
	return c
}

// SetFault makes the named repository operation (e.g. "bid.insert") fail with
// err until cleared with a nil err.
func (s *Store) SetFault(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

// DB returns the non-transactional entry point.
func (s *Store) DB() repository.Database {
	return &memDB{store: s}
}

// Seed helpers write directly, bypassing the ledger. Use them for fixtures only.

func (s *Store) SeedUser(user models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Role == "" {
		user.Role = models.UserRoleUser
	}
	if user.Status == "" {
		user.Status = repository.UserAccountActiveStatus
	}
	s.state.users[user.ID] = user
}

// SeedWallet creates a wallet whose balance is backed by one completed earning
// entry, so the ledger reconciles from the start.
func (s *Store) SeedWallet(userID string, balance decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.state.wallets[userID] = models.Wallet{
		UserID:    userID,
		Balance:   balance,
		Currency:  repository.DefaultCurrency,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if balance.IsPositive() {
		s.state.entries = append(s.state.entries, models.LedgerEntry{
			ID:             uuid.NewString(),
			WalletUserID:   userID,
			Type:           models.LedgerEntryTypeEarning,
			Amount:         balance,
			BalanceAfter:   balance,
			RelatedID:      "seed",
			IdempotencyKey: "seed:" + userID,
			Status:         models.LedgerEntryStatusCompleted,
			CreatedAt:      now,
		})
	}
}

func (s *Store) SeedMethod(method models.WithdrawalMethod) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.methods[method.ID] = method
}

func (s *Store) SeedPayment(payment models.PendingPayment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.payments[payment.ID] = payment
}

// Snapshot accessors for assertions.

func (s *Store) Wallet(userID string) (models.Wallet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.state.wallets[userID]
	return w, ok
}

func (s *Store) Entries(userID string) []models.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.LedgerEntry
	for _, e := range s.state.entries {
		if e.WalletUserID == userID {
			out = append(out, e)
		}
	}
	return out
}

func (s *Store) Bids() []models.Bid {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Bid, 0, len(s.state.bids))
	for _, b := range s.state.bids {
		out = append(out, b)
	}
	return out
}

func (s *Store) Payment(id string) (models.PendingPayment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.state.payments[id]
	return p, ok
}

func (s *Store) Activity() []models.ActivityLog {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]models.ActivityLog(nil), s.state.activity...)
}

type memDB struct {
	store *Store
	inTx  bool
}

// begin guards a single repository call made outside a transaction
func (d *memDB) begin() func() {
	if d.inTx {
		return func() {}
	}
	d.store.mu.Lock()
	return d.store.mu.Unlock
}

func (d *memDB) fault(op string) error {
	return d.store.faults[op]
}

func (d *memDB) st() *memState {
	return d.store.state
}

func (d *memDB) WithTx(ctx context.Context, fn func(tx repository.Database) error) (err error) {
	if d.inTx {
		return fn(d)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	d.store.mu.Lock()
	defer d.store.mu.Unlock()

	snapshot := d.store.state.clone()
	defer func() {
		if p := recover(); p != nil {
			d.store.state = snapshot
			panic(p)
		}
		if err != nil {
			d.store.state = snapshot
		}
	}()

	if err = d.fault("tx.begin"); err != nil {
		return err
	}

	if err = fn(&memDB{store: d.store, inTx: true}); err != nil {
		return err
	}

	return d.fault("tx.commit")
}

func (d *memDB) Close() error { return nil }

func (d *memDB) User() repository.UserRepository                         { return memUsers{d} }
func (d *memDB) Activity() repository.ActivityRepository                 { return memActivity{d} }
func (d *memDB) Wallet() repository.WalletRepository                     { return memWallets{d} }
func (d *memDB) Ledger() repository.LedgerRepository                     { return memLedger{d} }
func (d *memDB) Payment() repository.PaymentRepository                   { return memPayments{d} }
func (d *memDB) Withdrawal() repository.WithdrawalRepository             { return memWithdrawals{d} }
func (d *memDB) WithdrawalMethod() repository.WithdrawalMethodRepository { return memMethods{d} }
func (d *memDB) Bid() repository.BidRepository                           { return memBids{d} }

type memUsers struct{ d *memDB }

func (r memUsers) Insert(_ context.Context, user *models.User) (string, error) {
	defer r.d.begin()()

	for _, u := range r.d.st().users {
		if u.Email == user.Email {
			return u.ID, nil
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = time.Now()
	r.d.st().users[user.ID] = *user
	return user.ID, nil
}

func (r memUsers) GetOne(_ context.Context, id string) (*models.User, bool, error) {
	defer r.d.begin()()

	u, ok := r.d.st().users[id]
	if !ok {
		return nil, false, nil
	}
	return &u, true, nil
}

func (r memUsers) GetByEmail(_ context.Context, email string) (*models.User, bool, error) {
	defer r.d.begin()()

	for _, u := range r.d.st().users {
		if u.Email == email {
			return &u, true, nil
		}
	}
	return nil, false, nil
}

type memActivity struct{ d *memDB }

func (r memActivity) Insert(_ context.Context, log *models.ActivityLog) (*models.ActivityLog, error) {
	defer r.d.begin()()

	created := *log
	created.ID = uuid.NewString()
	created.CreatedAt = time.Now()
	r.d.st().activity = append(r.d.st().activity, created)
	return &created, nil
}

type memWallets struct{ d *memDB }

func (r memWallets) Ensure(_ context.Context, userID, currency string) error {
	defer r.d.begin()()

	if err := r.d.fault("wallet.ensure"); err != nil {
		return err
	}
	if _, ok := r.d.st().wallets[userID]; ok {
		return nil
	}
	now := time.Now()
	r.d.st().wallets[userID] = models.Wallet{UserID: userID, Currency: currency, CreatedAt: now, UpdatedAt: now}
	return nil
}

func (r memWallets) GetOne(_ context.Context, userID string) (*models.Wallet, bool, error) {
	defer r.d.begin()()

	w, ok := r.d.st().wallets[userID]
	if !ok {
		return nil, false, nil
	}
	return &w, true, nil
}

func (r memWallets) GetForUpdate(ctx context.Context, userID string) (*models.Wallet, bool, error) {
	return r.GetOne(ctx, userID)
}

func (r memWallets) SetBalances(_ context.Context, userID string, balance, reserved decimal.Decimal) error {
	defer r.d.begin()()

	if err := r.d.fault("wallet.set_balances"); err != nil {
		return err
	}
	w, ok := r.d.st().wallets[userID]
	if !ok {
		return repository.ErrNoRowsAffected
	}
	// mirror the table CHECK constraints
	if balance.IsNegative() || reserved.IsNegative() || reserved.GreaterThan(balance) {
		return errCheckViolation
	}
	w.Balance = balance
	w.Reserved = reserved
	w.UpdatedAt = time.Now()
	r.d.st().wallets[userID] = w
	return nil
}

type memLedger struct{ d *memDB }

func (r memLedger) Insert(_ context.Context, entry *models.LedgerEntry) error {
	defer r.d.begin()()

	if err := r.d.fault("ledger.insert"); err != nil {
		return err
	}
	if entry.Status == models.LedgerEntryStatusCompleted {
		for _, e := range r.d.st().entries {
			if e.IdempotencyKey == entry.IdempotencyKey && e.Status == models.LedgerEntryStatusCompleted {
				return errUniqueViolation
			}
		}
	}
	entry.CreatedAt = time.Now()
	r.d.st().entries = append(r.d.st().entries, *entry)
	return nil
}

func (r memLedger) FindCompletedByKey(_ context.Context, key string) (*models.LedgerEntry, bool, error) {
	defer r.d.begin()()

	for _, e := range r.d.st().entries {
		if e.IdempotencyKey == key && e.Status == models.LedgerEntryStatusCompleted {
			return &e, true, nil
		}
	}
	return nil, false, nil
}

func (r memLedger) ListByWallet(_ context.Context, userID string, limit, offset int) ([]models.LedgerEntry, error) {
	defer r.d.begin()()

	out := []models.LedgerEntry{}
	entries := r.d.st().entries
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].WalletUserID == userID {
			out = append(out, entries[i])
		}
	}
	return page(out, limit, offset), nil
}

func (r memLedger) SumCompleted(_ context.Context, userID string) (decimal.Decimal, error) {
	defer r.d.begin()()

	sum := decimal.Zero
	for _, e := range r.d.st().entries {
		if e.WalletUserID == userID && e.Status == models.LedgerEntryStatusCompleted {
			sum = sum.Add(e.Amount)
		}
	}
	return sum, nil
}

type memPayments struct{ d *memDB }

func (r memPayments) Insert(_ context.Context, payment *models.PendingPayment) error {
	defer r.d.begin()()

	if err := r.d.fault("payment.insert"); err != nil {
		return err
	}
	now := time.Now()
	payment.CreatedAt = now
	payment.UpdatedAt = now
	r.d.st().payments[payment.ID] = *payment
	return nil
}

func (r memPayments) GetOne(_ context.Context, id string) (*models.PendingPayment, bool, error) {
	defer r.d.begin()()

	p, ok := r.d.st().payments[id]
	if !ok {
		return nil, false, nil
	}
	return &p, true, nil
}

func (r memPayments) GetByCorrelationID(_ context.Context, correlationID string) (*models.PendingPayment, bool, error) {
	defer r.d.begin()()

	for _, p := range r.d.st().payments {
		if p.CorrelationID != "" && p.CorrelationID == correlationID {
			return &p, true, nil
		}
	}
	return nil, false, nil
}

func (r memPayments) GetByCorrelationIDForUpdate(ctx context.Context, correlationID string) (*models.PendingPayment, bool, error) {
	return r.GetByCorrelationID(ctx, correlationID)
}

func (r memPayments) MarkPending(ctx context.Context, id, correlationID string) error {
	defer r.d.begin()()

	// a cancelled context fails the write the way the driver does
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.d.fault("payment.markPending"); err != nil {
		return err
	}
	p, ok := r.d.st().payments[id]
	if !ok || p.Status != models.PaymentStatusInitiated {
		return repository.ErrNoRowsAffected
	}
	p.CorrelationID = correlationID
	p.Status = models.PaymentStatusPending
	p.UpdatedAt = time.Now()
	r.d.st().payments[id] = p
	return nil
}

func (r memPayments) Resolve(_ context.Context, id, status, failureReason string, completedAt sql.NullTime) error {
	defer r.d.begin()()

	if err := r.d.fault("payment.resolve"); err != nil {
		return err
	}
	p, ok := r.d.st().payments[id]
	if !ok || p.IsTerminal() {
		return repository.ErrNoRowsAffected
	}
	p.Status = status
	p.FailureReason = failureReason
	p.CompletedAt = completedAt
	p.UpdatedAt = time.Now()
	r.d.st().payments[id] = p
	return nil
}

func (r memPayments) MarkEmailSent(_ context.Context, id string) (bool, error) {
	defer r.d.begin()()

	p, ok := r.d.st().payments[id]
	if !ok || p.EmailSent {
		return false, nil
	}
	p.EmailSent = true
	r.d.st().payments[id] = p
	return true, nil
}

func (r memPayments) ListOpen(_ context.Context, createdBefore time.Time, limit int) ([]models.PendingPayment, error) {
	defer r.d.begin()()

	out := []models.PendingPayment{}
	for _, p := range r.d.st().payments {
		if !p.IsTerminal() && p.CreatedAt.Before(createdBefore) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return page(out, limit, 0), nil
}

type memWithdrawals struct{ d *memDB }

func (r memWithdrawals) Insert(_ context.Context, withdrawal *models.WithdrawalRequest) error {
	defer r.d.begin()()

	if err := r.d.fault("withdrawal.insert"); err != nil {
		return err
	}
	withdrawal.CreatedAt = time.Now()
	r.d.st().withdrawals[withdrawal.ID] = *withdrawal
	return nil
}

func (r memWithdrawals) GetOne(_ context.Context, id string) (*models.WithdrawalRequest, bool, error) {
	defer r.d.begin()()

	w, ok := r.d.st().withdrawals[id]
	if !ok {
		return nil, false, nil
	}
	return &w, true, nil
}

func (r memWithdrawals) GetForUpdate(ctx context.Context, id string) (*models.WithdrawalRequest, bool, error) {
	return r.GetOne(ctx, id)
}

func (r memWithdrawals) Transition(_ context.Context, withdrawal *models.WithdrawalRequest, from string) error {
	defer r.d.begin()()

	if err := r.d.fault("withdrawal.transition"); err != nil {
		return err
	}
	stored, ok := r.d.st().withdrawals[withdrawal.ID]
	if !ok || stored.Status != from {
		return repository.ErrNoRowsAffected
	}
	stored.Status = withdrawal.Status
	stored.Reason = withdrawal.Reason
	stored.ProcessedAt = withdrawal.ProcessedAt
	stored.ProcessedBy = withdrawal.ProcessedBy
	stored.CompletedAt = withdrawal.CompletedAt
	r.d.st().withdrawals[withdrawal.ID] = stored
	return nil
}

func (r memWithdrawals) ListByUser(_ context.Context, userID string, limit, offset int) ([]models.WithdrawalRequest, error) {
	return r.list(func(w models.WithdrawalRequest) bool { return w.UserID == userID }, true, limit, offset), nil
}

func (r memWithdrawals) ListByStatus(_ context.Context, status string, limit, offset int) ([]models.WithdrawalRequest, error) {
	return r.list(func(w models.WithdrawalRequest) bool { return w.Status == status }, false, limit, offset), nil
}

func (r memWithdrawals) list(keep func(models.WithdrawalRequest) bool, newestFirst bool, limit, offset int) []models.WithdrawalRequest {
	defer r.d.begin()()

	out := []models.WithdrawalRequest{}
	for _, w := range r.d.st().withdrawals {
		if keep(w) {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if newestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return page(out, limit, offset)
}

type memMethods struct{ d *memDB }

func (r memMethods) Insert(_ context.Context, method *models.WithdrawalMethod) (string, error) {
	defer r.d.begin()()

	if method.ID == "" {
		method.ID = uuid.NewString()
	}
	method.CreatedAt = time.Now()
	r.d.st().methods[method.ID] = *method
	return method.ID, nil
}

func (r memMethods) GetOne(_ context.Context, id string) (*models.WithdrawalMethod, bool, error) {
	defer r.d.begin()()

	m, ok := r.d.st().methods[id]
	if !ok {
		return nil, false, nil
	}
	return &m, true, nil
}

type memBids struct{ d *memDB }

func (r memBids) Insert(_ context.Context, bid *models.Bid) error {
	defer r.d.begin()()

	if err := r.d.fault("bid.insert"); err != nil {
		return err
	}
	bid.CreatedAt = time.Now()
	r.d.st().bids[bid.ID] = *bid
	return nil
}

func (r memBids) GetOne(_ context.Context, id string) (*models.Bid, bool, error) {
	defer r.d.begin()()

	b, ok := r.d.st().bids[id]
	if !ok {
		return nil, false, nil
	}
	return &b, true, nil
}

func (r memBids) GetForUpdate(ctx context.Context, id string) (*models.Bid, bool, error) {
	return r.GetOne(ctx, id)
}

func (r memBids) Transition(_ context.Context, id, status string, processedAt sql.NullTime) error {
	defer r.d.begin()()

	b, ok := r.d.st().bids[id]
	if !ok || b.Status != models.BidStatusPending {
		return repository.ErrNoRowsAffected
	}
	b.Status = status
	b.ProcessedAt = processedAt
	r.d.st().bids[id] = b
	return nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
