// internal/repository/memory/store.go
package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"wallet-engine/internal/domain"
	"wallet-engine/internal/repository"
	"wallet-engine/internal/util"
	"wallet-engine/pkg/db"

	"github.com/shopspring/decimal"
)

var errUnsupported = errors.New("memory store does not execute SQL")

// Store is an in-process implementation of every repository interface. Row locks are
// per-wallet semaphores and writes made through a *Tx stay invisible until Commit, which
// is enough to run the transaction service under real concurrency without PostgreSQL.
//
// A repository call with q set to the Store itself runs in autocommit mode.
type Store struct {
	mu            sync.Mutex
	actors        map[int64]*domain.Actor
	wallets       map[int64]*domain.Wallet
	transactions  map[int64]*domain.Transaction
	byReference   map[string]int64
	byIdemKey     map[string]int64
	rules         []domain.TransactionChargeRule
	notifications map[int64]*domain.Notification
	locks         map[int64]chan struct{}
	nextID        int64
}

var (
	_ repository.WalletRepository       = (*Store)(nil)
	_ repository.TransactionRepository  = (*Store)(nil)
	_ repository.ActorRepository        = (*Store)(nil)
	_ repository.ChargeRuleRepository   = (*Store)(nil)
	_ repository.NotificationRepository = (*Store)(nil)
	_ repository.DBExecutor             = (*Store)(nil)
)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		actors:        make(map[int64]*domain.Actor),
		wallets:       make(map[int64]*domain.Wallet),
		transactions:  make(map[int64]*domain.Transaction),
		byReference:   make(map[string]int64),
		byIdemKey:     make(map[string]int64),
		notifications: make(map[int64]*domain.Notification),
		locks:         make(map[int64]chan struct{}),
	}
}

// Tx is a unit of work against a Store. It implements db.TxController and repository.DBExecutor.
type Tx struct {
	store         *Store
	lockTimeout   time.Duration
	held          map[int64]struct{}
	deltas        map[int64]decimal.Decimal
	transactions  []*domain.Transaction
	updates       map[int64]*domain.Transaction // status changes to committed rows
	notifications []*domain.Notification
	done          bool
}

// BeginTx matches db.BeginTxFunc; the beginner argument is ignored.
func (s *Store) BeginTx(ctx context.Context, _ db.DBTxBeginner) (db.TxController, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Tx{
		store:  s,
		held:    make(map[int64]struct{}),
		deltas:  make(map[int64]decimal.Decimal),
		updates: make(map[int64]*domain.Transaction),
	}, nil
}

// Commit applies staged writes atomically and releases every held lock.
func (t *Tx) Commit() error {
	if t.done {
		return sql.ErrTxDone
	}
	t.done = true
	defer t.release()

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tr := range t.transactions {
		if _, taken := s.byReference[tr.Reference]; taken {
			return fmt.Errorf("reference %s: %w", tr.Reference, util.ErrDuplicateEntry)
		}
		if tr.IdempotencyKey != nil {
			if _, taken := s.byIdemKey[*tr.IdempotencyKey]; taken {
				return fmt.Errorf("idempotency key %s: %w", *tr.IdempotencyKey, util.ErrDuplicateEntry)
			}
		}
	}
	for id := range t.updates {
		if s.transactions[id].Status != domain.TransactionStatusPending {
			return fmt.Errorf("transaction %d is not pending: %w", id, util.ErrNotFound)
		}
	}
	for id, delta := range t.deltas {
		if s.wallets[id].Balance.Add(delta).IsNegative() {
			return fmt.Errorf("wallet %d: %w", id, util.ErrInsufficientFunds)
		}
	}

	now := time.Now().UTC()
	for id, delta := range t.deltas {
		w := s.wallets[id]
		w.Balance = w.Balance.Add(delta)
		w.UpdatedAt = now
	}
	for _, tr := range t.transactions {
		s.putTransaction(tr)
	}
	for _, tr := range t.updates {
		s.putTransaction(tr)
	}
	for _, n := range t.notifications {
		cp := *n
		s.notifications[n.ID] = &cp
	}
	return nil
}

// Rollback discards staged writes and releases every held lock.
func (t *Tx) Rollback() error {
	if t.done {
		return sql.ErrTxDone
	}
	t.done = true
	t.release()
	return nil
}

func (t *Tx) release() {
	for id := range t.held {
		<-t.store.lockFor(id)
	}
	t.held = map[int64]struct{}{}
}

func (t *Tx) acquire(ctx context.Context, walletID int64) error {
	if _, ok := t.held[walletID]; ok {
		return nil
	}
	sem := t.store.lockFor(walletID)

	var timeout <-chan time.Time
	if t.lockTimeout > 0 {
		timer := time.NewTimer(t.lockTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case sem <- struct{}{}:
		t.held[walletID] = struct{}{}
		return nil
	case <-timeout:
		return fmt.Errorf("wallet %d: %w", walletID, util.ErrLockTimeout)
	case <-ctx.Done():
		return errors.Join(util.ErrLockTimeout, ctx.Err())
	}
}

// Held reports whether this unit of work holds the lock on walletID.
func (t *Tx) Held(walletID int64) bool {
	_, ok := t.held[walletID]
	return ok
}

func (s *Store) lockFor(walletID int64) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	sem, ok := s.locks[walletID]
	if !ok {
		sem = make(chan struct{}, 1)
		s.locks[walletID] = sem
	}
	return sem
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) putTransaction(tr *domain.Transaction) {
	cp := *tr
	s.transactions[cp.ID] = &cp
	s.byReference[cp.Reference] = cp.ID
	if cp.IdempotencyKey != nil {
		s.byIdemKey[*cp.IdempotencyKey] = cp.ID
	}
}

// asTx returns the unit of work behind q, or nil for autocommit.
func asTx(q repository.DBExecutor) (*Tx, error) {
	switch v := q.(type) {
	case *Tx:
		if v.done {
			return nil, sql.ErrTxDone
		}
		return v, nil
	case *Store:
		return nil, nil
	default:
		return nil, fmt.Errorf("memory store: unexpected executor %T", q)
	}
}

// DBExecutor is satisfied so that a Store or Tx can be passed where repositories expect
// a connection. The memory repositories never call these.

func (s *Store) GetContext(context.Context, interface{}, string, ...interface{}) error {
	return errUnsupported
}

func (s *Store) SelectContext(context.Context, interface{}, string, ...interface{}) error {
	return errUnsupported
}

func (s *Store) ExecContext(context.Context, string, ...interface{}) (sql.Result, error) {
	return nil, errUnsupported
}

func (s *Store) QueryRowContext(context.Context, string, ...interface{}) *sql.Row {
	return nil
}

func (t *Tx) GetContext(context.Context, interface{}, string, ...interface{}) error {
	return errUnsupported
}

func (t *Tx) SelectContext(context.Context, interface{}, string, ...interface{}) error {
	return errUnsupported
}

func (t *Tx) ExecContext(context.Context, string, ...interface{}) (sql.Result, error) {
	return nil, errUnsupported
}

func (t *Tx) QueryRowContext(context.Context, string, ...interface{}) *sql.Row {
	return nil
}

// --- actors ---

func (s *Store) CreateActor(_ context.Context, q repository.DBExecutor, actor *domain.Actor) error {
	if _, err := asTx(q); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.actors {
		if a.PhoneNumber == actor.PhoneNumber {
			return fmt.Errorf("phone %s: %w", actor.PhoneNumber, util.ErrDuplicateEntry)
		}
	}
	actor.ID = s.id()
	cp := *actor
	s.actors[actor.ID] = &cp
	return nil
}

func (s *Store) GetActorByID(_ context.Context, q repository.DBExecutor, id int64) (*domain.Actor, error) {
	if _, err := asTx(q); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actors[id]
	if !ok {
		return nil, util.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *Store) GetActorByIdentifier(_ context.Context, q repository.DBExecutor, identifier string) (*domain.Actor, error) {
	if _, err := asTx(q); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.actors {
		if a.PhoneNumber == identifier ||
			(a.MerchantCode != nil && *a.MerchantCode == identifier) ||
			(a.AgentCode != nil && *a.AgentCode == identifier) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, util.ErrNotFound
}

// --- wallets ---

func (s *Store) CreateWallet(_ context.Context, q repository.DBExecutor, wallet *domain.Wallet) error {
	if _, err := asTx(q); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	wallet.ID = s.id()
	cp := *wallet
	s.wallets[wallet.ID] = &cp
	return nil
}

func (s *Store) walletView(tx *Tx, id int64) (*domain.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[id]
	if !ok {
		return nil, util.ErrNotFound
	}
	cp := *w
	if tx != nil {
		if d, ok := tx.deltas[id]; ok {
			cp.Balance = cp.Balance.Add(d)
		}
	}
	return &cp, nil
}

func (s *Store) GetWalletByID(_ context.Context, q repository.DBExecutor, id int64) (*domain.Wallet, error) {
	tx, err := asTx(q)
	if err != nil {
		return nil, err
	}
	return s.walletView(tx, id)
}

func (s *Store) GetWalletByActorID(_ context.Context, q repository.DBExecutor, actorID int64) (*domain.Wallet, error) {
	tx, err := asTx(q)
	if err != nil {
		return nil, err
	}
	var id int64
	s.mu.Lock()
	for _, w := range s.wallets {
		if w.ActorID != nil && *w.ActorID == actorID {
			id = w.ID
			break
		}
	}
	s.mu.Unlock()
	if id == 0 {
		return nil, util.ErrNotFound
	}
	return s.walletView(tx, id)
}

func (s *Store) GetSystemWallet(_ context.Context, q repository.DBExecutor, currency string) (*domain.Wallet, error) {
	tx, err := asTx(q)
	if err != nil {
		return nil, err
	}
	var id int64
	s.mu.Lock()
	for _, w := range s.wallets {
		if w.IsSystem && w.Currency == currency {
			id = w.ID
			break
		}
	}
	s.mu.Unlock()
	if id == 0 {
		return nil, util.ErrNotFound
	}
	return s.walletView(tx, id)
}

func (s *Store) SetLockTimeout(_ context.Context, q repository.DBExecutor, timeout time.Duration) error {
	tx, err := asTx(q)
	if err != nil {
		return err
	}
	if tx == nil {
		return errors.New("memory store: lock timeout requires a transaction")
	}
	tx.lockTimeout = timeout
	return nil
}

func (s *Store) LockWalletByID(ctx context.Context, q repository.DBExecutor, id int64) (*domain.Wallet, error) {
	tx, err := asTx(q)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, errors.New("memory store: row locks require a transaction")
	}
	if _, err := s.walletView(nil, id); err != nil {
		return nil, err
	}
	if err := tx.acquire(ctx, id); err != nil {
		return nil, err
	}
	return s.walletView(tx, id)
}

func (s *Store) UpdateWalletBalance(ctx context.Context, q repository.DBExecutor, walletID int64, delta decimal.Decimal) error {
	tx, err := asTx(q)
	if err != nil {
		return err
	}
	if tx == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		w, ok := s.wallets[walletID]
		if !ok {
			return util.ErrNotFound
		}
		if w.Balance.Add(delta).IsNegative() {
			return util.ErrInsufficientFunds
		}
		w.Balance = w.Balance.Add(delta)
		w.UpdatedAt = time.Now().UTC()
		return nil
	}

	// UPDATE takes the row lock implicitly.
	if err := tx.acquire(ctx, walletID); err != nil {
		return err
	}
	w, err := s.walletView(tx, walletID)
	if err != nil {
		return err
	}
	if w.Balance.Add(delta).IsNegative() {
		return util.ErrInsufficientFunds
	}
	tx.deltas[walletID] = tx.deltas[walletID].Add(delta)
	return nil
}

// --- transactions ---

func (s *Store) CreateTransaction(_ context.Context, q repository.DBExecutor, tr *domain.Transaction) error {
	tx, err := asTx(q)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byReference[tr.Reference]; taken {
		return fmt.Errorf("reference %s: %w", tr.Reference, util.ErrDuplicateEntry)
	}
	if tr.IdempotencyKey != nil {
		if _, taken := s.byIdemKey[*tr.IdempotencyKey]; taken {
			return fmt.Errorf("idempotency key %s: %w", *tr.IdempotencyKey, util.ErrDuplicateEntry)
		}
	}
	tr.ID = s.id()
	if tx == nil {
		s.putTransaction(tr)
		return nil
	}
	cp := *tr
	tx.transactions = append(tx.transactions, &cp)
	return nil
}

func (s *Store) FailPendingTransaction(_ context.Context, q repository.DBExecutor, tr *domain.Transaction) error {
	tx, err := asTx(q)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.transactions[tr.ID]
	if tx != nil {
		if staged, seen := tx.updates[tr.ID]; seen {
			current = staged
		}
	}
	if !ok || current.Status != domain.TransactionStatusPending {
		return fmt.Errorf("transaction %d is not pending: %w", tr.ID, util.ErrNotFound)
	}
	cp := *current
	cp.Status = tr.Status
	cp.Description = tr.Description
	if tx == nil {
		s.transactions[cp.ID] = &cp
		return nil
	}
	tx.updates[cp.ID] = &cp
	return nil
}

// visibleTransactions returns committed rows, as updated by tx, plus those staged in tx.
// Callers hold s.mu.
func (s *Store) visibleTransactions(tx *Tx) []*domain.Transaction {
	out := make([]*domain.Transaction, 0, len(s.transactions))
	for id, tr := range s.transactions {
		if tx != nil {
			if staged, ok := tx.updates[id]; ok {
				tr = staged
			}
		}
		out = append(out, tr)
	}
	if tx != nil {
		out = append(out, tx.transactions...)
	}
	return out
}

func (s *Store) findTransaction(q repository.DBExecutor, match func(*domain.Transaction) bool) (*domain.Transaction, error) {
	tx, err := asTx(q)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tr := range s.visibleTransactions(tx) {
		if match(tr) {
			cp := *tr
			return &cp, nil
		}
	}
	return nil, util.ErrNotFound
}

func (s *Store) GetTransactionByID(_ context.Context, q repository.DBExecutor, id int64) (*domain.Transaction, error) {
	return s.findTransaction(q, func(tr *domain.Transaction) bool { return tr.ID == id })
}

func (s *Store) GetTransactionByReference(_ context.Context, q repository.DBExecutor, reference string) (*domain.Transaction, error) {
	return s.findTransaction(q, func(tr *domain.Transaction) bool { return tr.Reference == reference })
}

func (s *Store) GetTransactionByIdempotencyKey(_ context.Context, q repository.DBExecutor, key string) (*domain.Transaction, error) {
	return s.findTransaction(q, func(tr *domain.Transaction) bool {
		return tr.IdempotencyKey != nil && *tr.IdempotencyKey == key
	})
}

func (s *Store) ReferenceExists(_ context.Context, q repository.DBExecutor, reference string) (bool, error) {
	tx, err := asTx(q)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tr := range s.visibleTransactions(tx) {
		if tr.Reference == reference {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) SumSentSince(_ context.Context, q repository.DBExecutor, walletID int64, since time.Time) (decimal.Decimal, error) {
	tx, err := asTx(q)
	if err != nil {
		return decimal.Zero, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, tr := range s.visibleTransactions(tx) {
		if tr.SourceWalletID != walletID || tr.Status != domain.TransactionStatusCompleted || tr.IsExternalDeposit() {
			continue
		}
		if tr.CompletedAt == nil || tr.CompletedAt.Before(since) {
			continue
		}
		total = total.Add(tr.Amount)
	}
	return total, nil
}

func (s *Store) GetTransactionsByWalletID(_ context.Context, q repository.DBExecutor, walletID int64, limit, offset int) ([]domain.Transaction, int64, error) {
	tx, err := asTx(q)
	if err != nil {
		return nil, 0, err
	}
	s.mu.Lock()
	var matched []domain.Transaction
	for _, tr := range s.visibleTransactions(tx) {
		if tr.SourceWalletID == walletID || (tr.DestWalletID != nil && *tr.DestWalletID == walletID) {
			matched = append(matched, *tr)
		}
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := int64(len(matched))
	if offset >= len(matched) {
		return []domain.Transaction{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

// --- charge rules ---

// SetChargeRules replaces the configured rules.
func (s *Store) SetChargeRules(rules ...domain.TransactionChargeRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append([]domain.TransactionChargeRule(nil), rules...)
}

func (s *Store) ListActiveChargeRules(_ context.Context, q repository.DBExecutor) ([]domain.TransactionChargeRule, error) {
	if _, err := asTx(q); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.TransactionChargeRule
	for _, r := range s.rules {
		if r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

// --- notifications ---

func (s *Store) CreateNotification(_ context.Context, q repository.DBExecutor, n *domain.Notification) error {
	tx, err := asTx(q)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n.ID = s.id()
	cp := *n
	if tx != nil {
		tx.notifications = append(tx.notifications, &cp)
		return nil
	}
	s.notifications[n.ID] = &cp
	return nil
}

func (s *Store) UpdateNotificationStatus(_ context.Context, q repository.DBExecutor, n *domain.Notification) error {
	if _, err := asTx(q); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.notifications[n.ID]
	if !ok {
		return util.ErrNotFound
	}
	existing.Status = n.Status
	existing.Attempts = n.Attempts
	existing.LastError = n.LastError
	existing.SentAt = n.SentAt
	return nil
}

// Notifications returns a snapshot of committed notification records ordered by id.
func (s *Store) Notifications() []domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// TransactionCount returns the number of committed transaction rows.
func (s *Store) TransactionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transactions)
}

// TotalBalance sums every wallet balance in a currency.
func (s *Store) TotalBalance(currency string) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, w := range s.wallets {
		if w.Currency == currency {
			total = total.Add(w.Balance)
		}
	}
	return total
}
