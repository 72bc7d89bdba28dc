// Package inmemory implements storage.Storage on process memory. Transactions are serialized
// and work on a copy of the state that replaces the original only on commit.
package inmemory

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/danilovkiri/dk-go-fastcore/internal/models/modelstorage"
	"github.com/danilovkiri/dk-go-fastcore/internal/storage/v1"
	storageErrors "github.com/danilovkiri/dk-go-fastcore/internal/storage/v1/errors"
	"github.com/shopspring/decimal"
)

type state struct {
	users         map[int64]modelstorage.UserEntry
	deposits      []modelstorage.DepositEntry
	depositKeys   map[string]int64
	commissions   map[int64]modelstorage.CommissionEntry
	invoices      map[int64]modelstorage.InvoiceEntry
	wallets       []modelstorage.WalletEntry
	tiers         []modelstorage.BonusTierEntry
	depositsTotal decimal.Decimal
	lastDeposit   int64
	lastInvoice   int64
}

func newState() *state {
	return &state{
		users:       make(map[int64]modelstorage.UserEntry),
		depositKeys: make(map[string]int64),
		commissions: make(map[int64]modelstorage.CommissionEntry),
		invoices:    make(map[int64]modelstorage.InvoiceEntry),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.depositKeys {
		c.depositKeys[k] = v
	}
	for k, v := range s.commissions {
		c.commissions[k] = v
	}
	for k, v := range s.invoices {
		c.invoices[k] = v
	}
	c.deposits = append(c.deposits, s.deposits...)
	c.wallets = append(c.wallets, s.wallets...)
	c.tiers = append(c.tiers, s.tiers...)
	c.depositsTotal = s.depositsTotal
	c.lastDeposit = s.lastDeposit
	c.lastInvoice = s.lastInvoice
	return c
}

// Storage defines attributes of a struct available to its methods.
type Storage struct {
	mu sync.Mutex
	st *state
}

func New() *Storage {
	return &Storage{st: newState()}
}

// AddUser registers or replaces an account.
func (s *Storage) AddUser(u modelstorage.UserEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.users[u.ID] = u
}

func (s *Storage) User(id int64) (modelstorage.UserEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.st.users[id]
	return u, ok
}

func (s *Storage) DepositsTotal() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.depositsTotal
}

func (s *Storage) Commission(depositID int64) (modelstorage.CommissionEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.st.commissions[depositID]
	return c, ok
}

// SetBonusTiers replaces the tier table, keeping (position, id) order.
func (s *Storage) SetBonusTiers(tiers []modelstorage.BonusTierEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.tiers = append([]modelstorage.BonusTierEntry(nil), tiers...)
	sort.SliceStable(s.st.tiers, func(i, j int) bool {
		if s.st.tiers[i].Position != s.st.tiers[j].Position {
			return s.st.tiers[i].Position < s.st.tiers[j].Position
		}
		return s.st.tiers[i].ID < s.st.tiers[j].ID
	})
}

func (s *Storage) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Storage) WithinTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.st.clone()
	if err := fn(ctx, &Tx{st: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return &storageErrors.ContextTimeoutExceededError{Err: err}
	}
	s.st = work
	return nil
}

func (s *Storage) PendingCommissions(_ context.Context, limit int) ([]modelstorage.CommissionEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []modelstorage.CommissionEntry
	for _, d := range s.st.deposits {
		if len(out) >= limit {
			break
		}
		if _, done := s.st.commissions[d.ID]; done {
			continue
		}
		depositor, ok := s.st.users[d.UserID]
		if !ok || depositor.ReferrerID == 0 {
			continue
		}
		if _, ok = s.st.users[depositor.ReferrerID]; !ok {
			continue
		}
		out = append(out, modelstorage.CommissionEntry{
			DepositID:     d.ID,
			DepositorID:   d.UserID,
			ReferrerID:    depositor.ReferrerID,
			DepositAmount: d.Amount,
		})
	}
	return out, nil
}

func (s *Storage) ListBonusTiers(_ context.Context) ([]modelstorage.BonusTierEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]modelstorage.BonusTierEntry(nil), s.st.tiers...), nil
}

func (s *Storage) CreateInvoice(_ context.Context, entry modelstorage.InvoiceEntry) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.lastInvoice++
	entry.ID = s.st.lastInvoice
	s.st.invoices[entry.ID] = entry
	return entry.ID, nil
}

func (s *Storage) GetInvoice(_ context.Context, id int64) (*modelstorage.InvoiceEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	invoice, ok := s.st.invoices[id]
	if !ok {
		return nil, &storageErrors.NotFoundError{ID: strconv.FormatInt(id, 10)}
	}
	return &invoice, nil
}

func (s *Storage) BindWallet(_ context.Context, entry modelstorage.WalletEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.st.wallets {
		if (w.Kind == entry.Kind && w.Address == entry.Address) || (w.UserID == entry.UserID && w.Kind == entry.Kind) {
			return &storageErrors.AlreadyExistsError{ID: entry.Kind + ":" + entry.Address}
		}
	}
	s.st.wallets = append(s.st.wallets, entry)
	return nil
}

func (s *Storage) ListWallets(_ context.Context, userID int64) ([]modelstorage.WalletEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []modelstorage.WalletEntry
	for _, w := range s.st.wallets {
		if w.UserID == userID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out, nil
}

func (s *Storage) ListDeposits(_ context.Context, userID int64) ([]modelstorage.DepositEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []modelstorage.DepositEntry
	for i := len(s.st.deposits) - 1; i >= 0; i-- {
		if s.st.deposits[i].UserID == userID {
			out = append(out, s.st.deposits[i])
		}
	}
	return out, nil
}

// Tx implements storage.Tx over a private copy of the state.
type Tx struct {
	st *state
}

func (t *Tx) InsertDeposit(_ context.Context, e modelstorage.DepositEntry) (int64, error) {
	key := e.Provider + ":" + e.OperationID
	if _, ok := t.st.depositKeys[key]; ok {
		return 0, &storageErrors.AlreadyExistsError{ID: key}
	}
	t.st.lastDeposit++
	e.ID = t.st.lastDeposit
	t.st.deposits = append(t.st.deposits, e)
	t.st.depositKeys[key] = e.ID
	return e.ID, nil
}

func (t *Tx) ReferrerOf(_ context.Context, userID int64) (int64, bool, error) {
	u, ok := t.st.users[userID]
	if !ok || u.ReferrerID == 0 {
		return 0, false, nil
	}
	if _, ok = t.st.users[u.ReferrerID]; !ok {
		return 0, false, nil
	}
	return u.ReferrerID, true, nil
}

func (t *Tx) CreditUser(_ context.Context, userID int64, amount, total decimal.Decimal) error {
	u, ok := t.st.users[userID]
	if !ok {
		return &storageErrors.UnknownUserError{UserID: userID}
	}
	u.DepositedTotal = u.DepositedTotal.Add(amount)
	u.BonusBalance = u.BonusBalance.Add(total)
	t.st.users[userID] = u
	return nil
}

func (t *Tx) AddDepositStats(_ context.Context, amount decimal.Decimal) error {
	t.st.depositsTotal = t.st.depositsTotal.Add(amount)
	return nil
}

func (t *Tx) InsertCommission(_ context.Context, e modelstorage.CommissionEntry) (bool, error) {
	if _, ok := t.st.commissions[e.DepositID]; ok {
		return false, nil
	}
	t.st.commissions[e.DepositID] = e
	return true, nil
}

func (t *Tx) CreditReferrer(_ context.Context, referrerID int64, commission decimal.Decimal) error {
	u, ok := t.st.users[referrerID]
	if !ok {
		return &storageErrors.UnknownUserError{UserID: referrerID}
	}
	u.CommissionBalance = u.CommissionBalance.Add(commission)
	u.ReferralEarned = u.ReferralEarned.Add(commission)
	t.st.users[referrerID] = u
	return nil
}

func (t *Tx) AddReferralGenerated(_ context.Context, depositorID int64, commission decimal.Decimal) error {
	u, ok := t.st.users[depositorID]
	if !ok {
		return &storageErrors.UnknownUserError{UserID: depositorID}
	}
	u.ReferralGenerated = u.ReferralGenerated.Add(commission)
	t.st.users[depositorID] = u
	return nil
}

func (t *Tx) Savepoint(_ context.Context, fn func() error) error {
	snapshot := t.st.clone()
	if err := fn(); err != nil {
		*t.st = *snapshot
		return err
	}
	return nil
}

var (
	_ storage.Storage = (*Storage)(nil)
	_ storage.Tx      = (*Tx)(nil)
)
