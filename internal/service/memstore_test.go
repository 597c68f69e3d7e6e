package service

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"wallet-service/internal/core/domain"
	"wallet-service/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// memStore is an in-memory ledger with Postgres-like row locks.
// ...ForUpdate blocks until the row lock is free, and so does an insert whose
// unique key another open transaction has claimed. Locks are released when the
// owning transaction commits or rolls back. Writes are buffered per
// transaction and applied on commit, so rolled-back work leaves no trace.
type memStore struct {
	mu         sync.Mutex
	users      map[int64]*domain.User
	wallets    map[uuid.UUID]*domain.Wallet
	txns       map[uuid.UUID]*domain.Transaction
	keys       map[uuid.UUID]*domain.APIKey
	rowLocks   map[string]*sync.Mutex
	nextUserID int64
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[int64]*domain.User),
		wallets:  make(map[uuid.UUID]*domain.Wallet),
		txns:     make(map[uuid.UUID]*domain.Transaction),
		keys:     make(map[uuid.UUID]*domain.APIKey),
		rowLocks: make(map[string]*sync.Mutex),
	}
}

// Begin implements ports.DBTransactor.
func (s *memStore) Begin(_ context.Context) (pgx.Tx, error) {
	return &memTx{store: s}, nil
}

type memWrite struct {
	uniq  []string
	apply func(s *memStore)
}

// memTx implements pgx.Tx. A tx with a parent is a savepoint.
type memTx struct {
	pgx.Tx
	store  *memStore
	parent *memTx
	held   []*sync.Mutex
	names  map[string]bool
	writes []memWrite
	done   bool
}

func (t *memTx) root() *memTx {
	r := t
	for r.parent != nil {
		r = r.parent
	}
	return r
}

func (t *memTx) Begin(_ context.Context) (pgx.Tx, error) {
	return &memTx{store: t.store, parent: t}, nil
}

func (t *memTx) Commit(_ context.Context) error {
	if t.done {
		return errors.New("tx closed")
	}
	t.done = true
	if t.parent != nil {
		t.parent.writes = append(t.parent.writes, t.writes...)
		return nil
	}
	t.store.mu.Lock()
	for _, w := range t.writes {
		w.apply(t.store)
	}
	t.store.mu.Unlock()
	t.release()
	return nil
}

func (t *memTx) Rollback(_ context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.writes = nil
	if t.parent == nil {
		t.release()
	}
	return nil
}

func (t *memTx) release() {
	for i := len(t.held) - 1; i >= 0; i-- {
		t.held[i].Unlock()
	}
	t.held = nil
	t.names = nil
}

// lock takes the named row lock for the root transaction. Re-entrant.
func (t *memTx) lock(name string) {
	r := t.root()
	if r.names[name] {
		return
	}
	t.store.mu.Lock()
	m, ok := t.store.rowLocks[name]
	if !ok {
		m = &sync.Mutex{}
		t.store.rowLocks[name] = m
	}
	t.store.mu.Unlock()
	m.Lock()
	if r.names == nil {
		r.names = make(map[string]bool)
	}
	r.names[name] = true
	r.held = append(r.held, m)
}

// pendingUniq reports whether key is claimed by a buffered write in this tx chain.
func (t *memTx) pendingUniq(key string) bool {
	for c := t; c != nil; c = c.parent {
		for _, w := range c.writes {
			for _, u := range w.uniq {
				if u == key {
					return true
				}
			}
		}
	}
	return false
}

func (t *memTx) buffer(w memWrite) {
	t.writes = append(t.writes, w)
}

func asMemTx(tx pgx.Tx) *memTx {
	return tx.(*memTx)
}

// --- Wallets ---

type memWalletRepo struct{ s *memStore }

func (r memWalletRepo) Create(_ context.Context, tx pgx.Tx, w *domain.Wallet) error {
	t := asMemTx(tx)
	numKey, userKey := "wnum:"+w.WalletNumber, "wuser:"+strconv.FormatInt(w.UserID, 10)
	t.lock("uniq:" + userKey)
	t.lock("uniq:" + numKey)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.wallets {
		if existing.WalletNumber == w.WalletNumber || existing.UserID == w.UserID {
			return ports.ErrUniqueViolation
		}
	}
	if t.pendingUniq(numKey) || t.pendingUniq(userKey) {
		return ports.ErrUniqueViolation
	}
	cp := *w
	t.buffer(memWrite{uniq: []string{numKey, userKey}, apply: func(s *memStore) { s.wallets[cp.ID] = &cp }})
	return nil
}

func (r memWalletRepo) ExistsByNumber(_ context.Context, number string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, w := range r.s.wallets {
		if w.WalletNumber == number {
			return true, nil
		}
	}
	return false, nil
}

func (r memWalletRepo) find(match func(*domain.Wallet) bool) *domain.Wallet {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, w := range r.s.wallets {
		if match(w) {
			cp := *w
			return &cp
		}
	}
	return nil
}

func (r memWalletRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Wallet, error) {
	return r.find(func(w *domain.Wallet) bool { return w.ID == id }), nil
}

func (r memWalletRepo) GetByUserID(_ context.Context, userID int64) (*domain.Wallet, error) {
	return r.find(func(w *domain.Wallet) bool { return w.UserID == userID }), nil
}

func (r memWalletRepo) GetByNumber(_ context.Context, number string) (*domain.Wallet, error) {
	return r.find(func(w *domain.Wallet) bool { return w.WalletNumber == number }), nil
}

func (r memWalletRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error) {
	asMemTx(tx).lock("wallet:" + id.String())
	return r.GetByID(ctx, id)
}

func (r memWalletRepo) GetByNumberForUpdate(ctx context.Context, tx pgx.Tx, number string) (*domain.Wallet, error) {
	w, _ := r.GetByNumber(ctx, number)
	if w == nil {
		return nil, nil
	}
	return r.GetByIDForUpdate(ctx, tx, w.ID)
}

func (r memWalletRepo) UpdateBalance(_ context.Context, tx pgx.Tx, id uuid.UUID, balance decimal.Decimal, expectedVersion int64) (int64, error) {
	t := asMemTx(tx)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.wallets[id]
	if !ok || w.Version != expectedVersion {
		return 0, ports.ErrVersionConflict
	}
	if balance.IsNegative() {
		return 0, errors.New("balance check constraint")
	}
	next := expectedVersion + 1
	t.buffer(memWrite{apply: func(s *memStore) {
		s.wallets[id].Balance = balance
		s.wallets[id].Version = next
	}})
	return next, nil
}

// --- Transactions ---

type memTxnRepo struct{ s *memStore }

func (r memTxnRepo) Create(_ context.Context, tx pgx.Tx, txn *domain.Transaction) error {
	t := asMemTx(tx)
	refKey := "ref:" + txn.Reference
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.txns {
		if existing.Reference == txn.Reference {
			return ports.ErrUniqueViolation
		}
	}
	if t.pendingUniq(refKey) {
		return ports.ErrUniqueViolation
	}
	cp := *txn
	t.buffer(memWrite{uniq: []string{refKey}, apply: func(s *memStore) { s.txns[cp.ID] = &cp }})
	return nil
}

func (r memTxnRepo) GetByReference(_ context.Context, reference string) (*domain.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, txn := range r.s.txns {
		if txn.Reference == reference {
			cp := *txn
			return &cp, nil
		}
	}
	return nil, nil
}

func (r memTxnRepo) GetByReferenceForUpdate(ctx context.Context, tx pgx.Tx, reference string) (*domain.Transaction, error) {
	asMemTx(tx).lock("txn:" + reference)
	return r.GetByReference(ctx, reference)
}

func (r memTxnRepo) ListByWallet(_ context.Context, walletID uuid.UUID) ([]domain.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []domain.Transaction{}
	for _, txn := range r.s.txns {
		if txn.WalletID == walletID {
			out = append(out, *txn)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r memTxnRepo) UpdateStatus(_ context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus) error {
	t := asMemTx(tx)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	txn, ok := r.s.txns[id]
	if !ok || txn.Status != domain.TransactionStatusPending {
		return ports.ErrStatusConflict
	}
	t.buffer(memWrite{apply: func(s *memStore) {
		s.txns[id].Status = status
		s.txns[id].UpdatedAt = time.Now().UTC()
	}})
	return nil
}

func (r memTxnRepo) ListStalePending(_ context.Context, createdBefore time.Time, limit int) ([]domain.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []domain.Transaction{}
	for _, txn := range r.s.txns {
		if txn.Status == domain.TransactionStatusPending &&
			txn.Type == domain.TransactionTypeDeposit &&
			txn.CreatedAt.Before(createdBefore) {
			out = append(out, *txn)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- Users ---

type memUserRepo struct{ s *memStore }

func (r memUserRepo) Create(_ context.Context, tx pgx.Tx, u *domain.User) error {
	t := asMemTx(tx)
	t.lock("uniq:email:" + u.Email)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.users {
		if existing.Email == u.Email {
			return ports.ErrUniqueViolation
		}
	}
	r.s.nextUserID++
	u.ID = r.s.nextUserID
	cp := *u
	t.buffer(memWrite{uniq: []string{"email:" + u.Email}, apply: func(s *memStore) { s.users[cp.ID] = &cp }})
	return nil
}

func (r memUserRepo) find(match func(*domain.User) bool) *domain.User {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if match(u) {
			cp := *u
			return &cp
		}
	}
	return nil
}

func (r memUserRepo) GetByID(_ context.Context, id int64) (*domain.User, error) {
	return r.find(func(u *domain.User) bool { return u.ID == id }), nil
}

func (r memUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	return r.find(func(u *domain.User) bool { return u.Email == email }), nil
}

func (r memUserRepo) GetByFederatedSubject(_ context.Context, subject string) (*domain.User, error) {
	return r.find(func(u *domain.User) bool {
		return u.FederatedSubject != nil && *u.FederatedSubject == subject
	}), nil
}

func (r memUserRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.User, error) {
	asMemTx(tx).lock("user:" + strconv.FormatInt(id, 10))
	return r.GetByID(ctx, id)
}

func (r memUserRepo) SetFederatedSubject(_ context.Context, tx pgx.Tx, id int64, subject string) error {
	asMemTx(tx).buffer(memWrite{apply: func(s *memStore) { s.users[id].FederatedSubject = &subject }})
	return nil
}

// --- API keys ---

type memKeyRepo struct{ s *memStore }

func (r memKeyRepo) Create(_ context.Context, tx pgx.Tx, k *domain.APIKey) error {
	cp := *k
	asMemTx(tx).buffer(memWrite{apply: func(s *memStore) { s.keys[cp.ID] = &cp }})
	return nil
}

func (r memKeyRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.APIKey, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k, ok := r.s.keys[id]
	if !ok {
		return nil, nil
	}
	cp := *k
	return &cp, nil
}

func (r memKeyRepo) CountActive(_ context.Context, _ pgx.Tx, userID int64) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, k := range r.s.keys {
		if k.UserID == userID && k.Status == domain.APIKeyStatusActive {
			n++
		}
	}
	return n, nil
}

func (r memKeyRepo) filter(match func(*domain.APIKey) bool) []domain.APIKey {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []domain.APIKey{}
	for _, k := range r.s.keys {
		if match(k) {
			out = append(out, *k)
		}
	}
	return out
}

func (r memKeyRepo) ListByPrefix(_ context.Context, prefix string) ([]domain.APIKey, error) {
	return r.filter(func(k *domain.APIKey) bool { return k.KeyPrefix == prefix }), nil
}

func (r memKeyRepo) ListByUser(_ context.Context, userID int64) ([]domain.APIKey, error) {
	return r.filter(func(k *domain.APIKey) bool { return k.UserID == userID }), nil
}

func (r memKeyRepo) Revoke(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k, ok := r.s.keys[id]
	if !ok || k.Status != domain.APIKeyStatusActive {
		return ports.ErrStatusConflict
	}
	k.Status = domain.APIKeyStatusRevoked
	return nil
}

// --- Fixtures ---

// seedUser commits a user with a wallet holding balance.
func (s *memStore) seedUser(email, walletNumber string, balance string) (*domain.User, *domain.Wallet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextUserID++
	u := &domain.User{ID: s.nextUserID, Email: email}
	s.users[u.ID] = u
	w := domain.NewWallet(u.ID, walletNumber)
	w.Balance = decimal.RequireFromString(balance)
	s.wallets[w.ID] = w
	uc, wc := *u, *w
	return &uc, &wc
}

func (s *memStore) wallet(id uuid.UUID) domain.Wallet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.wallets[id]
}

func (s *memStore) txnsFor(walletID uuid.UUID) []domain.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Transaction
	for _, t := range s.txns {
		if t.WalletID == walletID {
			out = append(out, *t)
		}
	}
	return out
}

func (s *memStore) txnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.txns)
}
