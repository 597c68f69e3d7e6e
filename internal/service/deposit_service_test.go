package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"wallet-service/internal/core/domain"
	"wallet-service/internal/core/ports"
	"wallet-service/internal/core/ports/mocks"
	"wallet-service/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type depositTestDeps struct {
	svc        *DepositServiceImpl
	userRepo   *mocks.MockUserRepository
	walletRepo *mocks.MockWalletRepository
	txRepo     *mocks.MockTransactionRepository
	txSvc      *mocks.MockTransactionService
	gateway    *mocks.MockPaymentGateway
	transactor *mocks.MockDBTransactor
}

func setupDepositService(t *testing.T) *depositTestDeps {
	ctrl := gomock.NewController(t)
	d := &depositTestDeps{
		userRepo:   mocks.NewMockUserRepository(ctrl),
		walletRepo: mocks.NewMockWalletRepository(ctrl),
		txRepo:     mocks.NewMockTransactionRepository(ctrl),
		txSvc:      mocks.NewMockTransactionService(ctrl),
		gateway:    mocks.NewMockPaymentGateway(ctrl),
		transactor: mocks.NewMockDBTransactor(ctrl),
	}
	d.svc = NewDepositService(
		d.userRepo, d.walletRepo, d.txRepo, d.txSvc,
		d.gateway, d.transactor, decimalFrom("100"), zerolog.Nop(),
	)
	return d
}

// ==================== InitiateDeposit ====================

func TestDepositService_InitiateDeposit_Success(t *testing.T) {
	d := setupDepositService(t)
	ctx := context.Background()
	tx := &mockTx{}
	wallet := walletWith(9, "1234567890", "0")

	var reference string
	d.userRepo.EXPECT().GetByID(ctx, int64(9)).Return(&domain.User{ID: 9, Email: "payer@example.com"}, nil)
	d.walletRepo.EXPECT().GetByUserID(ctx, int64(9)).Return(wallet, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.txSvc.EXPECT().Append(ctx, tx, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ any, p ports.AppendParams) (*domain.Transaction, error) {
			assert.Equal(t, wallet.ID, p.WalletID)
			assert.Equal(t, domain.TransactionTypeDeposit, p.Type)
			assert.Equal(t, domain.TransactionStatusPending, p.Status)
			assert.Nil(t, p.CounterpartWalletID)
			reference = p.Reference
			return &domain.Transaction{Reference: p.Reference}, nil
		})
	d.gateway.EXPECT().Initialize(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, req ports.GatewayInitRequest) (*ports.GatewayInitResult, error) {
			assert.Equal(t, "payer@example.com", req.Email)
			assert.Equal(t, int64(150050), req.AmountMinor)
			assert.Equal(t, reference, req.Reference)
			return &ports.GatewayInitResult{AuthorizationURL: "https://checkout.paystack.com/abc"}, nil
		})

	res, err := d.svc.InitiateDeposit(ctx, 9, decimalFrom("1500.50"))
	require.NoError(t, err)
	assert.Equal(t, reference, res.Reference)
	assert.Regexp(t, `^TXN_\d+_9_[0-9a-f]{8}$`, res.Reference)
	assert.Equal(t, "https://checkout.paystack.com/abc", res.AuthorizationURL)
}

func TestDepositService_InitiateDeposit_InvalidAmount(t *testing.T) {
	d := setupDepositService(t)
	for _, amt := range []string{"99.99", "0", "-100", "100.001"} {
		_, err := d.svc.InitiateDeposit(context.Background(), 9, decimalFrom(amt))
		assertAppError(t, err, apperror.CodeInvalidAmount)
	}
}

func TestDepositService_InitiateDeposit_GatewayFailureLeavesPending(t *testing.T) {
	d := setupDepositService(t)
	ctx := context.Background()
	tx := &mockTx{}

	d.userRepo.EXPECT().GetByID(ctx, int64(9)).Return(&domain.User{ID: 9, Email: "p@example.com"}, nil)
	d.walletRepo.EXPECT().GetByUserID(ctx, int64(9)).Return(walletWith(9, "1234567890", "0"), nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.txSvc.EXPECT().Append(ctx, tx, gomock.Any()).Return(&domain.Transaction{}, nil)
	d.gateway.EXPECT().Initialize(ctx, gomock.Any()).Return(nil, errors.New("connection refused"))
	// no status update expected: the row stays PENDING

	_, err := d.svc.InitiateDeposit(ctx, 9, decimalFrom("100"))
	assertAppError(t, err, apperror.CodeGateway)
}

func TestDepositService_InitiateDeposit_NoWallet(t *testing.T) {
	d := setupDepositService(t)
	ctx := context.Background()

	d.userRepo.EXPECT().GetByID(ctx, int64(9)).Return(&domain.User{ID: 9}, nil)
	d.walletRepo.EXPECT().GetByUserID(ctx, int64(9)).Return(nil, nil)

	_, err := d.svc.InitiateDeposit(ctx, 9, decimalFrom("100"))
	assertAppError(t, err, apperror.CodeNotFound)
}

// ==================== HandleSettlementEvent ====================

func TestDepositService_HandleSettlementEvent_UnknownEventIgnored(t *testing.T) {
	d := setupDepositService(t)
	err := d.svc.HandleSettlementEvent(context.Background(), ports.SettlementEvent{Type: "transfer.success", Reference: "X"})
	require.NoError(t, err)
}

func TestDepositService_HandleSettlementEvent_NotFound(t *testing.T) {
	d := setupDepositService(t)
	ctx := context.Background()
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.txRepo.EXPECT().GetByReferenceForUpdate(ctx, tx, "TXN_missing").Return(nil, nil)

	err := d.svc.HandleSettlementEvent(ctx, ports.SettlementEvent{Type: ports.EventChargeSuccess, Reference: "TXN_missing", Status: "success"})
	assertAppError(t, err, apperror.CodeNotFound)
}

func TestDepositService_HandleSettlementEvent_Failed(t *testing.T) {
	d := setupDepositService(t)
	ctx := context.Background()
	tx := &mockTx{}
	txn := &domain.Transaction{
		Reference: "TXN_1",
		Type:      domain.TransactionTypeDeposit,
		Status:    domain.TransactionStatusPending,
		Amount:    decimalFrom("100"),
	}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.txRepo.EXPECT().GetByReferenceForUpdate(ctx, tx, "TXN_1").Return(txn, nil)
	d.txRepo.EXPECT().UpdateStatus(ctx, tx, txn.ID, domain.TransactionStatusFailed).Return(nil)
	// no wallet lock or balance write on failure

	err := d.svc.HandleSettlementEvent(ctx, ports.SettlementEvent{Type: ports.EventChargeFailed, Reference: "TXN_1"})
	require.NoError(t, err)
}

func TestDepositService_HandleSettlementEvent_SuccessEventWithFailedStatus(t *testing.T) {
	d := setupDepositService(t)
	ctx := context.Background()
	tx := &mockTx{}
	txn := &domain.Transaction{Reference: "TXN_2", Type: domain.TransactionTypeDeposit, Status: domain.TransactionStatusPending}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.txRepo.EXPECT().GetByReferenceForUpdate(ctx, tx, "TXN_2").Return(txn, nil)
	d.txRepo.EXPECT().UpdateStatus(ctx, tx, txn.ID, domain.TransactionStatusFailed).Return(nil)

	err := d.svc.HandleSettlementEvent(ctx, ports.SettlementEvent{Type: ports.EventChargeSuccess, Reference: "TXN_2", Status: "failed"})
	require.NoError(t, err)
}

func TestDepositService_HandleSettlementEvent_StatusConflictIsNoop(t *testing.T) {
	d := setupDepositService(t)
	ctx := context.Background()
	tx := &mockTx{}
	txn := &domain.Transaction{Reference: "TXN_3", Type: domain.TransactionTypeDeposit, Status: domain.TransactionStatusPending}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.txRepo.EXPECT().GetByReferenceForUpdate(ctx, tx, "TXN_3").Return(txn, nil)
	d.txRepo.EXPECT().UpdateStatus(ctx, tx, txn.ID, domain.TransactionStatusFailed).Return(ports.ErrStatusConflict)

	err := d.svc.HandleSettlementEvent(ctx, ports.SettlementEvent{Type: ports.EventChargeAbandoned, Reference: "TXN_3"})
	require.NoError(t, err)
}

// ==================== Ledger properties ====================

type stubGateway struct {
	mu    sync.Mutex
	calls []ports.GatewayInitRequest
	err   error
}

func (g *stubGateway) Initialize(_ context.Context, req ports.GatewayInitRequest) (*ports.GatewayInitResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, req)
	if g.err != nil {
		return nil, g.err
	}
	return &ports.GatewayInitResult{AuthorizationURL: "https://checkout.example/" + req.Reference, Reference: req.Reference}, nil
}

func newDepositLedger(gw ports.PaymentGateway) (*ledger, *DepositServiceImpl) {
	l := newLedger()
	svc := NewDepositService(l.users, l.wallets, l.txns, l.txSvc, gw, l.store, decimalFrom("100"), zerolog.Nop())
	return l, svc
}

func TestDeposit_Scenario1000SettledOnce(t *testing.T) {
	l, svc := newDepositLedger(&stubGateway{})
	ctx := context.Background()
	user, w := l.store.seedUser("d@example.com", "1000000001", "0")

	init, err := svc.InitiateDeposit(ctx, user.ID, decimalFrom("1000.00"))
	require.NoError(t, err)

	pending, err := svc.GetDepositStatus(ctx, user.ID, init.Reference)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusPending, pending.Status)
	assert.True(t, l.store.wallet(w.ID).Balance.IsZero())

	event := ports.SettlementEvent{Type: ports.EventChargeSuccess, Reference: init.Reference, Status: "success"}
	require.NoError(t, svc.HandleSettlementEvent(ctx, event))

	settled, err := svc.GetDepositStatus(ctx, user.ID, init.Reference)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusSuccess, settled.Status)
	assert.Equal(t, "1000.00", l.store.wallet(w.ID).Balance.StringFixed(2))
	assert.Equal(t, int64(1), l.store.wallet(w.ID).Version)

	// Redelivery is a successful no-op
	require.NoError(t, svc.HandleSettlementEvent(ctx, event))
	assert.Equal(t, "1000.00", l.store.wallet(w.ID).Balance.StringFixed(2))
	assert.Equal(t, int64(1), l.store.wallet(w.ID).Version)

	// A late failure event cannot undo the settlement
	require.NoError(t, svc.HandleSettlementEvent(ctx, ports.SettlementEvent{Type: ports.EventChargeFailed, Reference: init.Reference}))
	settled, err = svc.GetDepositStatus(ctx, user.ID, init.Reference)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusSuccess, settled.Status)
}

func TestDeposit_ConcurrentDuplicateDeliveriesCreditOnce(t *testing.T) {
	l, svc := newDepositLedger(&stubGateway{})
	ctx := context.Background()
	user, w := l.store.seedUser("d@example.com", "1000000001", "50.00")

	init, err := svc.InitiateDeposit(ctx, user.ID, decimalFrom("250.00"))
	require.NoError(t, err)

	event := ports.SettlementEvent{Type: ports.EventChargeSuccess, Reference: init.Reference, Status: "success"}
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, svc.HandleSettlementEvent(ctx, event))
		}()
	}
	wg.Wait()

	assert.Equal(t, "300.00", l.store.wallet(w.ID).Balance.StringFixed(2))
	assert.Equal(t, int64(1), l.store.wallet(w.ID).Version)
}

func TestDeposit_SettlementAndTransferShareWalletLock(t *testing.T) {
	l, svc := newDepositLedger(&stubGateway{})
	ctx := context.Background()
	user, w := l.store.seedUser("d@example.com", "1000000001", "500.00")
	_, other := l.store.seedUser("o@example.com", "1000000002", "0")

	var refs []string
	for i := 0; i < 10; i++ {
		init, err := svc.InitiateDeposit(ctx, user.ID, decimalFrom("100"))
		require.NoError(t, err)
		refs = append(refs, init.Reference)
	}

	var wg sync.WaitGroup
	for _, ref := range refs {
		wg.Add(2)
		go func(ref string) {
			defer wg.Done()
			assert.NoError(t, svc.HandleSettlementEvent(ctx, ports.SettlementEvent{Type: ports.EventChargeSuccess, Reference: ref, Status: "success"}))
		}(ref)
		go func() {
			defer wg.Done()
			_, err := l.transfers.Transfer(ctx, user.ID, other.WalletNumber, decimalFrom("40"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// 500 + 10*100 - 10*40
	assert.Equal(t, "1100.00", l.store.wallet(w.ID).Balance.StringFixed(2))
	assert.Equal(t, "400.00", l.store.wallet(other.ID).Balance.StringFixed(2))
	assert.Equal(t, int64(20), l.store.wallet(w.ID).Version)
}

func TestDeposit_GatewayFailureKeepsPendingRow(t *testing.T) {
	gw := &stubGateway{err: errors.New("timeout")}
	l, svc := newDepositLedger(gw)
	ctx := context.Background()
	user, w := l.store.seedUser("d@example.com", "1000000001", "0")

	_, err := svc.InitiateDeposit(ctx, user.ID, decimalFrom("100"))
	assertAppError(t, err, apperror.CodeGateway)

	rows := l.store.txnsFor(w.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.TransactionStatusPending, rows[0].Status)
	assert.Equal(t, gw.calls[0].Reference, rows[0].Reference)
}

func TestDeposit_GetDepositStatus_ScopedToOwner(t *testing.T) {
	l, svc := newDepositLedger(&stubGateway{})
	ctx := context.Background()
	owner, _ := l.store.seedUser("owner@example.com", "1000000001", "0")
	stranger, _ := l.store.seedUser("x@example.com", "1000000002", "0")

	init, err := svc.InitiateDeposit(ctx, owner.ID, decimalFrom("100"))
	require.NoError(t, err)

	_, err = svc.GetDepositStatus(ctx, stranger.ID, init.Reference)
	assertAppError(t, err, apperror.CodeNotFound)
}

func TestDeposit_ExpireStale(t *testing.T) {
	l, svc := newDepositLedger(&stubGateway{})
	ctx := context.Background()
	user, w := l.store.seedUser("d@example.com", "1000000001", "0")

	old, err := svc.InitiateDeposit(ctx, user.ID, decimalFrom("100"))
	require.NoError(t, err)
	fresh, err := svc.InitiateDeposit(ctx, user.ID, decimalFrom("100"))
	require.NoError(t, err)

	// Age the first row past the TTL
	l.store.mu.Lock()
	for _, txn := range l.store.txns {
		if txn.Reference == old.Reference {
			txn.CreatedAt = time.Now().Add(-48 * time.Hour)
		}
	}
	l.store.mu.Unlock()

	n, err := svc.ExpireStale(ctx, 24*time.Hour, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	oldTxn, err := svc.GetDepositStatus(ctx, user.ID, old.Reference)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusFailed, oldTxn.Status)
	freshTxn, err := svc.GetDepositStatus(ctx, user.ID, fresh.Reference)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusPending, freshTxn.Status)
	assert.True(t, l.store.wallet(w.ID).Balance.IsZero())

	// A webhook arriving after expiry does not resurrect the deposit
	require.NoError(t, svc.HandleSettlementEvent(ctx, ports.SettlementEvent{Type: ports.EventChargeSuccess, Reference: old.Reference, Status: "success"}))
	assert.True(t, l.store.wallet(w.ID).Balance.IsZero())

	n, err = svc.ExpireStale(ctx, 24*time.Hour, 100)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeposit_TransferReferenceIsNotSettled(t *testing.T) {
	l, svc := newDepositLedger(&stubGateway{})
	ctx := context.Background()
	alice, a := l.store.seedUser("a@example.com", "1000000001", "10")
	_, b := l.store.seedUser("b@example.com", "1000000002", "0")

	res, err := l.transfers.Transfer(ctx, alice.ID, b.WalletNumber, decimalFrom("5"))
	require.NoError(t, err)

	require.NoError(t, svc.HandleSettlementEvent(ctx, ports.SettlementEvent{Type: ports.EventChargeSuccess, Reference: res.Reference + "_IN", Status: "success"}))
	assert.Equal(t, "5.00", l.store.wallet(a.ID).Balance.StringFixed(2))
	assert.Equal(t, "5.00", l.store.wallet(b.ID).Balance.StringFixed(2))
}
