// internal/service/wallet_service_test.go
package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"wallet-engine/internal/charge"
	"wallet-engine/internal/domain"
	"wallet-engine/internal/ledger"
	"wallet-engine/internal/limit"
	"wallet-engine/internal/reference"
	"wallet-engine/internal/repository"
	"wallet-engine/internal/util"
	"wallet-engine/pkg/db" // Import pkg/db for interfaces and function types

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// MockDBExecutor is a mock implementation of repository.DBExecutor.
type MockDBExecutor struct {
	mock.Mock
}

func (m *MockDBExecutor) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	argsCalled := m.Called(ctx, dest, query, args)
	return argsCalled.Error(0)
}

func (m *MockDBExecutor) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	argsCalled := m.Called(ctx, dest, query, args)
	return argsCalled.Error(0)
}

func (m *MockDBExecutor) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	argsCalled := m.Called(ctx, query, args)
	return argsCalled.Get(0).(sql.Result), argsCalled.Error(1)
}

func (m *MockDBExecutor) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	m.Called(ctx, query, args)
	return &sql.Row{}
}

// MockActorRepository is a mock implementation of repository.ActorRepository.
type MockActorRepository struct {
	mock.Mock
}

func (m *MockActorRepository) CreateActor(ctx context.Context, q repository.DBExecutor, actor *domain.Actor) error {
	args := m.Called(ctx, q, actor)
	return args.Error(0)
}

func (m *MockActorRepository) GetActorByID(ctx context.Context, q repository.DBExecutor, id int64) (*domain.Actor, error) {
	args := m.Called(ctx, q, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Actor), args.Error(1)
}

func (m *MockActorRepository) GetActorByIdentifier(ctx context.Context, q repository.DBExecutor, identifier string) (*domain.Actor, error) {
	args := m.Called(ctx, q, identifier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Actor), args.Error(1)
}

// MockWalletRepository is a mock implementation of repository.WalletRepository.
type MockWalletRepository struct {
	mock.Mock
}

func (m *MockWalletRepository) CreateWallet(ctx context.Context, q repository.DBExecutor, wallet *domain.Wallet) error {
	args := m.Called(ctx, q, wallet)
	return args.Error(0)
}

func (m *MockWalletRepository) GetWalletByID(ctx context.Context, q repository.DBExecutor, id int64) (*domain.Wallet, error) {
	args := m.Called(ctx, q, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Wallet), args.Error(1)
}

func (m *MockWalletRepository) GetWalletByActorID(ctx context.Context, q repository.DBExecutor, actorID int64) (*domain.Wallet, error) {
	args := m.Called(ctx, q, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Wallet), args.Error(1)
}

func (m *MockWalletRepository) GetSystemWallet(ctx context.Context, q repository.DBExecutor, currency string) (*domain.Wallet, error) {
	args := m.Called(ctx, q, currency)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Wallet), args.Error(1)
}

func (m *MockWalletRepository) SetLockTimeout(ctx context.Context, q repository.DBExecutor, timeout time.Duration) error {
	args := m.Called(ctx, q, timeout)
	return args.Error(0)
}

func (m *MockWalletRepository) LockWalletByID(ctx context.Context, q repository.DBExecutor, id int64) (*domain.Wallet, error) {
	args := m.Called(ctx, q, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Wallet), args.Error(1)
}

func (m *MockWalletRepository) UpdateWalletBalance(ctx context.Context, q repository.DBExecutor, walletID int64, delta decimal.Decimal) error {
	args := m.Called(ctx, q, walletID, delta)
	return args.Error(0)
}

// MockTransactionRepository is a mock implementation of repository.TransactionRepository.
type MockTransactionRepository struct {
	mock.Mock
}

func (m *MockTransactionRepository) CreateTransaction(ctx context.Context, q repository.DBExecutor, transaction *domain.Transaction) error {
	args := m.Called(ctx, q, transaction)
	return args.Error(0)
}

func (m *MockTransactionRepository) GetTransactionByID(ctx context.Context, q repository.DBExecutor, id int64) (*domain.Transaction, error) {
	args := m.Called(ctx, q, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) GetTransactionByReference(ctx context.Context, q repository.DBExecutor, reference string) (*domain.Transaction, error) {
	args := m.Called(ctx, q, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) GetTransactionByIdempotencyKey(ctx context.Context, q repository.DBExecutor, key string) (*domain.Transaction, error) {
	args := m.Called(ctx, q, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) FailPendingTransaction(ctx context.Context, q repository.DBExecutor, transaction *domain.Transaction) error {
	args := m.Called(ctx, q, transaction)
	return args.Error(0)
}

func (m *MockTransactionRepository) ReferenceExists(ctx context.Context, q repository.DBExecutor, reference string) (bool, error) {
	args := m.Called(ctx, q, reference)
	return args.Bool(0), args.Error(1)
}

func (m *MockTransactionRepository) SumSentSince(ctx context.Context, q repository.DBExecutor, walletID int64, since time.Time) (decimal.Decimal, error) {
	args := m.Called(ctx, q, walletID, since)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockTransactionRepository) GetTransactionsByWalletID(ctx context.Context, q repository.DBExecutor, walletID int64, limit, offset int) ([]domain.Transaction, int64, error) {
	args := m.Called(ctx, q, walletID, limit, offset)
	return args.Get(0).([]domain.Transaction), args.Get(1).(int64), args.Error(2)
}

// MockTxController is a mock implementation of db.TxController.
// It also implicitly implements repository.DBExecutor for testing purposes
// by embedding MockDBExecutor.
type MockTxController struct {
	mock.Mock
	MockDBExecutor // Embed MockDBExecutor to satisfy repository.DBExecutor interface
}

func (m *MockTxController) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockTxController) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

type mocks struct {
	actors       *MockActorRepository
	wallets      *MockWalletRepository
	transactions *MockTransactionRepository
	executor     *MockDBExecutor
	tx           *MockTxController
}

func newMockedService(t *testing.T, beginErr error) (TransactionService, *mocks) {
	t.Helper()
	m := &mocks{
		actors:       new(MockActorRepository),
		wallets:      new(MockWalletRepository),
		transactions: new(MockTransactionRepository),
		executor:     new(MockDBExecutor),
		tx:           new(MockTxController),
	}
	logger := util.DiscardLogger()

	charges := charge.NewCalculator(nil, nil, logger)
	require.NoError(t, charges.Load([]domain.TransactionChargeRule{{
		Key: "TRANSFER:CUSTOMER", Kind: domain.ChargeKindFixed, Value: decimal.NewFromInt(1),
		AppliesTo: domain.ChargePartySender, Active: true,
	}}))
	limits, err := limit.NewEnforcer(limit.DefaultLimits(), time.UTC, m.transactions)
	require.NoError(t, err)

	svc := NewTransactionService(Dependencies{
		DBExecutor:      m.executor,
		ActorRepo:       m.actors,
		WalletRepo:      m.wallets,
		TransactionRepo: m.transactions,
		Ledger:          ledger.NewLedger(m.wallets, time.Second),
		Charges:         charges,
		Limits:          limits,
		References:      reference.NewGenerator(m.transactions, logger),
		Logger:          logger,
		BeginTx: func(ctx context.Context, dbConn db.DBTxBeginner) (db.TxController, error) {
			if beginErr != nil {
				return nil, beginErr
			}
			return m.tx, nil
		},
		CommitTx: func(tx db.TxController) error {
			return tx.Commit()
		},
		RollbackTx: func(tx db.TxController) {
			_ = tx.Rollback()
		},
		SystemWalletID: 1,
	})
	return svc, m
}

func (m *mocks) assertAll(t *testing.T) {
	mock.AssertExpectationsForObjects(t, m.actors, m.wallets, m.transactions, m.executor, m.tx)
}

func int64Ptr(v int64) *int64 { return &v }

// decimalEq matches by value; 51 and 51.00 differ in representation.
func decimalEq(v int64) interface{} {
	want := decimal.NewFromInt(v)
	return mock.MatchedBy(func(d decimal.Decimal) bool { return d.Equal(want) })
}

// expectValidTransfer sets up the reads VALIDATING performs for a 50.00 transfer from actor 7 to actor 8.
func (m *mocks) expectValidTransfer(t *testing.T) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPin), bcrypt.MinCost)
	require.NoError(t, err)

	sender := &domain.Actor{ID: 7, PhoneNumber: "+263771000007", Role: domain.ActorRoleCustomer, VerificationLevel: 2, PinHash: string(hash), IsActive: true}
	receiver := &domain.Actor{ID: 8, PhoneNumber: "+263771000008", Role: domain.ActorRoleCustomer, VerificationLevel: 2, IsActive: true}
	source := &domain.Wallet{ID: 10, ActorID: int64Ptr(7), Currency: "USD", Balance: decimal.NewFromInt(100), IsActive: true}
	dest := &domain.Wallet{ID: 20, ActorID: int64Ptr(8), Currency: "USD", Balance: decimal.Zero, IsActive: true}
	system := &domain.Wallet{ID: 1, Currency: "USD", Balance: decimal.Zero, IsActive: true, IsSystem: true}

	m.actors.On("GetActorByID", mock.Anything, mock.Anything, int64(7)).Return(sender, nil)
	m.actors.On("GetActorByIdentifier", mock.Anything, mock.Anything, receiver.PhoneNumber).Return(receiver, nil)
	m.wallets.On("GetWalletByActorID", mock.Anything, mock.Anything, int64(7)).Return(source, nil)
	m.wallets.On("GetWalletByActorID", mock.Anything, mock.Anything, int64(8)).Return(dest, nil)
	m.wallets.On("GetWalletByID", mock.Anything, mock.Anything, int64(1)).Return(system, nil)
	m.transactions.On("GetTransactionByIdempotencyKey", mock.Anything, mock.Anything, "mock-key").Return(nil, util.ErrNotFound)
	m.transactions.On("SumSentSince", mock.Anything, mock.Anything, int64(10), mock.Anything).Return(decimal.Zero, nil)
}

func mockTransfer() TransactionRequest {
	return TransactionRequest{
		IdempotencyKey:        "mock-key",
		Type:                  domain.TransactionTypeTransfer,
		ActorID:               7,
		DestinationIdentifier: "+263771000008",
		Amount:                decimal.NewFromInt(50),
		Pin:                   testPin,
	}
}

// TestExecuteUnitOfWork checks how Execute drives the injected transaction functions.
func TestExecuteUnitOfWork(t *testing.T) {
	t.Run("BeginFails", func(t *testing.T) {
		ctx := context.Background()
		svc, m := newMockedService(t, errors.New("pool exhausted"))
		m.expectValidTransfer(t)

		res, err := svc.Execute(ctx, mockTransfer())

		assert.Nil(t, res)
		assert.ErrorContains(t, err, "failed to begin transaction")
		assert.Equal(t, util.KindInternal, util.KindOf(err))
		m.tx.AssertNotCalled(t, "Rollback")
		m.tx.AssertNotCalled(t, "Commit")
	})

	t.Run("LockTimeoutRollsBack", func(t *testing.T) {
		ctx := context.Background()
		svc, m := newMockedService(t, nil)
		m.expectValidTransfer(t)

		m.wallets.On("SetLockTimeout", mock.Anything, mock.Anything, time.Second).Return(nil).Once()
		m.wallets.On("LockWalletByID", mock.Anything, mock.Anything, int64(1)).Return(nil, util.ErrLockTimeout).Once()
		m.tx.On("Rollback").Return(nil).Once()

		res, err := svc.Execute(ctx, mockTransfer())

		assert.Nil(t, res)
		assert.ErrorIs(t, err, util.ErrLockTimeout)
		assert.True(t, util.Retryable(err))
		m.tx.AssertNotCalled(t, "Commit")
		m.wallets.AssertNotCalled(t, "UpdateWalletBalance", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		m.assertAll(t)
	})

	t.Run("CommitFailureIsReported", func(t *testing.T) {
		ctx := context.Background()
		svc, m := newMockedService(t, nil)
		m.expectValidTransfer(t)

		m.wallets.On("SetLockTimeout", mock.Anything, mock.Anything, time.Second).Return(nil).Once()
		m.wallets.On("LockWalletByID", mock.Anything, mock.Anything, int64(1)).Return(&domain.Wallet{ID: 1, Currency: "USD", Balance: decimal.Zero, IsActive: true, IsSystem: true}, nil).Once()
		m.wallets.On("LockWalletByID", mock.Anything, mock.Anything, int64(10)).Return(&domain.Wallet{ID: 10, Currency: "USD", Balance: decimal.NewFromInt(100), IsActive: true}, nil).Once()
		m.wallets.On("LockWalletByID", mock.Anything, mock.Anything, int64(20)).Return(&domain.Wallet{ID: 20, Currency: "USD", Balance: decimal.Zero, IsActive: true}, nil).Once()
		m.wallets.On("UpdateWalletBalance", mock.Anything, mock.Anything, int64(10), decimalEq(-51)).Return(nil).Once()
		m.wallets.On("UpdateWalletBalance", mock.Anything, mock.Anything, int64(20), decimalEq(50)).Return(nil).Once()
		m.wallets.On("UpdateWalletBalance", mock.Anything, mock.Anything, int64(1), decimalEq(1)).Return(nil).Once()
		m.transactions.On("ReferenceExists", mock.Anything, mock.Anything, mock.AnythingOfType("string")).Return(false, nil).Once()
		m.transactions.On("CreateTransaction", mock.Anything, mock.Anything, mock.AnythingOfType("*domain.Transaction")).Return(nil).Once()
		m.tx.On("Commit").Return(errors.New("connection reset")).Once()
		m.tx.On("Rollback").Return(sql.ErrTxDone).Once()

		res, err := svc.Execute(ctx, mockTransfer())

		assert.Nil(t, res)
		assert.ErrorContains(t, err, "failed to commit transaction")
		m.assertAll(t)
	})
}

func TestGetWallet(t *testing.T) {
	ctx := context.Background()

	t.Run("Found", func(t *testing.T) {
		svc, m := newMockedService(t, nil)
		wallet := &domain.Wallet{ID: 10, ActorID: int64Ptr(7), Currency: "USD", Balance: decimal.NewFromInt(42)}
		m.wallets.On("GetWalletByActorID", ctx, m.executor, int64(7)).Return(wallet, nil).Once()

		res, err := svc.GetWallet(ctx, 7)

		require.NoError(t, err)
		assert.Equal(t, wallet, res)
		m.assertAll(t)
	})

	t.Run("NotFound", func(t *testing.T) {
		svc, m := newMockedService(t, nil)
		m.wallets.On("GetWalletByActorID", ctx, m.executor, int64(7)).Return(nil, util.ErrNotFound).Once()

		res, err := svc.GetWallet(ctx, 7)

		assert.Nil(t, res)
		assert.ErrorIs(t, err, util.ErrWalletNotFound)
		m.assertAll(t)
	})
}

func TestGetTransactionHistory(t *testing.T) {
	ctx := context.Background()
	svc, m := newMockedService(t, nil)
	wallet := &domain.Wallet{ID: 10, ActorID: int64Ptr(7), Currency: "USD"}
	history := []domain.Transaction{{ID: 3, Reference: "TR-0000000a"}, {ID: 2, Reference: "DP-0000000b"}}

	m.wallets.On("GetWalletByActorID", ctx, m.executor, int64(7)).Return(wallet, nil).Once()
	m.transactions.On("GetTransactionsByWalletID", ctx, m.executor, int64(10), 20, 40).Return(history, int64(42), nil).Once()

	res, total, err := svc.GetTransactionHistory(ctx, 7, 20, 40)

	require.NoError(t, err)
	assert.Equal(t, history, res)
	assert.Equal(t, int64(42), total)
	m.assertAll(t)
}

func TestGetTransaction(t *testing.T) {
	ctx := context.Background()
	stored := &domain.Transaction{ID: 5, Reference: "MP-1a2b3c4d", SourceWalletID: 10, DestWalletID: int64Ptr(20)}

	tests := []struct {
		name     string
		walletID int64
		found    *domain.Transaction
		findErr  error
		wantErr  error
	}{
		{name: "Sender", walletID: 10, found: stored},
		{name: "Receiver", walletID: 20, found: stored},
		{name: "Stranger", walletID: 30, found: stored, wantErr: util.ErrNotFound},
		{name: "Unknown", walletID: 10, findErr: util.ErrNotFound, wantErr: util.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, m := newMockedService(t, nil)
			m.wallets.On("GetWalletByActorID", ctx, m.executor, int64(7)).Return(&domain.Wallet{ID: tt.walletID}, nil).Once()
			if tt.found != nil {
				m.transactions.On("GetTransactionByReference", ctx, m.executor, stored.Reference).Return(tt.found, nil).Once()
			} else {
				m.transactions.On("GetTransactionByReference", ctx, m.executor, stored.Reference).Return(nil, tt.findErr).Once()
			}

			res, err := svc.GetTransaction(ctx, 7, stored.Reference)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, res)
			} else {
				require.NoError(t, err)
				assert.Equal(t, stored, res)
			}
			m.assertAll(t)
		})
	}
}

func TestQuoteCharge(t *testing.T) {
	ctx := context.Background()

	t.Run("SenderBorneFeeAddsToTotal", func(t *testing.T) {
		svc, m := newMockedService(t, nil)
		m.actors.On("GetActorByID", ctx, m.executor, int64(7)).Return(&domain.Actor{ID: 7, Role: domain.ActorRoleCustomer}, nil).Once()

		q, err := svc.QuoteCharge(ctx, 7, domain.TransactionTypeTransfer, decimal.NewFromInt(50))

		require.NoError(t, err)
		assert.True(t, q.Fee.Equal(decimal.NewFromInt(1)))
		assert.True(t, q.Total.Equal(decimal.NewFromInt(51)))
		assert.Equal(t, domain.ChargePartySender, q.AppliesTo)
		m.assertAll(t)
	})

	t.Run("NoRuleIsFree", func(t *testing.T) {
		svc, m := newMockedService(t, nil)
		m.actors.On("GetActorByID", ctx, m.executor, int64(7)).Return(&domain.Actor{ID: 7, Role: domain.ActorRoleMerchant}, nil).Once()

		q, err := svc.QuoteCharge(ctx, 7, domain.TransactionTypeTransfer, decimal.NewFromInt(50))

		require.NoError(t, err)
		assert.True(t, q.Fee.IsZero())
		assert.True(t, q.Total.Equal(decimal.NewFromInt(50)))
	})

	t.Run("InvalidInput", func(t *testing.T) {
		svc, m := newMockedService(t, nil)

		_, err := svc.QuoteCharge(ctx, 7, "REFUND", decimal.NewFromInt(50))
		assert.ErrorIs(t, err, util.ErrInvalidInput)
		_, err = svc.QuoteCharge(ctx, 7, domain.TransactionTypeTransfer, decimal.Zero)
		assert.ErrorIs(t, err, util.ErrInvalidInput)

		m.actors.AssertNotCalled(t, "GetActorByID", mock.Anything, mock.Anything, mock.Anything)
	})
}
