package services

import (
	"context"
	"errors"
	"testing"

	"github.com/nimasrn/vendzz-dispatch/internal/model"
	"github.com/nimasrn/vendzz-dispatch/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockTransactor struct {
	mock.Mock
}

func (m *MockTransactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	args := m.Called(ctx, fn)
	if args.Error(0) != nil {
		return args.Error(0)
	}
	return fn(ctx)
}

type MockCreditRepository struct {
	mock.Mock
}

func (m *MockCreditRepository) Reserve(ctx context.Context, userID int64, ch model.Channel, amount int64) error {
	args := m.Called(ctx, userID, ch, amount)
	return args.Error(0)
}

func (m *MockCreditRepository) Add(ctx context.Context, userID int64, ch model.Channel, amount int64) (int64, error) {
	args := m.Called(ctx, userID, ch, amount)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCreditRepository) Set(ctx context.Context, userID int64, ch model.Channel, amount int64) error {
	args := m.Called(ctx, userID, ch, amount)
	return args.Error(0)
}

func (m *MockCreditRepository) GetBalance(ctx context.Context, userID int64) (*model.CreditBalance, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CreditBalance), args.Error(1)
}

type MockCreditTransactionRepository struct {
	mock.Mock
}

func (m *MockCreditTransactionRepository) Create(ctx context.Context, txn *model.CreditTransaction) (*model.CreditTransaction, error) {
	args := m.Called(ctx, txn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CreditTransaction), args.Error(1)
}

type MockTopUpPublisher struct {
	mock.Mock
}

func (m *MockTopUpPublisher) PublishTopUp(ctx context.Context, ev model.CreditTopUpEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

type MockCreditResumer struct {
	mock.Mock
}

func (m *MockCreditResumer) ResumeForCredits(ctx context.Context, userID int64, ch model.Channel) ([]*model.Campaign, error) {
	args := m.Called(ctx, userID, ch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Campaign), args.Error(1)
}

func TestCreditService_CheckAndReserve_InsufficientCredits(t *testing.T) {
	tx := new(MockTransactor)
	credits := new(MockCreditRepository)
	txns := new(MockCreditTransactionRepository)
	ctx := context.Background()

	tx.On("WithinTransaction", ctx, mock.Anything).Return(nil)
	credits.On("Reserve", ctx, int64(7), model.ChannelSMS, int64(1)).Return(repository.ErrInsufficientCredits)

	svc := NewCreditService(tx, credits, txns, nil)
	err := svc.CheckAndReserve(ctx, 7, model.ChannelSMS, 1, nil)

	assert.ErrorIs(t, err, ErrInsufficientCredits)
	txns.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	credits.AssertExpectations(t)
}

func TestCreditService_CheckAndReserve_WritesDebit(t *testing.T) {
	tx := new(MockTransactor)
	credits := new(MockCreditRepository)
	txns := new(MockCreditTransactionRepository)
	ctx := context.Background()
	logID := int64(42)

	tx.On("WithinTransaction", ctx, mock.Anything).Return(nil)
	credits.On("Reserve", ctx, int64(7), model.ChannelWhatsApp, int64(1)).Return(nil)
	txns.On("Create", ctx, mock.MatchedBy(func(txn *model.CreditTransaction) bool {
		return txn.Amount == -1 && txn.Type == model.CreditTxDebit && txn.DispatchLogID != nil && *txn.DispatchLogID == logID
	})).Return(&model.CreditTransaction{ID: 1}, nil)

	svc := NewCreditService(tx, credits, txns, nil)
	require.NoError(t, svc.CheckAndReserve(ctx, 7, model.ChannelWhatsApp, 1, &logID))

	credits.AssertExpectations(t)
	txns.AssertExpectations(t)
}

func TestCreditService_CheckAndReserve_UnknownUser(t *testing.T) {
	tx := new(MockTransactor)
	credits := new(MockCreditRepository)
	ctx := context.Background()

	tx.On("WithinTransaction", ctx, mock.Anything).Return(nil)
	credits.On("Reserve", ctx, int64(9), model.ChannelEmail, int64(1)).Return(repository.ErrUserNotFound)

	svc := NewCreditService(tx, credits, new(MockCreditTransactionRepository), nil)
	err := svc.CheckAndReserve(ctx, 9, model.ChannelEmail, 1, nil)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestCreditService_Purchase_ResumesAndPublishes(t *testing.T) {
	tx := new(MockTransactor)
	credits := new(MockCreditRepository)
	txns := new(MockCreditTransactionRepository)
	pub := new(MockTopUpPublisher)
	resumer := new(MockCreditResumer)
	ctx := context.Background()

	tx.On("WithinTransaction", ctx, mock.Anything).Return(nil)
	credits.On("Add", ctx, int64(7), model.ChannelSMS, int64(100)).Return(int64(103), nil)
	credits.On("GetBalance", ctx, int64(7)).Return(&model.CreditBalance{UserID: 7, SMS: 103}, nil)
	txns.On("Create", ctx, mock.MatchedBy(func(txn *model.CreditTransaction) bool {
		return txn.Amount == 100 && txn.Type == model.CreditTxCredit && txn.Reason == "purchase sms-100"
	})).Return(&model.CreditTransaction{ID: 1}, nil)
	resumer.On("ResumeForCredits", ctx, int64(7), model.ChannelSMS).Return([]*model.Campaign{{ID: 3}}, nil)
	pub.On("PublishTopUp", ctx, mock.MatchedBy(func(ev model.CreditTopUpEvent) bool {
		return ev.UserID == 7 && ev.Channel == model.ChannelSMS && ev.Amount == 100 && ev.Balance == 103 && ev.ID != ""
	})).Return(errors.New("redis down"))

	svc := NewCreditService(tx, credits, txns, pub)
	svc.SetResumer(resumer)

	b, err := svc.Purchase(ctx, 7, model.PurchaseRequest{Type: "sms", PackageID: "sms-100"})
	require.NoError(t, err, "publish failures are not surfaced")
	assert.Equal(t, int64(103), b.SMS)

	resumer.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestCreditService_Purchase_Validation(t *testing.T) {
	svc := NewCreditService(new(MockTransactor), new(MockCreditRepository), new(MockCreditTransactionRepository), nil)
	ctx := context.Background()

	_, err := svc.Purchase(ctx, 7, model.PurchaseRequest{Type: "fax", PackageID: "sms-10"})
	assert.Error(t, err)

	_, err = svc.Purchase(ctx, 7, model.PurchaseRequest{Type: "email", PackageID: "sms-10"})
	var verr *model.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestCreditService_AdminSetZeroDoesNotResume(t *testing.T) {
	tx := new(MockTransactor)
	credits := new(MockCreditRepository)
	txns := new(MockCreditTransactionRepository)
	resumer := new(MockCreditResumer)
	ctx := context.Background()

	tx.On("WithinTransaction", ctx, mock.Anything).Return(nil)
	credits.On("Set", ctx, int64(7), model.ChannelEmail, int64(0)).Return(nil)
	credits.On("GetBalance", ctx, int64(7)).Return(&model.CreditBalance{UserID: 7}, nil)
	txns.On("Create", ctx, mock.Anything).Return(&model.CreditTransaction{ID: 1}, nil)

	svc := NewCreditService(tx, credits, txns, nil)
	svc.SetResumer(resumer)

	_, err := svc.AdminSet(ctx, model.AdminCreditRequest{UserID: 7, Type: "email", Amount: 0})
	require.NoError(t, err)
	resumer.AssertNotCalled(t, "ResumeForCredits", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreditService_AdminAdd_RejectsNonPositive(t *testing.T) {
	svc := NewCreditService(new(MockTransactor), new(MockCreditRepository), new(MockCreditTransactionRepository), nil)

	_, err := svc.AdminAdd(context.Background(), model.AdminCreditRequest{UserID: 7, Type: "sms", Amount: 0})
	var verr *model.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = svc.AdminAdd(context.Background(), model.AdminCreditRequest{UserID: 7, Type: "sms", Amount: -5})
	assert.ErrorAs(t, err, &verr)
}

func TestCreditService_ConcurrentReservationsNeverOverdraw(t *testing.T) {
	f := newFixture(t, repository.UserEntity{SMSCredits: 5})
	ctx := context.Background()

	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() { errs <- f.credits.CheckAndReserve(ctx, testUserID, model.ChannelSMS, 1, nil) }()
	}
	var ok, refused int
	for i := 0; i < 8; i++ {
		err := <-errs
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrInsufficientCredits):
			refused++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 5, ok)
	assert.Equal(t, 3, refused)
	assert.Equal(t, int64(0), f.balance(t).SMS)
}
