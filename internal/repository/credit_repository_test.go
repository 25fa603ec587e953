package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/nimasrn/vendzz-dispatch/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreditRepository_Reserve(t *testing.T) {
	db := OpenTestDB(t)
	repo := NewCreditRepository(db)
	ctx := context.Background()

	SeedUser(t, db, &UserEntity{ID: 1, SMSCredits: 3, EmailCredits: 1})

	t.Run("successful reservation", func(t *testing.T) {
		err := repo.Reserve(ctx, 1, model.ChannelSMS, 2)
		assert.NoError(t, err)

		balance, err := repo.GetBalance(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), balance.SMS)
		assert.Equal(t, int64(1), balance.Email)
	})

	t.Run("insufficient credits", func(t *testing.T) {
		err := repo.Reserve(ctx, 1, model.ChannelSMS, 2)
		assert.ErrorIs(t, err, ErrInsufficientCredits)

		balance, err := repo.GetBalance(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), balance.SMS)
	})

	t.Run("exact balance", func(t *testing.T) {
		require.NoError(t, repo.Reserve(ctx, 1, model.ChannelEmail, 1))
		balance, err := repo.GetBalance(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(0), balance.Email)
	})

	t.Run("user not found", func(t *testing.T) {
		err := repo.Reserve(ctx, 999, model.ChannelSMS, 1)
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("zero amount", func(t *testing.T) {
		err := repo.Reserve(ctx, 1, model.ChannelSMS, 0)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("unknown channel", func(t *testing.T) {
		err := repo.Reserve(ctx, 1, model.Channel("fax"), 1)
		assert.ErrorIs(t, err, ErrUnknownChannel)
	})
}

func TestCreditRepository_ReserveConcurrent(t *testing.T) {
	db := OpenTestDB(t)
	repo := NewCreditRepository(db)
	ctx := context.Background()

	const credits = 10
	SeedUser(t, db, &UserEntity{ID: 1, WhatsAppCredits: credits})

	var wg sync.WaitGroup
	var ok, insufficient atomic.Int64
	for i := 0; i < credits+1; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Reserve(ctx, 1, model.ChannelWhatsApp, 1)
			switch {
			case err == nil:
				ok.Add(1)
			case assert.ErrorIs(t, err, ErrInsufficientCredits):
				insufficient.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(credits), ok.Load())
	assert.Equal(t, int64(1), insufficient.Load())

	balance, err := repo.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance.WhatsApp)
}

func TestCreditRepository_AddAndSet(t *testing.T) {
	db := OpenTestDB(t)
	repo := NewCreditRepository(db)
	ctx := context.Background()

	SeedUser(t, db, &UserEntity{ID: 1, SMSCredits: 5})

	t.Run("add returns new balance", func(t *testing.T) {
		balance, err := repo.Add(ctx, 1, model.ChannelSMS, 10)
		require.NoError(t, err)
		assert.Equal(t, int64(15), balance)
	})

	t.Run("add to unknown user", func(t *testing.T) {
		_, err := repo.Add(ctx, 42, model.ChannelSMS, 10)
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("set overwrites", func(t *testing.T) {
		require.NoError(t, repo.Set(ctx, 1, model.ChannelAI, 7))
		balance, err := repo.GetBalance(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(7), balance.AI)
		assert.Equal(t, int64(15), balance.SMS)
	})

	t.Run("set negative", func(t *testing.T) {
		assert.ErrorIs(t, repo.Set(ctx, 1, model.ChannelAI, -1), ErrInvalidAmount)
	})
}

func TestCreditRepository_ReserveInsideTransaction(t *testing.T) {
	db := OpenTestDB(t)
	repo := NewCreditRepository(db)
	ctx := context.Background()

	SeedUser(t, db, &UserEntity{ID: 1, SMSCredits: 1})

	err := db.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := repo.Reserve(ctx, 1, model.ChannelSMS, 1); err != nil {
			return err
		}
		return ErrCampaignNotFound
	})
	require.ErrorIs(t, err, ErrCampaignNotFound)

	balance, err := repo.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), balance.SMS, "rolled back reservation must restore the balance")
}

func TestCreditTransactionRepository(t *testing.T) {
	db := OpenTestDB(t)
	repo := NewCreditTransactionRepository(db)
	ctx := context.Background()

	logID := int64(9)
	_, err := repo.Create(ctx, &model.CreditTransaction{UserID: 1, Channel: model.ChannelSMS, Amount: -1, Type: model.CreditTxDebit, DispatchLogID: &logID})
	require.NoError(t, err)
	_, err = repo.Create(ctx, &model.CreditTransaction{UserID: 1, Channel: model.ChannelSMS, Amount: 1, Type: model.CreditTxRefund, DispatchLogID: &logID})
	require.NoError(t, err)
	_, err = repo.Create(ctx, &model.CreditTransaction{UserID: 2, Channel: model.ChannelEmail, Amount: 100, Type: model.CreditTxCredit})
	require.NoError(t, err)

	rows, err := repo.List(ctx, CreditTransactionFilter{UserID: 1})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, model.CreditTxRefund, rows[0].Type)
	assert.Equal(t, model.CreditTxDebit, rows[1].Type)

	rows, err = repo.List(ctx, CreditTransactionFilter{DispatchLogID: &logID})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}
