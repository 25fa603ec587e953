package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/vendzz-dispatch/internal/model"
	"github.com/nimasrn/vendzz-dispatch/pkg/logger"
	"github.com/nimasrn/vendzz-dispatch/pkg/prom"
)

type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type CreditRepository interface {
	Reserve(ctx context.Context, userID int64, ch model.Channel, amount int64) error
	Add(ctx context.Context, userID int64, ch model.Channel, amount int64) (int64, error)
	Set(ctx context.Context, userID int64, ch model.Channel, amount int64) error
	GetBalance(ctx context.Context, userID int64) (*model.CreditBalance, error)
}

type CreditTransactionRepository interface {
	Create(ctx context.Context, txn *model.CreditTransaction) (*model.CreditTransaction, error)
}

// TopUpPublisher announces balance increases to the scheduler.
type TopUpPublisher interface {
	PublishTopUp(ctx context.Context, ev model.CreditTopUpEvent) error
}

// CreditResumer resumes campaigns that were waiting for credits.
type CreditResumer interface {
	ResumeForCredits(ctx context.Context, userID int64, ch model.Channel) ([]*model.Campaign, error)
}

type CreditService struct {
	tx        Transactor
	credits   CreditRepository
	txns      CreditTransactionRepository
	publisher TopUpPublisher
	resumer   CreditResumer
	now       func() time.Time
}

func NewCreditService(tx Transactor, credits CreditRepository, txns CreditTransactionRepository, publisher TopUpPublisher) *CreditService {
	return &CreditService{
		tx:        tx,
		credits:   credits,
		txns:      txns,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *CreditService) SetClock(now func() time.Time) {
	s.now = now
}

// SetResumer wires the campaign side after both services exist.
func (s *CreditService) SetResumer(r CreditResumer) {
	s.resumer = r
}

// CheckAndReserve takes amount credits and writes the matching ledger row in
// one transaction.
func (s *CreditService) CheckAndReserve(ctx context.Context, userID int64, ch model.Channel, amount int64, logID *int64) error {
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.credits.Reserve(ctx, userID, ch, amount); err != nil {
			return mapRepoErr(err)
		}
		_, err := s.txns.Create(ctx, &model.CreditTransaction{
			UserID:        userID,
			Channel:       ch,
			Amount:        -amount,
			Type:          model.CreditTxDebit,
			DispatchLogID: logID,
		})
		return err
	})
	switch {
	case err == nil:
		prom.CreditReservation(string(ch), "ok")
	case errors.Is(err, ErrInsufficientCredits):
		prom.CreditReservation(string(ch), "insufficient")
	}
	return err
}

func (s *CreditService) Refund(ctx context.Context, userID int64, ch model.Channel, amount int64, logID *int64, reason string) error {
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.credits.Add(ctx, userID, ch, amount); err != nil {
			return mapRepoErr(err)
		}
		_, err := s.txns.Create(ctx, &model.CreditTransaction{
			UserID:        userID,
			Channel:       ch,
			Amount:        amount,
			Type:          model.CreditTxRefund,
			DispatchLogID: logID,
			Reason:        reason,
		})
		return err
	})
	if err == nil {
		prom.CreditRefund(string(ch))
	}
	return err
}

func (s *CreditService) Balance(ctx context.Context, userID int64) (*model.CreditBalance, error) {
	b, err := s.credits.GetBalance(ctx, userID)
	return b, mapRepoErr(err)
}

// Purchase adds a catalog package to the user's balance. Payment itself is
// handled upstream.
func (s *CreditService) Purchase(ctx context.Context, userID int64, req model.PurchaseRequest) (*model.CreditBalance, error) {
	ch, err := model.ParseChannel(req.Type)
	if err != nil {
		return nil, err
	}
	pkg, ok := model.LookupPackage(ch, req.PackageID)
	if !ok {
		return nil, &model.ValidationError{Field: "packageId", Reason: fmt.Sprintf("unknown %s package %q", ch, req.PackageID)}
	}
	return s.add(ctx, userID, ch, pkg.Credits, model.CreditTxCredit, "purchase "+pkg.ID)
}

func (s *CreditService) AdminAdd(ctx context.Context, req model.AdminCreditRequest) (*model.CreditBalance, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Amount == 0 {
		return nil, &model.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	return s.add(ctx, req.UserID, model.Channel(req.Type), req.Amount, model.CreditTxCredit, "admin add")
}

func (s *CreditService) AdminSet(ctx context.Context, req model.AdminCreditRequest) (*model.CreditBalance, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ch := model.Channel(req.Type)
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.credits.Set(ctx, req.UserID, ch, req.Amount); err != nil {
			return mapRepoErr(err)
		}
		_, err := s.txns.Create(ctx, &model.CreditTransaction{
			UserID:  req.UserID,
			Channel: ch,
			Amount:  req.Amount,
			Type:    model.CreditTxSet,
			Reason:  "admin set",
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if req.Amount > 0 {
		s.afterTopUp(ctx, req.UserID, ch, req.Amount, req.Amount)
	}
	return s.Balance(ctx, req.UserID)
}

func (s *CreditService) add(ctx context.Context, userID int64, ch model.Channel, amount int64, typ model.CreditTxType, reason string) (*model.CreditBalance, error) {
	var balance int64
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		balance, err = s.credits.Add(ctx, userID, ch, amount)
		if err != nil {
			return mapRepoErr(err)
		}
		_, err = s.txns.Create(ctx, &model.CreditTransaction{
			UserID:  userID,
			Channel: ch,
			Amount:  amount,
			Type:    typ,
			Reason:  reason,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.afterTopUp(ctx, userID, ch, amount, balance)
	return s.Balance(ctx, userID)
}

// afterTopUp resumes paused campaigns right away and tells other scheduler
// instances. Failures are logged only; the periodic sweep catches up.
func (s *CreditService) afterTopUp(ctx context.Context, userID int64, ch model.Channel, amount, balance int64) {
	if s.resumer != nil {
		resumed, err := s.resumer.ResumeForCredits(ctx, userID, ch)
		if err != nil {
			logger.Warn("[credits] resume after top-up failed", "user_id", userID, "channel", ch, "error", err)
		} else if len(resumed) > 0 {
			logger.Info("[credits] campaigns resumed after top-up", "user_id", userID, "channel", ch, "count", len(resumed))
		}
	}
	if s.publisher == nil {
		return
	}
	ev := model.CreditTopUpEvent{
		ID:      uuid.NewString(),
		UserID:  userID,
		Channel: ch,
		Amount:  amount,
		Balance: balance,
		At:      s.now(),
	}
	if err := s.publisher.PublishTopUp(ctx, ev); err != nil {
		logger.Warn("[credits] publish top-up event failed", "user_id", userID, "channel", ch, "error", err)
	}
}
