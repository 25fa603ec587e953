package services

import (
	"errors"

	"github.com/nimasrn/vendzz-dispatch/internal/repository"
)

var (
	ErrInsufficientCredits  = errors.New("insufficient credits")
	ErrUserNotFound         = errors.New("user not found")
	ErrCampaignNotFound     = errors.New("campaign not found")
	ErrLogNotFound          = errors.New("dispatch log not found")
	ErrLogNotScheduled      = errors.New("dispatch log is no longer scheduled")
	ErrCampaignNotActive    = errors.New("campaign is not active")
	ErrInvalidTransition    = errors.New("campaign status does not allow this action")
	ErrTransientSendFailure = errors.New("transient send failure")
	ErrNoSender             = errors.New("no sender for channel")
)

// mapRepoErr turns repository sentinels into the service ones handlers know.
func mapRepoErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrInsufficientCredits):
		return ErrInsufficientCredits
	case errors.Is(err, repository.ErrUserNotFound):
		return ErrUserNotFound
	case errors.Is(err, repository.ErrCampaignNotFound):
		return ErrCampaignNotFound
	case errors.Is(err, repository.ErrLogNotFound):
		return ErrLogNotFound
	}
	return err
}
