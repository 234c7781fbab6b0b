package services

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"chance-winner-hub/internal/games"
	"chance-winner-hub/internal/repository"
)

var (
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrInvalidStake           = errors.New("invalid stake or amount")
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrAccountModeMismatch    = errors.New("account mode mismatch")
	ErrBackendUnavailable     = errors.New("backend unavailable")

	ErrInvalidRequest = errors.New("invalid request")
	ErrDuplicateRound = errors.New("round already placed")
	ErrForbidden      = errors.New("forbidden")
	ErrRewardExpired  = errors.New("reward expired")
	ErrRateLimited    = errors.New("rate limit exceeded")
	ErrSeedInUse      = errors.New("server seed has live rounds")

	ErrAlreadyClaimed = repository.ErrAlreadyClaimed
	ErrNotFound       = repository.ErrNotFound
	ErrNotPending     = repository.ErrNotPending
	ErrDrawClosed     = repository.ErrDrawClosed
	ErrInvalidBet     = games.ErrInvalidBet
	ErrRoundClosed    = games.ErrRoundClosed
)

// storeErr keeps domain errors from the store intact and turns anything else
// into ErrBackendUnavailable.
func storeErr(op string, err error) error {
	for _, known := range []error{
		repository.ErrNotFound,
		repository.ErrDuplicate,
		repository.ErrNotPending,
		repository.ErrAlreadyClaimed,
		repository.ErrDrawClosed,
	} {
		if errors.Is(err, known) {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return fmt.Errorf("%s: %w: %w", op, ErrBackendUnavailable, err)
}

type ErrorClass string

const (
	ErrorClassFunds   ErrorClass = "funds"
	ErrorClassAuth    ErrorClass = "auth"
	ErrorClassClaimed ErrorClass = "claimed"
	ErrorClassGeneric ErrorClass = "generic"
)

var classMessages = map[ErrorClass]string{
	ErrorClassFunds:   "You don't have enough funds.",
	ErrorClassAuth:    "Please sign in.",
	ErrorClassClaimed: "This reward was already claimed.",
	ErrorClassGeneric: "Something went wrong, try again.",
}

// Classify maps an error to one of the four user-facing message classes.
func Classify(err error) (ErrorClass, string) {
	class := ErrorClassGeneric
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		class = ErrorClassFunds
	case errors.Is(err, ErrAuthenticationRequired):
		class = ErrorClassAuth
	case errors.Is(err, ErrAlreadyClaimed):
		class = ErrorClassClaimed
	}
	return class, classMessages[class]
}

// ParseAmount accepts a positive decimal with at most two fractional digits.
func ParseAmount(raw string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", ErrInvalidStake, raw)
	}
	if err := validateAmount(v); err != nil {
		return decimal.Zero, err
	}
	return v, nil
}

func validateAmount(v decimal.Decimal) error {
	if !v.IsPositive() {
		return fmt.Errorf("%w: %s must be positive", ErrInvalidStake, v)
	}
	if !v.Equal(v.Truncate(2)) {
		return fmt.Errorf("%w: %s has more than two decimals", ErrInvalidStake, v)
	}
	return nil
}
