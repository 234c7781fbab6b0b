package models

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

func GenerateRoundID() string {
	return fmt.Sprintf("round_%s_%d",
		time.Now().Format("20060102"),
		uuid.New().ID())
}

func GenerateTransactionID() string {
	return uuid.New().String()
}

func GenerateReferralCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
}

func GenerateClientSeed() (string, error) {
	bytes := make([]byte, 16) // 128 bits of entropy
	_, err := rand.Read(bytes)
	if err != nil {
		return "", fmt.Errorf("failed to generate client seed: %v", err)
	}
	return hex.EncodeToString(bytes), nil
}

// Ref builds an idempotency reference such as "round:<id>:debit".
func Ref(parts ...string) *string {
	ref := strings.Join(parts, ":")
	return &ref
}

type DepositRequest struct {
	Amount  string  `json:"amount" binding:"required"`
	Method  string  `json:"method" binding:"required,oneof=card mpesa crypto bank"`
	Details Details `json:"details"`
}

type WithdrawalMethod string

const (
	WithdrawalMethodBank   WithdrawalMethod = "bank"
	WithdrawalMethodMpesa  WithdrawalMethod = "mpesa"
	WithdrawalMethodCard   WithdrawalMethod = "card"
	WithdrawalMethodCrypto WithdrawalMethod = "crypto"
)

// RequiredDetail names the details key a withdrawal method must carry.
func (m WithdrawalMethod) RequiredDetail() (string, bool) {
	switch m {
	case WithdrawalMethodBank:
		return "account_number", true
	case WithdrawalMethodMpesa:
		return "phone_number", true
	case WithdrawalMethodCard:
		return "card_last4", true
	case WithdrawalMethodCrypto:
		return "wallet_address", true
	}
	return "", false
}

type WithdrawalRequest struct {
	Amount  string  `json:"amount" binding:"required"`
	Method  string  `json:"method" binding:"required"`
	Details Details `json:"details"`
}

type ResolveRequest struct {
	Approve bool   `json:"approve"`
	Reason  string `json:"reason"`
}

type PaymentResolveRequest struct {
	Status  TransactionStatus `json:"status" binding:"required,oneof=completed failed rejected"`
	Details Details           `json:"details"`
}

type SwitchAccountRequest struct {
	AccountType AccountType `json:"account_type" binding:"required"`
}

type ReferralRequest struct {
	Code string `json:"code" binding:"required"`
}
