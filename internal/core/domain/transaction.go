package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType represents the kind of balance movement.
type TransactionType string

const (
	TransactionTypeDeposit     TransactionType = "DEPOSIT"
	TransactionTypeTransferOut TransactionType = "TRANSFER_OUT"
	TransactionTypeTransferIn  TransactionType = "TRANSFER_IN"
)

// TransactionStatus represents the lifecycle state of a transaction.
// PENDING -> SUCCESS | FAILED; both terminal.
type TransactionStatus string

const (
	TransactionStatusPending TransactionStatus = "PENDING"
	TransactionStatusSuccess TransactionStatus = "SUCCESS"
	TransactionStatusFailed  TransactionStatus = "FAILED"
)

// MoneyScale is the number of fractional digits a monetary amount may carry.
const MoneyScale = 2

// Transaction is an immutable record of a balance-affecting event.
// Only Status changes after insert, and only out of PENDING.
type Transaction struct {
	ID                  uuid.UUID         `json:"id"`
	Reference           string            `json:"reference"`
	WalletID            uuid.UUID         `json:"wallet_id"`
	Type                TransactionType   `json:"type"`
	Amount              decimal.Decimal   `json:"amount"`
	Status              TransactionStatus `json:"status"`
	CounterpartWalletID *uuid.UUID        `json:"counterpart_wallet_id,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// IsTerminal returns true if the transaction is in a final state.
func (t *Transaction) IsTerminal() bool {
	return t.Status == TransactionStatusSuccess ||
		t.Status == TransactionStatusFailed
}

// HasValidScale reports whether amount has at most MoneyScale fractional digits.
func HasValidScale(amount decimal.Decimal) bool {
	return amount.Equal(amount.Truncate(MoneyScale))
}

// ToMinorUnits converts a major-unit amount (naira) to minor units (kobo).
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(MoneyScale).IntPart()
}
