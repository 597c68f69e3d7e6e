package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is the only currency the ledger holds.
const DefaultCurrency = "NGN"

// WalletNumberLength is the width of a freshly issued wallet number.
const WalletNumberLength = 10

// Wallet is a balance-holding account tied 1:1 to a user.
// Balance is never negative after a committed operation.
type Wallet struct {
	ID           uuid.UUID       `json:"id"`
	UserID       int64           `json:"user_id"`
	WalletNumber string          `json:"wallet_number"`
	Balance      decimal.Decimal `json:"balance"`
	Currency     string          `json:"currency"`
	Version      int64           `json:"version"` // bumped on every balance mutation
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// NewWallet returns an empty wallet for userID.
func NewWallet(userID int64, walletNumber string) *Wallet {
	now := time.Now().UTC()
	return &Wallet{
		ID:           uuid.New(),
		UserID:       userID,
		WalletNumber: walletNumber,
		Balance:      decimal.Zero,
		Currency:     DefaultCurrency,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// CanDebit reports whether the wallet holds at least amount.
func (w *Wallet) CanDebit(amount decimal.Decimal) bool {
	return w.Balance.GreaterThanOrEqual(amount)
}

// LockOrder returns the two wallet ids in canonical lock order (ascending).
// The transfer engine locks sender then recipient; any entry point that
// locks several wallets at once must use this ordering instead.
func LockOrder(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if a.String() <= b.String() {
		return a, b
	}
	return b, a
}
