package handler

import (
	"wallet-service/internal/adapter/http/dto"
	"wallet-service/internal/core/ports"
	"wallet-service/pkg/response"

	"github.com/gin-gonic/gin"
)

// WalletHandler handles wallet endpoints for token and API-key callers.
type WalletHandler struct {
	walletSvc   ports.WalletService
	txSvc       ports.TransactionService
	transferSvc ports.TransferService
	depositSvc  ports.DepositService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(
	walletSvc ports.WalletService,
	txSvc ports.TransactionService,
	transferSvc ports.TransferService,
	depositSvc ports.DepositService,
) *WalletHandler {
	return &WalletHandler{
		walletSvc:   walletSvc,
		txSvc:       txSvc,
		transferSvc: transferSvc,
		depositSvc:  depositSvc,
	}
}

// Deposit handles POST /api/v1/wallet/deposit.
func (h *WalletHandler) Deposit(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	var req dto.DepositRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.depositSvc.InitiateDeposit(c.Request.Context(), caller.UserID, req.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.DepositResponse{
		Reference:        result.Reference,
		AuthorizationURL: result.AuthorizationURL,
	})
}

// DepositStatus handles GET /api/v1/wallet/deposit/:reference/status.
// It reads the ledger only and never credits the wallet.
func (h *WalletHandler) DepositStatus(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	var uri dto.ReferenceURI
	if !bindURI(c, &uri) {
		return
	}

	t, err := h.depositSvc.GetDepositStatus(c.Request.Context(), caller.UserID, uri.Reference)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.DepositStatusResponse{
		Reference: t.Reference,
		Status:    string(t.Status),
		Amount:    t.Amount,
	})
}

// Transfer handles POST /api/v1/wallet/transfer.
func (h *WalletHandler) Transfer(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	var req dto.TransferRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.transferSvc.Transfer(c.Request.Context(), caller.UserID, req.WalletNumber, req.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.TransferResponse{
		Status:    "success",
		Message:   "Transfer completed",
		Reference: result.Reference,
	})
}

// Balance handles GET /api/v1/wallet/balance.
func (h *WalletHandler) Balance(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	w, err := h.walletSvc.GetByUser(c.Request.Context(), caller.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.BalanceResponse{
		Balance:      w.Balance,
		Currency:     w.Currency,
		WalletNumber: w.WalletNumber,
	})
}

// Transactions handles GET /api/v1/wallet/transactions, newest first.
func (h *WalletHandler) Transactions(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	w, err := h.walletSvc.GetByUser(c.Request.Context(), caller.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	history, err := h.txSvc.History(c.Request.Context(), w.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.TransactionResponse, 0, len(history))
	for _, t := range history {
		items = append(items, dto.ToTransactionResponse(t))
	}
	response.OK(c, items)
}
