package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-account-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-account-ledger/pkg/metrics"
)

// CoreUseCase 是核心業務邏輯層 (Transaction Processor 的對外門面)
// 所有進入帳本的異動都必須經過這裡；前置檢核在取得任何鎖之前完成。
type CoreUseCase struct {
	ledger  Ledger
	metrics *metrics.Metrics
}

func NewCoreUseCase(ledger Ledger, m *metrics.Metrics) *CoreUseCase {
	return &CoreUseCase{
		ledger:  ledger,
		metrics: m,
	}
}

// ExecuteTransaction 處理一筆交易
//
// 參數:
//
//	ctx: 上下文
//	refID: 外部追蹤號；為 uuid.Nil 時自動產生
//	accountID: 目標帳戶
//	txType: 交易類型 (deposit/withdraw)
//	amount: 金額，必須為正數
//
// 回傳:
//
//	*domain.Transaction: 已提交的交易
//	error: domain 錯誤之一；任何錯誤都不會留下部分狀態
func (c *CoreUseCase) ExecuteTransaction(
	ctx context.Context,
	refID uuid.UUID,
	accountID int64,
	txType domain.TransactionType,
	amount decimal.Decimal,
) (*domain.Transaction, error) {
	// 前置檢核：不需要碰任何帳戶狀態，失敗時零副作用
	if !txType.Valid() {
		return nil, domain.ErrInvalidTransactionType
	}
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	if refID == uuid.Nil {
		refID = uuid.New()
	}

	tran := &domain.Transaction{
		RefID:     refID,
		AccountID: accountID,
		Type:      txType,
		Amount:    amount,
	}

	start := time.Now()
	committed, err := c.ledger.Execute(ctx, tran)
	c.metrics.ObserveTransaction(txType.String(), statusLabel(err), time.Since(start))
	if errors.Is(err, domain.ErrLedgerBusy) {
		c.metrics.LockTimeout()
	}
	if err != nil {
		return nil, err
	}
	return committed, nil
}

// CreateAccount 建立帳戶
func (c *CoreUseCase) CreateAccount(ctx context.Context, accountNumber, owner string, initialBalance decimal.Decimal) (*domain.Account, error) {
	if initialBalance.IsNegative() {
		return nil, domain.ErrInvalidAmount
	}
	return c.ledger.CreateAccount(ctx, accountNumber, owner, initialBalance)
}

// GetAccount 取得帳戶快照
func (c *CoreUseCase) GetAccount(ctx context.Context, accountID int64) (*domain.Account, error) {
	return c.ledger.GetAccount(ctx, accountID)
}

// ListAccounts 取得所有帳戶快照
func (c *CoreUseCase) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	return c.ledger.ListAccounts(ctx)
}

// ListTransactions 取得帳戶的交易紀錄
func (c *CoreUseCase) ListTransactions(ctx context.Context, accountID int64) ([]*domain.Transaction, error) {
	return c.ledger.ListTransactions(ctx, accountID)
}

// statusLabel 將執行結果轉成指標用的 status label
func statusLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrInsufficientBalance):
		return "insufficient"
	case errors.Is(err, domain.ErrAccountNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrLedgerBusy):
		return "busy"
	default:
		return "error"
	}
}
