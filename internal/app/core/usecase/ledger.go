package usecase

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-account-ledger/internal/app/core/domain"
)

// Ledger 是帳務系統的出口介面
// 實作必須保證：同一帳戶的異動完全序列化、餘額檢查在持鎖狀態下進行、
// {餘額更新, 交易紀錄 append} 為單一原子提交。
type Ledger interface {
	// Execute 執行一筆存款或提款；成功時回傳已提交的交易 (含 ID 與新餘額)。
	// 以 tran.RefID 冪等：重複的 RefID 直接回傳先前提交的結果。
	Execute(ctx context.Context, tran *domain.Transaction) (*domain.Transaction, error)
	// CreateAccount 建立帳戶，AccountNumber 重複時回傳 ErrDuplicateAccount
	CreateAccount(ctx context.Context, accountNumber, owner string, initialBalance decimal.Decimal) (*domain.Account, error)
	// GetAccount 取得帳戶當前快照
	GetAccount(ctx context.Context, accountID int64) (*domain.Account, error)
	// ListAccounts 取得所有帳戶快照
	ListAccounts(ctx context.Context) ([]*domain.Account, error)
	// ListTransactions 取得帳戶的交易紀錄 (append 順序)
	ListTransactions(ctx context.Context, accountID int64) ([]*domain.Transaction, error)
}
