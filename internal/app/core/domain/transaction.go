package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType 交易類型
// 為了節省記憶體與 WAL 空間，使用 uint8
type TransactionType uint8

const (
	// 存款
	TransactionTypeDeposit TransactionType = 1
	// 提款
	TransactionTypeWithdraw TransactionType = 2
)

// String 回傳對外 API 與 Log 使用的字串表示
func (t TransactionType) String() string {
	switch t {
	case TransactionTypeDeposit:
		return "deposit"
	case TransactionTypeWithdraw:
		return "withdraw"
	default:
		return "unknown"
	}
}

// ParseTransactionType 將字串轉為 TransactionType
//
// 參數:
//
//	s: "deposit" 或 "withdraw"
//
// 回傳:
//
//	TransactionType: 對應類型
//	error: 無法識別時回傳 ErrInvalidTransactionType
func ParseTransactionType(s string) (TransactionType, error) {
	switch s {
	case "deposit":
		return TransactionTypeDeposit, nil
	case "withdraw":
		return TransactionTypeWithdraw, nil
	default:
		return 0, ErrInvalidTransactionType
	}
}

// Valid 檢查類型是否為已知的交易類型
func (t TransactionType) Valid() bool {
	return t == TransactionTypeDeposit || t == TransactionTypeWithdraw
}

// Transaction 交易紀錄
// 在提交的瞬間建立一次，之後不可變更、不可刪除
type Transaction struct {
	// ID: 提交時由 Transaction Log 單調遞增分配
	ID int64 `json:"id"`
	// RefID: 外部追蹤號 (UUID)，用於冪等性判斷
	RefID uuid.UUID `json:"ref_id"`
	// AccountID: 所屬帳戶
	AccountID int64 `json:"account_id"`
	// Type: 交易類型
	Type TransactionType `json:"type"`
	// Amount: 金額，恆為正數
	Amount decimal.Decimal `json:"amount"`
	// ResultingBalance: 本筆交易套用後的帳戶餘額，構成可重放的稽核鏈
	ResultingBalance decimal.Decimal `json:"resulting_balance"`
	// CreatedAt: 提交時間，同帳戶內單調不遞減
	CreatedAt time.Time `json:"created_at"`
}
