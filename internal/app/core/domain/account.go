package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account 帳戶
// 金額使用 decimal (scale 2)，避免浮點誤差
// Balance 只允許由 Ledger 在持有該帳戶鎖的情況下修改
type Account struct {
	// ID: 帳戶唯一識別碼 (由 Store 遞增分配)
	ID int64 `json:"id"`
	// AccountNumber: 對外的帳號字串，全系統唯一
	AccountNumber string `json:"account_number"`
	// Owner: 帳戶持有人顯示名稱
	Owner string `json:"owner"`
	// Balance: 當前餘額，任何已提交狀態下不得為負
	Balance decimal.Decimal `json:"balance"`
	// LastUpdated: 最近一次提交異動的時間
	LastUpdated time.Time `json:"last_updated"`
}

// NewAccount 建立帳戶實例 (不做唯一性檢查，由 Store 負責)
func NewAccount(id int64, accountNumber, owner string, balance decimal.Decimal) *Account {
	return &Account{
		ID:            id,
		AccountNumber: accountNumber,
		Owner:         owner,
		Balance:       balance,
	}
}

// Deposit 存款
//
// 參數:
//
//	amount: 金額，必須為正數
//
// 回傳:
//
//	error: 金額非法時回傳 ErrInvalidAmount
func (a *Account) Deposit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	a.Balance = a.Balance.Add(amount)
	return nil
}

// Withdraw 提款
//
// 參數:
//
//	amount: 金額，必須為正數且不得超過當前餘額
//
// 回傳:
//
//	error: 金額非法回傳 ErrInvalidAmount，餘額不足回傳 ErrInsufficientBalance
func (a *Account) Withdraw(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	if a.Balance.LessThan(amount) {
		return ErrInsufficientBalance
	}

	a.Balance = a.Balance.Sub(amount)
	return nil
}
