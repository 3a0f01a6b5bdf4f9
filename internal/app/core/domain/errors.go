package domain

import "errors"

var (
	// ErrInvalidAmount 金額必須為正數 (在取得任何鎖之前就會被擋下)
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInsufficientBalance 餘額不足，提款在持鎖狀態下檢查後拒絕
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrAccountNotFound 找不到帳戶
	ErrAccountNotFound = errors.New("account not found")

	// ErrDuplicateAccount 帳號已存在 (AccountNumber 重複)
	ErrDuplicateAccount = errors.New("account number already exists")

	// ErrInvalidTransactionType 未知的交易類型
	ErrInvalidTransactionType = errors.New("invalid transaction type")

	// ErrLedgerBusy 等待帳戶鎖逾時，呼叫端可重試
	ErrLedgerBusy = errors.New("ledger busy: lock wait timed out")

	// ErrWALWriteFailed WAL 寫入失敗
	ErrWALWriteFailed = errors.New("wal write failed")
)
