package mysql

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/JoeShih716/go-account-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-account-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-account-ledger/pkg/mysql"
)

// sqlAccount 對應資料庫的 accounts 表
type sqlAccount struct {
	ID            int64           `gorm:"primaryKey;autoIncrement"`
	AccountNumber string          `gorm:"size:20;uniqueIndex"`
	Owner         string          `gorm:"size:100"`
	Balance       decimal.Decimal `gorm:"type:decimal(15,2)"`
	UpdatedAt     time.Time       // 自動更新時間
}

func (*sqlAccount) TableName() string {
	return "accounts"
}

// sqlTransaction 對應資料庫的 transactions 表
type sqlTransaction struct {
	ID               int64           `gorm:"primaryKey;autoIncrement"`
	RefID            []byte          `gorm:"column:ref_id;type:binary(16);uniqueIndex"` // 對應 domain.Transaction.RefID
	AccountID        int64           `gorm:"index"`
	Type             uint8           `gorm:"column:tx_type"`
	Amount           decimal.Decimal `gorm:"type:decimal(15,2)"`
	ResultingBalance decimal.Decimal `gorm:"type:decimal(15,2)"`
	CreatedAt        time.Time       // 自動寫入時間
}

func (*sqlTransaction) TableName() string {
	return "transactions"
}

// MySQLLedger 以 MySQL 為後端的帳本
// 鎖機制交給資料庫：每筆交易在顯式 Transaction 內以
// SELECT ... FOR UPDATE 鎖定帳戶列 (悲觀鎖)，餘額檢查與更新
// 都發生在持有列鎖的狀態下，與記憶體實作遵守同一份契約。
type MySQLLedger struct {
	client *mysql.Client
}

func NewMySQLLedger(client *mysql.Client) *MySQLLedger {
	return &MySQLLedger{
		client: client,
	}
}

// Migrate 建立或更新資料表結構
func (l *MySQLLedger) Migrate() error {
	return l.client.DB().AutoMigrate(&sqlAccount{}, &sqlTransaction{})
}

// Execute 在單一資料庫交易內完成 驗證→鎖定→異動→記錄
//
// 回傳:
//
//	*domain.Transaction: 已提交的交易
//	error: domain 錯誤之一；交易回滾時不留任何部分狀態
func (l *MySQLLedger) Execute(ctx context.Context, tran *domain.Transaction) (*domain.Transaction, error) {
	var committed *domain.Transaction

	err := l.client.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 冪等檢查：同一 RefID 已提交過就直接回傳先前結果
		var existing sqlTransaction
		err := tx.Where("ref_id = ?", tran.RefID[:]).First(&existing).Error
		if err == nil {
			committed = toDomainTransaction(&existing)
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		// 悲觀鎖：鎖定帳戶列直到本交易結束
		var acct sqlAccount
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", tran.AccountID).
			First(&acct).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrAccountNotFound
			}
			return err
		}

		// 持鎖狀態下的餘額檢查與計算
		var newBalance decimal.Decimal
		switch tran.Type {
		case domain.TransactionTypeDeposit:
			newBalance = acct.Balance.Add(tran.Amount)
		case domain.TransactionTypeWithdraw:
			if tran.Amount.GreaterThan(acct.Balance) {
				return domain.ErrInsufficientBalance
			}
			newBalance = acct.Balance.Sub(tran.Amount)
		default:
			return domain.ErrInvalidTransactionType
		}

		now := time.Now()
		if err := tx.Model(&acct).Updates(map[string]any{
			"balance":    newBalance,
			"updated_at": now,
		}).Error; err != nil {
			return err
		}

		// 餘額更新與交易紀錄在同一個資料庫交易內提交，一損俱損
		record := sqlTransaction{
			RefID:            tran.RefID[:],
			AccountID:        tran.AccountID,
			Type:             uint8(tran.Type),
			Amount:           tran.Amount,
			ResultingBalance: newBalance,
			CreatedAt:        now,
		}
		if err := tx.Create(&record).Error; err != nil {
			return err
		}

		committed = toDomainTransaction(&record)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return committed, nil
}

// CreateAccount 建立帳戶，帳號重複時回傳 ErrDuplicateAccount
func (l *MySQLLedger) CreateAccount(ctx context.Context, accountNumber, owner string, initialBalance decimal.Decimal) (*domain.Account, error) {
	if initialBalance.IsNegative() {
		return nil, domain.ErrInvalidAmount
	}

	acct := sqlAccount{
		AccountNumber: accountNumber,
		Owner:         owner,
		Balance:       initialBalance,
	}
	if err := l.client.DB().WithContext(ctx).Create(&acct).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, domain.ErrDuplicateAccount
		}
		return nil, err
	}
	return toDomainAccount(&acct), nil
}

// GetAccount 取得帳戶當前狀態
func (l *MySQLLedger) GetAccount(ctx context.Context, accountID int64) (*domain.Account, error) {
	var acct sqlAccount
	err := l.client.DB().WithContext(ctx).Where("id = ?", accountID).First(&acct).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}
	return toDomainAccount(&acct), nil
}

// ListAccounts 取得所有帳戶
func (l *MySQLLedger) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	var accts []sqlAccount
	if err := l.client.DB().WithContext(ctx).Order("id ASC").Find(&accts).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Account, 0, len(accts))
	for i := range accts {
		out = append(out, toDomainAccount(&accts[i]))
	}
	return out, nil
}

// ListTransactions 取得帳戶的交易紀錄 (提交順序)
func (l *MySQLLedger) ListTransactions(ctx context.Context, accountID int64) ([]*domain.Transaction, error) {
	if _, err := l.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	var records []sqlTransaction
	if err := l.client.DB().WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("id ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Transaction, 0, len(records))
	for i := range records {
		out = append(out, toDomainTransaction(&records[i]))
	}
	return out, nil
}

func toDomainAccount(a *sqlAccount) *domain.Account {
	return &domain.Account{
		ID:            a.ID,
		AccountNumber: a.AccountNumber,
		Owner:         a.Owner,
		Balance:       a.Balance,
		LastUpdated:   a.UpdatedAt,
	}
}

func toDomainTransaction(t *sqlTransaction) *domain.Transaction {
	out := &domain.Transaction{
		ID:               t.ID,
		AccountID:        t.AccountID,
		Type:             domain.TransactionType(t.Type),
		Amount:           t.Amount,
		ResultingBalance: t.ResultingBalance,
		CreatedAt:        t.CreatedAt,
	}
	copy(out.RefID[:], t.RefID)
	return out
}

var _ usecase.Ledger = (*MySQLLedger)(nil)
