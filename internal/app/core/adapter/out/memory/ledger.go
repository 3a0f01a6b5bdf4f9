package memory

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-account-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-account-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-account-ledger/pkg/locker"
	"github.com/JoeShih716/go-account-ledger/pkg/wal"
)

// walRecordKind WAL 紀錄類型
type walRecordKind uint8

const (
	walRecordAccount     walRecordKind = 1
	walRecordTransaction walRecordKind = 2
)

// walRecord WAL 的單筆紀錄：帳戶建立或交易提交
type walRecord struct {
	Kind        walRecordKind       `json:"kind"`
	Account     *domain.Account     `json:"account,omitempty"`
	Transaction *domain.Transaction `json:"transaction,omitempty"`
}

// MemoryLedger 記憶體帳本
//
// 結構:
//
//	store: 帳戶存放區 (Account Store)
//	log: append-only 交易紀錄 (Transaction Log)
//	locks: 以帳戶為粒度的鎖管理器 (Lock Manager)
//	wal: Write-Ahead Log；nil 時不持久化 (測試用)
//	processed: RefID 對應已提交交易的冪等表
//
// 正確性核心：同帳戶的 驗證→異動→記錄 全程持有該帳戶的鎖，
// 不同帳戶之間完全平行；餘額一律在持鎖後重新讀取，
// 絕不信任取鎖前讀到的值。
type MemoryLedger struct {
	store  *AccountStore
	log    *TransactionLog
	locks  *locker.Manager
	wal    *wal.WAL
	logger *zap.Logger

	procMu    sync.RWMutex
	processed map[uuid.UUID]*domain.Transaction
}

// NewMemoryLedger 建立記憶體帳本，並在啟動前從 WAL 恢復狀態
//
// 參數:
//
//	locks: 鎖管理器
//	w: WAL 實例，可為 nil (不持久化)
//	logger: zap logger，可為 nil
//
// 回傳:
//
//	*MemoryLedger: 帳本實例
//	error: WAL 恢復失敗
func NewMemoryLedger(locks *locker.Manager, w *wal.WAL, logger *zap.Logger) (*MemoryLedger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ledger := &MemoryLedger{
		store:     NewAccountStore(),
		log:       NewTransactionLog(),
		locks:     locks,
		wal:       w,
		logger:    logger,
		processed: make(map[uuid.UUID]*domain.Transaction),
	}
	if err := ledger.recoverFromWAL(); err != nil {
		return nil, err
	}
	return ledger, nil
}

// recoverFromWAL 重放 WAL，重建帳戶、餘額、交易紀錄與冪等表
// 只在 NewMemoryLedger 裡跑 (單執行緒)，不需要鎖
func (m *MemoryLedger) recoverFromWAL() error {
	if m.wal == nil {
		return nil
	}

	count := 0
	err := m.wal.ReadAll(func(jsonRaw []byte) error {
		var rec walRecord
		if err := json.Unmarshal(jsonRaw, &rec); err != nil {
			return err
		}
		count++
		switch rec.Kind {
		case walRecordAccount:
			return m.store.restore(rec.Account)
		case walRecordTransaction:
			tran := rec.Transaction
			// 提交過的交易直接以 ResultingBalance 落地，重建稽核鏈
			m.store.commit(tran.AccountID, tran.ResultingBalance, tran.CreatedAt)
			m.log.record(tran)
			m.processed[tran.RefID] = tran
			return nil
		default:
			return errors.New("unknown wal record kind")
		}
	})
	if err != nil {
		return err
	}
	if count > 0 {
		m.logger.Info("recovered ledger state from wal", zap.Int("records", count))
	}
	return nil
}

// Execute 執行一筆交易 (存款/提款)
//
// 步驟 (1)-(4) 全程持有帳戶鎖，構成單一原子單元：
//
//	(1) 持鎖後重新讀取餘額
//	(2) 提款檢查餘額充足性
//	(3) 計算新餘額
//	(4) WAL 落盤 + 餘額更新 + 交易紀錄 append 一併提交
//
// 回傳:
//
//	*domain.Transaction: 已提交的交易 (含 ID 與 ResultingBalance)
//	error: domain 錯誤之一；失敗時不留任何部分狀態
func (m *MemoryLedger) Execute(ctx context.Context, tran *domain.Transaction) (*domain.Transaction, error) {
	// 冪等快速路徑：已處理過的 RefID 直接回傳先前結果
	if done := m.lookupProcessed(tran.RefID); done != nil {
		return done, nil
	}

	// 取鎖前的存在性檢查：不存在的帳戶不值得排隊等鎖
	if !m.store.exists(tran.AccountID) {
		return nil, domain.ErrAccountNotFound
	}

	handle, err := m.locks.Acquire(ctx, tran.AccountID)
	if err != nil {
		if errors.Is(err, locker.ErrWaitTimeout) {
			return nil, domain.ErrLedgerBusy
		}
		return nil, err
	}
	defer handle.Release()

	// 持鎖後再查一次冪等表：等待期間同一筆 RefID 可能已被提交
	if done := m.lookupProcessed(tran.RefID); done != nil {
		return done, nil
	}

	// (1) 重新讀取餘額；取鎖前讀到的值一律視為陳舊，
	// 不得用於提款檢查
	acct, err := m.store.Get(tran.AccountID)
	if err != nil {
		return nil, err
	}

	// (2)(3) 在快照上套用異動；金額與餘額檢查都在持鎖狀態下進行
	switch tran.Type {
	case domain.TransactionTypeDeposit:
		err = acct.Deposit(tran.Amount)
	case domain.TransactionTypeWithdraw:
		err = acct.Withdraw(tran.Amount)
	default:
		err = domain.ErrInvalidTransactionType
	}
	if err != nil {
		return nil, err
	}
	newBalance := acct.Balance

	// (4) 定案並提交。時間戳在持鎖狀態下取得，
	// 同帳戶內必然單調不遞減
	committed := *tran
	committed.ID = m.log.reserveID()
	committed.ResultingBalance = newBalance
	committed.CreatedAt = time.Now()

	// WAL 先行：落盤失敗則整筆放棄，記憶體狀態不動
	if m.wal != nil {
		if err := m.wal.Append(&walRecord{Kind: walRecordTransaction, Transaction: &committed}); err != nil {
			m.logger.Error("wal append failed", zap.Error(err))
			return nil, domain.ErrWALWriteFailed
		}
		if err := m.wal.Flush(); err != nil {
			m.logger.Error("wal flush failed", zap.Error(err))
			return nil, domain.ErrWALWriteFailed
		}
	}

	m.store.commit(tran.AccountID, newBalance, committed.CreatedAt)
	m.log.record(&committed)
	m.markProcessed(&committed)

	return &committed, nil
}

// CreateAccount 建立帳戶並寫入 WAL
func (m *MemoryLedger) CreateAccount(ctx context.Context, accountNumber, owner string, initialBalance decimal.Decimal) (*domain.Account, error) {
	acct, err := m.store.Create(accountNumber, owner, initialBalance)
	if err != nil {
		return nil, err
	}

	if m.wal != nil {
		if err := m.wal.Append(&walRecord{Kind: walRecordAccount, Account: acct}); err != nil {
			m.store.remove(acct.ID)
			return nil, domain.ErrWALWriteFailed
		}
		if err := m.wal.Flush(); err != nil {
			m.store.remove(acct.ID)
			return nil, domain.ErrWALWriteFailed
		}
	}
	return acct, nil
}

// GetAccount 取得帳戶當前快照
func (m *MemoryLedger) GetAccount(ctx context.Context, accountID int64) (*domain.Account, error) {
	return m.store.Get(accountID)
}

// ListAccounts 取得所有帳戶快照
func (m *MemoryLedger) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	return m.store.List(), nil
}

// ListTransactions 取得帳戶的交易紀錄 (append 順序)
func (m *MemoryLedger) ListTransactions(ctx context.Context, accountID int64) ([]*domain.Transaction, error) {
	if !m.store.exists(accountID) {
		return nil, domain.ErrAccountNotFound
	}
	return m.log.ListFor(accountID), nil
}

func (m *MemoryLedger) lookupProcessed(refID uuid.UUID) *domain.Transaction {
	m.procMu.RLock()
	defer m.procMu.RUnlock()
	return m.processed[refID]
}

func (m *MemoryLedger) markProcessed(tran *domain.Transaction) {
	m.procMu.Lock()
	defer m.procMu.Unlock()
	m.processed[tran.RefID] = tran
}

var _ usecase.Ledger = (*MemoryLedger)(nil)
