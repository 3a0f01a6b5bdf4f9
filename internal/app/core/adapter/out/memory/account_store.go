package memory

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-account-ledger/internal/app/core/domain"
)

// AccountStore 純記憶體的帳戶存放區
// 不含任何業務規則與鎖語意：同帳戶異動的序列化由呼叫端 (MemoryLedger)
// 透過 Lock Manager 保證；這裡的 RWMutex 只保護 map 結構與欄位的
// 讀寫原子性，讓查詢永遠只看得到已提交的狀態。
type AccountStore struct {
	mu       sync.RWMutex
	nextID   int64
	accounts map[int64]*domain.Account
	byNumber map[string]int64
}

func NewAccountStore() *AccountStore {
	return &AccountStore{
		accounts: make(map[int64]*domain.Account),
		byNumber: make(map[string]int64),
	}
}

// Create 建立帳戶
//
// 參數:
//
//	accountNumber: 對外帳號，全系統唯一
//	owner: 持有人名稱
//	initialBalance: 初始餘額，不得為負
//
// 回傳:
//
//	*domain.Account: 新帳戶的拷貝
//	error: 初始餘額為負回傳 ErrInvalidAmount；帳號重複回傳 ErrDuplicateAccount
func (s *AccountStore) Create(accountNumber, owner string, initialBalance decimal.Decimal) (*domain.Account, error) {
	if initialBalance.IsNegative() {
		return nil, domain.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byNumber[accountNumber]; ok {
		return nil, domain.ErrDuplicateAccount
	}

	s.nextID++
	acct := domain.NewAccount(s.nextID, accountNumber, owner, initialBalance)
	acct.LastUpdated = time.Now()
	s.accounts[acct.ID] = acct
	s.byNumber[accountNumber] = acct.ID

	cp := *acct
	return &cp, nil
}

// Get 取得帳戶的當前快照；回傳拷貝避免呼叫端改寫內部狀態
func (s *AccountStore) Get(id int64) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	cp := *acct
	return &cp, nil
}

// GetByNumber 以對外帳號查詢帳戶快照
func (s *AccountStore) GetByNumber(accountNumber string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byNumber[accountNumber]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	cp := *s.accounts[id]
	return &cp, nil
}

// List 回傳所有帳戶的快照，依 ID 遞增排序
func (s *AccountStore) List() []*domain.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Account, 0, len(s.accounts))
	for id := int64(1); id <= s.nextID; id++ {
		if acct, ok := s.accounts[id]; ok {
			cp := *acct
			out = append(out, &cp)
		}
	}
	return out
}

// exists 檢查帳戶是否存在 (取帳戶鎖前的快速檢查)
func (s *AccountStore) exists(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.accounts[id]
	return ok
}

// commit 寫入新餘額與異動時間
// 只允許 MemoryLedger 在持有該帳戶鎖的情況下呼叫
func (s *AccountStore) commit(id int64, balance decimal.Decimal, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acct, ok := s.accounts[id]; ok {
		acct.Balance = balance
		acct.LastUpdated = at
	}
}

// restore 以指定 ID 還原帳戶 (WAL 重放專用，單執行緒呼叫)
func (s *AccountStore) restore(acct *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byNumber[acct.AccountNumber]; ok {
		return domain.ErrDuplicateAccount
	}
	cp := *acct
	s.accounts[cp.ID] = &cp
	s.byNumber[cp.AccountNumber] = cp.ID
	if cp.ID > s.nextID {
		s.nextID = cp.ID
	}
	return nil
}

// remove 移除帳戶 (僅供建立流程在 WAL 寫入失敗時回滾)
func (s *AccountStore) remove(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acct, ok := s.accounts[id]; ok {
		delete(s.byNumber, acct.AccountNumber)
		delete(s.accounts, id)
	}
}
