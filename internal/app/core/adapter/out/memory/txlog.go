package memory

import (
	"sync"

	"github.com/JoeShih716/go-account-ledger/internal/app/core/domain"
)

// TransactionLog append-only 的交易紀錄
// 只有 append 與讀取，沒有 update/delete。
// ID 由 reserveID 單調遞增分配；record 只允許在持有對應帳戶鎖的
// 情況下呼叫，因此同帳戶的紀錄順序即為鎖的取得順序。
type TransactionLog struct {
	mu        sync.RWMutex
	nextID    int64
	byAccount map[int64][]*domain.Transaction
}

func NewTransactionLog() *TransactionLog {
	return &TransactionLog{
		byAccount: make(map[int64][]*domain.Transaction),
	}
}

// reserveID 分配下一個交易 ID
// 在 WAL 寫入之前取號；若之後的提交失敗，該號碼直接作廢 (允許跳號)
func (l *TransactionLog) reserveID() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	return l.nextID
}

// record 寫入一筆已定案的交易紀錄 (含 ID)
// 同時供提交與 WAL 重放使用；重放時順便把 nextID 推進到已用的最大值
func (l *TransactionLog) record(tran *domain.Transaction) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cp := *tran
	l.byAccount[cp.AccountID] = append(l.byAccount[cp.AccountID], &cp)
	if cp.ID > l.nextID {
		l.nextID = cp.ID
	}
}

// ListFor 回傳帳戶的所有交易 (append 順序) 的拷貝
func (l *TransactionLog) ListFor(accountID int64) []*domain.Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()

	trans := l.byAccount[accountID]
	out := make([]*domain.Transaction, 0, len(trans))
	for _, t := range trans {
		cp := *t
		out = append(out, &cp)
	}
	return out
}
