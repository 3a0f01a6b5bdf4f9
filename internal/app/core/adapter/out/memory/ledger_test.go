package memory

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/JoeShih716/go-account-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-account-ledger/pkg/locker"
	"github.com/JoeShih716/go-account-ledger/pkg/wal"
)

func newTestLedger(t *testing.T) *MemoryLedger {
	t.Helper()
	l, err := NewMemoryLedger(locker.NewManager(time.Second), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func mustCreate(t *testing.T, l *MemoryLedger, number, owner, balance string) *domain.Account {
	t.Helper()
	acct, err := l.CreateAccount(context.Background(), number, owner, dec(t, balance))
	if err != nil {
		t.Fatal(err)
	}
	return acct
}

func execute(l *MemoryLedger, accountID int64, txType domain.TransactionType, amount decimal.Decimal) (*domain.Transaction, error) {
	return l.Execute(context.Background(), &domain.Transaction{
		RefID:     uuid.New(),
		AccountID: accountID,
		Type:      txType,
		Amount:    amount,
	})
}

// TestDepositWithdrawRoundTrip 存 X 再提 X 應精確回到原餘額，並留下兩筆紀錄
func TestDepositWithdrawRoundTrip(t *testing.T) {
	l := newTestLedger(t)
	acct := mustCreate(t, l, "ACC-001", "Alice", "100.00")

	d, err := execute(l, acct.ID, domain.TransactionTypeDeposit, dec(t, "37.50"))
	if err != nil {
		t.Fatal(err)
	}
	if !d.ResultingBalance.Equal(dec(t, "137.50")) {
		t.Fatalf("after deposit balance=%s want=137.50", d.ResultingBalance)
	}

	w, err := execute(l, acct.ID, domain.TransactionTypeWithdraw, dec(t, "37.50"))
	if err != nil {
		t.Fatal(err)
	}
	if !w.ResultingBalance.Equal(dec(t, "100.00")) {
		t.Fatalf("after withdraw balance=%s want=100.00", w.ResultingBalance)
	}

	got, err := l.GetAccount(context.Background(), acct.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Balance.Equal(dec(t, "100.00")) {
		t.Fatalf("balance=%s want=100.00", got.Balance)
	}

	trans, err := l.ListTransactions(context.Background(), acct.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(trans) != 2 {
		t.Fatalf("transactions=%d want=2", len(trans))
	}
	if trans[0].ID >= trans[1].ID {
		t.Fatalf("ids not monotonic: %d %d", trans[0].ID, trans[1].ID)
	}
}

// TestWithdrawInsufficientNoMutation 超額提款拒絕後，餘額與紀錄都不得改變
func TestWithdrawInsufficientNoMutation(t *testing.T) {
	l := newTestLedger(t)
	acct := mustCreate(t, l, "ACC-001", "Alice", "100.00")

	_, err := execute(l, acct.ID, domain.TransactionTypeWithdraw, dec(t, "100.01"))
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("want ErrInsufficientBalance, got %v", err)
	}

	got, _ := l.GetAccount(context.Background(), acct.ID)
	if !got.Balance.Equal(dec(t, "100.00")) {
		t.Fatalf("balance mutated on rejection: %s", got.Balance)
	}
	trans, _ := l.ListTransactions(context.Background(), acct.ID)
	if len(trans) != 0 {
		t.Fatalf("rejected withdrawal was logged: %d entries", len(trans))
	}
}

// TestInvalidAmountNoSideEffects 非法金額在持鎖檢查中被擋下，零副作用
func TestInvalidAmountNoSideEffects(t *testing.T) {
	l := newTestLedger(t)
	acct := mustCreate(t, l, "ACC-001", "Alice", "100.00")

	for _, amt := range []string{"0", "-5.00"} {
		if _, err := execute(l, acct.ID, domain.TransactionTypeDeposit, dec(t, amt)); !errors.Is(err, domain.ErrInvalidAmount) {
			t.Fatalf("amount=%s want ErrInvalidAmount, got %v", amt, err)
		}
	}

	got, _ := l.GetAccount(context.Background(), acct.ID)
	if !got.Balance.Equal(dec(t, "100.00")) {
		t.Fatalf("balance mutated: %s", got.Balance)
	}
	trans, _ := l.ListTransactions(context.Background(), acct.ID)
	if len(trans) != 0 {
		t.Fatalf("rejected deposit was logged: %d entries", len(trans))
	}
}

// TestExecuteUnknownAccount 不存在的帳戶在取鎖前就拒絕
func TestExecuteUnknownAccount(t *testing.T) {
	l := newTestLedger(t)
	if _, err := execute(l, 42, domain.TransactionTypeDeposit, dec(t, "10.00")); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("want ErrAccountNotFound, got %v", err)
	}
}

// TestConcurrentDoubleWithdraw 餘額 100 同時提兩筆 80：恰好一筆成功、一筆餘額不足
func TestConcurrentDoubleWithdraw(t *testing.T) {
	l := newTestLedger(t)
	acct := mustCreate(t, l, "ACC-001", "Alice", "100.00")

	start := make(chan struct{})
	results := make([]error, 2)

	var g errgroup.Group
	for i := 0; i < 2; i++ {
		i := i
		g.Go(func() error {
			<-start
			_, err := execute(l, acct.ID, domain.TransactionTypeWithdraw, dec(t, "80.00"))
			results[i] = err
			return nil
		})
	}
	close(start)
	_ = g.Wait()

	var ok, insufficient int
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrInsufficientBalance):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || insufficient != 1 {
		t.Fatalf("ok=%d insufficient=%d, want exactly one of each", ok, insufficient)
	}

	got, _ := l.GetAccount(context.Background(), acct.ID)
	if !got.Balance.Equal(dec(t, "20.00")) {
		t.Fatalf("balance=%s want=20.00", got.Balance)
	}
	trans, _ := l.ListTransactions(context.Background(), acct.ID)
	if len(trans) != 1 {
		t.Fatalf("transactions=%d want=1", len(trans))
	}
}

// TestConcurrentMixedOperations 標準併發回歸測試：
// 10 個 worker 對同一帳戶 (初始 1000.00) 併發執行 100 筆
// 隨機存/提款 (金額 10.00~50.00)，最終餘額必須等於
// 依各筆實際結果逐筆累計出的金額，交易紀錄構成可重放的稽核鏈。
func TestConcurrentMixedOperations(t *testing.T) {
	l := newTestLedger(t)
	acct := mustCreate(t, l, "ACC-001", "Alice", "1000.00")

	const opCount = 100
	const workers = 10

	type op struct {
		txType domain.TransactionType
		amount decimal.Decimal
	}

	rng := rand.New(rand.NewSource(1))
	ops := make([]op, opCount)
	for i := range ops {
		txType := domain.TransactionTypeDeposit
		if rng.Intn(2) == 1 {
			txType = domain.TransactionTypeWithdraw
		}
		ops[i] = op{
			txType: txType,
			amount: decimal.NewFromFloat(10 + rng.Float64()*40).Round(2),
		}
	}

	results := make([]error, opCount)
	jobs := make(chan int)

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := range jobs {
				_, err := execute(l, acct.ID, ops[i].txType, ops[i].amount)
				results[i] = err
			}
			return nil
		})
	}
	for i := 0; i < opCount; i++ {
		jobs <- i
	}
	close(jobs)
	_ = g.Wait()

	// 稽核鏈重放：從初始餘額開始逐筆套用，每筆的 ResultingBalance 必須吻合
	trans, err := l.ListTransactions(context.Background(), acct.ID)
	if err != nil {
		t.Fatal(err)
	}
	replayed := dec(t, "1000.00")
	lastAt := time.Time{}
	for i, tran := range trans {
		switch tran.Type {
		case domain.TransactionTypeDeposit:
			replayed = replayed.Add(tran.Amount)
		case domain.TransactionTypeWithdraw:
			replayed = replayed.Sub(tran.Amount)
		}
		if !tran.ResultingBalance.Equal(replayed) {
			t.Fatalf("audit chain broken at %d: have %s want %s", i, tran.ResultingBalance, replayed)
		}
		if replayed.IsNegative() {
			t.Fatalf("balance went negative at %d: %s", i, replayed)
		}
		if tran.CreatedAt.Before(lastAt) {
			t.Fatalf("timestamps not monotonic at %d", i)
		}
		lastAt = tran.CreatedAt
		if i > 0 && tran.ID <= trans[i-1].ID {
			t.Fatalf("transaction ids not monotonic at %d", i)
		}
	}

	// 最終餘額 = 初始 + Σ成功存款 − Σ成功提款
	committed := 0
	for i, err := range results {
		if err == nil {
			committed++
			continue
		}
		if !errors.Is(err, domain.ErrInsufficientBalance) {
			t.Fatalf("op %d unexpected error: %v", i, err)
		}
	}
	if len(trans) != committed {
		t.Fatalf("log entries=%d committed=%d", len(trans), committed)
	}

	got, _ := l.GetAccount(context.Background(), acct.ID)
	if !got.Balance.Equal(replayed) {
		t.Fatalf("final balance=%s replayed=%s", got.Balance, replayed)
	}
	if got.Balance.IsNegative() {
		t.Fatalf("final balance negative: %s", got.Balance)
	}
}

// TestPerAccountLockGranularity 帳戶 A 的鎖被占用時，A 的交易回 busy、B 照常進行
func TestPerAccountLockGranularity(t *testing.T) {
	locks := locker.NewManager(50 * time.Millisecond)
	l, err := NewMemoryLedger(locks, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	a := mustCreate(t, l, "ACC-001", "Alice", "100.00")
	b := mustCreate(t, l, "ACC-002", "Bob", "100.00")

	// 直接透過同一個 Manager 佔住 A 的鎖，模擬慢速的進行中操作
	h, err := locks.Acquire(context.Background(), a.ID)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Release()

	if _, err := execute(l, a.ID, domain.TransactionTypeDeposit, dec(t, "10.00")); !errors.Is(err, domain.ErrLedgerBusy) {
		t.Fatalf("want ErrLedgerBusy for locked account, got %v", err)
	}
	if _, err := execute(l, b.ID, domain.TransactionTypeDeposit, dec(t, "10.00")); err != nil {
		t.Fatalf("distinct account blocked: %v", err)
	}
}

// TestIdempotentRefID 相同 RefID 重送只會套用一次，並回傳第一次的結果
func TestIdempotentRefID(t *testing.T) {
	l := newTestLedger(t)
	acct := mustCreate(t, l, "ACC-001", "Alice", "100.00")

	refID := uuid.New()
	tran := &domain.Transaction{
		RefID:     refID,
		AccountID: acct.ID,
		Type:      domain.TransactionTypeDeposit,
		Amount:    dec(t, "25.00"),
	}

	first, err := l.Execute(context.Background(), tran)
	if err != nil {
		t.Fatal(err)
	}
	second, err := l.Execute(context.Background(), &domain.Transaction{
		RefID:     refID,
		AccountID: acct.ID,
		Type:      domain.TransactionTypeDeposit,
		Amount:    dec(t, "25.00"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID {
		t.Fatalf("replay created a new transaction: %d vs %d", second.ID, first.ID)
	}

	got, _ := l.GetAccount(context.Background(), acct.ID)
	if !got.Balance.Equal(dec(t, "125.00")) {
		t.Fatalf("balance=%s want=125.00 (applied once)", got.Balance)
	}
	trans, _ := l.ListTransactions(context.Background(), acct.ID)
	if len(trans) != 1 {
		t.Fatalf("transactions=%d want=1", len(trans))
	}
}

// TestWALRecovery 重開後帳戶、餘額、交易紀錄與冪等表都要完整恢復
func TestWALRecovery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")

	w, err := wal.New(path)
	if err != nil {
		t.Fatal(err)
	}
	l1, err := NewMemoryLedger(locker.NewManager(time.Second), w, nil)
	if err != nil {
		t.Fatal(err)
	}

	acct := mustCreate(t, l1, "ACC-001", "Alice", "1000.00")
	refID := uuid.New()
	if _, err := l1.Execute(context.Background(), &domain.Transaction{
		RefID: refID, AccountID: acct.ID, Type: domain.TransactionTypeDeposit, Amount: dec(t, "250.00"),
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(l1, acct.ID, domain.TransactionTypeWithdraw, dec(t, "100.00")); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	// 重新開檔並建立新的帳本，模擬程序重啟
	w2, err := wal.New(path)
	if err != nil {
		t.Fatal(err)
	}
	defer w2.Close()
	l2, err := NewMemoryLedger(locker.NewManager(time.Second), w2, nil)
	if err != nil {
		t.Fatal(err)
	}

	got, err := l2.GetAccount(context.Background(), acct.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Balance.Equal(dec(t, "1150.00")) {
		t.Fatalf("recovered balance=%s want=1150.00", got.Balance)
	}
	if got.AccountNumber != "ACC-001" || got.Owner != "Alice" {
		t.Fatalf("recovered account mismatch: %+v", got)
	}

	trans, err := l2.ListTransactions(context.Background(), acct.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(trans) != 2 {
		t.Fatalf("recovered transactions=%d want=2", len(trans))
	}

	// 恢復後冪等表也要生效：重送已提交的 RefID 不會再套用
	replay, err := l2.Execute(context.Background(), &domain.Transaction{
		RefID: refID, AccountID: acct.ID, Type: domain.TransactionTypeDeposit, Amount: dec(t, "250.00"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if replay.ID != trans[0].ID {
		t.Fatalf("replay after recovery created a new transaction")
	}
	got, _ = l2.GetAccount(context.Background(), acct.ID)
	if !got.Balance.Equal(dec(t, "1150.00")) {
		t.Fatalf("balance changed by replay: %s", got.Balance)
	}
}
