// loadgen 對帳務服務施加並發交易壓力，量測 TPS 並驗證最終餘額。
// 所有請求都帶唯一的 ref_id，伺服器端可安全重試。
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	baseURL     = flag.String("url", "http://localhost:8080", "ledger service base url")
	totalCount  = flag.Int("n", 100000, "total number of transactions")
	concurrency = flag.Int("c", 100, "number of concurrent requests")
	amount      = flag.String("amount", "10.00", "amount per deposit")
)

func main() {
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}

	// 先建立一個測試帳戶
	accountID, err := createAccount(client)
	if err != nil {
		log.Fatalf("create account failed: %v", err)
	}
	log.Printf("created account %d", accountID)

	var wg sync.WaitGroup
	wg.Add(*totalCount)

	sem := make(chan struct{}, *concurrency)

	var failed int64
	var mu sync.Mutex

	startTime := time.Now()

	for i := 0; i < *totalCount; i++ {
		sem <- struct{}{}

		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := postTransaction(client, accountID); err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
				if idx%10000 == 0 {
					log.Printf("transaction %d failed: %v", idx, err)
				}
			}
		}(i)
	}

	wg.Wait()

	elapsed := time.Since(startTime)
	fmt.Printf("Completed %d requests in %v (%d failed)\n", *totalCount, elapsed, failed)
	fmt.Printf("TPS: %.2f\n", float64(*totalCount)/elapsed.Seconds())

	// 驗證最終餘額 = 成功筆數 × 單筆金額
	balance, err := fetchBalance(client, accountID)
	if err != nil {
		log.Fatalf("fetch balance failed: %v", err)
	}
	amt, _ := decimal.NewFromString(*amount)
	want := amt.Mul(decimal.NewFromInt(int64(*totalCount) - failed))
	fmt.Printf("Final balance: %s (expected %s, match=%v)\n", balance, want, balance.Equal(want))
}

func createAccount(client *http.Client) (int64, error) {
	body, _ := json.Marshal(map[string]string{
		"account_number":  fmt.Sprintf("loadgen-%d", time.Now().UnixNano()),
		"owner":           "loadgen",
		"initial_balance": "0.00",
	})
	resp, err := client.Post(*baseURL+"/accounts", "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var acct struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&acct); err != nil {
		return 0, err
	}
	return acct.ID, nil
}

func postTransaction(client *http.Client, accountID int64) error {
	body, _ := json.Marshal(map[string]any{
		"ref_id":     uuid.New().String(),
		"account_id": accountID,
		"type":       "deposit",
		"amount":     *amount,
	})
	resp, err := client.Post(*baseURL+"/transactions", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func fetchBalance(client *http.Client, accountID int64) (decimal.Decimal, error) {
	resp, err := client.Get(fmt.Sprintf("%s/accounts/%d", *baseURL, accountID))
	if err != nil {
		return decimal.Decimal{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var acct struct {
		Balance decimal.Decimal `json:"balance"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&acct); err != nil {
		return decimal.Decimal{}, err
	}
	return acct.Balance, nil
}
