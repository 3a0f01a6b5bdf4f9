// Package http 是帳務核心的輕量入站轉接層。
// 只負責解析請求、呼叫 usecase、把錯誤分類對應到 HTTP 狀態碼；
// 不含任何業務規則 (認證、快取、限流屬於外部協作者，不在此處)。
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-account-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-account-ledger/internal/app/core/usecase"
)

// Server HTTP 入站轉接器
type Server struct {
	core   *usecase.CoreUseCase
	logger *zap.Logger
	router *mux.Router
}

// NewServer 建立 HTTP 轉接器並註冊路由
func NewServer(core *usecase.CoreUseCase, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		core:   core,
		logger: logger,
		router: mux.NewRouter(),
	}

	s.router.Use(s.logRequests)
	s.router.HandleFunc("/accounts", s.handleCreateAccount).Methods(http.MethodPost)
	s.router.HandleFunc("/accounts", s.handleListAccounts).Methods(http.MethodGet)
	s.router.HandleFunc("/accounts/{id:[0-9]+}", s.handleGetAccount).Methods(http.MethodGet)
	s.router.HandleFunc("/accounts/{id:[0-9]+}/transactions", s.handleListTransactions).Methods(http.MethodGet)
	s.router.HandleFunc("/transactions", s.handleExecuteTransaction).Methods(http.MethodPost)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	return s
}

// Router 回傳底層路由器，供 cmd 掛載額外端點 (如 /metrics)
func (s *Server) Router() *mux.Router {
	return s.router
}

type createAccountRequest struct {
	AccountNumber  string `json:"account_number"`
	Owner          string `json:"owner"`
	InitialBalance string `json:"initial_balance"`
}

type executeTransactionRequest struct {
	RefID     string `json:"ref_id"`
	AccountID int64  `json:"account_id"`
	Type      string `json:"type"`
	Amount    string `json:"amount"`
}

type executeTransactionResponse struct {
	TransactionID int64           `json:"transaction_id"`
	NewBalance    decimal.Decimal `json:"new_balance"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.AccountNumber == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "account_number is required"})
		return
	}

	initial := decimal.Zero
	if req.InitialBalance != "" {
		var err error
		initial, err = decimal.NewFromString(req.InitialBalance)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid initial_balance"})
			return
		}
	}

	acct, err := s.core.CreateAccount(r.Context(), req.AccountNumber, req.Owner, initial)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accts, err := s.core.ListAccounts(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accts)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	acct, err := s.core.GetAccount(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	trans, err := s.core.ListTransactions(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trans)
}

func (s *Server) handleExecuteTransaction(w http.ResponseWriter, r *http.Request) {
	var req executeTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	// RefID 可省略；帶了就必須是合法 UUID
	refID := uuid.Nil
	if req.RefID != "" {
		var err error
		refID, err = uuid.Parse(req.RefID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid ref_id"})
			return
		}
	}

	txType, err := domain.ParseTransactionType(req.Type)
	if err != nil {
		s.writeError(w, err)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid amount"})
		return
	}

	tran, err := s.core.ExecuteTransaction(r.Context(), refID, req.AccountID, txType, amount)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, executeTransactionResponse{
		TransactionID: tran.ID,
		NewBalance:    tran.ResultingBalance,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeError 錯誤分類 → HTTP 狀態碼的唯一對應點
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var status int
	switch {
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidTransactionType):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrAccountNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrDuplicateAccount):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrLedgerBusy):
		status = http.StatusServiceUnavailable
	default:
		s.logger.Error("internal error", zap.Error(err))
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// pathID 解析路徑上的帳戶 ID
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid account id"})
		return 0, false
	}
	return id, true
}

// statusRecorder 攔截狀態碼供 request log 使用
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// logRequests zap 請求紀錄 middleware
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}
