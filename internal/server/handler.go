// internal/server/handler.go
//
// Package server
// ─────────────────────────────────────────────
// 提供 HTTP 介面，讓外部訊息平台的指令分派器呼叫經濟系統的動作。
// 每個 handler 僅負責：
//  1. 解析路徑參數與 JSON 請求
//  2. 呼叫 economy 層執行動作
//  3. 把 Outcome 依失敗種類轉為狀態碼回傳
//
// 持久化由帳本在每次提交時完成，handler 不需再觸發快照。
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"economy/internal/bank"
	"economy/internal/economy"
)

// Server 為 HTTP 層核心結構。
type Server struct {
	Economy *economy.Economy
	metrics http.Handler
	logger  *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithMetricsHandler mounts h at GET /metrics.
func WithMetricsHandler(h http.Handler) Option { return func(s *Server) { s.metrics = h } }

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer 建立新的 HTTP 伺服器。
func NewServer(eco *economy.Economy, opts ...Option) *Server {
	s := &Server{Economy: eco, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// amountParam 接受 JSON 數字或字串（含 "all"）。
type amountParam struct {
	economy.Amount
	set bool
}

func (a *amountParam) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var n int64
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("amount must be an integer or \"all\"")
		}
		s = strconv.FormatInt(n, 10)
	}
	a.set = true
	amt, err := economy.ParseAmount(s)
	if err != nil {
		// 非正數交由動作本身回報 InvalidAmount。
		a.Amount = economy.Amount{}
		return nil
	}
	a.Amount = amt
	return nil
}

type actionRequest struct {
	Target string      `json:"target"`
	Amount amountParam `json:"amount"`
	Choice string      `json:"choice"`
}

type adminRequest struct {
	Caller string      `json:"caller"`
	Target string      `json:"target"`
	Amount amountParam `json:"amount"`
	Purse  bank.Purse  `json:"purse"`
}

func decode(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// respond 寫出 Outcome；儲存失敗也帶 Outcome 並回 500。
func (s *Server) respond(w http.ResponseWriter, out economy.Outcome, err error) {
	if err != nil && !errors.Is(err, bank.ErrStorage) {
		writeErr(w, err, http.StatusInternalServerError)
		return
	}
	writeOutcome(w, out)
}

// account 處理 GET /accounts/{id}。
func (s *Server) account(w http.ResponseWriter, r *http.Request) {
	out, err := s.Economy.Balance(r.Context(), chi.URLParam(r, "id"))
	s.respond(w, out, err)
}

// action 處理 POST /accounts/{id}/{action}。
func (s *Server) action(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req actionRequest
	if err := decode(r, &req); err != nil {
		writeErr(w, err, http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	var (
		out economy.Outcome
		err error
	)
	switch chi.URLParam(r, "action") {
	case economy.ActionDaily:
		out, err = s.Economy.Daily(ctx, id)
	case economy.ActionWork:
		out, err = s.Economy.Work(ctx, id)
	case economy.ActionDeposit:
		out, err = s.Economy.Deposit(ctx, id, req.Amount.Amount)
	case economy.ActionWithdraw:
		out, err = s.Economy.Withdraw(ctx, id, req.Amount.Amount)
	case economy.ActionPay:
		out, err = s.Economy.Pay(ctx, id, req.Target, req.Amount.Amount)
	case economy.ActionRob:
		out, err = s.Economy.Rob(ctx, id, req.Target)
	case economy.ActionCoinflip:
		out, err = s.Economy.Coinflip(ctx, id, req.Amount.Amount, req.Choice)
	case economy.ActionSlots:
		out, err = s.Economy.Slots(ctx, id, req.Amount.Amount)
	default:
		http.NotFound(w, r)
		return
	}
	s.respond(w, out, err)
}

// adminGive 處理 POST /admin/give。
func (s *Server) adminGive(w http.ResponseWriter, r *http.Request) {
	var req adminRequest
	if err := decode(r, &req); err != nil {
		writeErr(w, err, http.StatusBadRequest)
		return
	}
	if req.Purse == "" {
		req.Purse = bank.PurseCash
	}
	// 管理員給予需要明確金額，"all" 沒有意義。
	amt := req.Amount.Value
	if req.Amount.All {
		amt = 0
	}
	out, err := s.Economy.AdminGive(r.Context(), req.Caller, req.Target, amt, req.Purse)
	s.respond(w, out, err)
}

// adminTake 處理 POST /admin/take；未指定金額視為全部。
func (s *Server) adminTake(w http.ResponseWriter, r *http.Request) {
	var req adminRequest
	if err := decode(r, &req); err != nil {
		writeErr(w, err, http.StatusBadRequest)
		return
	}
	if req.Purse == "" {
		req.Purse = economy.PurseAll
	}
	amount := req.Amount.Amount
	if !req.Amount.set {
		amount = economy.AllOf()
	}
	out, err := s.Economy.AdminTake(r.Context(), req.Caller, req.Target, amount, req.Purse)
	s.respond(w, out, err)
}

// leaderboard 處理 GET /leaderboard。
func (s *Server) leaderboard(w http.ResponseWriter, r *http.Request) {
	writeOutcome(w, s.Economy.Leaderboard(r.Context()))
}

// bankState 處理 GET /bank?limit=N：累計財富與最近 N 筆交易。
func (s *Server) bankState(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeErr(w, errors.New("limit must be a non-negative integer"), http.StatusBadRequest)
			return
		}
		limit = n
	}
	led := s.Economy.Ledger()
	txs := led.Transactions()
	recent := txs[max(len(txs)-limit, 0):]
	writeJSON(w, http.StatusOK, map[string]any{
		"total_wealth": led.TotalWealth(),
		"count":        len(txs),
		"transactions": recent,
	})
}

// health 提供健康檢查端點：GET /health。
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := s.Economy.Ledger().Verify(); err != nil {
		s.logger.Error("ledger verification failed", "error", err)
		status, code = "inconsistent", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": status})
}
