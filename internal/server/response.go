// internal/server/response.go
//
// 本檔負責統一 HTTP 回應格式與失敗種類到狀態碼的對應。

package server

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"economy/internal/bank"
	"economy/internal/economy"
)

// writeJSON 統一輸出 JSON 回應。
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr 輸出 {"error": "..."}。
func writeErr(w http.ResponseWriter, err error, code int) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// statusFor 把失敗種類對應為 HTTP 狀態碼。
func statusFor(f *bank.Failure) int {
	if f == nil {
		return http.StatusOK
	}
	switch f.Kind {
	case bank.KindInvalidAmount, bank.KindInvalidChoice, bank.KindInvalidPurse, bank.KindSelfTarget, bank.KindInvalidTarget:
		return http.StatusBadRequest
	case bank.KindPermissionDenied:
		return http.StatusForbidden
	case bank.KindInsufficientFunds, bank.KindTargetTooPoor, bank.KindActorTooPoor:
		return http.StatusConflict
	case bank.KindCooldownActive:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeOutcome 以 Outcome 本身作為回應內容；冷卻中另加 Retry-After。
func writeOutcome(w http.ResponseWriter, out economy.Outcome) {
	if f := out.Failure; f != nil && f.Kind == bank.KindCooldownActive {
		secs := int64(math.Ceil(f.Remaining.Seconds()))
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	writeJSON(w, statusFor(out.Failure), out)
}
