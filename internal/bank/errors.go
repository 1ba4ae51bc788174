// internal/bank/errors.go
//
// 本檔集中定義「領域錯誤（domain errors）」。
// 驗證類錯誤由 Failure 攜帶種類與呈現所需資料（剩餘冷卻時間、所需 / 可用金額），
// 由上層（動作解析器、HTTP adapter）轉換為結果或狀態碼。

package bank

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a failed operation.
type Kind string

const (
	KindInvalidAmount     Kind = "invalid_amount"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindSelfTarget        Kind = "self_target"
	KindInvalidTarget     Kind = "invalid_target"
	KindTargetTooPoor     Kind = "target_too_poor"
	KindActorTooPoor      Kind = "actor_too_poor"
	KindCooldownActive    Kind = "cooldown_active"
	KindPermissionDenied  Kind = "permission_denied"
	KindInvalidChoice     Kind = "invalid_choice"
	KindInvalidPurse      Kind = "invalid_purse"
	KindStorageFailure    Kind = "storage_failure"
)

var (
	// ErrInvalidAmount 代表金額非正數或無法解析。
	ErrInvalidAmount = errors.New("amount must be a positive integer")

	// ErrInsufficientFunds 代表餘額不足。
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrSelfTarget 代表來源與目標帳戶相同。
	ErrSelfTarget = errors.New("actor and target are the same account")

	// ErrInvalidTarget 代表帳戶 id 為空白或為保留字。
	ErrInvalidTarget = errors.New("invalid account id")

	// ErrTargetTooPoor 代表目標現金低於搶劫門檻。
	ErrTargetTooPoor = errors.New("target does not carry enough cash")

	// ErrActorTooPoor 代表行動者現金低於搶劫門檻。
	ErrActorTooPoor = errors.New("actor does not carry enough cash")

	// ErrCooldownActive 代表冷卻閘門尚未開啟。
	ErrCooldownActive = errors.New("cooldown active")

	// ErrPermissionDenied 代表呼叫者沒有管理權限。
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInvalidChoice 代表選項不在允許範圍內（例如硬幣正反面）。
	ErrInvalidChoice = errors.New("invalid choice")

	// ErrInvalidPurse 代表錢包名稱不合法。
	ErrInvalidPurse = errors.New("invalid purse")

	// ErrStorage 代表持久化失敗；動作未發生，記憶體狀態已回滾。
	ErrStorage = errors.New("storage failure")

	// ErrCorrupt 代表載入的狀態違反帳本不變量（例如 total_wealth 與紀錄總和不一致）。
	ErrCorrupt = errors.New("ledger state is inconsistent")
)

var kindErrors = map[Kind]error{
	KindInvalidAmount:     ErrInvalidAmount,
	KindInsufficientFunds: ErrInsufficientFunds,
	KindSelfTarget:        ErrSelfTarget,
	KindInvalidTarget:     ErrInvalidTarget,
	KindTargetTooPoor:     ErrTargetTooPoor,
	KindActorTooPoor:      ErrActorTooPoor,
	KindCooldownActive:    ErrCooldownActive,
	KindPermissionDenied:  ErrPermissionDenied,
	KindInvalidChoice:     ErrInvalidChoice,
	KindInvalidPurse:      ErrInvalidPurse,
	KindStorageFailure:    ErrStorage,
}

// Failure is a validation outcome with the data needed to render it.
type Failure struct {
	Kind      Kind          `json:"kind"`
	Remaining time.Duration `json:"remaining,omitempty"`
	Required  int64         `json:"required,omitempty"`
	Available int64         `json:"available,omitempty"`
}

func (f *Failure) Error() string {
	base := kindErrors[f.Kind]
	if base == nil {
		return string(f.Kind)
	}
	switch f.Kind {
	case KindCooldownActive:
		return fmt.Sprintf("%v: %s remaining", base, f.Remaining.Round(time.Second))
	case KindInsufficientFunds, KindTargetTooPoor, KindActorTooPoor:
		return fmt.Sprintf("%v: need %d, have %d", base, f.Required, f.Available)
	}
	return base.Error()
}

// Is 讓 errors.Is(failure, ErrX) 依種類比對。
func (f *Failure) Is(target error) bool {
	return kindErrors[f.Kind] == target
}

// Fail 建立只有種類的 Failure。
func Fail(kind Kind) *Failure { return &Failure{Kind: kind} }

func insufficient(required, available int64) *Failure {
	return &Failure{Kind: KindInsufficientFunds, Required: required, Available: available}
}

// AsFailure 取出錯誤鏈中的 Failure。
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
