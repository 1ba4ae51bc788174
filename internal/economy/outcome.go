package economy

import "economy/internal/bank"

// Action names, also used as metric and span labels.
const (
	ActionBalance     = "balance"
	ActionDaily       = "daily"
	ActionWork        = "work"
	ActionDeposit     = "deposit"
	ActionWithdraw    = "withdraw"
	ActionPay         = "pay"
	ActionRob         = "rob"
	ActionCoinflip    = "coinflip"
	ActionSlots       = "slots"
	ActionAdminGive   = "admin_give"
	ActionAdminTake   = "admin_take"
	ActionLeaderboard = "leaderboard"
)

// Coin sides.
const (
	Heads = "heads"
	Tails = "tails"
)

// Outcome is the structured result of one action. On failure the account
// fields hold the unchanged balances.
type Outcome struct {
	Action  string        `json:"action"`
	OK      bool          `json:"ok"`
	Failure *bank.Failure `json:"failure,omitempty"`

	Caller       string        `json:"caller,omitempty"`
	Actor        *bank.Account `json:"actor,omitempty"`
	Before       *bank.Account `json:"before,omitempty"`
	Target       *bank.Account `json:"target,omitempty"`
	TargetBefore *bank.Account `json:"target_before,omitempty"`

	// Amount is the value credited, debited or moved by the action.
	Amount int64      `json:"amount,omitempty"`
	Purse  bank.Purse `json:"purse,omitempty"`

	Job string `json:"job,omitempty"`

	Choice string `json:"choice,omitempty"`
	Side   string `json:"side,omitempty"`
	Won    bool   `json:"won,omitempty"`

	Reels      []string `json:"reels,omitempty"`
	Multiplier string   `json:"multiplier,omitempty"`
	Payout     int64    `json:"payout,omitempty"`
	Net        int64    `json:"net,omitempty"`

	Leaderboard []bank.Ranked `json:"leaderboard,omitempty"`
}

func (o *Outcome) result() string {
	if o.OK {
		return "ok"
	}
	if o.Failure != nil {
		return string(o.Failure.Kind)
	}
	return "error"
}

func ptr(a bank.Account) *bank.Account { return &a }
