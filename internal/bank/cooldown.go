package bank

import "time"

// Gate is a named cooldown: Ready -> Locked(until) -> Ready.
// Its state is the timestamp of the last successful consume, stored on the
// account, so it survives restarts.
type Gate struct {
	Name     string
	Interval time.Duration
}

// Until 回傳閘門重新開啟的時間；從未使用過則回傳零值。
func (g Gate) Until(a Account) time.Time {
	last, ok := a.LastClaim(g.Name)
	if !ok {
		return time.Time{}
	}
	return last.Add(g.Interval)
}

// Remaining 回傳距離開啟還需等待的時間；0 代表 Ready。
func (g Gate) Remaining(a Account, now time.Time) time.Duration {
	until := g.Until(a)
	if until.IsZero() || !now.Before(until) {
		return 0
	}
	return until.Sub(now)
}

// TryConsume checks and locks the gate inside tx. Because tx holds the
// account's lock, two concurrent callers can never both observe Ready.
// The lock is rolled back together with the rest of tx if the caller fails
// or the commit does.
func (g Gate) TryConsume(tx *Tx, id string) error {
	a, err := tx.Account(id)
	if err != nil {
		return err
	}
	if rem := g.Remaining(a, tx.Now()); rem > 0 {
		return &Failure{Kind: KindCooldownActive, Remaining: rem}
	}
	return tx.setCooldown(id, g.Name)
}
