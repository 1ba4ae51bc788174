// internal/economy/actions.go
//
// 動作解析器：每個玩家動作的前置檢查與效果都在同一個 Ledger.Update 內完成，
// 因此對涉及的帳戶而言是可線性化的。驗證失敗放在 Outcome.Failure，
// Go error 只保留給儲存失敗。

// Package economy resolves player actions against the ledger.
package economy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"economy/internal/bank"
)

// PurseAll selects both purses for admin_take, cash first.
const PurseAll bank.Purse = "all"

// Economy binds the rules, the random source and the authorizer to a ledger.
type Economy struct {
	ledger  *bank.Ledger
	rules   Rules
	daily   bank.Gate
	work    bank.Gate
	rng     Random
	auth    Authorizer
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *Metrics
}

// Option configures an Economy.
type Option func(*Economy)

// WithRandom sets the random source.
func WithRandom(r Random) Option { return func(e *Economy) { e.rng = r } }

// WithAuthorizer sets who may run admin actions.
func WithAuthorizer(a Authorizer) Option { return func(e *Economy) { e.auth = a } }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Economy) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(e *Economy) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithMetrics enables action counters.
func WithMetrics(m *Metrics) Option { return func(e *Economy) { e.metrics = m } }

// New validates rules and returns an Economy.
func New(ledger *bank.Ledger, rules Rules, opts ...Option) (*Economy, error) {
	if err := rules.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rules: %w", err)
	}
	e := &Economy{
		ledger: ledger,
		rules:  rules,
		daily:  bank.Gate{Name: bank.GateDaily, Interval: rules.Daily.Cooldown},
		work:   bank.Gate{Name: bank.GateWork, Interval: rules.Work.Cooldown},
		logger: slog.Default(),
		tracer: otel.Tracer("economy/internal/economy"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		rng, err := NewRandom()
		if err != nil {
			return nil, err
		}
		e.rng = rng
	}
	if e.auth == nil {
		e.auth = NewAdminSet()
	}
	return e, nil
}

// Rules returns the active tuning.
func (e *Economy) Rules() Rules { return e.rules }

// Ledger returns the underlying ledger.
func (e *Economy) Ledger() *bank.Ledger { return e.ledger }

// run 開一個 span，在 ids 的鎖下執行 fn，並把結果整理成 Outcome。
func (e *Economy) run(ctx context.Context, action string, ids []string, fn func(tx *bank.Tx, out *Outcome) error) (Outcome, error) {
	ctx, span := e.tracer.Start(ctx, "economy."+action, trace.WithAttributes(
		attribute.String("economy.action", action),
		attribute.StringSlice("economy.accounts", ids),
	))
	defer span.End()

	out := Outcome{Action: action}
	for _, id := range ids {
		if !bank.ValidID(id) {
			return e.finish(span, out, bank.Fail(bank.KindInvalidTarget))
		}
	}
	err := e.ledger.Update(ctx, ids, func(tx *bank.Tx) error { return fn(tx, &out) })
	return e.finish(span, out, err)
}

// deny 不進入帳本，直接以 err 結束動作。
func (e *Economy) deny(ctx context.Context, out Outcome, err error) (Outcome, error) {
	_, span := e.tracer.Start(ctx, "economy."+out.Action, trace.WithAttributes(
		attribute.String("economy.action", out.Action),
	))
	defer span.End()
	return e.finish(span, out, err)
}

func (e *Economy) finish(span trace.Span, out Outcome, err error) (Outcome, error) {
	if err == nil {
		out.OK = true
		e.metrics.observe(out.Action, out.result())
		span.SetAttributes(attribute.String("economy.result", "ok"))
		return out, nil
	}

	// 失敗時帳戶欄位一律回報進入前的餘額。
	failed := Outcome{
		Action:       out.Action,
		Caller:       out.Caller,
		Actor:        out.Before,
		Before:       out.Before,
		Target:       out.TargetBefore,
		TargetBefore: out.TargetBefore,
		Choice:       out.Choice,
		Purse:        out.Purse,
	}
	if f, ok := bank.AsFailure(err); ok {
		failed.Failure = f
		e.metrics.observe(out.Action, failed.result())
		span.SetAttributes(attribute.String("economy.result", string(f.Kind)))
		e.logger.Debug("action rejected", "action", out.Action, "kind", f.Kind)
		return failed, nil
	}

	failed.Failure = bank.Fail(bank.KindStorageFailure)
	e.metrics.observe(out.Action, failed.result())
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	e.logger.Error("action failed", "action", out.Action, "error", err)
	return failed, err
}

// begin 記錄行動者進入時的狀態。
func begin(tx *bank.Tx, out *Outcome, id string) (bank.Account, error) {
	a, err := tx.Account(id)
	if err != nil {
		return bank.Account{}, err
	}
	out.Before = ptr(a)
	return a, nil
}

func after(tx *bank.Tx, id string) *bank.Account {
	a, err := tx.Account(id)
	if err != nil {
		return nil
	}
	return &a
}

// Balance 回傳帳戶餘額；首次查詢會建立並持久化帳戶。
func (e *Economy) Balance(ctx context.Context, id string) (Outcome, error) {
	return e.run(ctx, ActionBalance, []string{id}, func(tx *bank.Tx, out *Outcome) error {
		if _, err := begin(tx, out, id); err != nil {
			return err
		}
		out.Actor = after(tx, id)
		return nil
	})
}

// Daily grants the daily reward when the 24h gate is open.
func (e *Economy) Daily(ctx context.Context, id string) (Outcome, error) {
	return e.run(ctx, ActionDaily, []string{id}, func(tx *bank.Tx, out *Outcome) error {
		if _, err := begin(tx, out, id); err != nil {
			return err
		}
		if err := e.daily.TryConsume(tx, id); err != nil {
			return err
		}
		amt := between(e.rng, e.rules.Daily.Range())
		if err := tx.Credit(id, amt, "Daily reward"); err != nil {
			return err
		}
		out.Amount = amt
		out.Actor = after(tx, id)
		return nil
	})
}

// Work pays a random wage for a random job when the work gate is open.
func (e *Economy) Work(ctx context.Context, id string) (Outcome, error) {
	return e.run(ctx, ActionWork, []string{id}, func(tx *bank.Tx, out *Outcome) error {
		if _, err := begin(tx, out, id); err != nil {
			return err
		}
		if err := e.work.TryConsume(tx, id); err != nil {
			return err
		}
		amt := between(e.rng, e.rules.Work.Range())
		job := e.rules.Work.Jobs[e.rng.IntN(len(e.rules.Work.Jobs))]
		if err := tx.Credit(id, amt, "Worked as "+job); err != nil {
			return err
		}
		out.Amount = amt
		out.Job = job
		out.Actor = after(tx, id)
		return nil
	})
}

// Deposit moves cash into the bank purse.
func (e *Economy) Deposit(ctx context.Context, id string, amount Amount) (Outcome, error) {
	return e.move(ctx, ActionDeposit, id, amount, bank.PurseCash, bank.PurseBank, "Deposit")
}

// Withdraw moves bank savings back to cash.
func (e *Economy) Withdraw(ctx context.Context, id string, amount Amount) (Outcome, error) {
	return e.move(ctx, ActionWithdraw, id, amount, bank.PurseBank, bank.PurseCash, "Withdrawal")
}

func (e *Economy) move(ctx context.Context, action, id string, amount Amount, src, dst bank.Purse, desc string) (Outcome, error) {
	return e.run(ctx, action, []string{id}, func(tx *bank.Tx, out *Outcome) error {
		a, err := begin(tx, out, id)
		if err != nil {
			return err
		}
		amt, err := amount.resolve(a.Balance(src))
		if err != nil {
			return err
		}
		if err := tx.Move(id, amt, src, dst, desc); err != nil {
			return err
		}
		out.Amount = amt
		out.Actor = after(tx, id)
		return nil
	})
}

// Pay transfers cash from actor to target.
func (e *Economy) Pay(ctx context.Context, actor, target string, amount Amount) (Outcome, error) {
	return e.run(ctx, ActionPay, []string{actor, target}, func(tx *bank.Tx, out *Outcome) error {
		a, err := begin(tx, out, actor)
		if err != nil {
			return err
		}
		if actor == target {
			return bank.Fail(bank.KindSelfTarget)
		}
		t, err := tx.Account(target)
		if err != nil {
			return err
		}
		out.TargetBefore = ptr(t)
		amt, err := amount.resolve(a.Cash)
		if err != nil {
			return err
		}
		if err := tx.Transfer(actor, target, amt, fmt.Sprintf("Payment from %s to %s", actor, target)); err != nil {
			return err
		}
		out.Amount = amt
		out.Actor = after(tx, actor)
		out.Target = after(tx, target)
		return nil
	})
}

// Rob either steals part of the target's cash or fines the actor.
// Won reports which branch happened; Amount is the stolen sum or the fine.
func (e *Economy) Rob(ctx context.Context, actor, target string) (Outcome, error) {
	r := e.rules.Rob
	return e.run(ctx, ActionRob, []string{actor, target}, func(tx *bank.Tx, out *Outcome) error {
		a, err := begin(tx, out, actor)
		if err != nil {
			return err
		}
		if actor == target {
			return bank.Fail(bank.KindSelfTarget)
		}
		t, err := tx.Account(target)
		if err != nil {
			return err
		}
		out.TargetBefore = ptr(t)
		if t.Cash < r.MinCash {
			return &bank.Failure{Kind: bank.KindTargetTooPoor, Required: r.MinCash, Available: t.Cash}
		}
		if a.Cash < r.MinCash {
			return &bank.Failure{Kind: bank.KindActorTooPoor, Required: r.MinCash, Available: a.Cash}
		}

		if decimal.NewFromFloat(e.rng.Float64()).LessThan(r.SuccessRate) {
			spread := r.MaxStealRate.Sub(r.MinStealRate)
			rate := r.MinStealRate.Add(spread.Mul(decimal.NewFromFloat(e.rng.Float64())))
			stolen := decimal.NewFromInt(t.Cash).Mul(rate).Floor().IntPart()
			stolen = max(min(stolen, r.MaxGain, t.Cash), 1)
			if err := tx.Transfer(target, actor, stolen, fmt.Sprintf("Robbery: %s robbed %s", actor, target)); err != nil {
				return err
			}
			out.Won = true
			out.Amount = stolen
		} else {
			fine := decimal.NewFromInt(a.Cash).Mul(r.LossRate).Floor().IntPart()
			fine = min(fine, r.MaxLoss, a.Cash)
			if fine > 0 {
				if err := tx.Debit(actor, fine, fmt.Sprintf("Robbery fine: %s was caught robbing %s", actor, target)); err != nil {
					return err
				}
			}
			out.Amount = fine
		}
		out.Actor = after(tx, actor)
		out.Target = after(tx, target)
		return nil
	})
}

// Coinflip bets amount on a side of a fair coin.
func (e *Economy) Coinflip(ctx context.Context, id string, amount Amount, choice string) (Outcome, error) {
	return e.run(ctx, ActionCoinflip, []string{id}, func(tx *bank.Tx, out *Outcome) error {
		out.Choice = choice
		a, err := begin(tx, out, id)
		if err != nil {
			return err
		}
		if choice != Heads && choice != Tails {
			return bank.Fail(bank.KindInvalidChoice)
		}
		amt, err := amount.resolve(a.Cash)
		if err != nil {
			return err
		}
		if amt > a.Cash {
			return &bank.Failure{Kind: bank.KindInsufficientFunds, Required: amt, Available: a.Cash}
		}

		side := Heads
		if e.rng.IntN(2) == 1 {
			side = Tails
		}
		out.Side = side
		out.Amount = amt
		if side == choice {
			out.Won = true
			out.Net = amt
			err = tx.Credit(id, amt, "Coinflip win")
		} else {
			out.Net = -amt
			err = tx.Debit(id, amt, "Coinflip loss")
		}
		if err != nil {
			return err
		}
		out.Actor = after(tx, id)
		return nil
	})
}

// Slots spins three reels and settles the difference between payout and stake.
func (e *Economy) Slots(ctx context.Context, id string, amount Amount) (Outcome, error) {
	s := e.rules.Slots
	return e.run(ctx, ActionSlots, []string{id}, func(tx *bank.Tx, out *Outcome) error {
		a, err := begin(tx, out, id)
		if err != nil {
			return err
		}
		stake, err := amount.resolve(a.Cash)
		if err != nil {
			return err
		}
		if stake > a.Cash {
			return &bank.Failure{Kind: bank.KindInsufficientFunds, Required: stake, Available: a.Cash}
		}

		reels := make([]string, 3)
		for i := range reels {
			reels[i] = s.Symbols[e.rng.IntN(len(s.Symbols))].Name
		}
		mult := s.multiplier(reels)
		payout := decimal.NewFromInt(stake).Mul(mult).Floor().IntPart()
		net := payout - stake

		switch {
		case net > 0:
			err = tx.Credit(id, net, "Slots win")
		case net < 0:
			err = tx.Debit(id, -net, "Slots loss")
		}
		if err != nil {
			return err
		}
		out.Amount = stake
		out.Reels = reels
		out.Multiplier = mult.String()
		out.Payout = payout
		out.Net = net
		out.Won = net > 0
		out.Actor = after(tx, id)
		return nil
	})
}

// AdminGive credits amount to the target's purse.
func (e *Economy) AdminGive(ctx context.Context, caller, target string, amount int64, purse bank.Purse) (Outcome, error) {
	if err := e.authorize(caller, ActionAdminGive); err != nil {
		return e.deny(ctx, Outcome{Action: ActionAdminGive, Caller: caller, Purse: purse}, err)
	}
	return e.run(ctx, ActionAdminGive, []string{target}, func(tx *bank.Tx, out *Outcome) error {
		out.Caller = caller
		out.Purse = purse
		t, err := tx.Account(target)
		if err != nil {
			return err
		}
		out.TargetBefore = ptr(t)
		if err := tx.CreditPurse(target, purse, amount, fmt.Sprintf("Admin give by %s (%s)", caller, purse)); err != nil {
			return err
		}
		out.Amount = amount
		out.Target = after(tx, target)
		return nil
	})
}

// AdminTake removes up to amount from the target's purse, never overdrawing.
// PurseAll drains cash first, then bank, writing one record per purse.
func (e *Economy) AdminTake(ctx context.Context, caller, target string, amount Amount, purse bank.Purse) (Outcome, error) {
	if err := e.authorize(caller, ActionAdminTake); err != nil {
		return e.deny(ctx, Outcome{Action: ActionAdminTake, Caller: caller, Purse: purse}, err)
	}
	return e.run(ctx, ActionAdminTake, []string{target}, func(tx *bank.Tx, out *Outcome) error {
		out.Caller = caller
		out.Purse = purse
		t, err := tx.Account(target)
		if err != nil {
			return err
		}
		out.TargetBefore = ptr(t)
		if !amount.All && amount.Value <= 0 {
			return bank.Fail(bank.KindInvalidAmount)
		}

		purses := []bank.Purse{purse}
		if purse == PurseAll {
			purses = []bank.Purse{bank.PurseCash, bank.PurseBank}
		} else if !purse.Valid() {
			return bank.Fail(bank.KindInvalidPurse)
		}

		remaining := amount.Value
		var taken int64
		for _, p := range purses {
			take := t.Balance(p)
			if !amount.All {
				take = min(take, remaining)
			}
			if take <= 0 {
				continue
			}
			if err := tx.DebitPurse(target, p, take, fmt.Sprintf("Admin take by %s (%s)", caller, p)); err != nil {
				return err
			}
			taken += take
			remaining -= take
		}
		out.Amount = taken
		out.Target = after(tx, target)
		return nil
	})
}

func (e *Economy) authorize(caller, action string) error {
	if e.auth.IsAdmin(caller) {
		return nil
	}
	e.logger.Warn("admin action denied", "caller", caller, "action", action)
	return bank.Fail(bank.KindPermissionDenied)
}

// Leaderboard returns the ranked snapshot.
func (e *Economy) Leaderboard(ctx context.Context) Outcome {
	_, span := e.tracer.Start(ctx, "economy."+ActionLeaderboard)
	defer span.End()
	out := Outcome{Action: ActionLeaderboard, OK: true, Leaderboard: e.ledger.Leaderboard(e.rules.LeaderboardSize)}
	span.SetAttributes(attribute.Int("economy.leaderboard.rows", len(out.Leaderboard)))
	e.metrics.observe(ActionLeaderboard, out.result())
	return out
}
