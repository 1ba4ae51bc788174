// internal/economy/rules.go
//
// Rules 集中所有遊戲參數：初始餘額、每日 / 工作獎勵範圍與冷卻、搶劫機率與上限、
// 拉霸符號與賠率。預設值寫死於 DefaultRules，可用 YAML 檔覆寫部分欄位。

package economy

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"economy/internal/bank"
)

// Range is an inclusive integer interval.
type Range struct {
	Min int64 `yaml:"min"`
	Max int64 `yaml:"max"`
}

// EarnRule 為冷卻型獎勵（daily / work）。
type EarnRule struct {
	Min      int64         `yaml:"min"`
	Max      int64         `yaml:"max"`
	Cooldown time.Duration `yaml:"cooldown"`
	Jobs     []string      `yaml:"jobs,omitempty"`
}

// Range 回傳獎勵範圍。
func (r EarnRule) Range() Range { return Range{Min: r.Min, Max: r.Max} }

// RobRule 定義搶劫的成功率、偷取比例與罰金。
type RobRule struct {
	SuccessRate  decimal.Decimal `yaml:"success_rate"`
	MinStealRate decimal.Decimal `yaml:"min_steal_rate"`
	MaxStealRate decimal.Decimal `yaml:"max_steal_rate"`
	MaxGain      int64           `yaml:"max_gain"`
	LossRate     decimal.Decimal `yaml:"loss_rate"`
	MaxLoss      int64           `yaml:"max_loss"`
	MinCash      int64           `yaml:"min_cash"`
}

// SlotSymbol is one reel symbol and its triple-match multiplier.
type SlotSymbol struct {
	Name   string          `yaml:"name"`
	Triple decimal.Decimal `yaml:"triple"`
}

// SlotsRule 定義拉霸字母表與部分櫻桃規則。
type SlotsRule struct {
	Symbols     []SlotSymbol    `yaml:"symbols"`
	Cherry      string          `yaml:"cherry"`
	TwoCherries decimal.Decimal `yaml:"two_cherries"`
	OneCherry   decimal.Decimal `yaml:"one_cherry"`
}

// Rules holds every tunable of the economy.
type Rules struct {
	StartingBalance int64     `yaml:"starting_balance"`
	Daily           EarnRule  `yaml:"daily"`
	Work            EarnRule  `yaml:"work"`
	Rob             RobRule   `yaml:"rob"`
	Slots           SlotsRule `yaml:"slots"`
	LeaderboardSize int       `yaml:"leaderboard_size"`
}

// DefaultRules returns the built-in tuning.
func DefaultRules() Rules {
	d := decimal.RequireFromString
	return Rules{
		StartingBalance: bank.DefaultStartingBalance,
		Daily:           EarnRule{Min: 500, Max: 1500, Cooldown: 24 * time.Hour},
		Work: EarnRule{
			Min:      100,
			Max:      500,
			Cooldown: 2 * time.Hour,
			Jobs: []string{
				"barista", "programmer", "delivery driver", "chef", "streamer",
				"mechanic", "teacher", "artist", "gardener", "cashier",
			},
		},
		Rob: RobRule{
			SuccessRate:  d("0.45"),
			MinStealRate: d("0.10"),
			MaxStealRate: d("0.30"),
			MaxGain:      5000,
			LossRate:     d("0.10"),
			MaxLoss:      1000,
			MinCash:      100,
		},
		Slots: SlotsRule{
			Symbols: []SlotSymbol{
				{Name: "diamond", Triple: d("10")},
				{Name: "seven", Triple: d("8")},
				{Name: "bell", Triple: d("6")},
				{Name: "lemon", Triple: d("4")},
				{Name: "cherry", Triple: d("3")},
			},
			Cherry:      "cherry",
			TwoCherries: d("2"),
			OneCherry:   d("1.5"),
		},
		LeaderboardSize: bank.DefaultLeaderboardSize,
	}
}

// LoadRules reads a YAML file over DefaultRules. An empty path returns the
// defaults.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	if path == "" {
		return rules, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("failed to read rules file: %w", err)
	}
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return Rules{}, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := rules.Validate(); err != nil {
		return Rules{}, err
	}
	return rules, nil
}

// Validate 檢查參數的一致性。
func (r Rules) Validate() error {
	var errs []error
	if r.StartingBalance < 0 {
		errs = append(errs, fmt.Errorf("starting_balance must be >= 0"))
	}
	for name, e := range map[string]EarnRule{"daily": r.Daily, "work": r.Work} {
		if e.Min <= 0 || e.Max < e.Min {
			errs = append(errs, fmt.Errorf("%s: need 0 < min <= max, got [%d, %d]", name, e.Min, e.Max))
		}
		if e.Cooldown <= 0 {
			errs = append(errs, fmt.Errorf("%s: cooldown must be positive", name))
		}
	}
	if len(r.Work.Jobs) == 0 {
		errs = append(errs, fmt.Errorf("work: at least one job is required"))
	}

	zero, one := decimal.Zero, decimal.NewFromInt(1)
	for name, v := range map[string]decimal.Decimal{
		"rob.success_rate":   r.Rob.SuccessRate,
		"rob.min_steal_rate": r.Rob.MinStealRate,
		"rob.max_steal_rate": r.Rob.MaxStealRate,
		"rob.loss_rate":      r.Rob.LossRate,
	} {
		if v.LessThan(zero) || v.GreaterThan(one) {
			errs = append(errs, fmt.Errorf("%s must be within [0, 1], got %s", name, v))
		}
	}
	if r.Rob.MaxStealRate.LessThan(r.Rob.MinStealRate) {
		errs = append(errs, fmt.Errorf("rob: max_steal_rate < min_steal_rate"))
	}
	if r.Rob.MaxGain <= 0 || r.Rob.MaxLoss < 0 || r.Rob.MinCash <= 0 {
		errs = append(errs, fmt.Errorf("rob: max_gain and min_cash must be positive, max_loss non-negative"))
	}

	if len(r.Slots.Symbols) == 0 {
		errs = append(errs, fmt.Errorf("slots: alphabet is empty"))
	}
	seen := make(map[string]bool)
	for _, s := range r.Slots.Symbols {
		if s.Name == "" || seen[s.Name] {
			errs = append(errs, fmt.Errorf("slots: symbol names must be unique and non-empty"))
			break
		}
		seen[s.Name] = true
	}
	if r.Slots.Cherry != "" && !seen[r.Slots.Cherry] {
		errs = append(errs, fmt.Errorf("slots: cherry symbol %q is not in the alphabet", r.Slots.Cherry))
	}
	if r.LeaderboardSize <= 0 {
		errs = append(errs, fmt.Errorf("leaderboard_size must be positive"))
	}
	return errors.Join(errs...)
}

// multiplier 依三個轉輪結果回傳賠率：
// 三連 → 該符號倍率；恰兩個櫻桃 → TwoCherries；恰一個 → OneCherry；其他 → 0。
func (s SlotsRule) multiplier(reels []string) decimal.Decimal {
	if len(reels) == 3 && reels[0] == reels[1] && reels[1] == reels[2] {
		for _, sym := range s.Symbols {
			if sym.Name == reels[0] {
				return sym.Triple
			}
		}
	}
	cherries := 0
	for _, r := range reels {
		if s.Cherry != "" && r == s.Cherry {
			cherries++
		}
	}
	switch cherries {
	case 2:
		return s.TwoCherries
	case 1:
		return s.OneCherry
	}
	return decimal.Zero
}
