package economy

import (
	"strconv"
	"strings"

	"economy/internal/bank"
)

// Amount is either an exact positive value or "all" of what is available.
type Amount struct {
	All   bool
	Value int64
}

// Exactly returns a fixed amount.
func Exactly(n int64) Amount { return Amount{Value: n} }

// AllOf returns the "all" amount.
func AllOf() Amount { return Amount{All: true} }

// ParseAmount accepts "all" (any case) or a positive integer.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "all") {
		return AllOf(), nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return Amount{}, bank.Fail(bank.KindInvalidAmount)
	}
	return Exactly(n), nil
}

func (a Amount) String() string {
	if a.All {
		return "all"
	}
	return strconv.FormatInt(a.Value, 10)
}

// resolve 依可用餘額換算實際金額；"all" 遇到 0 可用時視為非正數金額。
func (a Amount) resolve(available int64) (int64, error) {
	if a.All {
		if available <= 0 {
			return 0, bank.Fail(bank.KindInvalidAmount)
		}
		return available, nil
	}
	if a.Value <= 0 {
		return 0, bank.Fail(bank.KindInvalidAmount)
	}
	return a.Value, nil
}
