package bank

import "slices"

// DefaultLeaderboardSize is the number of entries returned by default.
const DefaultLeaderboardSize = 10

// Ranked is one leaderboard row.
type Ranked struct {
	Rank  int    `json:"rank"`
	ID    string `json:"id"`
	Cash  int64  `json:"cash"`
	Bank  int64  `json:"bank"`
	Total int64  `json:"total"`
}

// Rank 為純函式：過濾總額 > 0 的帳戶，依總額遞減排序（同額保持輸入順序），取前 n 名。
func Rank(accounts []Account, n int) []Ranked {
	if n <= 0 {
		n = DefaultLeaderboardSize
	}
	rows := make([]Ranked, 0, len(accounts))
	for _, a := range accounts {
		if a.Total() <= 0 {
			continue
		}
		rows = append(rows, Ranked{ID: a.ID, Cash: a.Cash, Bank: a.Bank, Total: a.Total()})
	}
	slices.SortStableFunc(rows, func(a, b Ranked) int {
		switch {
		case a.Total > b.Total:
			return -1
		case a.Total < b.Total:
			return 1
		}
		return 0
	})
	if len(rows) > n {
		rows = rows[:n]
	}
	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows
}
