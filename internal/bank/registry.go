// internal/bank/registry.go
//
// Registry 擁有記憶體中的帳戶表（id → Account），並提供逐帳戶互斥：
//   - 每個帳戶一把鎖；同一帳戶上的操作彼此線性化。
//   - 需要兩個帳戶時，依 id 排序取得鎖，避免反向轉帳造成死結。
//   - view 讀寫鎖：異動工作階段持有共享鎖，整體快照（排行榜）持有獨占鎖，
//     以取得跨帳戶一致的畫面，不會看到轉帳進行到一半的狀態。

package bank

import (
	"slices"
	"sync"
)

type entry struct {
	mu   sync.Mutex
	acct Account
	seq  int64
	// persisted 表示儲存層已有此帳戶；removed 表示已自帳戶表移除。兩者皆在 mu 之下讀寫。
	persisted bool
	removed   bool
}

// Registry owns every Account record.
type Registry struct {
	view sync.RWMutex

	mu       sync.Mutex
	accounts map[string]*entry
	nextSeq  int64
	starting int64
}

// NewRegistry 建立空白帳戶表；新帳戶以 startingBalance 作為初始現金。
func NewRegistry(startingBalance int64) *Registry {
	return &Registry{accounts: make(map[string]*entry), starting: startingBalance}
}

// entry 取得（必要時建立）帳戶項目。
// 建立在 r.mu 之下完成，重複呼叫不會重複發放初始餘額。
func (r *Registry) entry(id string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.accounts[id]; ok {
		return e
	}
	r.nextSeq++
	e := &entry{acct: Account{ID: id, Cash: r.starting}, seq: r.nextSeq}
	r.accounts[id] = e
	return e
}

// restore 放入從儲存層載入的帳戶；僅於啟動時呼叫。
func (r *Registry) restore(a Account) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextSeq++
	r.accounts[a.ID] = &entry{acct: a, seq: r.nextSeq, persisted: true}
}

// Peek 回傳帳戶的值拷貝；尚未建立的帳戶回傳初始餘額，但不放入帳戶表。
func (r *Registry) Peek(id string) Account {
	if a, ok := r.Get(id); ok {
		return a
	}
	return Account{ID: id, Cash: r.starting}
}

// Get 回傳已寫入儲存層的帳戶；不存在時不建立。
func (r *Registry) Get(id string) (Account, bool) {
	r.mu.Lock()
	e, ok := r.accounts[id]
	r.mu.Unlock()
	if !ok {
		return Account{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.persisted || e.removed {
		return Account{}, false
	}
	return e.acct.clone(), true
}

// Len 回傳帳戶數量。
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.accounts)
}

// Snapshot 回傳所有帳戶的一致快照，依建立順序排列。
// 期間所有異動工作階段都被排除在外。
func (r *Registry) Snapshot() []Account {
	r.view.Lock()
	defer r.view.Unlock()

	r.mu.Lock()
	entries := make([]*entry, 0, len(r.accounts))
	for _, e := range r.accounts {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	slices.SortFunc(entries, func(a, b *entry) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})
	out := make([]Account, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if e.persisted {
			out = append(out, e.acct.clone())
		}
		e.mu.Unlock()
	}
	return out
}

// locked 為一次工作階段持有的帳戶集合。
// created 標記尚未寫入儲存層的帳戶，提交時一併寫入。
type locked struct {
	entries map[string]*entry
	created map[string]bool
	order   []*entry
}

// lock 取得 view 共享鎖，並依排序後的 id 逐一鎖住帳戶。
// 呼叫端必須呼叫 unlock。
func (r *Registry) lock(ids ...string) *locked {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	r.view.RLock()
	l := &locked{
		entries: make(map[string]*entry, len(sorted)),
		created: make(map[string]bool),
	}
	for _, id := range sorted {
		e := r.acquire(id)
		l.entries[id] = e
		l.order = append(l.order, e)
		if !e.persisted {
			l.created[id] = true
		}
	}
	return l
}

// acquire 鎖住 id 目前的項目；等待期間項目被 discard 時重新取得。
func (r *Registry) acquire(id string) *entry {
	for {
		e := r.entry(id)
		e.mu.Lock()
		if !e.removed {
			return e
		}
		e.mu.Unlock()
	}
}

// discard 移除本工作階段建立、但未寫入儲存層的帳戶，須在 unlock 之前呼叫。
func (r *Registry) discard(l *locked) {
	for id := range l.created {
		e := l.entries[id]
		if e.persisted {
			continue
		}
		e.removed = true
		r.mu.Lock()
		if r.accounts[id] == e {
			delete(r.accounts, id)
		}
		r.mu.Unlock()
	}
}

func (r *Registry) unlock(l *locked) {
	for i := len(l.order) - 1; i >= 0; i-- {
		l.order[i].mu.Unlock()
	}
	r.view.RUnlock()
}
