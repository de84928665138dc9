package ledger

// Mempool keeps pending transactions in arrival order.
type Mempool struct {
	pending []TxId
	known   map[TxId]bool
	removed map[TxId]bool
}

func NewMempool() *Mempool {
	return &Mempool{pending: make([]TxId, 0, 100), known: make(map[TxId]bool), removed: make(map[TxId]bool)}
}

// Add reports whether the transaction was new to this mempool.
func (pool *Mempool) Add(id TxId) bool {
	if pool.known[id] {
		return false
	}
	pool.known[id] = true
	pool.pending = append(pool.pending, id)
	return true
}

func (pool *Mempool) Knows(id TxId) bool {
	return pool.known[id]
}

// Take returns up to max pending transactions in arrival order, skipping excluded ones.
// The transactions stay in the pool until Remove is called.
func (pool *Mempool) Take(max int, exclude map[TxId]bool) []TxId {
	txs := make([]TxId, 0, max)
	for _, id := range pool.pending {
		if len(txs) >= max {
			break
		}
		if pool.removed[id] || exclude[id] {
			continue
		}
		txs = append(txs, id)
	}
	return txs
}

// Remove drops committed transactions.
func (pool *Mempool) Remove(ids ...TxId) {
	for _, id := range ids {
		pool.known[id] = true
		pool.removed[id] = true
	}
	if len(pool.removed) > 64 && len(pool.removed)*2 > len(pool.pending) {
		pool.compact()
	}
}

func (pool *Mempool) compact() {
	pending := make([]TxId, 0, len(pool.pending))
	for _, id := range pool.pending {
		if !pool.removed[id] {
			pending = append(pending, id)
		}
	}
	pool.pending = pending
	pool.removed = make(map[TxId]bool)
}

func (pool *Mempool) Len() int {
	n := 0
	for _, id := range pool.pending {
		if !pool.removed[id] {
			n++
		}
	}
	return n
}
