package usecase

import "FinExec/internal/domain/models"

type historyEntry struct {
	signal models.TradingSignal
	result models.SignalProcessingResult
}

// signalHistory is a bounded record of processed signals indexed by symbol
// and signal id. Entries are evicted oldest first, which is also the head of
// every index list. Not safe for concurrent use.
type signalHistory struct {
	limit    int
	entries  []*historyEntry
	bySymbol map[string][]*historyEntry
	bySignal map[string][]*historyEntry
}

func newSignalHistory(limit int) *signalHistory {
	if limit <= 0 {
		limit = 1000
	}
	return &signalHistory{
		limit:    limit,
		bySymbol: make(map[string][]*historyEntry),
		bySignal: make(map[string][]*historyEntry),
	}
}

func (h *signalHistory) add(sig models.TradingSignal, res models.SignalProcessingResult) {
	e := &historyEntry{signal: sig, result: res}
	h.entries = append(h.entries, e)
	h.bySymbol[sig.Symbol] = append(h.bySymbol[sig.Symbol], e)
	h.bySignal[sig.ID] = append(h.bySignal[sig.ID], e)

	for len(h.entries) > h.limit {
		old := h.entries[0]
		h.entries[0] = nil
		h.entries = h.entries[1:]
		dropHead(h.bySymbol, old.signal.Symbol)
		dropHead(h.bySignal, old.signal.ID)
	}
}

func dropHead(idx map[string][]*historyEntry, key string) {
	list := idx[key]
	if len(list) <= 1 {
		delete(idx, key)
		return
	}
	idx[key] = list[1:]
}

func (h *signalHistory) source(idx map[string][]*historyEntry, key string) []*historyEntry {
	if key == "" {
		return h.entries
	}
	return idx[key]
}

// signals returns up to limit most recent signals, newest last. An empty
// symbol matches all.
func (h *signalHistory) signals(symbol string, limit int) []models.TradingSignal {
	src := tail(h.source(h.bySymbol, symbol), limit)
	out := make([]models.TradingSignal, len(src))
	for i, e := range src {
		out[i] = e.signal
	}
	return out
}

func (h *signalHistory) results(signalID string, limit int) []models.SignalProcessingResult {
	src := tail(h.source(h.bySignal, signalID), limit)
	out := make([]models.SignalProcessingResult, len(src))
	for i, e := range src {
		out[i] = e.result
	}
	return out
}

func (h *signalHistory) len() int { return len(h.entries) }

func tail(list []*historyEntry, limit int) []*historyEntry {
	if limit > 0 && len(list) > limit {
		return list[len(list)-limit:]
	}
	return list
}
