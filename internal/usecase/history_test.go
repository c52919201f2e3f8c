package usecase

import (
	"fmt"
	"testing"

	"FinExec/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func histSignal(id, symbol string) models.TradingSignal {
	return models.TradingSignal{ID: id, Symbol: symbol, Action: models.ActionBuy, Timestamp: testStart}
}

func TestSignalHistory_EvictsOldestAcrossIndexes(t *testing.T) {
	h := newSignalHistory(3)
	h.add(histSignal("a", "BTCUSDT"), models.SignalProcessingResult{SignalID: "a", Status: models.StatusExecuted})
	h.add(histSignal("b", "ETHUSDT"), models.SignalProcessingResult{SignalID: "b", Status: models.StatusRejected})
	h.add(histSignal("c", "BTCUSDT"), models.SignalProcessingResult{SignalID: "c", Status: models.StatusExecuted})
	h.add(histSignal("d", "BTCUSDT"), models.SignalProcessingResult{SignalID: "d", Status: models.StatusFailed})

	assert.Equal(t, 3, h.len())
	assert.Empty(t, h.results("a", 10))
	_, ok := h.bySignal["a"]
	assert.False(t, ok)

	btc := h.signals("BTCUSDT", 0)
	require.Len(t, btc, 2)
	assert.Equal(t, "c", btc[0].ID)
	assert.Equal(t, "d", btc[1].ID)

	all := h.signals("", 2)
	require.Len(t, all, 2)
	assert.Equal(t, "c", all[0].ID)
	assert.Equal(t, "d", all[1].ID)
}

func TestSignalHistory_ResultsBySignal(t *testing.T) {
	h := newSignalHistory(0)
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("s%d", i%2)
		h.add(histSignal(id, "BTCUSDT"), models.SignalProcessingResult{SignalID: id, RiskScore: float64(i)})
	}

	res := h.results("s0", 0)
	require.Len(t, res, 3)
	assert.Equal(t, 4.0, res[2].RiskScore)

	last := h.results("s1", 1)
	require.Len(t, last, 1)
	assert.Equal(t, 3.0, last[0].RiskScore)

	assert.Empty(t, h.signals("SOLUSDT", 5))
}

func TestFloorToStep(t *testing.T) {
	assert.Equal(t, 0.123, floorToStep(0.12345, 0.001))
	assert.Equal(t, 1.0, floorToStep(1.9, 1))
	assert.Equal(t, 0.3, floorToStep(0.3, 0.1))
	assert.Equal(t, 0.42, floorToStep(0.42, 0))
}
