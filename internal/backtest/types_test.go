package backtest

import "testing"

func TestTrade_IsWin(t *testing.T) {
	if !(Trade{Return: 0.001}).IsWin() {
		t.Error("positive return should be a win")
	}
	if (Trade{Return: 0}).IsWin() {
		t.Error("flat trade is not a win")
	}
}

func TestTrade_IsClosed(t *testing.T) {
	if (Trade{}).IsClosed() {
		t.Error("zero trade should be open")
	}
	if !(Trade{Closed: true}).IsClosed() {
		t.Error("expected closed trade")
	}
}
