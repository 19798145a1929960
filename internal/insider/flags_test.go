package insider

import (
	"strings"
	"testing"
)

func TestFlagsThreshold(t *testing.T) {
	trades := []Trade{
		{InsiderName: "A. Patel", SharesSold: 150000, Date: "2024-02-01"},
		{InsiderName: "B. Shah", SharesSold: 100000, Date: "2024-02-02"}, // at threshold, not over
		{InsiderName: "C. Mehta", SharesSold: 99999, Date: "2024-02-03"},
	}
	flags := Flags(trades)
	if len(flags) != 1 {
		t.Fatalf("flags = %v", flags)
	}
	if !strings.Contains(flags[0], "A. Patel sold 150000 shares") {
		t.Fatalf("flag text = %q", flags[0])
	}
}

func TestReadTradesAnyColumnOrder(t *testing.T) {
	csvText := "date,insider_name,shares_sold\n2024-01-15,A. Patel,250000\n2024-01-20,B. Shah,notanumber\n2024-01-22,C. Mehta,5000\n"
	trades, err := ReadTrades(strings.NewReader(csvText))
	if err != nil {
		t.Fatalf("ReadTrades: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("trades = %+v", trades)
	}
	if trades[0].SharesSold != 250000 || trades[0].InsiderName != "A. Patel" {
		t.Fatalf("first trade = %+v", trades[0])
	}
}

func TestReadTradesMissingColumn(t *testing.T) {
	if _, err := ReadTrades(strings.NewReader("a,b\n1,2\n")); err == nil {
		t.Fatal("expected error for missing columns")
	}
}

func TestReadTradesEmptyInput(t *testing.T) {
	trades, err := ReadTrades(strings.NewReader(""))
	if err != nil {
		t.Fatalf("ReadTrades empty: %v", err)
	}
	if len(trades) != 0 {
		t.Fatalf("trades = %+v", trades)
	}
}
