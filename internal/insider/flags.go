package insider

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ShareSaleThreshold is the shares_sold level above which a trade becomes a
// red flag.
const ShareSaleThreshold = 100000

type Trade struct {
	InsiderName string
	SharesSold  int64
	Date        string
}

// Flags produces one red-flag string per trade whose sale size exceeds the
// threshold. Pure; ordering follows the input.
func Flags(trades []Trade) []string {
	var flags []string
	for _, t := range trades {
		if t.SharesSold > ShareSaleThreshold {
			flags = append(flags, fmt.Sprintf("%s sold %d shares on %s", t.InsiderName, t.SharesSold, t.Date))
		}
	}
	return flags
}

// ReadTrades parses tabular insider-trade records with shares_sold,
// insider_name, and date columns, in any column order. Rows with a
// non-numeric shares_sold are skipped rather than failing the whole file.
func ReadTrades(r io.Reader) ([]Trade, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("read insider trades header: %w", err)
	}
	col := map[string]int{}
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"shares_sold", "insider_name", "date"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("insider trades missing column %q", required)
		}
	}

	var trades []Trade
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read insider trades row: %w", err)
		}
		shares, err := strconv.ParseInt(strings.TrimSpace(row[col["shares_sold"]]), 10, 64)
		if err != nil {
			continue
		}
		trades = append(trades, Trade{
			InsiderName: strings.TrimSpace(row[col["insider_name"]]),
			SharesSold:  shares,
			Date:        strings.TrimSpace(row[col["date"]]),
		})
	}
	return trades, nil
}
