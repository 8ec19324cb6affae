package builtin

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/harunnryd/resep/pkg/tools"
)

// StockIndices are the indices the stock data file covers.
var StockIndices = []string{
	"S&P 500",
	"NASDAQ Composite",
	"Dow Jones Industrial Average",
	"Financial Times Stock Exchange 100 Index",
}

var StockMarketSignature = tools.Signature{
	Name:        "get_stock_market_data",
	Description: "Get the stock market data for a given index",
	Params: []tools.Param{
		{Name: "index", Type: tools.TypeString, Required: true, Enum: StockIndices},
	},
}

// StockMarketData serves rows of the CSV at path whose Index column matches
// the requested index. The result is a JSON object of column -> row number -> value,
// without the Index column.
func StockMarketData(path string) tools.Tool {
	return tools.Typed(StockMarketSignature, func(_ context.Context, in struct {
		Index string `json:"index"`
	}) (string, error) {
		if !validIndex(in.Index) {
			return invalidIndexMessage(), nil
		}
		f, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("open stock data: %w", err)
		}
		defer f.Close()
		table, err := readStockTable(f, in.Index)
		if err != nil {
			return "", err
		}
		b, err := json.Marshal(table)
		if err != nil {
			return "", err
		}
		return string(b), nil
	})
}

func validIndex(name string) bool {
	for _, idx := range StockIndices {
		if idx == name {
			return true
		}
	}
	return false
}

func invalidIndexMessage() string {
	quoted := make([]string, len(StockIndices))
	for i, idx := range StockIndices {
		quoted[i] = "'" + idx + "'"
	}
	return "Invalid index. Please choose from " + strings.Join(quoted, ", ") + "."
}

func readStockTable(r io.Reader, index string) (map[string]map[string]any, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read stock header: %w", err)
	}
	indexCol := -1
	for i, h := range header {
		if strings.TrimSpace(h) == "Index" {
			indexCol = i
		}
	}
	if indexCol < 0 {
		return nil, fmt.Errorf("stock data has no Index column")
	}
	table := make(map[string]map[string]any, len(header)-1)
	for i, h := range header {
		if i != indexCol {
			table[h] = map[string]any{}
		}
	}
	for row := 0; ; row++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read stock row %d: %w", row, err)
		}
		if rec[indexCol] != index {
			continue
		}
		key := strconv.Itoa(row)
		for i, h := range header {
			if i == indexCol {
				continue
			}
			table[h][key] = cell(rec[i])
		}
	}
	return table, nil
}

func cell(raw string) any {
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		return v
	}
	return raw
}
