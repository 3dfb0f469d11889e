package database

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"tradingbot/src/backtest"
	"tradingbot/src/cex"

	"github.com/shopspring/decimal"
)

// ErrBadCSV CSV 文件无法解析为K线
var ErrBadCSV = errors.New("malformed kline csv")

var csvTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// csvColumns 各字段所在列
type csvColumns struct {
	time, open, high, low, close, volume int
}

var positionalColumns = csvColumns{time: 0, open: 1, high: 2, low: 3, close: 4, volume: 5}

// LoadCSV 读取K线 CSV 文件
func LoadCSV(path string, pair cex.TradingPair) ([]*cex.KlineData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open csv: %w", err)
	}
	defer f.Close()

	return ReadCSV(f, pair)
}

// ReadCSV 解析 timestamp,open,high,low,close,volume 格式的K线，表头可选；
// 时间支持 unix 秒、unix 毫秒和 RFC3339，结果按时间升序
func ReadCSV(r io.Reader, pair cex.TradingPair) ([]*cex.KlineData, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCSV, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	cols := positionalColumns
	start := 0
	if _, err := parseCSVTime(records[0][0]); err != nil {
		cols, err = headerColumns(records[0])
		if err != nil {
			return nil, err
		}
		start = 1
	}

	klines := make([]*cex.KlineData, 0, len(records)-start)
	for i := start; i < len(records); i++ {
		k, err := parseCSVRow(records[i], cols, pair)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrBadCSV, i+1, err)
		}
		klines = append(klines, k)
	}

	sort.SliceStable(klines, func(i, j int) bool {
		return klines[i].OpenTime.Before(klines[j].OpenTime)
	})
	return klines, nil
}

func headerColumns(header []string) (csvColumns, error) {
	cols := csvColumns{time: -1, open: -1, high: -1, low: -1, close: -1, volume: -1}
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "timestamp", "open_time", "time", "date", "datetime":
			cols.time = i
		case "open":
			cols.open = i
		case "high":
			cols.high = i
		case "low":
			cols.low = i
		case "close":
			cols.close = i
		case "volume":
			cols.volume = i
		}
	}
	if cols.time < 0 || cols.open < 0 || cols.high < 0 || cols.low < 0 || cols.close < 0 {
		return cols, fmt.Errorf("%w: header %v lacks time/open/high/low/close", ErrBadCSV, header)
	}
	return cols, nil
}

func parseCSVRow(row []string, cols csvColumns, pair cex.TradingPair) (*cex.KlineData, error) {
	field := func(idx int) (string, error) {
		if idx < 0 || idx >= len(row) {
			return "", fmt.Errorf("missing column %d", idx)
		}
		return strings.TrimSpace(row[idx]), nil
	}
	price := func(idx int) (decimal.Decimal, error) {
		s, err := field(idx)
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	}

	ts, err := field(cols.time)
	if err != nil {
		return nil, err
	}
	openTime, err := parseCSVTime(ts)
	if err != nil {
		return nil, err
	}

	k := &cex.KlineData{TradingPair: pair, OpenTime: openTime}
	if k.Open, err = price(cols.open); err != nil {
		return nil, err
	}
	if k.High, err = price(cols.high); err != nil {
		return nil, err
	}
	if k.Low, err = price(cols.low); err != nil {
		return nil, err
	}
	if k.Close, err = price(cols.close); err != nil {
		return nil, err
	}
	if cols.volume >= 0 && cols.volume < len(row) && strings.TrimSpace(row[cols.volume]) != "" {
		if k.Volume, err = price(cols.volume); err != nil {
			return nil, err
		}
	}
	return k, nil
}

// parseCSVTime 13 位及以上的整数视为毫秒，否则为秒
func parseCSVTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if len(strings.TrimPrefix(s, "-")) >= 13 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	for _, layout := range csvTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// WriteTradesCSV 导出交易记录
func WriteTradesCSV(w io.Writer, trades []*backtest.TradeRecord) error {
	writer := csv.NewWriter(w)
	header := []string{
		"id", "side", "size", "entry_time", "exit_time", "entry_price", "exit_price",
		"stop_pct", "target_pct", "exit_reason", "pnl", "fees", "net_pnl", "return_pct", "balance",
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, t := range trades {
		row := []string{
			t.ID, string(t.Side), t.Size.String(),
			t.EntryTime.Format(time.RFC3339), t.ExitTime.Format(time.RFC3339),
			t.EntryPrice.String(), t.ExitPrice.String(),
			t.StopPct.String(), t.TargetPct.String(), string(t.Reason),
			t.PnL.StringFixed(8), t.Fees.StringFixed(8), t.NetPnL.StringFixed(8),
			t.ReturnPct.StringFixed(4), t.Balance.StringFixed(8),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteGridCSV 导出参数扫描结果
func WriteGridCSV(w io.Writer, results []*backtest.GridResult) error {
	writer := csv.NewWriter(w)
	header := []string{
		"fast", "slow", "stop_pct", "target_pct", "leverage", "trades", "total_return",
		"sharpe", "sortino", "max_drawdown", "win_rate", "profit_factor", "final_equity", "liquidated", "error",
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, r := range results {
		row := []string{
			strconv.Itoa(r.Point.Fast), strconv.Itoa(r.Point.Slow),
			strconv.FormatFloat(r.Point.StopPct, 'f', -1, 64),
			strconv.FormatFloat(r.Point.TargetPct, 'f', -1, 64),
			r.Point.Leverage.String(),
		}
		if r.Result != nil {
			s := r.Result.Statistics
			row = append(row,
				strconv.Itoa(s.TotalTrades), s.TotalReturn.StringFixed(4),
				s.SharpeRatio.String(), s.SortinoRatio.String(), s.MaxDrawdown.StringFixed(4),
				strconv.FormatFloat(s.WinRate.Float64(), 'f', 4, 64), s.ProfitFactor.String(),
				s.FinalEquity.StringFixed(2), strconv.FormatBool(r.Result.Liquidated), "",
			)
		} else {
			row = append(row, "", "", "", "", "", "", "", "", "", r.Err)
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}
