// Package importer reads DEGIRO transaction exports into the portfolio database.
package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"html"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/degiro-portfolio/degiro-portfolio/internal/domain"
	"github.com/microcosm-cc/bluemonday"
	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFormat is returned for files that are neither .xlsx nor .csv
var ErrUnsupportedFormat = errors.New("unsupported file format, expected .xlsx or .csv")

// Row is one parsed trade of an export. Fee is in Currency.
type Row struct {
	Line         int
	ExecutedAt   time.Time
	Product      string
	ISIN         string
	Exchange     string
	Quantity     float64
	Price        float64
	Currency     domain.Currency
	Fee          float64
	ValueEUR     *float64
	ExchangeRate *float64
	OrderID      string
	FillSeq      int
}

// SkippedRow is a row that could not be turned into a trade
type SkippedRow struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

type column int

const (
	colDate column = iota
	colTime
	colProduct
	colISIN
	colExchange
	colQuantity
	colPrice
	colPriceCurrency
	colLocalValue
	colLocalCurrency
	colValueEUR
	colExchangeRate
	colFee
	colFeeCurrency
	colOrderID
	columnCount
)

// Header aliases of the English and Dutch exports, lower-cased
var headerAliases = map[string]column{
	"date":                                colDate,
	"datum":                               colDate,
	"time":                                colTime,
	"tijd":                                colTime,
	"product":                             colProduct,
	"isin":                                colISIN,
	"reference exchange":                  colExchange,
	"exchange":                            colExchange,
	"beurs":                               colExchange,
	"quantity":                            colQuantity,
	"number":                              colQuantity,
	"aantal":                              colQuantity,
	"price":                               colPrice,
	"koers":                               colPrice,
	"local value":                         colLocalValue,
	"lokale waarde":                       colLocalValue,
	"value":                               colValueEUR,
	"value eur":                           colValueEUR,
	"waarde":                              colValueEUR,
	"exchange rate":                       colExchangeRate,
	"wisselkoers":                         colExchangeRate,
	"transaction and/or third party fees": colFee,
	"transaction costs":                   colFee,
	"transactiekosten":                    colFee,
	"order id":                            colOrderID,
	"order":                               colOrderID,
}

// Amount columns are followed by an unnamed currency column
var currencyOf = map[column]column{
	colPrice:      colPriceCurrency,
	colLocalValue: colLocalCurrency,
	colFee:        colFeeCurrency,
}

var required = []column{colDate, colISIN, colQuantity, colPrice}

// Columns whose values carry decimals and reveal the export's number format
var amountColumns = []column{colPrice, colLocalValue, colValueEUR, colExchangeRate, colFee}

// numberFormat is the decimal separator used throughout one export
type numberFormat int

const (
	formatUndecided numberFormat = iota
	formatCommaDecimal
	formatDotDecimal
)

var dateLayouts = []string{"02-01-2006", "2006-01-02", "02/01/2006"}

// Parser turns export files into rows
type Parser struct {
	policy *bluemonday.Policy
}

// NewParser creates a parser that strips markup from product names
func NewParser() *Parser {
	return &Parser{policy: bluemonday.StrictPolicy()}
}

// Parse reads an .xlsx or .csv export. Rows without an ISIN or a quantity are
// returned as skipped; a missing required column fails the whole file.
// Rows identical in stock, time, quantity, price and order get increasing FillSeq values.
func (p *Parser) Parse(filename string, r io.Reader) ([]Row, []SkippedRow, error) {
	var (
		records [][]string
		err     error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx":
		records, err = readXLSX(r)
	case ".csv":
		records, err = readCSV(r)
	default:
		return nil, nil, ErrUnsupportedFormat
	}
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("%s is empty", filename)
	}

	cols, err := mapHeader(records[0])
	if err != nil {
		return nil, nil, err
	}

	format := detectNumberFormat(cols, records[1:])

	var (
		rows    []Row
		skipped []SkippedRow
		fills   = make(map[fillKey]int)
	)
	for i, record := range records[1:] {
		line := i + 2
		if isBlank(record) {
			continue
		}
		row, err := p.parseRow(cols, record, format)
		if err != nil {
			skipped = append(skipped, SkippedRow{Line: line, Reason: err.Error()})
			continue
		}
		row.Line = line

		key := fillKey{row.ISIN, row.ExecutedAt.Unix(), row.Quantity, row.Price, row.OrderID}
		row.FillSeq = fills[key]
		fills[key]++

		rows = append(rows, row)
	}
	return rows, skipped, nil
}

type fillKey struct {
	isin     string
	executed int64
	quantity float64
	price    float64
	orderID  string
}

// detectNumberFormat votes over the amount columns of every row. Only values
// whose separator is unambiguous count; a tie leaves each value to ParseDecimal.
func detectNumberFormat(cols []int, records [][]string) numberFormat {
	var comma, dot int
	for _, record := range records {
		for _, c := range amountColumns {
			i := cols[c]
			if i < 0 || i >= len(record) {
				continue
			}
			switch decimalSeparator(cleanNumber(record[i])) {
			case ',':
				comma++
			case '.':
				dot++
			}
		}
	}
	switch {
	case comma > dot:
		return formatCommaDecimal
	case dot > comma:
		return formatDotDecimal
	}
	return formatUndecided
}

// decimalSeparator returns the decimal separator of s, or 0 when s could be read
// either way, as in "1.000" or "1,000".
func decimalSeparator(s string) rune {
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			return ','
		}
		return '.'
	case lastComma >= 0 && strings.Count(s, ",") == 1 && len(s)-lastComma-1 != 3:
		return ','
	case lastDot >= 0 && strings.Count(s, ".") == 1 && len(s)-lastDot-1 != 3:
		return '.'
	}
	return 0
}

func (f numberFormat) parse(s string) (float64, error) {
	s = cleanNumber(s)
	switch f {
	case formatCommaDecimal:
		s = strings.Replace(strings.ReplaceAll(s, ".", ""), ",", ".", 1)
	case formatDotDecimal:
		s = strings.ReplaceAll(s, ",", "")
	default:
		return ParseDecimal(s)
	}
	if s == "" {
		return 0, errors.New("empty number")
	}
	return strconv.ParseFloat(s, 64)
}

func readCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(records) > 0 && len(records[0]) > 0 {
		records[0][0] = strings.TrimPrefix(records[0][0], "\ufeff")
	}
	return records, nil
}

func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("spreadsheet has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	return rows, nil
}

// mapHeader returns the record index of every known column, -1 when absent
func mapHeader(header []string) ([]int, error) {
	cols := make([]int, columnCount)
	for i := range cols {
		cols[i] = -1
	}
	for i, name := range header {
		c, ok := headerAliases[strings.ToLower(strings.TrimSpace(name))]
		if !ok || cols[c] >= 0 {
			continue
		}
		cols[c] = i
		if cur, ok := currencyOf[c]; ok && i+1 < len(header) && strings.TrimSpace(header[i+1]) == "" {
			cols[cur] = i + 1
		}
	}

	var missing []string
	for _, c := range required {
		if cols[c] < 0 {
			missing = append(missing, columnName(c))
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return cols, nil
}

func columnName(c column) string {
	switch c {
	case colDate:
		return "Date"
	case colISIN:
		return "ISIN"
	case colQuantity:
		return "Quantity"
	case colPrice:
		return "Price"
	}
	return strconv.Itoa(int(c))
}

func (p *Parser) parseRow(cols []int, record []string, format numberFormat) (Row, error) {
	get := func(c column) string {
		i := cols[c]
		if i < 0 || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	row := Row{
		ISIN:     strings.ToUpper(get(colISIN)),
		Product:  p.sanitize(get(colProduct)),
		Exchange: get(colExchange),
		OrderID:  get(colOrderID),
	}
	if row.ISIN == "" {
		return row, errors.New("missing ISIN")
	}

	qty, err := format.parse(get(colQuantity))
	if err != nil || qty == 0 {
		return row, errors.New("missing quantity")
	}
	row.Quantity = qty

	if row.Price, err = format.parse(get(colPrice)); err != nil {
		return row, fmt.Errorf("invalid price %q", get(colPrice))
	}
	row.Price = abs(row.Price)

	if row.ExecutedAt, err = ParseDateTime(get(colDate), get(colTime)); err != nil {
		return row, err
	}

	row.Currency = domain.NormalizeCurrency(get(colPriceCurrency))
	if row.Currency == "" {
		row.Currency = domain.NormalizeCurrency(get(colLocalCurrency))
	}
	if row.Currency == "" {
		row.Currency = domain.BaseCurrency
	}

	if v, err := format.parse(get(colValueEUR)); err == nil && get(colValueEUR) != "" {
		row.ValueEUR = &v
	}
	if v, err := format.parse(get(colExchangeRate)); err == nil && v > 0 {
		row.ExchangeRate = &v
	}

	if fee, err := format.parse(get(colFee)); err == nil && fee != 0 {
		feeCurrency := domain.NormalizeCurrency(get(colFeeCurrency))
		if feeCurrency == "" {
			feeCurrency = domain.BaseCurrency
		}
		row.Fee = feeInTradeCurrency(abs(fee), feeCurrency, row.Currency, row.ExchangeRate)
	}

	return row, nil
}

// feeInTradeCurrency converts an EUR fee with the row's rate, quoted as trade
// currency units per EUR. Without a rate the amount is kept as is.
func feeInTradeCurrency(fee float64, feeCurrency, trade domain.Currency, rate *float64) float64 {
	if feeCurrency == trade || feeCurrency != domain.BaseCurrency || rate == nil {
		return fee
	}
	return fee * *rate
}

func (p *Parser) sanitize(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	return strings.TrimSpace(html.UnescapeString(p.policy.Sanitize(s)))
}

// ParseDecimal accepts both 1.234,56 and 1,234.56 notations. The separator
// appearing last is the decimal one; a lone comma is always decimal.
// Parse prefers the format detected for the whole file.
func ParseDecimal(s string) (float64, error) {
	s = cleanNumber(s)
	if s == "" {
		return 0, errors.New("empty number")
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0 && lastComma > lastDot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case lastComma >= 0 && lastDot >= 0:
		s = strings.ReplaceAll(s, ",", "")
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	}
	return strconv.ParseFloat(s, 64)
}

func cleanNumber(s string) string {
	s = strings.TrimSpace(strings.Trim(s, "\""))
	return strings.NewReplacer(" ", "", "\u00a0", "", "'", "").Replace(s)
}

// ParseDateTime combines an export date (dd-mm-yyyy) and optional hh:mm time into a UTC timestamp
func ParseDateTime(date, clock string) (time.Time, error) {
	var (
		day time.Time
		err error
	)
	for _, layout := range dateLayouts {
		if day, err = time.Parse(layout, date); err == nil {
			break
		}
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", date)
	}

	if clock == "" {
		return day, nil
	}
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, clock); err == nil {
			return day.Add(time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q", clock)
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
