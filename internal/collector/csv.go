package collector

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"TrendSentinel/internal/model"
)

var csvTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006.01.02 15:04:05",
	"2006.01.02 15:04",
	"2006-01-02",
}

// ReadCSV parses time,open,high,low,close[,...] rows, oldest first.
// Time is unix seconds, unix milliseconds, or one of the common text layouts
// (UTC unless the value carries an offset). A header row and UTF-16 files,
// as exported by MetaTrader, are accepted. Rows that do not parse are skipped.
func ReadCSV(r io.Reader) ([]model.Bar, error) {
	br := bufio.NewReader(r)
	if b, _ := br.Peek(2); len(b) == 2 && ((b[0] == 0xFF && b[1] == 0xFE) || (b[0] == 0xFE && b[1] == 0xFF)) {
		br = bufio.NewReader(transform.NewReader(br, unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()))
	}
	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	var bars []model.Bar
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		if len(rec) < 5 {
			continue
		}
		ts, err := parseCSVTime(rec[0])
		if err != nil {
			continue
		}
		var px [4]float64
		ok := true
		for i := range px {
			v, err := strconv.ParseFloat(strings.TrimSpace(strings.Trim(rec[i+1], `"`)), 64)
			if err != nil {
				ok = false
				break
			}
			px[i] = v
		}
		if !ok {
			continue
		}
		bars = append(bars, model.Bar{Time: ts, Open: px[0], High: px[1], Low: px[2], Close: px[3]})
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars, nil
}

func parseCSVTime(s string) (time.Time, error) {
	s = strings.TrimSpace(strings.TrimPrefix(s, "\ufeff"))
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	for _, layout := range csvTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}

// LoadCSV reads and validates a bar file.
func LoadCSV(path string) ([]model.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	bars, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := model.ValidateSeries(bars); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return bars, nil
}

// CSVFeed serves bars from <Dir>/<symbol>_<timeframe>.csv, re-reading the file on
// every fetch so an external process can keep appending to it.
type CSVFeed struct {
	Dir string
}

func (f *CSVFeed) Name() string { return "csv" }

// Path returns the file backing (symbol, tf).
func (f *CSVFeed) Path(symbol string, tf model.Timeframe) string {
	return filepath.Join(f.Dir, fmt.Sprintf("%s_%s.csv", symbol, tf))
}

func (f *CSVFeed) FetchBars(_ context.Context, symbol string, tf model.Timeframe, count int) ([]model.Bar, error) {
	bars, err := LoadCSV(f.Path(symbol, tf))
	if err != nil {
		return nil, err
	}
	return model.Last(bars, count), nil
}
