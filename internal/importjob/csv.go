// Package importjob turns uploaded CSV payloads into targets and prospects.
// Work is split into fixed-size chunks so that a large file is processed by a
// chain of short invocations, each resuming from the stored watermark.
package importjob

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrEmptyPayload is returned when a payload has no data rows.
var ErrEmptyPayload = eris.New("importjob: payload has no rows")

// Row is one data row of an import payload. Line is its 1-based position
// among data rows, which is also the watermark after it is processed.
type Row struct {
	Line     int
	Domain   string
	Company  string
	Traffic  string
	Industry string
}

// ManualTraffic parses the optional traffic column, tolerating thousands
// separators. It returns 0 when the column is blank or unreadable.
func (r Row) ManualTraffic() int64 {
	s := strings.NewReplacer(",", "", "_", "", " ", "").Replace(r.Traffic)
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f < 0 {
			return 0
		}
		return int64(f)
	}
	if n < 0 {
		return 0
	}
	return n
}

// columns maps the fields we read to record positions; -1 means absent.
type columns struct {
	domain, company, traffic, industry int
}

// positional is the layout assumed when the payload has no header row.
var positional = columns{domain: 0, company: 1, traffic: 2, industry: 3}

var headerAliases = map[string]string{
	"domain":          "domain",
	"website":         "domain",
	"url":             "domain",
	"site":            "domain",
	"company":         "company",
	"company name":    "company",
	"company_name":    "company",
	"name":            "company",
	"business":        "company",
	"traffic":         "traffic",
	"monthly traffic": "traffic",
	"monthly_traffic": "traffic",
	"visits":          "traffic",
	"industry":        "industry",
	"category":        "industry",
}

// detectHeader reports whether record is a header row and, if so, where each
// known column lives. A record is a header when one of its cells names the
// domain column.
func detectHeader(record []string) (columns, bool) {
	cols := columns{domain: -1, company: -1, traffic: -1, industry: -1}
	for i, cell := range record {
		key := strings.ToLower(strings.TrimSpace(cell))
		switch headerAliases[key] {
		case "domain":
			if cols.domain < 0 {
				cols.domain = i
			}
		case "company":
			if cols.company < 0 {
				cols.company = i
			}
		case "traffic":
			if cols.traffic < 0 {
				cols.traffic = i
			}
		case "industry":
			if cols.industry < 0 {
				cols.industry = i
			}
		}
	}
	if cols.domain < 0 {
		return positional, false
	}
	return cols, true
}

// ParseRows parses a quote-aware CSV payload. Blank records are skipped and
// do not count as rows.
func ParseRows(payload string) ([]Row, error) {
	reader := csv.NewReader(strings.NewReader(strings.TrimPrefix(payload, "\ufeff")))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var (
		rows  []Row
		cols  columns
		first = true
	)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "importjob: read csv row")
		}
		if blank(record) {
			continue
		}
		if first {
			first = false
			var header bool
			cols, header = detectHeader(record)
			if header {
				continue
			}
		}
		rows = append(rows, Row{
			Line:     len(rows) + 1,
			Domain:   field(record, cols.domain),
			Company:  field(record, cols.company),
			Traffic:  field(record, cols.traffic),
			Industry: field(record, cols.industry),
		})
	}
	return rows, nil
}

// CountRows returns the number of data rows in payload.
func CountRows(payload string) (int, error) {
	rows, err := ParseRows(payload)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func field(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func blank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
