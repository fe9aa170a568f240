// Package preview parses raw CSV sources into header-keyed tables for the
// data viewers. Parsed tables are memoised by content hash so repeated
// previews of the same source do not re-read it.
package preview

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/user/vernacular/internal/logging"
)

const (
	// DefaultRows is the number of data rows kept in a preview.
	DefaultRows = 100

	// EmptyState is rendered when no sources are loaded.
	EmptyState = "NO DATA SOURCES LOADED"

	// Unparseable is rendered when a source yields no columns.
	Unparseable = "Unable to parse data or file is empty"

	cacheTTL = 10 * time.Minute
)

// ErrEmpty is returned when the content has no header row.
var ErrEmpty = errors.New("preview: no columns")

// Table is a parsed source limited to the first rows.
type Table struct {
	Headers     []string            `json:"headers"`
	Rows        []map[string]string `json:"rows"`
	RecordCount int                 `json:"recordCount"`
	Truncated   bool                `json:"truncated"`
	Limit       int                 `json:"limit"`
}

// Footer describes the preview limit, e.g. "PREVIEW MODE (TOP 100 ROWS)".
func (t *Table) Footer() string {
	return fmt.Sprintf("PREVIEW MODE (TOP %d ROWS)", t.Limit)
}

// Cell returns the value of column for row i, or "" when absent.
func (t *Table) Cell(i int, column string) string {
	if i < 0 || i >= len(t.Rows) {
		return ""
	}
	return t.Rows[i][column]
}

// Parser parses and caches previews.
type Parser struct {
	rows   int
	cache  *cache.Cache
	logger *zap.Logger
}

// New returns a parser keeping at most rows data rows per preview
// (DefaultRows when rows <= 0).
func New(rows int, logger *zap.Logger) *Parser {
	if rows <= 0 {
		rows = DefaultRows
	}
	return &Parser{
		rows: rows,
		// no janitor goroutine; expired entries are purged on write
		cache:  cache.New(cacheTTL, 0),
		logger: logging.Named(logger, "preview"),
	}
}

// Rows returns the preview row limit.
func (p *Parser) Rows() int { return p.rows }

// Parse parses raw CSV content. The first non-empty line is the header;
// blank lines are skipped. RecordCount counts every data row, not just
// the previewed ones.
func (p *Parser) Parse(raw string) (*Table, error) {
	key := contentKey(raw)
	if v, ok := p.cache.Get(key); ok {
		return v.(*Table), nil
	}

	t, err := parse(raw, p.rows)
	if err != nil {
		p.logger.Debug("preview parse failed", zap.Error(err))
		return nil, err
	}

	p.cache.DeleteExpired()
	p.cache.Set(key, t, cache.DefaultExpiration)
	return t, nil
}

// Count returns the number of data rows in raw, or 0 when it cannot be
// parsed.
func (p *Parser) Count(raw string) int {
	t, err := p.Parse(raw)
	if err != nil {
		return 0
	}
	return t.RecordCount
}

func parse(raw string, limit int) (*Table, error) {
	r := csv.NewReader(strings.NewReader(raw))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var headers []string
	t := &Table{Limit: limit}
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("preview: read csv: %w", err)
		}
		if blank(rec) {
			continue
		}
		if headers == nil {
			headers = normalizeHeaders(rec)
			continue
		}
		t.RecordCount++
		if len(t.Rows) >= limit {
			t.Truncated = true
			continue
		}
		row := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(rec) {
				row[h] = rec[i]
			}
		}
		t.Rows = append(t.Rows, row)
	}

	if len(headers) == 0 {
		return nil, ErrEmpty
	}
	t.Headers = headers
	return t, nil
}

// normalizeHeaders strips a UTF-8 BOM and names blank or duplicate columns
// so every cell stays addressable. The first occurrence of a name keeps it;
// generated names skip any name already in the header.
func normalizeHeaders(rec []string) []string {
	names := make([]string, len(rec))
	out := make([]string, len(rec))
	used := make(map[string]bool, len(rec))
	for i, h := range rec {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		names[i] = h
		if h != "" && !used[h] {
			out[i] = h
			used[h] = true
		}
	}
	for i, base := range names {
		if out[i] != "" {
			continue
		}
		if base == "" {
			base = fmt.Sprintf("column_%d", i+1)
		}
		name := base
		for n := 2; used[name]; n++ {
			name = fmt.Sprintf("%s_%d", base, n)
		}
		out[i] = name
		used[name] = true
	}
	return out
}

func blank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func contentKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
