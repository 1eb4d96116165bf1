package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/shaiso/Bulksub/internal/domain"
)

// Columns — индексы найденных колонок. -1 означает «колонка отсутствует».
type Columns struct {
	ID    int
	URL   int
	Title int
}

// HasSource возвращает true, если найдена колонка с ID или с URL.
func (c Columns) HasSource() bool {
	return c.ID >= 0 || c.URL >= 0
}

// ParseCSV читает CSV и возвращает список каналов без дубликатов.
//
// Первая строка — заголовок. Колонки определяются по именам:
//   - ID:    содержит "id" и ("canal" или "channel")
//   - URL:   содержит "url" и ("canal" или "channel")
//   - Title: содержит "titulo" или "title"
//
// Заголовки сравниваются в нижнем регистре без диакритики,
// поэтому "Título" и "ID do Canal" тоже распознаются.
// Строки без распознаваемого ID пропускаются, дубликаты отбрасываются
// с сохранением первого вхождения и исходного порядка.
// Если не осталось ни одной записи, возвращается ErrNoEntries.
func ParseCSV(r io.Reader) ([]domain.Entry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyCSV
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCSV, err)
	}

	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	cols := DetectColumns(header)

	var rows [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCSV, err)
		}
		if isBlank(record) {
			continue
		}
		rows = append(rows, record)
	}

	if len(rows) == 0 {
		return nil, ErrEmptyCSV
	}
	if !cols.HasSource() {
		return nil, ErrNoIDColumn
	}

	d := NewDeduper()
	for _, record := range rows {
		idValue := field(record, cols.ID)
		urlValue := field(record, cols.URL)

		channelID, ok := FromFields(idValue, urlValue)
		if !ok {
			continue
		}
		d.Add(domain.Entry{
			ChannelID: channelID,
			Title:     strings.TrimSpace(field(record, cols.Title)),
			URL:       strings.TrimSpace(urlValue),
		})
	}

	if len(d.Entries()) == 0 {
		return nil, ErrNoEntries
	}
	return d.Entries(), nil
}

// DetectColumns определяет индексы колонок ID, URL и Title по заголовку.
func DetectColumns(header []string) Columns {
	normalized := make([]string, len(header))
	for i, h := range header {
		normalized[i] = NormalizeHeader(h)
	}

	return Columns{
		ID: findColumn(normalized, func(h string) bool {
			return strings.Contains(h, "id") && mentionsChannel(h)
		}),
		URL: findColumn(normalized, func(h string) bool {
			return strings.Contains(h, "url") && mentionsChannel(h)
		}),
		Title: findColumn(normalized, func(h string) bool {
			return strings.Contains(h, "titulo") || strings.Contains(h, "title")
		}),
	}
}

// NormalizeHeader приводит заголовок к нижнему регистру и удаляет диакритику.
func NormalizeHeader(value string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, value)
	if err != nil {
		folded = value
	}
	return strings.ToLower(strings.TrimSpace(folded))
}

// --- Helpers ---

func mentionsChannel(h string) bool {
	return strings.Contains(h, "canal") || strings.Contains(h, "channel")
}

func findColumn(headers []string, match func(string) bool) int {
	for i, h := range headers {
		if match(h) {
			return i
		}
	}
	return -1
}

func field(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return record[idx]
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
