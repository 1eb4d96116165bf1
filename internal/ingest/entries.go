package ingest

import (
	"strings"

	"github.com/shaiso/Bulksub/internal/domain"
)

// Deduper собирает записи, отбрасывая повторы по ChannelID.
// Порядок первых вхождений сохраняется.
type Deduper struct {
	seen    map[string]struct{}
	entries []domain.Entry
}

// NewDeduper создаёт пустой Deduper.
func NewDeduper() *Deduper {
	return &Deduper{seen: make(map[string]struct{})}
}

// Add добавляет запись. Возвращает false, если ChannelID уже встречался.
func (d *Deduper) Add(e domain.Entry) bool {
	if _, ok := d.seen[e.ChannelID]; ok {
		return false
	}
	d.seen[e.ChannelID] = struct{}{}
	d.entries = append(d.entries, e)
	return true
}

// Entries возвращает накопленные записи.
func (d *Deduper) Entries() []domain.Entry {
	return d.entries
}

// NormalizeEntries приводит записи из JSON к каноническому виду.
//
// Поле channel_id может содержать как голый ID, так и ссылку;
// url используется, если channel_id пуст или не разбирается.
// Записи без распознаваемого ID пропускаются.
func NormalizeEntries(in []domain.Entry) ([]domain.Entry, error) {
	d := NewDeduper()
	for _, e := range in {
		channelID, ok := FromFields(e.ChannelID, e.URL)
		if !ok {
			continue
		}
		d.Add(domain.Entry{
			ChannelID: channelID,
			Title:     strings.TrimSpace(e.Title),
			URL:       strings.TrimSpace(e.URL),
		})
	}

	if len(d.Entries()) == 0 {
		return nil, ErrNoEntries
	}
	return d.Entries(), nil
}
