package ingest

import (
	"regexp"
	"strings"
)

var (
	// channelPathRe — ID канала внутри пути вида /channel/<id>.
	channelPathRe = regexp.MustCompile(`(?i)/channel/([A-Za-z0-9_-]+)`)

	// bareIDRe — голый ID канала: префикс UC и минимум 20 символов.
	bareIDRe = regexp.MustCompile(`^UC[A-Za-z0-9_-]{20,}$`)
)

// ExtractChannelID возвращает канонический ID канала из строки.
//
// Поддерживаемые формы:
//   - URL или путь, содержащий /channel/<id> (регистр не важен)
//   - голый ID: UC + не менее 20 символов [A-Za-z0-9_-]
//
// Пробелы по краям отбрасываются. Второе значение false, если ID не найден.
func ExtractChannelID(value string) (string, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", false
	}

	if m := channelPathRe.FindStringSubmatch(trimmed); m != nil {
		return m[1], true
	}

	if bareIDRe.MatchString(trimmed) {
		return trimmed, true
	}

	return "", false
}

// FromFields извлекает ID из пары полей (id, url).
//
// Если оба поля разбираются, приоритет у URL: ID из пути считается
// более надёжным, чем значение колонки id.
func FromFields(idValue, urlValue string) (string, bool) {
	if id, ok := ExtractChannelID(urlValue); ok {
		return id, true
	}
	return ExtractChannelID(idValue)
}
