package utils

import (
	"regexp"
	"strings"
)

// Номера храним в каноническом виде +996XXXXXXXXX (9 цифр после кода страны).
var phoneRe = regexp.MustCompile(`^\+996\d{9}$`)

// NormalizePhone приводит номер к каноническому виду: убирает пробелы,
// скобки и дефисы, подставляет "+" и код страны для локальной записи
// (0XXXXXXXXX). Возвращает "" если номер не похож на кыргызстанский.
func NormalizePhone(raw string) string {
	s := strings.TrimSpace(raw)
	replacer := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "")
	s = replacer.Replace(s)

	switch {
	case strings.HasPrefix(s, "+996"):
		// как есть
	case strings.HasPrefix(s, "996"):
		s = "+" + s
	case strings.HasPrefix(s, "0") && len(s) == 10:
		s = "+996" + s[1:]
	}

	if !phoneRe.MatchString(s) {
		return ""
	}
	return s
}

// IsValidPhone — проверка уже нормализованного номера.
func IsValidPhone(phone string) bool {
	return phoneRe.MatchString(phone)
}
