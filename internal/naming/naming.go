package naming

import (
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

// ToSnake converts a camelCase or PascalCase name to snake_case, keeping
// acronyms together: "DirectorID" → "director_id", "HTTPServer" →
// "http_server". Dashes, dots and spaces become underscores.
func ToSnake(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		switch {
		case r == '-' || r == '.' || r == ' ':
			r = '_'
		case i > 0 && unicode.IsUpper(r) && wordStart(runes, i):
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// wordStart reports whether the uppercase rune at i opens a new word:
// after a lowercase letter or digit, or as the last capital of an
// acronym followed by lowercase ("HTTPServer" at 'S').
func wordStart(runes []rune, i int) bool {
	prev := runes[i-1]
	if unicode.IsLower(prev) || unicode.IsDigit(prev) {
		return true
	}
	return unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1])
}

// SnakeToCamel converts a column-style name to camelCase.
// Underscores, dashes, dots and spaces separate words:
// "created_at" → "createdAt", "Title" → "title", "ID" → "id".
func SnakeToCamel(s string) string {
	words := splitWords(s)
	var b strings.Builder
	for i, w := range words {
		if i == 0 {
			b.WriteString(lowerWord(w))
			continue
		}
		b.WriteString(upperFirst(strings.ToLower(w)))
	}
	return b.String()
}

// ToPascal converts s to PascalCase: "order_items" → "OrderItems".
func ToPascal(s string) string {
	return upperFirst(SnakeToCamel(s))
}

// Singular returns the singular PascalCase form of a table name:
// "categories" → "Category", "order_items" → "OrderItem".
func Singular(table string) string {
	words := splitWords(table)
	if len(words) == 0 {
		return ""
	}
	last := len(words) - 1
	words[last] = inflection.Singular(strings.ToLower(words[last]))
	return ToPascal(strings.Join(words, "_"))
}

// Plural returns the plural form of a camelCase or PascalCase word,
// keeping the case of the first letter: "category" → "categories".
func Plural(name string) string {
	return inflection.Plural(name)
}

// LowerFirst lowercases the first rune of s.
func LowerFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// lowerWord lowercases an all-caps word entirely ("ID" → "id") and
// otherwise only the first rune ("userName" → "userName").
func lowerWord(w string) string {
	if strings.ToUpper(w) == w {
		return strings.ToLower(w)
	}
	return LowerFirst(w)
}

func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == '_' || r == '-' || r == '.' || r == ' '
	})
}
