// Package organize строит детерминированные пути хранения по метаданным и стратегии организации.
package organize

import (
	"errors"
	"fmt"
	"strings"

	"github.com/artemshloyda/photoingest/internal/metadata"
)

// Ошибки разбора шаблонов.
var (
	// ErrUnknownToken - токен ${...} не входит в поддерживаемый набор.
	ErrUnknownToken = errors.New("неизвестный токен шаблона")

	// ErrUnterminatedToken - открытый "${" без закрывающей скобки.
	ErrUnterminatedToken = errors.New("незакрытый токен шаблона")
)

// Token - поддерживаемый токен шаблона.
type Token string

const (
	TokenYear       Token = "YYYY"
	TokenMonth      Token = "MM"
	TokenDay        Token = "DD"
	TokenHour       Token = "HH"
	TokenMinute     Token = "mm"
	TokenSecond     Token = "ss"
	TokenSlug       Token = "slug"
	TokenShortID    Token = "shortId"
	TokenCamera     Token = "camera"
	TokenLens       Token = "lens"
	TokenExt        Token = "ext"
	TokenBasename   Token = "basename"
	TokenPrimaryTag Token = "primaryTag"
)

var knownTokens = map[Token]bool{
	TokenYear: true, TokenMonth: true, TokenDay: true,
	TokenHour: true, TokenMinute: true, TokenSecond: true,
	TokenSlug: true, TokenShortID: true, TokenCamera: true,
	TokenLens: true, TokenExt: true, TokenBasename: true,
	TokenPrimaryTag: true,
}

// Значения-заглушки для отсутствующих полей.
const (
	FallbackUntitled = "untitled"
	FallbackUnknown  = "unknown"
	FallbackExt      = "bin"
)

// node - элемент разобранного шаблона: либо литерал, либо токен.
type node struct {
	literal string
	token   Token
}

// Template - разобранный шаблон. Безопасен для конкурентного использования.
type Template struct {
	source string
	nodes  []node
}

// String возвращает исходный текст шаблона.
func (t *Template) String() string {
	return t.source
}

// Parse разбирает шаблон вида "photos/${YYYY}/${MM}".
// "$$" означает литеральный "$"; одиночный "$" без "{" остаётся литералом.
func Parse(src string) (*Template, error) {
	t := &Template{source: src}
	var lit strings.Builder

	flush := func() {
		if lit.Len() > 0 {
			t.nodes = append(t.nodes, node{literal: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(src); i++ {
		c := src[i]
		if c != '$' || i+1 >= len(src) {
			lit.WriteByte(c)
			continue
		}

		switch src[i+1] {
		case '$':
			lit.WriteByte('$')
			i++
		case '{':
			end := strings.IndexByte(src[i+2:], '}')
			if end < 0 {
				return nil, fmt.Errorf("%w в позиции %d: %q", ErrUnterminatedToken, i, src)
			}
			name := Token(src[i+2 : i+2+end])
			if !knownTokens[name] {
				return nil, fmt.Errorf("%w ${%s} в %q", ErrUnknownToken, name, src)
			}
			flush()
			t.nodes = append(t.nodes, node{token: name})
			i += 2 + end
		default:
			lit.WriteByte(c)
		}
	}
	flush()

	return t, nil
}

// MustParse как Parse, но паникует при ошибке. Используется для встроенных шаблонов стратегий.
func MustParse(src string) *Template {
	t, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return t
}

// Tokens возвращает токены шаблона в порядке появления.
func (t *Template) Tokens() []Token {
	var out []Token
	for _, n := range t.nodes {
		if n.token != "" {
			out = append(out, n.token)
		}
	}
	return out
}

// Render подставляет значения из метаданных. Чистая функция от meta.
func (t *Template) Render(meta *metadata.AssetMetadata) string {
	var b strings.Builder
	for _, n := range t.nodes {
		if n.token == "" {
			b.WriteString(n.literal)
			continue
		}
		b.WriteString(tokenValue(n.token, meta))
	}
	return b.String()
}

func tokenValue(tok Token, meta *metadata.AssetMetadata) string {
	d := meta.CaptureDate
	switch tok {
	case TokenYear:
		return fmt.Sprintf("%04d", d.Year())
	case TokenMonth:
		return fmt.Sprintf("%02d", int(d.Month()))
	case TokenDay:
		return fmt.Sprintf("%02d", d.Day())
	case TokenHour:
		return fmt.Sprintf("%02d", d.Hour())
	case TokenMinute:
		return fmt.Sprintf("%02d", d.Minute())
	case TokenSecond:
		return fmt.Sprintf("%02d", d.Second())
	case TokenSlug:
		return orDefault(SanitizeSegment(meta.Slug), FallbackUntitled)
	case TokenShortID:
		return orDefault(SanitizeSegment(meta.ShortID), FallbackUnknown)
	case TokenCamera:
		return orDefault(SanitizeIdent(meta.Camera), FallbackUnknown)
	case TokenLens:
		return orDefault(SanitizeIdent(meta.Lens), FallbackUnknown)
	case TokenExt:
		return orDefault(SanitizeSegment(meta.Ext), FallbackExt)
	case TokenBasename:
		return orDefault(SanitizeSegment(meta.Basename), FallbackUntitled)
	case TokenPrimaryTag:
		return orDefault(SanitizeSegment(meta.PrimaryTag()), FallbackUntitled)
	}
	return ""
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// SanitizeIdent оставляет только [A-Za-z0-9_]; прочие последовательности
// символов заменяются одним "_", крайние "_" обрезаются.
func SanitizeIdent(s string) string {
	return sanitize(s, func(r rune) bool {
		return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
	}, '_', false)
}

// SanitizeSegment делает из строки безопасный сегмент пути: [a-z0-9_-],
// прочее заменяется на "-".
func SanitizeSegment(s string) string {
	return sanitize(s, func(r rune) bool {
		return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-'
	}, '-', true)
}

func sanitize(s string, allowed func(rune) bool, sep byte, lower bool) string {
	if lower {
		s = strings.ToLower(s)
	}
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.TrimSpace(s) {
		if allowed(r) && r != rune(sep) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte(sep)
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}
