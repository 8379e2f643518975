package organize

import (
	"fmt"
	"strings"

	"github.com/artemshloyda/photoingest/internal/metadata"
)

// Kind - вид стратегии организации. Набор закрыт.
type Kind string

const (
	// KindDateBased - photos/YYYY/MM/DD.
	KindDateBased Kind = "date_based"
	// KindPostBased - posts/{slug}.
	KindPostBased Kind = "post_based"
	// KindTagBased - tags/{primaryTag}.
	KindTagBased Kind = "tag_based"
	// KindCustom - шаблоны из конфигурации.
	KindCustom Kind = "custom"
)

// Kinds возвращает все виды стратегий.
func Kinds() []Kind {
	return []Kind{KindDateBased, KindPostBased, KindTagBased, KindCustom}
}

// ParseKind разбирает имя стратегии. Для неизвестного имени возвращает
// KindDateBased и ok=false.
func ParseKind(name string) (kind Kind, ok bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(name))) {
	case KindDateBased:
		return KindDateBased, true
	case KindPostBased:
		return KindPostBased, true
	case KindTagBased:
		return KindTagBased, true
	case KindCustom:
		return KindCustom, true
	default:
		return KindDateBased, false
	}
}

// Встроенные шаблоны.
const (
	DateFolder   = "photos/${YYYY}/${MM}/${DD}"
	DateFilename = "${YYYY}-${MM}-${DD}_${shortId}.${ext}"
	PostFolder   = "posts/${slug}"
	PostFilename = "${basename}_${shortId}.${ext}"
	TagFolder    = "tags/${primaryTag}"
	TagFilename  = "${YYYY}${MM}${DD}_${shortId}.${ext}"
)

// Strategy - стратегия организации: шаблоны папки и имени файла плюс флаги вариантов.
type Strategy struct {
	// Kind - вид стратегии.
	Kind Kind

	// Folder - шаблон пути папки.
	Folder *Template

	// Filename - шаблон имени файла.
	Filename *Template

	// GenerateThumbnails - разрешает ли стратегия миниатюру.
	GenerateThumbnails bool

	// PreserveOriginals - разрешает ли стратегия оригинал.
	PreserveOriginals bool
}

// Name возвращает имя стратегии.
func (s Strategy) Name() string {
	return string(s.Kind)
}

// Uses возвращает true, если токен встречается в шаблоне папки или имени.
func (s Strategy) Uses(tok Token) bool {
	for _, tpl := range []*Template{s.Folder, s.Filename} {
		if tpl == nil {
			continue
		}
		for _, t := range tpl.Tokens() {
			if t == tok {
				return true
			}
		}
	}
	return false
}

// CustomTemplates - пользовательские шаблоны и флаги для KindCustom.
type CustomTemplates struct {
	Folder   string
	Filename string

	// NoThumbnails запрещает миниатюры для стратегии custom.
	NoThumbnails bool

	// NoOriginals запрещает сохранение оригиналов для стратегии custom.
	NoOriginals bool
}

// Встроенные стратегии разбираются один раз.
var builtins = map[Kind][2]*Template{
	KindDateBased: {MustParse(DateFolder), MustParse(DateFilename)},
	KindPostBased: {MustParse(PostFolder), MustParse(PostFilename)},
	KindTagBased:  {MustParse(TagFolder), MustParse(TagFilename)},
}

// Builtin возвращает встроенную стратегию указанного вида. Для KindCustom
// используются шаблоны custom; пустые поля заменяются шаблонами date_based.
func Builtin(kind Kind, custom CustomTemplates) (Strategy, error) {
	if tpl, ok := builtins[kind]; ok {
		return Strategy{
			Kind:               kind,
			Folder:             tpl[0],
			Filename:           tpl[1],
			GenerateThumbnails: true,
			PreserveOriginals:  true,
		}, nil
	}
	if kind != KindCustom {
		return Strategy{}, fmt.Errorf("неизвестный вид стратегии: %s", kind)
	}

	folder, filename := custom.Folder, custom.Filename
	if folder == "" {
		folder = DateFolder
	}
	if filename == "" {
		filename = DateFilename
	}

	ft, err := Parse(folder)
	if err != nil {
		return Strategy{}, fmt.Errorf("шаблон папки стратегии %s: %w", kind, err)
	}
	nt, err := Parse(filename)
	if err != nil {
		return Strategy{}, fmt.Errorf("шаблон имени стратегии %s: %w", kind, err)
	}

	return Strategy{
		Kind:               kind,
		Folder:             ft,
		Filename:           nt,
		GenerateThumbnails: !custom.NoThumbnails,
		PreserveOriginals:  !custom.NoOriginals,
	}, nil
}

// Resolve выбирает стратегию по имени. Неизвестное имя даёт date_based, fellBack=true.
func Resolve(name string, custom CustomTemplates) (s Strategy, fellBack bool, err error) {
	kind, ok := ParseKind(name)
	s, err = Builtin(kind, custom)
	return s, !ok, err
}

// GenerateFolderPath возвращает путь папки без ведущих и конечных "/".
func GenerateFolderPath(meta *metadata.AssetMetadata, s Strategy) string {
	return cleanPath(s.Folder.Render(meta))
}

// GenerateFilename возвращает имя файла. Разделители пути в имени заменяются на "_".
func GenerateFilename(meta *metadata.AssetMetadata, s Strategy) string {
	name := strings.ReplaceAll(s.Filename.Render(meta), "/", "_")
	if name == "" {
		return FallbackUntitled
	}
	return name
}

// GenerateStorageKey возвращает folder + "/" + filename.
func GenerateStorageKey(meta *metadata.AssetMetadata, s Strategy) string {
	folder := GenerateFolderPath(meta, s)
	name := GenerateFilename(meta, s)
	if folder == "" {
		return name
	}
	return folder + "/" + name
}

// cleanPath схлопывает повторные "/" и убирает "." и ".." сегменты.
func cleanPath(p string) string {
	parts := strings.Split(p, "/")
	out := parts[:0]
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" || part == "." || part == ".." {
			continue
		}
		out = append(out, part)
	}
	return strings.Join(out, "/")
}
