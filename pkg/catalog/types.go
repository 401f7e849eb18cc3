package catalog

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Hash is the 64-bit key addressing a file's content. Every locale or
// content variant that resolves to the same bytes shares one Hash.
type Hash uint64

// String renders the hash the way synthetic unknown-file names are built.
func (h Hash) String() string {
	return fmt.Sprintf("%016X", uint64(h))
}

// HashPath derives a Hash from a logical path.
//
// The path is normalized first (both separators become '\', letters are
// upper-cased) so "World/Maps/x.adt" and "world\maps\X.ADT" collide on
// purpose. Backends use it for name sources that carry no explicit key.
func HashPath(path string) Hash {
	return Hash(xxhash.Sum64String(strings.ToUpper(NormalizePath(path))))
}

// NormalizePath joins the non-empty segments of path with '\'.
func NormalizePath(path string) string {
	return strings.Join(SplitPath(path), PathSeparator)
}

// SplitPath splits on '/' and '\', dropping empty segments.
func SplitPath(path string) []string {
	return strings.FieldsFunc(path, func(r rune) bool {
		return r == '/' || r == '\\'
	})
}

// PathSeparator separates segments of a catalog full path.
const PathSeparator = `\`

// UnknownFolderName is the reserved top-level folder holding files whose
// path could not be derived from the name source.
const UnknownFolderName = "unknown"

// ============================================================================
// Locale flags
// ============================================================================

// LocaleFlags is the set of locales a root entry is visible in.
type LocaleFlags uint32

const (
	LocaleNone LocaleFlags = 0
	LocaleEnUS LocaleFlags = 0x2
	LocaleKoKR LocaleFlags = 0x4
	LocaleFrFR LocaleFlags = 0x10
	LocaleDeDE LocaleFlags = 0x20
	LocaleZhCN LocaleFlags = 0x40
	LocaleEsES LocaleFlags = 0x80
	LocaleZhTW LocaleFlags = 0x100
	LocaleEnGB LocaleFlags = 0x200
	LocaleEnCN LocaleFlags = 0x400
	LocaleEnTW LocaleFlags = 0x800
	LocaleEsMX LocaleFlags = 0x1000
	LocaleRuRU LocaleFlags = 0x2000
	LocalePtBR LocaleFlags = 0x4000
	LocaleItIT LocaleFlags = 0x8000
	LocalePtPT LocaleFlags = 0x10000
	LocaleAll  LocaleFlags = 0xFFFFFFFF
)

var localeNames = []struct {
	flag LocaleFlags
	name string
}{
	{LocaleEnUS, "enUS"},
	{LocaleKoKR, "koKR"},
	{LocaleFrFR, "frFR"},
	{LocaleDeDE, "deDE"},
	{LocaleZhCN, "zhCN"},
	{LocaleEsES, "esES"},
	{LocaleZhTW, "zhTW"},
	{LocaleEnGB, "enGB"},
	{LocaleEnCN, "enCN"},
	{LocaleEnTW, "enTW"},
	{LocaleEsMX, "esMX"},
	{LocaleRuRU, "ruRU"},
	{LocalePtBR, "ptBR"},
	{LocaleItIT, "itIT"},
	{LocalePtPT, "ptPT"},
}

// Intersects reports whether f and other share at least one locale.
func (f LocaleFlags) Intersects(other LocaleFlags) bool {
	return f&other != 0
}

func (f LocaleFlags) String() string {
	switch f {
	case LocaleNone:
		return "None"
	case LocaleAll:
		return "All"
	}

	var parts []string
	rest := f
	for _, l := range localeNames {
		if f&l.flag != 0 {
			parts = append(parts, l.name)
			rest &^= l.flag
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%X", uint32(rest)))
	}
	return strings.Join(parts, ", ")
}

// ParseLocale parses a single locale name ("enUS"), "All" or "None".
// Names are matched case-insensitively.
func ParseLocale(s string) (LocaleFlags, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "all":
		return LocaleAll, nil
	case "none":
		return LocaleNone, nil
	}
	for _, l := range localeNames {
		if strings.EqualFold(l.name, strings.TrimSpace(s)) {
			return l.flag, nil
		}
	}
	return LocaleNone, fmt.Errorf("unknown locale %q", s)
}

// ParseLocales parses a comma separated list of locale names into a set.
func ParseLocales(s string) (LocaleFlags, error) {
	var flags LocaleFlags
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		f, err := ParseLocale(part)
		if err != nil {
			return LocaleNone, err
		}
		flags |= f
	}
	return flags, nil
}

// ============================================================================
// Content flags
// ============================================================================

// ContentFlags describe platform and variant properties of a root entry.
type ContentFlags uint32

const (
	ContentNone          ContentFlags = 0
	ContentHighRes       ContentFlags = 0x1
	ContentInstall       ContentFlags = 0x4
	ContentLoadOnWindows ContentFlags = 0x8
	ContentLoadOnMac     ContentFlags = 0x10
	ContentX86_32        ContentFlags = 0x20
	ContentX86_64        ContentFlags = 0x40
	// ContentLowViolence marks the override variant selected by the
	// override-archive option.
	ContentLowViolence  ContentFlags = 0x80
	ContentDoNotLoad    ContentFlags = 0x100
	ContentUpdatePlugin ContentFlags = 0x800
	ContentEncrypted    ContentFlags = 0x8000000
	ContentNoNameHash   ContentFlags = 0x10000000
	ContentUncommonRes  ContentFlags = 0x20000000
	ContentBundle       ContentFlags = 0x40000000
	ContentNoCompress   ContentFlags = 0x80000000
)

// ContentOverride is the content flag whose entries win over normal ones at
// the same path when the override archive is enabled.
const ContentOverride = ContentLowViolence

var contentNames = []struct {
	flag ContentFlags
	name string
}{
	{ContentHighRes, "HighResTexture"},
	{ContentInstall, "Install"},
	{ContentLoadOnWindows, "LoadOnWindows"},
	{ContentLoadOnMac, "LoadOnMac"},
	{ContentX86_32, "x86_32"},
	{ContentX86_64, "x86_64"},
	{ContentLowViolence, "LowViolence"},
	{ContentDoNotLoad, "DoNotLoad"},
	{ContentUpdatePlugin, "UpdatePlugin"},
	{ContentEncrypted, "Encrypted"},
	{ContentNoNameHash, "NoNameHash"},
	{ContentUncommonRes, "UncommonResolution"},
	{ContentBundle, "Bundle"},
	{ContentNoCompress, "NoCompression"},
}

// Has reports whether every bit of flag is set in f.
func (f ContentFlags) Has(flag ContentFlags) bool {
	return f&flag == flag
}

func (f ContentFlags) String() string {
	if f == ContentNone {
		return "None"
	}

	var parts []string
	rest := f
	for _, c := range contentNames {
		if f&c.flag != 0 {
			parts = append(parts, c.name)
			rest &^= c.flag
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%X", uint32(rest)))
	}
	return strings.Join(parts, ", ")
}

// RootEntry is one locale/content variant under which a hash is published.
type RootEntry struct {
	LocaleFlags  LocaleFlags
	ContentFlags ContentFlags
}

// MergeEntries OR-combines the flags of entries for display.
func MergeEntries(entries []RootEntry) RootEntry {
	var merged RootEntry
	for _, e := range entries {
		merged.LocaleFlags |= e.LocaleFlags
		merged.ContentFlags |= e.ContentFlags
	}
	return merged
}
