package domain

import (
	"fmt"
	"strings"
)

// Locale is a content language published by the Bungie API.
// Code keys the manifest's per-locale path map; Suffix names the storage collection.
type Locale struct {
	Name   string
	Code   string
	Suffix string
}

// Known locales. The set is fixed at compile time; which of them are ingested
// is decided by configuration (see config.IngestConfig.Locales).
var (
	LocaleEnglish            = Locale{Name: "ENGLISH", Code: "en", Suffix: "eng"}
	LocaleChineseSimplified  = Locale{Name: "CHINESE_SIMPLIFIED", Code: "zh-chs", Suffix: "chs"}
	LocaleChineseTraditional = Locale{Name: "CHINESE_TRADITIONAL", Code: "zh-cht", Suffix: "cht"}
)

// KnownLocales returns every locale the updater knows how to name and store.
func KnownLocales() []Locale {
	return []Locale{LocaleEnglish, LocaleChineseSimplified, LocaleChineseTraditional}
}

// DefaultActiveLocales is the locale set ingested when configuration does not override it.
// Traditional Chinese is known but not active.
func DefaultActiveLocales() []Locale {
	return []Locale{LocaleEnglish, LocaleChineseSimplified}
}

func (l Locale) String() string { return l.Name }

// IsZero reports whether l is the zero Locale.
func (l Locale) IsZero() bool { return l == Locale{} }

// ParseLocale resolves a locale by manifest code, collection suffix or name (case-insensitive).
func ParseLocale(s string) (Locale, error) {
	needle := strings.ToLower(strings.TrimSpace(s))
	for _, l := range KnownLocales() {
		if needle == l.Code || needle == l.Suffix || needle == strings.ToLower(l.Name) {
			return l, nil
		}
	}
	return Locale{}, fmt.Errorf("%q: %w", s, ErrUnknownLocale)
}

// ParseLocales parses a comma-separated locale list, dropping duplicates and blanks
// while keeping the first-seen order.
func ParseLocales(raw string) ([]Locale, error) {
	var (
		out  []Locale
		seen = make(map[Locale]bool)
	)
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		l, err := ParseLocale(part)
		if err != nil {
			return nil, err
		}
		if seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out, nil
}
