// Package i18n renders user-facing bot replies from embedded YAML catalogs.
package i18n

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

const FallbackLanguage = "en"

//go:embed locales/*.yaml
var localeFS embed.FS

// Language is a supported language and its display name.
type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Catalog holds flattened message keys ("bot.welcome") per language.
type Catalog struct {
	messages    map[string]map[string]string
	languages   []Language
	matcher     language.Matcher
	defaultLang string
}

// Load parses the embedded catalogs. defaultLang is used when a requested
// language is unknown; it falls back to English when unsupported itself.
func Load(defaultLang string) (*Catalog, error) {
	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("read locales: %w", err)
	}
	c := &Catalog{messages: map[string]map[string]string{}}
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".yaml" {
			continue
		}
		code := strings.TrimSuffix(entry.Name(), ".yaml")
		raw, err := localeFS.ReadFile(path.Join("locales", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read locale %s: %w", code, err)
		}
		var tree map[string]any
		if err := yaml.Unmarshal(raw, &tree); err != nil {
			return nil, fmt.Errorf("parse locale %s: %w", code, err)
		}
		flat := map[string]string{}
		flatten("", tree, flat)
		c.messages[code] = flat
		name := flat["name"]
		if name == "" {
			name = code
		}
		c.languages = append(c.languages, Language{Code: code, Name: name})
	}
	if _, ok := c.messages[FallbackLanguage]; !ok {
		return nil, fmt.Errorf("locale %q is missing", FallbackLanguage)
	}
	// The fallback language goes first so the matcher prefers it on ties.
	sort.Slice(c.languages, func(i, j int) bool {
		if c.languages[i].Code == FallbackLanguage {
			return true
		}
		if c.languages[j].Code == FallbackLanguage {
			return false
		}
		return c.languages[i].Code < c.languages[j].Code
	})
	tags := make([]language.Tag, 0, len(c.languages))
	for _, l := range c.languages {
		tags = append(tags, language.Make(l.Code))
	}
	c.matcher = language.NewMatcher(tags)
	c.defaultLang = FallbackLanguage
	if d, ok := c.Normalize(defaultLang); ok {
		c.defaultLang = d
	}
	return c, nil
}

func flatten(prefix string, node map[string]any, out map[string]string) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			flatten(key, val, out)
		case string:
			out[key] = val
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}

// Languages lists the supported languages, fallback first.
func (c *Catalog) Languages() []Language {
	out := make([]Language, len(c.languages))
	copy(out, c.languages)
	return out
}

// Default returns the configured default language.
func (c *Catalog) Default() string {
	return c.defaultLang
}

// Normalize maps a user-supplied tag ("ru-RU", "EN") to a supported code.
func (c *Catalog) Normalize(lang string) (string, bool) {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return "", false
	}
	if _, ok := c.messages[strings.ToLower(lang)]; ok {
		return strings.ToLower(lang), true
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return "", false
	}
	_, idx, conf := c.matcher.Match(tag)
	if conf < language.High {
		return "", false
	}
	return c.languages[idx].Code, true
}

// T renders key in lang, falling back to the default language, then English,
// then "[key]". Placeholders of the form {name} are replaced from vars.
func (c *Catalog) T(lang, key string, vars map[string]string) string {
	text, ok := c.lookup(lang, key)
	if !ok {
		return "[" + key + "]"
	}
	return Format(text, vars)
}

func (c *Catalog) lookup(lang, key string) (string, bool) {
	candidates := []string{c.defaultLang, FallbackLanguage}
	if code, ok := c.Normalize(lang); ok {
		candidates = append([]string{code}, candidates...)
	}
	for _, code := range candidates {
		if text, ok := c.messages[code][key]; ok {
			return text, true
		}
	}
	return "", false
}

// Format substitutes {name} placeholders. Unknown placeholders are left as-is.
func Format(text string, vars map[string]string) string {
	if len(vars) == 0 {
		return text
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}
