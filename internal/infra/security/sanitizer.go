package security

import (
	"bytes"
	"html"
	"net/url"
	"path"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	json "github.com/goccy/go-json"
	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
)

// SanitizeContext selects the cleaning pipeline for an untrusted string.
type SanitizeContext string

const (
	ContextHTML     SanitizeContext = "html"
	ContextText     SanitizeContext = "text"
	ContextURL      SanitizeContext = "url"
	ContextFilename SanitizeContext = "filename"
	ContextEmail    SanitizeContext = "email"
	ContextPhone    SanitizeContext = "phone"
	ContextSearch   SanitizeContext = "search"
	ContextJSON     SanitizeContext = "json"
	ContextMarkdown SanitizeContext = "markdown"
)

const (
	maxFilenameBytes = 255
	maxSearchRunes   = 200
	maxPhoneRunes    = 20
	maxEmailBytes    = 254
	neutralExtension = ".txt"
	fallbackFilename = "unnamed"
)

var (
	dangerousTagPattern = regexp.MustCompile(`(?i)<\s*/?\s*(script|style|iframe|object|embed|form|frame|frameset|applet|meta|link|base|svg|math)\b[^>]*>`)
	eventAttrPattern    = regexp.MustCompile(`(?i)\bon[a-z]+\s*=`)
	scriptSchemePattern = regexp.MustCompile(`(?i)(java|vb)\s*script\s*:`)
	whitespacePattern   = regexp.MustCompile(`\s+`)
	markdownLinkPattern = regexp.MustCompile(`\]\(\s*((?:[^()\s]|\([^()\s]*\))*)((?:\s+"[^"]*")?)\s*\)`)
	sqlPatterns         = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bunion\s+(all\s+)?select\b`),
		regexp.MustCompile(`(?i)\bdrop\s+(table|database|schema)\b`),
		regexp.MustCompile(`(?i)\binsert\s+into\b`),
		regexp.MustCompile(`(?i)\bdelete\s+from\b`),
		regexp.MustCompile(`(?i)\bupdate\s+\w+\s+set\b`),
		regexp.MustCompile(`(?i)\btruncate\s+table\b`),
		regexp.MustCompile(`(?i)\b(exec|execute)\s*\(`),
		regexp.MustCompile(`(?i)\bxp_\w+`),
		regexp.MustCompile(`(?i)\bor\s+1\s*=\s*1\b`),
		regexp.MustCompile(`--|/\*|\*/|;`),
	}
	dangerousExtensions = map[string]struct{}{
		".exe": {}, ".bat": {}, ".cmd": {}, ".com": {}, ".scr": {}, ".pif": {}, ".msi": {},
		".vbs": {}, ".vbe": {}, ".js": {}, ".jse": {}, ".jar": {}, ".sh": {}, ".bash": {},
		".ps1": {}, ".psm1": {}, ".php": {}, ".phtml": {}, ".php5": {}, ".asp": {}, ".aspx": {},
		".jsp": {}, ".cgi": {}, ".pl": {}, ".py": {}, ".rb": {}, ".dll": {}, ".hta": {},
		".reg": {}, ".lnk": {}, ".svg": {}, ".html": {}, ".htm": {},
	}
)

// Sanitizer cleans untrusted strings. It holds no per-request state and is safe
// for concurrent use.
type Sanitizer struct {
	rich     *bluemonday.Policy
	strict   *bluemonday.Policy
	validate *validator.Validate
}

// NewSanitizer builds the allow-list policies.
func NewSanitizer() *Sanitizer {
	rich := bluemonday.NewPolicy()
	rich.AllowElements(
		"p", "h1", "h2", "h3", "h4", "h5", "h6",
		"ul", "ol", "li",
		"em", "strong", "b", "i", "u",
		"blockquote", "code", "pre", "br",
	)
	rich.AllowAttrs("href", "title").OnElements("a")
	rich.AllowAttrs("src", "alt", "title").OnElements("img")
	rich.AllowURLSchemes("http", "https", "mailto")
	rich.RequireParseableURLs(true)

	return &Sanitizer{
		rich:     rich,
		strict:   bluemonday.StrictPolicy(),
		validate: validator.New(),
	}
}

// ParseSanitizeContext maps a textual name to a context.
func ParseSanitizeContext(value string) (SanitizeContext, bool) {
	switch ctx := SanitizeContext(strings.ToLower(strings.TrimSpace(value))); ctx {
	case ContextHTML, ContextText, ContextURL, ContextFilename, ContextEmail,
		ContextPhone, ContextSearch, ContextJSON, ContextMarkdown:
		return ctx, true
	default:
		return "", false
	}
}

// Sanitize applies the pipeline for ctx. Unknown contexts fall back to text.
func (s *Sanitizer) Sanitize(input string, ctx SanitizeContext) string {
	switch ctx {
	case ContextHTML:
		return s.HTML(input)
	case ContextURL:
		return s.URL(input)
	case ContextFilename:
		return s.Filename(input)
	case ContextEmail:
		return s.Email(input)
	case ContextPhone:
		return s.Phone(input)
	case ContextSearch:
		return s.Search(input)
	case ContextJSON:
		return s.JSON(input)
	case ContextMarkdown:
		return s.Markdown(input)
	default:
		return s.Text(input)
	}
}

// Value sanitizes strings, and the strings inside lists, with ctx. Every other
// value is returned unchanged, including nil.
func (s *Sanitizer) Value(input any, ctx SanitizeContext) any {
	switch v := input.(type) {
	case string:
		return s.Sanitize(v, ctx)
	case []string:
		out := make([]string, len(v))
		for i, item := range v {
			out[i] = s.Sanitize(item, ctx)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = s.Value(item, ctx)
		}
		return out
	default:
		return input
	}
}

// SanitizeMap returns a copy of values with each field cleaned by its rule.
// Fields without a rule are treated as text.
func (s *Sanitizer) SanitizeMap(values map[string]any, rules map[string]SanitizeContext) map[string]any {
	out := make(map[string]any, len(values))
	for key, value := range values {
		ctx, ok := rules[key]
		if !ok {
			ctx = ContextText
		}
		out[key] = s.Value(value, ctx)
	}
	return out
}

// HTML keeps the article allow-list and then strips dangerous markup a second time,
// independently of the first pass.
func (s *Sanitizer) HTML(input string) string {
	cleaned := s.rich.Sanitize(input)
	return stripDangerous(cleaned)
}

// Text removes all markup.
func (s *Sanitizer) Text(input string) string {
	return strings.TrimSpace(s.strict.Sanitize(input))
}

// URL neutralises script-bearing schemes to "#" and returns "" for anything that
// is not a well-formed absolute URL.
func (s *Sanitizer) URL(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ""
	}

	probe := strings.ToLower(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return -1
		}
		return r
	}, html.UnescapeString(trimmed)))

	switch {
	case strings.HasPrefix(probe, "javascript:"), strings.HasPrefix(probe, "vbscript:"):
		return "#"
	case strings.HasPrefix(probe, "data:"):
		if strings.HasPrefix(probe, "data:image/") && !strings.HasPrefix(probe, "data:image/svg") {
			return trimmed
		}
		return "#"
	}

	if strings.ContainsFunc(trimmed, func(r rune) bool { return unicode.IsSpace(r) || unicode.IsControl(r) }) {
		return ""
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return ""
	}

	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
		if parsed.Host == "" {
			return ""
		}
	case "mailto":
		if parsed.Opaque == "" {
			return ""
		}
	default:
		return ""
	}

	return parsed.String()
}

// Filename produces a single path segment: no separators, no traversal, no
// executable extension, at most 255 bytes.
func (s *Sanitizer) Filename(input string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\':
			return -1
		case unicode.IsControl(r):
			return -1
		case strings.ContainsRune(`<>:"|?*`, r):
			return -1
		}
		return r
	}, input)

	for strings.Contains(name, "..") {
		name = strings.ReplaceAll(name, "..", "")
	}
	name = strings.Trim(name, ". ")
	if name == "" {
		return fallbackFilename
	}

	ext := path.Ext(name)
	if _, dangerous := dangerousExtensions[strings.ToLower(ext)]; dangerous {
		name = strings.TrimSuffix(name, ext) + neutralExtension
		ext = neutralExtension
	}

	if len(name) > maxFilenameBytes {
		base := truncateBytes(strings.TrimSuffix(name, ext), maxFilenameBytes-len(ext))
		name = base + ext
	}

	return name
}

// Email trims and lower-cases the address, returning "" when it is not valid.
func (s *Sanitizer) Email(input string) string {
	email := strings.ToLower(strings.TrimSpace(input))
	if email == "" || len(email) > maxEmailBytes {
		return ""
	}
	if err := s.validate.Var(email, "email"); err != nil {
		return ""
	}
	return email
}

// Phone keeps digits and common separators.
func (s *Sanitizer) Phone(input string) string {
	var b strings.Builder
	count := 0
	for _, r := range strings.TrimSpace(input) {
		if count >= maxPhoneRunes {
			break
		}
		if unicode.IsDigit(r) && r < utf8.RuneSelf || strings.ContainsRune("+ -().", r) {
			b.WriteRune(r)
			count++
		}
	}
	return strings.TrimSpace(b.String())
}

// Search strips markup and SQL keyword sequences. Queries are always parameterised;
// this is a second line of defence.
func (s *Sanitizer) Search(input string) string {
	text := html.UnescapeString(s.strict.Sanitize(input))
	text = strings.NewReplacer("<", "", ">", "").Replace(text)
	text = removeUntilStable(text, sqlPatterns...)
	text = strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
	return truncateRunes(text, maxSearchRunes)
}

// JSON decodes the document, cleans every string (keys included) as text and
// re-encodes it compactly. Invalid documents yield "".
func (s *Sanitizer) JSON(input string) string {
	decoder := json.NewDecoder(strings.NewReader(input))
	decoder.UseNumber()

	var doc any
	if err := decoder.Decode(&doc); err != nil {
		return ""
	}
	if decoder.More() {
		return ""
	}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(true)
	if err := encoder.Encode(s.cleanJSON(doc)); err != nil {
		return ""
	}
	return strings.TrimSpace(buf.String())
}

// Markdown removes raw dangerous HTML and routes link and image targets through URL.
func (s *Sanitizer) Markdown(input string) string {
	cleaned := stripDangerous(input)
	return markdownLinkPattern.ReplaceAllStringFunc(cleaned, func(match string) string {
		parts := markdownLinkPattern.FindStringSubmatch(match)
		target := s.URL(parts[1])
		if target == "" {
			target = "#"
		}
		return "](" + target + parts[2] + ")"
	})
}

func (s *Sanitizer) cleanJSON(node any) any {
	switch v := node.(type) {
	case string:
		return s.Text(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = s.cleanJSON(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[s.Text(key)] = s.cleanJSON(item)
		}
		return out
	default:
		return v
	}
}

func stripDangerous(input string) string {
	return removeUntilStable(input, dangerousTagPattern, eventAttrPattern, scriptSchemePattern)
}

// removeUntilStable deletes every match until none remain, so removals cannot
// splice a new match together.
func removeUntilStable(input string, patterns ...*regexp.Regexp) string {
	for {
		next := input
		for _, pattern := range patterns {
			next = pattern.ReplaceAllString(next, "")
		}
		if next == input {
			return next
		}
		input = next
	}
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit]))
}

func truncateBytes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
