package security

import (
	"strings"
	"testing"
	"unicode/utf8"

	json "github.com/goccy/go-json"
)

func TestSanitizerHTMLRemovesScriptAndHandlers(t *testing.T) {
	s := NewSanitizer()

	inputs := []string{
		`<p>Hello <script>alert(1)</script><strong>world</strong></p>`,
		`<img src="https://cdn.example.com/a.png" onerror="alert(1)">`,
		`<a href="javascript:alert(1)">click</a>`,
		`<iframe src="https://evil.example"></iframe><p>kept</p>`,
		`<svg onload=alert(1)><p>x</p>`,
		`<div style="background:url(javascript:alert(1))">styled</div>`,
		`<form action="/steal"><input name="q"></form>`,
		`<scr<script>ipt>alert(1)</scr</script>ipt>`,
	}

	for _, input := range inputs {
		out := s.HTML(input)
		lowered := strings.ToLower(out)
		for _, forbidden := range []string{"<script", "<iframe", "<form", "<svg", "onerror", "onload", "javascript:", "<style"} {
			if strings.Contains(lowered, forbidden) {
				t.Fatalf("HTML(%q) = %q still contains %q", input, out, forbidden)
			}
		}
	}

	out := s.HTML(`<p>Hello <strong>world</strong></p>`)
	if out != `<p>Hello <strong>world</strong></p>` {
		t.Fatalf("expected allowed markup to be kept, got %q", out)
	}

	link := s.HTML(`<a href="https://example.com/story" title="Story">read</a>`)
	if !strings.Contains(link, `href="https://example.com/story"`) {
		t.Fatalf("expected https link to survive, got %q", link)
	}
}

func TestSanitizerHTMLIsIdempotent(t *testing.T) {
	s := NewSanitizer()
	inputs := []string{
		`<h2>Campus news</h2><p>Tom &amp; Jerry's <em>day</em></p><ul><li>one</li></ul>`,
		`<blockquote onclick="x()">quote</blockquote><pre><code>fmt.Println()</code></pre>`,
		`plain text with <b>bold</b> and <script>alert('x')</script>`,
	}
	for _, input := range inputs {
		once := s.HTML(input)
		if twice := s.HTML(once); twice != once {
			t.Fatalf("HTML not idempotent for %q: %q then %q", input, once, twice)
		}
	}
}

func TestSanitizerText(t *testing.T) {
	s := NewSanitizer()
	if got := s.Text("  <b>hi</b> there  "); got != "hi there" {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestSanitizerURL(t *testing.T) {
	s := NewSanitizer()
	cases := map[string]string{
		"javascript:alert(1)":                   "#",
		" JaVaScRiPt:alert(1)":                  "#",
		"java\tscript:alert(1)":                 "#",
		"vbscript:msgbox(1)":                    "#",
		"data:text/html;base64,PHNjcmlwdD4=":    "#",
		"data:image/svg+xml;base64,PHN2Zz4=":    "#",
		"data:image/png;base64,iVBORw0KGgo=":    "data:image/png;base64,iVBORw0KGgo=",
		"https://example.com/news?id=42":        "https://example.com/news?id=42",
		"http://example.com":                    "http://example.com",
		"mailto:editor@example.com":             "mailto:editor@example.com",
		"/relative/path":                        "",
		"not a url":                             "",
		"ftp://files.example.com/a.txt":         "",
		"https://":                              "",
		"":                                      "",
	}
	for input, want := range cases {
		if got := s.URL(input); got != want {
			t.Fatalf("URL(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestSanitizerFilename(t *testing.T) {
	s := NewSanitizer()
	cases := map[string]string{
		"../../etc/passwd":          "etcpasswd",
		`..\..\windows\system.ini`:  "windowssystem.ini",
		"report.exe":                "report.txt",
		"photo.PHP":                 "photo.txt",
		`inv<oice>:1?.pdf`:          "invoice1.pdf",
		"...":                       "unnamed",
		"":                          "unnamed",
		" .hidden. ":                "hidden",
		"name\x00.jpg":              "name.jpg",
	}
	for input, want := range cases {
		if got := s.Filename(input); got != want {
			t.Fatalf("Filename(%q) = %q, want %q", input, got, want)
		}
	}

	long := s.Filename(strings.Repeat("a", 300) + ".pdf")
	if len(long) != maxFilenameBytes || !strings.HasSuffix(long, ".pdf") {
		t.Fatalf("expected 255 bytes ending in .pdf, got %d bytes %q", len(long), long[len(long)-8:])
	}

	multibyte := s.Filename(strings.Repeat("é", 200) + ".png")
	if len(multibyte) > maxFilenameBytes || !utf8.ValidString(multibyte) || !strings.HasSuffix(multibyte, ".png") {
		t.Fatalf("expected valid truncated utf-8 name, got %d bytes", len(multibyte))
	}
}

func TestSanitizerSearch(t *testing.T) {
	s := NewSanitizer()

	got := s.Search(`campus <b>elections</b>' UNION SELECT password FROM users--`)
	lowered := strings.ToLower(got)
	if strings.Contains(lowered, "union select") || strings.Contains(got, "--") || strings.Contains(got, "<") {
		t.Fatalf("search still contains dangerous content: %q", got)
	}
	if !strings.HasPrefix(got, "campus elections") {
		t.Fatalf("expected search terms to survive, got %q", got)
	}

	if got := s.Search("DROP DROP TABLE TABLE users"); strings.Contains(strings.ToLower(got), "drop") {
		t.Fatalf("expected nested keywords to be removed, got %q", got)
	}

	if got := s.Search(strings.Repeat("a", 500)); utf8.RuneCountInString(got) != maxSearchRunes {
		t.Fatalf("expected search capped at %d, got %d", maxSearchRunes, utf8.RuneCountInString(got))
	}
}

func TestSanitizerEmailAndPhone(t *testing.T) {
	s := NewSanitizer()
	if got := s.Email("  Jane.Doe@Example.COM "); got != "jane.doe@example.com" {
		t.Fatalf("unexpected email %q", got)
	}
	if got := s.Email("not-an-email"); got != "" {
		t.Fatalf("expected invalid email to be emptied, got %q", got)
	}
	if got := s.Phone("+233 (0) 24-123-4567 ext<script>"); got != "+233 (0) 24-123-4567" {
		t.Fatalf("unexpected phone %q", got)
	}
}

func TestSanitizerJSON(t *testing.T) {
	s := NewSanitizer()

	out := s.JSON(`{"name":"<b>Ama</b>","tags":["<script>x</script>ok"],"n":1.50,"<i>k</i>":true}`)
	var decoded map[string]any
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("sanitized json does not decode: %v (%q)", err, out)
	}
	if decoded["name"] != "Ama" {
		t.Fatalf("expected name to be stripped, got %v", decoded["name"])
	}
	tags, _ := decoded["tags"].([]any)
	if len(tags) != 1 || tags[0] != "ok" {
		t.Fatalf("expected tags [ok], got %v", decoded["tags"])
	}
	if _, ok := decoded["k"]; !ok {
		t.Fatalf("expected key markup to be stripped, got %v", decoded)
	}
	if !strings.Contains(out, "1.50") {
		t.Fatalf("expected number literal to be preserved, got %q", out)
	}

	if got := s.JSON("{"); got != "" {
		t.Fatalf("expected invalid json to be emptied, got %q", got)
	}
	if got := s.JSON(`{"a":1} {"b":2}`); got != "" {
		t.Fatalf("expected trailing documents to be rejected, got %q", got)
	}
}

func TestSanitizerMarkdown(t *testing.T) {
	s := NewSanitizer()

	out := s.Markdown("# Title\n\n[click](javascript:alert(1)) <script>alert(1)</script>\n![img](https://example.com/a.png \"Caption\")\n![x](data:text/html,abc)")
	if strings.Contains(strings.ToLower(out), "javascript") || strings.Contains(out, "<script") {
		t.Fatalf("markdown still dangerous: %q", out)
	}
	if !strings.Contains(out, `![img](https://example.com/a.png "Caption")`) {
		t.Fatalf("expected safe image to be kept, got %q", out)
	}
	if !strings.Contains(out, "![x](#)") {
		t.Fatalf("expected data url image to be neutralised, got %q", out)
	}
	if !strings.HasPrefix(out, "# Title") {
		t.Fatalf("expected heading to survive, got %q", out)
	}
	if !strings.Contains(out, "[click](#) ") || strings.Contains(out, "))") {
		t.Fatalf("expected the whole link target to be replaced, got %q", out)
	}

	if got := s.Markdown("[x](javascript:alert(1)) ![i](vbscript:run(2) \"t\")"); got != `[x](#) ![i](# "t")` {
		t.Fatalf("unexpected nested paren handling: %q", got)
	}
}

func TestSanitizerValueAndMap(t *testing.T) {
	s := NewSanitizer()

	if got := s.Value(42, ContextHTML); got != 42 {
		t.Fatalf("expected non-string to pass through, got %v", got)
	}
	if got := s.Value(nil, ContextText); got != nil {
		t.Fatalf("expected nil to pass through, got %v", got)
	}

	out := s.SanitizeMap(map[string]any{
		"email": " A@B.COM ",
		"body":  "<b>x</b>",
		"count": 3,
	}, map[string]SanitizeContext{"email": ContextEmail})

	if out["email"] != "a@b.com" || out["body"] != "x" || out["count"] != 3 {
		t.Fatalf("unexpected sanitized map %v", out)
	}

	tags, ok := s.Value([]any{"<script>x</script>politics", 7, "<em>campus</em>"}, ContextText).([]any)
	if !ok || len(tags) != 3 || tags[0] != "politics" || tags[1] != 7 || tags[2] != "campus" {
		t.Fatalf("expected list items to be cleaned individually, got %v", tags)
	}
	if strs, ok := s.Value([]string{" <b>a</b> "}, ContextText).([]string); !ok || strs[0] != "a" {
		t.Fatalf("expected string slice to be cleaned, got %v", strs)
	}
}

func TestParseSanitizeContext(t *testing.T) {
	if ctx, ok := ParseSanitizeContext(" HTML "); !ok || ctx != ContextHTML {
		t.Fatalf("expected html context, got %q %v", ctx, ok)
	}
	if _, ok := ParseSanitizeContext("bogus"); ok {
		t.Fatalf("expected unknown context to be rejected")
	}
	if got := NewSanitizer().Sanitize("<i>x</i>", SanitizeContext("bogus")); got != "x" {
		t.Fatalf("expected unknown context to fall back to text, got %q", got)
	}
}
