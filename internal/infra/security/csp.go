package security

import (
	"strings"

	"github.com/akabrrown/voice-of-upsa-sub004/internal/infra/config"
)

const (
	HeaderCSP           = "Content-Security-Policy"
	HeaderCSPReportOnly = "Content-Security-Policy-Report-Only"
)

// Directive is one CSP directive with its ordered source expressions.
type Directive struct {
	Name    string
	Sources []string
}

// DirectiveSet is an ordered directive table.
type DirectiveSet []Directive

// BuildCSPHeader renders the table as "name src src; name src".
func BuildCSPHeader(set DirectiveSet) string {
	parts := make([]string, 0, len(set))
	for _, d := range set {
		if len(d.Sources) == 0 {
			parts = append(parts, d.Name)
			continue
		}
		parts = append(parts, d.Name+" "+strings.Join(d.Sources, " "))
	}
	return strings.Join(parts, "; ")
}

// Clone returns a deep copy.
func (s DirectiveSet) Clone() DirectiveSet {
	out := make(DirectiveSet, len(s))
	for i, d := range s {
		out[i] = Directive{Name: d.Name, Sources: append([]string(nil), d.Sources...)}
	}
	return out
}

// Sources returns the sources of the named directive.
func (s DirectiveSet) Sources(name string) []string {
	for _, d := range s {
		if d.Name == name {
			return d.Sources
		}
	}
	return nil
}

func (s DirectiveSet) appendSources(name string, sources ...string) {
	for i := range s {
		if s[i].Name == name {
			s[i].Sources = append(s[i].Sources, sources...)
			return
		}
	}
}

// CSPPolicy composes the per-environment directive table. Production enforces
// the policy with a per-request nonce; development relaxes script and style
// sources and emits the header as report-only.
type CSPPolicy struct {
	production bool
	base       DirectiveSet
}

// NewCSPPolicy builds the directive table for the environment, merged with
// configured extra sources.
func NewCSPPolicy(production bool, cfg config.CSPSettings) *CSPPolicy {
	base := DirectiveSet{
		{Name: "default-src", Sources: []string{"'self'"}},
		{Name: "script-src", Sources: []string{"'self'"}},
		{Name: "style-src", Sources: []string{"'self'", "https://fonts.googleapis.com"}},
		{Name: "img-src", Sources: []string{"'self'", "data:", "blob:", "https:"}},
		{Name: "font-src", Sources: []string{"'self'", "https://fonts.gstatic.com", "data:"}},
		{Name: "connect-src", Sources: []string{"'self'"}},
		{Name: "media-src", Sources: []string{"'self'", "https:"}},
		{Name: "object-src", Sources: []string{"'none'"}},
		{Name: "frame-src", Sources: []string{"'self'", "https://www.youtube.com", "https://player.vimeo.com"}},
		{Name: "frame-ancestors", Sources: []string{"'none'"}},
		{Name: "base-uri", Sources: []string{"'self'"}},
		{Name: "form-action", Sources: []string{"'self'"}},
	}

	base.appendSources("script-src", sanitizeSources(cfg.ScriptSources, production)...)
	base.appendSources("img-src", sanitizeSources(cfg.ImageSources, production)...)
	base.appendSources("connect-src", sanitizeSources(cfg.ConnectSources, production)...)

	if production {
		base = append(base, Directive{Name: "upgrade-insecure-requests"})
	} else {
		base.appendSources("script-src", "'unsafe-inline'", "'unsafe-eval'")
		base.appendSources("style-src", "'unsafe-inline'")
		base.appendSources("connect-src", "ws:", "http://localhost:*")
	}

	if uri := strings.TrimSpace(cfg.ReportURI); uri != "" {
		base = append(base, Directive{Name: "report-uri", Sources: []string{uri}})
	}

	return &CSPPolicy{production: production, base: base}
}

// HeaderName returns the enforced header in production and the report-only header otherwise.
func (p *CSPPolicy) HeaderName() string {
	if p.production {
		return HeaderCSP
	}
	return HeaderCSPReportOnly
}

// Directives returns the table for one response. In production the nonce is
// appended to script-src; development keeps 'unsafe-inline' effective by
// leaving the nonce out.
func (p *CSPPolicy) Directives(nonce string) DirectiveSet {
	set := p.base.Clone()
	if p.production && nonce != "" {
		set.appendSources("script-src", "'nonce-"+nonce+"'")
	}
	return set
}

// Header returns the header name and value for one response.
func (p *CSPPolicy) Header(nonce string) (string, string) {
	return p.HeaderName(), BuildCSPHeader(p.Directives(nonce))
}

// SecurityHeader is a fixed hardening header.
type SecurityHeader struct {
	Name  string
	Value string
}

// HardeningHeaders returns the auxiliary headers attached to every response.
// HSTS is sent only in production.
func HardeningHeaders(production bool) []SecurityHeader {
	headers := []SecurityHeader{
		{Name: "X-Frame-Options", Value: "DENY"},
		{Name: "X-Content-Type-Options", Value: "nosniff"},
		{Name: "Referrer-Policy", Value: "strict-origin-when-cross-origin"},
		{Name: "Permissions-Policy", Value: "camera=(), microphone=(), geolocation=(), payment=(), usb=(), interest-cohort=()"},
		{Name: "Cross-Origin-Opener-Policy", Value: "same-origin"},
		{Name: "Cross-Origin-Embedder-Policy", Value: "credentialless"},
		{Name: "Cross-Origin-Resource-Policy", Value: "same-site"},
		{Name: "X-DNS-Prefetch-Control", Value: "off"},
	}
	if production {
		headers = append(headers, SecurityHeader{
			Name:  "Strict-Transport-Security",
			Value: "max-age=31536000; includeSubDomains; preload",
		})
	}
	return headers
}

// sanitizeSources drops empty entries and, in production, any 'unsafe-*' keyword.
func sanitizeSources(sources []string, production bool) []string {
	out := make([]string, 0, len(sources))
	for _, src := range sources {
		src = strings.TrimSpace(src)
		if src == "" || strings.ContainsAny(src, ";,") {
			continue
		}
		if production && strings.HasPrefix(strings.ToLower(src), "'unsafe-") {
			continue
		}
		out = append(out, src)
	}
	return out
}
