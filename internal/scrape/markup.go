package scrape

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"

	"github.com/sells-group/prospect-enricher/internal/config"
)

// textPolicy strips every tag. bluemonday drops script, style and title
// content entirely; the space insertion keeps adjacent block text apart.
var textPolicy = func() *bluemonday.Policy {
	p := bluemonday.StrictPolicy()
	p.AddSpaceWhenStrippingTag(true)
	return p
}()

var (
	inlineSpaceRe = regexp.MustCompile(`[ \t\f\r\v\x{00A0}]+`)
	blankLinesRe  = regexp.MustCompile(`\n\s*\n+`)
)

// Flatten reduces markup to visible text.
func Flatten(raw []byte) string {
	sanitized := textPolicy.SanitizeBytes(raw)
	return collapse(html.UnescapeString(string(sanitized)))
}

func collapse(s string) string {
	s = inlineSpaceRe.ReplaceAllString(s, " ")
	s = blankLinesRe.ReplaceAllString(s, "\n\n")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// Links are the outbound references pulled from raw markup.
type Links struct {
	Social []string
	Emails []string
	Phones []string
}

// Merge appends o's values not already present.
func (l *Links) Merge(o Links) {
	l.Social = appendUnique(l.Social, o.Social...)
	l.Emails = appendUnique(l.Emails, o.Emails...)
	l.Phones = appendUnique(l.Phones, o.Phones...)
}

// LinkExtractor walks anchors in raw markup. It must run before the markup
// is flattened, since flattening discards every href.
type LinkExtractor struct {
	social []config.SocialHost
}

// NewLinkExtractor creates a LinkExtractor recognizing the given platforms.
func NewLinkExtractor(social []config.SocialHost) *LinkExtractor {
	return &LinkExtractor{social: social}
}

// Extract parses raw and returns its social, mailto and tel links.
// Unparseable markup yields no links.
func (e *LinkExtractor) Extract(raw []byte) (Links, string) {
	var out Links
	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return out, ""
	}

	var title string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "a":
				e.classify(&out, attr(n, "href"))
			case "title":
				if title == "" && n.FirstChild != nil {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out, title
}

func (e *LinkExtractor) classify(out *Links, href string) {
	href = strings.TrimSpace(href)
	lower := strings.ToLower(href)
	switch {
	case strings.HasPrefix(lower, "mailto:"):
		addr := href[len("mailto:"):]
		if i := strings.IndexByte(addr, '?'); i >= 0 {
			addr = addr[:i]
		}
		if unescaped, err := url.PathUnescape(addr); err == nil {
			addr = unescaped
		}
		addr = strings.ToLower(strings.TrimSpace(addr))
		if strings.Contains(addr, "@") {
			out.Emails = appendUnique(out.Emails, addr)
		}
	case strings.HasPrefix(lower, "tel:"):
		num := strings.TrimSpace(href[len("tel:"):])
		if num != "" {
			out.Phones = appendUnique(out.Phones, num)
		}
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"), strings.HasPrefix(lower, "//"):
		if link, ok := e.socialProfile(href); ok {
			out.Social = appendUnique(out.Social, link)
		}
	}
}

// sharePaths are widget endpoints, not profiles.
var sharePaths = []string{"/sharer", "/share", "/intent", "/dialog", "/plugins"}

// socialProfile normalizes href to a profile URL when it points at a known
// social platform.
func (e *LinkExtractor) socialProfile(href string) (string, bool) {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil || u.Host == "" {
		return "", false
	}
	if _, ok := MatchPlatform(e.social, u.Host); !ok {
		return "", false
	}
	p := strings.ToLower(u.Path)
	if p == "" || p == "/" {
		return "", false
	}
	for _, sp := range sharePaths {
		if strings.HasPrefix(p, sp) {
			return "", false
		}
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.Scheme = "https"
	return strings.TrimRight(u.String(), "/"), true
}

// MatchPlatform returns the platform whose host list contains host.
func MatchPlatform(social []config.SocialHost, host string) (config.SocialHost, bool) {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	for _, sh := range social {
		for _, h := range sh.Hosts {
			if host == h || strings.HasSuffix(host, "."+h) {
				return sh, true
			}
		}
	}
	return config.SocialHost{}, false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func appendUnique(dst []string, vals ...string) []string {
	for _, v := range vals {
		dup := false
		for _, d := range dst {
			if d == v {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, v)
		}
	}
	return dst
}
