package scrape

import (
	"net/http"
	"strings"
)

// BlockType describes the kind of anti-bot interstitial detected.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockJSShell    BlockType = "js_shell"
)

// interstitialMaxBytes bounds how large a page can be and still count as a
// challenge interstitial. Real contact pages often embed a reCAPTCHA widget
// on their form, so body markers only count on small documents.
const interstitialMaxBytes = 8 * 1024

var bodySignatures = []struct {
	marker string
	kind   BlockType
}{
	{"checking your browser", BlockCloudflare},
	{"cf-browser-verification", BlockCloudflare},
	{"cf-challenge", BlockCloudflare},
	{"just a moment...", BlockCloudflare},
	{"g-recaptcha", BlockCaptcha},
	{"hcaptcha", BlockCaptcha},
	{"are you a robot", BlockCaptcha},
	{"complete the recaptcha", BlockCaptcha},
}

// DetectBlock reports whether a response looks like an anti-bot challenge
// rather than the requested page.
func DetectBlock(status int, header http.Header, body []byte) BlockType {
	if status == http.StatusForbidden || status == http.StatusServiceUnavailable {
		if header.Get("cf-ray") != "" || header.Get("cf-mitigated") != "" ||
			strings.EqualFold(header.Get("server"), "cloudflare") {
			return BlockCloudflare
		}
	}
	if len(body) > interstitialMaxBytes {
		return BlockNone
	}

	lower := strings.ToLower(string(body))
	for _, sig := range bodySignatures {
		if strings.Contains(lower, sig.marker) {
			return sig.kind
		}
	}
	if strings.Contains(lower, "<noscript") && strings.Contains(lower, "enable javascript") && len(body) < 2048 {
		return BlockJSShell
	}
	return BlockNone
}
