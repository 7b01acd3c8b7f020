package scrape

import (
	"context"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/prospect-enricher/internal/config"
)

// SocialAugmenter fetches one social profile's about page as supplementary
// extraction context.
type SocialAugmenter struct {
	fetcher Scraper
	social  []config.SocialHost
	timeout time.Duration
}

// NewSocialAugmenter creates a SocialAugmenter. Platforms are preferred in
// the order they appear in social.
func NewSocialAugmenter(fetcher Scraper, social []config.SocialHost, timeout time.Duration) *SocialAugmenter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SocialAugmenter{fetcher: fetcher, social: social, timeout: timeout}
}

// Augment returns the flattened about-page text for the best profile link,
// or "" when disabled, when no link matches, or on any failure.
func (s *SocialAugmenter) Augment(ctx context.Context, links []string, enabled bool) string {
	if !enabled {
		zap.L().Debug("social: scraping disabled, skipping")
		return ""
	}
	target := s.aboutURL(links)
	if target == "" {
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.fetcher.Scrape(ctx, target)
	if err != nil {
		zap.L().Debug("social: fetch failed", zap.String("url", target), zap.Error(err))
		return ""
	}
	return res.Page.Text
}

// aboutURL picks the first link on the most preferred platform and builds
// its about subpage URL.
func (s *SocialAugmenter) aboutURL(links []string) string {
	for _, platform := range s.social {
		for _, l := range links {
			u, err := url.Parse(l)
			if err != nil || u.Host == "" {
				continue
			}
			sh, ok := MatchPlatform([]config.SocialHost{platform}, u.Host)
			if !ok {
				continue
			}
			base := strings.TrimRight(l, "/")
			if sh.AboutPath == "" || strings.HasSuffix(strings.ToLower(base), strings.TrimRight(sh.AboutPath, "/")) {
				return base
			}
			return base + sh.AboutPath
		}
	}
	return ""
}
