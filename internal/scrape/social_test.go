package scrape

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/prospect-enricher/internal/config"
)

func TestSocialAugmenter_Disabled(t *testing.T) {
	f := &fakeScraper{pages: map[string]Page{}}
	s := NewSocialAugmenter(f, config.DefaultTables().SocialHosts, 0)

	assert.Equal(t, "", s.Augment(context.Background(), []string{"https://facebook.com/acme"}, false))
	assert.Empty(t, f.Calls())
}

func TestSocialAugmenter_PrefersFacebookAbout(t *testing.T) {
	f := &fakeScraper{pages: map[string]Page{
		"https://facebook.com/acme/about": {Text: "Acme HVAC. Owner: Dana Reyes. dana@acme-hvac.com"},
	}}
	s := NewSocialAugmenter(f, config.DefaultTables().SocialHosts, 0)

	text := s.Augment(context.Background(), []string{
		"https://linkedin.com/company/acme",
		"https://facebook.com/acme/",
	}, true)
	assert.Contains(t, text, "dana@acme-hvac.com")
	assert.Equal(t, []string{"https://facebook.com/acme/about"}, f.Calls())
}

func TestSocialAugmenter_NoKnownPlatform(t *testing.T) {
	f := &fakeScraper{pages: map[string]Page{}}
	s := NewSocialAugmenter(f, config.DefaultTables().SocialHosts, 0)

	assert.Equal(t, "", s.Augment(context.Background(), []string{"https://example.com/acme"}, true))
	assert.Empty(t, f.Calls())
}

func TestSocialAugmenter_FetchFailure(t *testing.T) {
	f := &fakeScraper{pages: map[string]Page{}}
	s := NewSocialAugmenter(f, config.DefaultTables().SocialHosts, 0)

	assert.Equal(t, "", s.Augment(context.Background(), []string{"https://linkedin.com/company/acme"}, true))
	assert.Equal(t, []string{"https://linkedin.com/company/acme/about/"}, f.Calls())
}
