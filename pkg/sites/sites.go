// Package sites contains pluggable archive site profiles (YAML/JSON): listing
// URL layout, link discovery, disallow data and extraction selectors.
package sites

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	ListingFormatHTML       = "html"
	ListingFormatSitemapXML = "sitemap_xml"

	defaultPagesPerDay = 2
)

// Site describes one crawlable news archive.
type Site struct {
	ID                 string         `json:"id" yaml:"id"`
	Name               string         `json:"name" yaml:"name"`
	SourceName         string         `json:"source_name" yaml:"source_name"`
	BaseURL            string         `json:"base_url" yaml:"base_url"`
	ListingURLTemplate string         `json:"listing_url_template" yaml:"listing_url_template"`
	MonthIndexURL      string         `json:"month_index_url" yaml:"month_index_url"`
	PagesPerDay        int            `json:"pages_per_day" yaml:"pages_per_day"`
	ListingFormat      string         `json:"listing_format" yaml:"listing_format"`
	LinkSelector       string         `json:"link_selector" yaml:"link_selector"`
	ArticlePathMarker  string         `json:"article_path_marker" yaml:"article_path_marker"`
	DisallowPatterns   []string       `json:"disallow_patterns" yaml:"disallow_patterns"`
	Config             map[string]any `json:"config" yaml:"config"`
	Extract            ExtractRules   `json:"extract" yaml:"extract"`
}

// ExtractRules configures the selector based article extractor.
type ExtractRules struct {
	BodySelectors            []string `json:"body_selectors" yaml:"body_selectors"`
	PublishedSelector        string   `json:"published_selector" yaml:"published_selector"`
	PublishedAttr            string   `json:"published_attr" yaml:"published_attr"`
	PublishedLayout          string   `json:"published_layout" yaml:"published_layout"`
	URLDatePattern           string   `json:"url_date_pattern" yaml:"url_date_pattern"`
	URLDateLayout            string   `json:"url_date_layout" yaml:"url_date_layout"`
	BylineSelector           string   `json:"byline_selector" yaml:"byline_selector"`
	BylineStrip              []string `json:"byline_strip" yaml:"byline_strip"`
	BylineRejectPrefixes     []string `json:"byline_reject_prefixes" yaml:"byline_reject_prefixes"`
	CategoryMeta             string   `json:"category_meta" yaml:"category_meta"`
	CategoryFallbackSelector string   `json:"category_fallback_selector" yaml:"category_fallback_selector"`
	CategoryFallbackIndex    int      `json:"category_fallback_index" yaml:"category_fallback_index"`
}

type registryFile struct {
	Sites []Site `json:"sites" yaml:"sites"`
}

// Registry holds the site profiles loaded from a file.
type Registry struct {
	mu    sync.RWMutex
	sites []Site
	idx   map[string]Site
}

// LoadRegistry loads site profiles from a YAML/JSON file.
func LoadRegistry(path string) (*Registry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sites file path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sites file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read sites file: %w", err)
	}

	return ParseRegistry(raw, filepath.Ext(path))
}

// ParseRegistry decodes, sanitizes and validates raw registry content.
func ParseRegistry(raw []byte, ext string) (*Registry, error) {
	file, err := parseRegistry(raw, ext)
	if err != nil {
		return nil, err
	}
	if len(file.Sites) == 0 {
		return nil, errors.New("sites file contains no sites entries")
	}

	reg := &Registry{
		sites: make([]Site, len(file.Sites)),
		idx:   make(map[string]Site, len(file.Sites)),
	}
	for i := range file.Sites {
		s := sanitizeSite(file.Sites[i])
		if err := validateSite(s); err != nil {
			return nil, fmt.Errorf("site[%d]: %w", i, err)
		}
		if _, exists := reg.idx[s.ID]; exists {
			return nil, fmt.Errorf("duplicate site id %q", s.ID)
		}
		reg.sites[i] = s
		reg.idx[s.ID] = s
	}
	return reg, nil
}

func parseRegistry(data []byte, ext string) (registryFile, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))

	decoders := []struct {
		name string
		ext  string
		fn   unmarshalFn
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	var errs []error
	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		reg, err := unmarshalRegistry(d.name, data, d.fn)
		if err == nil {
			return reg, nil
		}
		errs = append(errs, err)
	}

	return registryFile{}, fmt.Errorf("sites file format not recognized (expected YAML or JSON): %w", errors.Join(errs...))
}

type unmarshalFn func([]byte, any) error

func unmarshalRegistry(name string, data []byte, fn unmarshalFn) (registryFile, error) {
	var reg registryFile
	if err := fn(data, &reg); err != nil {
		return registryFile{}, fmt.Errorf("decode %s sites: %w", name, err)
	}
	return reg, nil
}

func sanitizeSite(s Site) Site {
	s.ID = strings.TrimSpace(s.ID)
	s.Name = strings.TrimSpace(s.Name)
	s.SourceName = strings.TrimSpace(s.SourceName)
	s.BaseURL = strings.TrimRight(strings.TrimSpace(s.BaseURL), "/")
	s.ListingURLTemplate = strings.TrimSpace(s.ListingURLTemplate)
	s.MonthIndexURL = strings.TrimSpace(s.MonthIndexURL)
	s.ListingFormat = strings.ToLower(strings.TrimSpace(s.ListingFormat))
	s.LinkSelector = strings.TrimSpace(s.LinkSelector)
	s.ArticlePathMarker = strings.TrimSpace(s.ArticlePathMarker)

	if s.ListingFormat == "" {
		s.ListingFormat = ListingFormatHTML
	}
	if s.PagesPerDay <= 0 {
		s.PagesPerDay = defaultPagesPerDay
	}
	if s.SourceName == "" {
		s.SourceName = s.Name
	}
	if s.Config == nil {
		s.Config = map[string]any{}
	}
	s.DisallowPatterns = trimAll(s.DisallowPatterns)
	s.Extract.BodySelectors = trimAll(s.Extract.BodySelectors)

	return s
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func validateSite(s Site) error {
	if s.ID == "" {
		return errors.New("id is required")
	}
	if s.Name == "" {
		return fmt.Errorf("name is required for site %q", s.ID)
	}
	if s.BaseURL == "" {
		return fmt.Errorf("base_url is required for site %q", s.ID)
	}
	if u, err := url.Parse(s.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base_url %q is not an absolute url for site %q", s.BaseURL, s.ID)
	}
	if s.ListingURLTemplate == "" {
		return fmt.Errorf("listing_url_template is required for site %q", s.ID)
	}
	switch s.ListingFormat {
	case ListingFormatHTML:
		if s.LinkSelector == "" {
			return fmt.Errorf("link_selector is required for html listings of site %q", s.ID)
		}
	case ListingFormatSitemapXML:
	default:
		return fmt.Errorf("unsupported listing_format %q for site %q", s.ListingFormat, s.ID)
	}
	if len(s.Extract.BodySelectors) == 0 {
		return fmt.Errorf("extract.body_selectors is required for site %q", s.ID)
	}
	return nil
}

// ByID returns the site profile by id.
func (r *Registry) ByID(id string) (Site, bool) {
	if r == nil {
		return Site{}, false
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Site{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.idx[id]
	return s, ok
}

// All returns all configured sites.
func (r *Registry) All() []Site {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Site, len(r.sites))
	copy(out, r.sites)
	return out
}

// ResolveURL resolves href against the site's base URL.
func (s Site) ResolveURL(href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", errors.New("empty href")
	}
	base, err := url.Parse(s.BaseURL + "/")
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse href %q: %w", href, err)
	}
	return base.ResolveReference(ref).String(), nil
}

// IsArticleURL reports whether an absolute URL looks like an article page.
func (s Site) IsArticleURL(u string) bool {
	if s.ArticlePathMarker == "" {
		return true
	}
	return strings.Contains(u, s.ArticlePathMarker)
}
