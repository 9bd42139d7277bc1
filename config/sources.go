package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"threatfeed/types"

	"gopkg.in/yaml.v3"
)

// FeedPresets maps friendly keys to the built-in source configurations
var FeedPresets = map[string]types.Source{
	"krebs": {
		Name:            "Krebs on Security",
		URL:             "https://krebsonsecurity.com/feed/",
		Type:            types.SourceTypeRSS,
		DefaultCategory: "Breaches",
		Active:          true,
	},
	"thn": {
		Name:            "The Hacker News",
		URL:             "https://feeds.feedburner.com/TheHackersNews",
		Type:            types.SourceTypeRSS,
		DefaultCategory: "Threats",
		Active:          true,
	},
	"bleeping": {
		Name:            "BleepingComputer",
		URL:             "https://www.bleepingcomputer.com/feed/",
		Type:            types.SourceTypeRSS,
		DefaultCategory: "Threats",
		Active:          true,
	},
	"darkreading": {
		Name:            "Dark Reading",
		URL:             "https://www.darkreading.com/rss.xml",
		Type:            types.SourceTypeRSS,
		DefaultCategory: "Threats",
		Active:          true,
	},
	"cisa": {
		Name:            "CISA Advisories",
		URL:             "https://www.cisa.gov/cybersecurity-advisories/all.xml",
		Type:            types.SourceTypeRSS,
		DefaultCategory: "Vulnerabilities",
		Active:          true,
	},
	"schneier": {
		Name:            "Schneier on Security",
		URL:             "https://www.schneier.com/feed/atom/",
		Type:            types.SourceTypeRSS,
		DefaultCategory: "Threats",
		Active:          true,
	},
}

// DefaultSources returns the presets sorted by key
func DefaultSources() []types.Source {
	keys := make([]string, 0, len(FeedPresets))
	for k := range FeedPresets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]types.Source, 0, len(keys))
	for _, k := range keys {
		out = append(out, FeedPresets[k])
	}
	return out
}

// LoadSources reads sources from a YAML file, or returns the presets when path is empty
func LoadSources(path string) ([]types.Source, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultSources(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}
	return ParseSources(data)
}

// ParseSources decodes a YAML sources document.
// Entries without a type default to rss; entries without an active key default to active.
func ParseSources(data []byte) ([]types.Source, error) {
	var raw struct {
		Sources []struct {
			Name            string `yaml:"name"`
			URL             string `yaml:"url"`
			Type            string `yaml:"type"`
			DefaultCategory string `yaml:"default_category"`
			Active          *bool  `yaml:"active"`
		} `yaml:"sources"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse sources file: %w", err)
	}

	out := make([]types.Source, 0, len(raw.Sources))
	seen := make(map[string]struct{}, len(raw.Sources))
	for i, s := range raw.Sources {
		name := strings.TrimSpace(s.Name)
		url := strings.TrimSpace(s.URL)
		if name == "" || url == "" {
			return nil, fmt.Errorf("source %d: name and url are required", i+1)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("source %q declared twice", name)
		}
		seen[name] = struct{}{}

		typ := types.SourceType(strings.ToLower(strings.TrimSpace(s.Type)))
		switch typ {
		case "":
			typ = types.SourceTypeRSS
		case types.SourceTypeRSS, types.SourceTypeAPI, types.SourceTypeScraper:
		default:
			return nil, fmt.Errorf("source %q: unknown type %q", name, s.Type)
		}

		active := true
		if s.Active != nil {
			active = *s.Active
		}

		out = append(out, types.Source{
			Name:            name,
			URL:             url,
			Type:            typ,
			DefaultCategory: strings.TrimSpace(s.DefaultCategory),
			Active:          active,
		})
	}
	return out, nil
}
