package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RSSSource is a single syndication feed to poll.
type RSSSource struct {
	Name           string `yaml:"name"`
	URL            string `yaml:"url"`
	Category       string `yaml:"category"`
	RefreshMinutes int    `yaml:"refresh_minutes"`
}

// GDELTQuery is a single keyword query against the GDELT event index.
type GDELTQuery struct {
	Name           string   `yaml:"name"`
	Keywords       []string `yaml:"keywords"`
	RefreshMinutes int      `yaml:"refresh_minutes"`
}

// GDELTSourceConfig configures the GDELT source family.
type GDELTSourceConfig struct {
	Enabled bool         `yaml:"enabled"`
	Queries []GDELTQuery `yaml:"queries"`
}

// BlueskySourceConfig configures the Bluesky source family.
type BlueskySourceConfig struct {
	Enabled          bool     `yaml:"enabled"`
	FilterMode       string   `yaml:"filter_mode"`
	Keywords         []string `yaml:"keywords"`
	MaxPostsPerCycle int      `yaml:"max_posts_per_cycle"`
	RefreshMinutes   int      `yaml:"refresh_minutes"`
}

// RedditSubreddit is a single subreddit to poll.
type RedditSubreddit struct {
	Name  string `yaml:"name"`
	Sort  string `yaml:"sort"`
	Limit int    `yaml:"limit"`
}

// RedditSourceConfig configures the Reddit source family.
type RedditSourceConfig struct {
	Enabled             bool              `yaml:"enabled"`
	Subreddits          []RedditSubreddit `yaml:"subreddits"`
	IncludeTopComments  int               `yaml:"include_top_comments"`
	RefreshMinutes      int               `yaml:"refresh_minutes"`
}

// SourcesConfig is the parsed source-family document. Its content is opaque
// to the rest of the pipeline: it is handed to the (out-of-scope) fetch
// adapters verbatim.
type SourcesConfig struct {
	RSS     []RSSSource         `yaml:"rss"`
	GDELT   GDELTSourceConfig   `yaml:"gdelt"`
	Bluesky BlueskySourceConfig `yaml:"bluesky"`
	Reddit  RedditSourceConfig  `yaml:"reddit"`
}

// LoadSources reads and parses the YAML source-family document at path.
func LoadSources(path string) (*SourcesConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read sources document %s: %w", path, err)
	}

	var cfg SourcesConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse sources document %s: %w", path, err)
	}
	return &cfg, nil
}
