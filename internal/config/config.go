// Package config loads the paperfeed configuration: a YAML file, a .env
// file, and environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/matsen/paperfeed/internal/reference"
)

const (
	// ConfigDir is the directory name under XDG_CONFIG_HOME and XDG_DATA_HOME.
	ConfigDir = "paperfeed"
	// ConfigFile is the config file name.
	ConfigFile = "config.yml"
	// TitleCacheFile is the default title cache file name.
	TitleCacheFile = "titles.tsv"
	// LedgerFile is the run ledger database name.
	LedgerFile = "ledger.db"

	// DefaultReferenceCollection receives items created for cited papers.
	DefaultReferenceCollection = "MKR87F5B"
	// DefaultMaxResults caps a search without its own cap.
	DefaultMaxResults = 50
)

// Providers understood by the resolver.
const (
	ProviderS2   = "s2"
	ProviderDBLP = "dblp"
)

// Environment variables that override the file.
const (
	EnvSaveRoot   = "SAVE_ROOT"
	EnvGrobidURLs = "GROBID_URLS"
	EnvZoteroKey  = "ZOTERO_KEY"
	EnvUserID     = "USER_ID"
	EnvGroupID    = "GROUP_ID"
	EnvS2APIKey   = "S2_API_KEY"
	EnvTitleCache = "TITLE_CACHE"
	EnvTimezone   = "PAPERFEED_TZ"
)

// Errors returned by Validate.
var (
	ErrNoSaveRoot  = errors.New("save_root not configured (set SAVE_ROOT)")
	ErrNoZoteroKey = errors.New("zotero_key not configured (set ZOTERO_KEY)")
	ErrNoLibrary   = errors.New("no library configured (set USER_ID or GROUP_ID)")
	ErrNoSearches  = errors.New("no searches configured")
)

// Search is a named arXiv search feeding one collection.
type Search struct {
	Name          string   `yaml:"name"`
	Collection    string   `yaml:"collection"`
	Query         string   `yaml:"query,omitempty"`
	IDs           []string `yaml:"ids,omitempty"`
	RSSCategories []string `yaml:"rss_categories,omitempty"`
	MaxResults    int      `yaml:"max_results,omitempty"`
	Tags          []string `yaml:"tags,omitempty"`
}

// Config is the application configuration.
type Config struct {
	SaveRoot            string   `yaml:"save_root,omitempty"`
	GrobidURLs          []string `yaml:"grobid_urls,omitempty"`
	ZoteroKey           string   `yaml:"zotero_key,omitempty"`
	UserID              string   `yaml:"user_id,omitempty"`
	GroupID             string   `yaml:"group_id,omitempty"`
	S2APIKey            string   `yaml:"s2_api_key,omitempty"`
	ReferenceCollection string   `yaml:"reference_collection,omitempty"`
	Timezone            string   `yaml:"timezone,omitempty"`
	Providers           []string `yaml:"providers,omitempty"`
	DBLPIncludeArxiv    bool     `yaml:"dblp_include_arxiv,omitempty"`
	TitleCache          string   `yaml:"title_cache,omitempty"`
	Searches            []Search `yaml:"searches,omitempty"`
}

// Path returns the path to the config file.
// Respects XDG_CONFIG_HOME, defaults to ~/.config/paperfeed/config.yml.
func Path() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, ConfigDir, ConfigFile)
}

// DataDir returns the directory holding the title cache and the ledger.
// Respects XDG_DATA_HOME, defaults to ~/.local/share/paperfeed.
func DataDir() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, ConfigDir)
}

// Load reads the config file at path (Path() when empty), then applies
// environment overrides and defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = Path()
	}

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config: %w", err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg.ApplyEnv(os.Getenv)
	cfg.applyDefaults()
	return cfg, nil
}

// ApplyEnv overrides file values with non-empty environment values.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.SaveRoot, EnvSaveRoot)
	set(&c.ZoteroKey, EnvZoteroKey)
	set(&c.UserID, EnvUserID)
	set(&c.GroupID, EnvGroupID)
	set(&c.S2APIKey, EnvS2APIKey)
	set(&c.TitleCache, EnvTitleCache)
	set(&c.Timezone, EnvTimezone)

	if v := getenv(EnvGrobidURLs); strings.TrimSpace(v) != "" {
		c.GrobidURLs = splitList(v)
	}
}

func (c *Config) applyDefaults() {
	c.SaveRoot = ExpandPath(c.SaveRoot)
	c.TitleCache = ExpandPath(c.TitleCache)
	if c.ReferenceCollection == "" {
		c.ReferenceCollection = DefaultReferenceCollection
	}
	if len(c.Providers) == 0 {
		c.Providers = []string{ProviderS2}
	}
	for i := range c.Searches {
		if c.Searches[i].MaxResults == 0 && len(c.Searches[i].IDs) == 0 && len(c.Searches[i].RSSCategories) == 0 {
			c.Searches[i].MaxResults = DefaultMaxResults
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks the settings needed for an ingestion run.
func (c *Config) Validate() error {
	if c.SaveRoot == "" {
		return ErrNoSaveRoot
	}
	if c.ZoteroKey == "" {
		return ErrNoZoteroKey
	}
	if _, err := c.Library(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	for _, p := range c.Providers {
		if p != ProviderS2 && p != ProviderDBLP {
			return fmt.Errorf("unknown provider %q (valid: %s, %s)", p, ProviderS2, ProviderDBLP)
		}
	}
	if len(c.Searches) == 0 {
		return ErrNoSearches
	}
	seen := make(map[string]bool, len(c.Searches))
	for _, s := range c.Searches {
		if err := s.Validate(); err != nil {
			return err
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate search name %q", s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

// Validate checks a single search definition.
func (s Search) Validate() error {
	if s.Name == "" {
		return errors.New("search without a name")
	}
	if strings.ContainsAny(s.Name, `/\`) {
		return fmt.Errorf("search %q: name must not contain path separators", s.Name)
	}
	if s.Collection == "" {
		return fmt.Errorf("search %q: collection is required", s.Name)
	}
	if s.Query == "" && len(s.IDs) == 0 && len(s.RSSCategories) == 0 {
		return fmt.Errorf("search %q: needs a query, ids or rss_categories", s.Name)
	}
	if s.MaxResults < 0 {
		return fmt.Errorf("search %q: max_results must not be negative", s.Name)
	}
	return nil
}

// Library returns the target library. A user library wins over a group.
func (c *Config) Library() (reference.Library, error) {
	if c.UserID != "" {
		id, err := strconv.Atoi(c.UserID)
		if err != nil {
			return reference.Library{}, fmt.Errorf("invalid user_id %q: %w", c.UserID, err)
		}
		return reference.Library{Type: "user", ID: id}, nil
	}
	if c.GroupID != "" {
		id, err := strconv.Atoi(c.GroupID)
		if err != nil {
			return reference.Library{}, fmt.Errorf("invalid group_id %q: %w", c.GroupID, err)
		}
		return reference.Library{Type: "group", ID: id}, nil
	}
	return reference.Library{}, ErrNoLibrary
}

// Location returns the timezone dates are rendered in; UTC when unset.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Search returns the search with the given name.
func (c *Config) Search(name string) (Search, bool) {
	for _, s := range c.Searches {
		if s.Name == name {
			return s, true
		}
	}
	return Search{}, false
}

// TitleCachePath returns the title cache file.
func (c *Config) TitleCachePath() string {
	if c.TitleCache != "" {
		return c.TitleCache
	}
	return filepath.Join(DataDir(), TitleCacheFile)
}

// LedgerPath returns the run ledger database.
func (c *Config) LedgerPath() string {
	return filepath.Join(filepath.Dir(c.TitleCachePath()), LedgerFile)
}

// SearchDir returns the directory PDFs of a search are saved to.
func (c *Config) SearchDir(name string) string {
	return filepath.Join(c.SaveRoot, name)
}

// ExpandPath expands ~ to the user's home directory.
// Returns the original path unchanged if it doesn't start with ~.
func ExpandPath(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, path[1:])
}

// HelpfulConfigMessage explains where settings come from.
func HelpfulConfigMessage() string {
	configPath := Path()
	return fmt.Sprintf(`paperfeed is not configured.

Create %s, for example:
  save_root: ~/papers
  grobid_urls: [http://localhost:8070]
  group_id: "123456"
  searches:
    - name: ARXIV_ASR
      collection: IDRMFRCT
      query: '("ASR" OR "speech recognition") AND (cat:eess.SP OR cat:cs.SD OR cat:eess.AS)'
      max_results: 50

Secrets may live in a .env file or the environment:
  ZOTERO_KEY, USER_ID or GROUP_ID, SAVE_ROOT, GROBID_URLS, S2_API_KEY`, configPath)
}
