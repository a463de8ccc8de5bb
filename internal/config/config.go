package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"chaptergate/internal/domain"
)

// Config models chaptergate.yml.
type Config struct {
	Site struct {
		Name  string `yaml:"name"`
		Pages Pages  `yaml:"pages"`
	} `yaml:"site"`
	Cookie       CookieConfig           `yaml:"cookie"`
	Prerequisite struct {
		Plaques []string `yaml:"plaques"`
	} `yaml:"prerequisite"`
	Acts     map[domain.ActID]ActConfig `yaml:"acts"`
	Plaques  map[string]PlaqueConfig    `yaml:"plaques"`
	Puzzles  map[string]PuzzleConfig    `yaml:"puzzles"`
	Keywords []string                   `yaml:"keywords"`
	Buttons  []string                   `yaml:"buttons"`
	Limits   struct {
		AnswersPerMinute int `yaml:"answers_per_minute"`
		AnswerBurst      int `yaml:"answer_burst"`
	} `yaml:"limits"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// Pages are the redirect targets used by the gate.
type Pages struct {
	Locked   string `yaml:"locked"`
	NotYet   string `yaml:"not_yet"`
	NotFound string `yaml:"not_found"`
	Failed   string `yaml:"failed"`
	// Act is a format string taking the act id, e.g. "/chapters/%s".
	Act string `yaml:"act"`
}

type CookieConfig struct {
	Name   string `yaml:"name"`
	MaxAge int    `yaml:"max_age"`
	Secure bool   `yaml:"secure"`
}

type ActConfig struct {
	Title string `yaml:"title"`
	// Timed acts can run out of time; a failed timed act has its own page.
	Timed bool `yaml:"timed"`
}

type PlaqueConfig struct {
	Answer  string `yaml:"answer"`
	Message string `yaml:"message"`
}

type PuzzleConfig struct {
	Stages []string `yaml:"stages"`
}

type WebhookConfig struct {
	URL     string   `yaml:"url"`
	Secret  string   `yaml:"secret"`
	Events  []string `yaml:"events"`
	Enabled *bool    `yaml:"enabled"`
}

// KeywordCount is the size of the numbered keyword table.
const KeywordCount = 6

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with chaptergate config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default catalog if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "chaptergate.yml")
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Cookie.Name == "" {
		return fmt.Errorf("config.cookie.name is required")
	}
	if c.Cookie.MaxAge <= 0 {
		return fmt.Errorf("config.cookie.max_age must be positive")
	}
	p := c.Site.Pages
	for name, v := range map[string]string{"locked": p.Locked, "not_yet": p.NotYet, "not_found": p.NotFound, "failed": p.Failed} {
		if !strings.HasPrefix(v, "/") {
			return fmt.Errorf("config.site.pages.%s must be an absolute path", name)
		}
	}
	if !strings.HasPrefix(p.Act, "/") || strings.Count(p.Act, "%s") != 1 {
		return fmt.Errorf("config.site.pages.act must be an absolute path with one %%s")
	}
	for id := range c.Acts {
		if _, err := domain.ParseActID(string(id)); err != nil {
			return fmt.Errorf("config.acts: %w", err)
		}
	}
	for id, plaque := range c.Plaques {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("config.plaques contains empty id")
		}
		if strings.TrimSpace(plaque.Answer) == "" {
			return fmt.Errorf("plaque %s has empty answer", id)
		}
	}
	for _, id := range c.Prerequisite.Plaques {
		if _, ok := c.Plaques[id]; !ok {
			return fmt.Errorf("prerequisite references unknown plaque %s", id)
		}
	}
	for scope, puzzle := range c.Puzzles {
		if len(puzzle.Stages) == 0 {
			return fmt.Errorf("puzzle %s has no stages", scope)
		}
		for i, s := range puzzle.Stages {
			if strings.TrimSpace(s) == "" {
				return fmt.Errorf("puzzle %s stage %d has empty answer", scope, i)
			}
		}
	}
	if len(c.Keywords) != KeywordCount {
		return fmt.Errorf("config.keywords must list exactly %d keywords, got %d", KeywordCount, len(c.Keywords))
	}
	for i, k := range c.Keywords {
		if strings.TrimSpace(k) == "" {
			return fmt.Errorf("keyword %d is empty", i+1)
		}
	}
	for _, b := range c.Buttons {
		if strings.TrimSpace(b) == "" {
			return fmt.Errorf("config.buttons contains empty name")
		}
	}
	if c.Limits.AnswersPerMinute < 0 || c.Limits.AnswerBurst < 0 {
		return fmt.Errorf("config.limits must not be negative")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
	}
	return nil
}

// ActPage returns the canonical page for an act.
func (c *Config) ActPage(id domain.ActID) string {
	return fmt.Sprintf(c.Site.Pages.Act, id)
}

// TimedAct reports whether the act belongs to the "no time left" subset.
func (c *Config) TimedAct(id domain.ActID) bool {
	return c.Acts[id].Timed
}

// HasButton reports whether name is an allow-listed button.
func (c *Config) HasButton(name string) bool {
	for _, b := range c.Buttons {
		if b == name {
			return true
		}
	}
	return false
}

// Default returns the development catalog.
func Default() *Config {
	cfg, err := FromYAML([]byte(defaultTemplate))
	if err != nil {
		panic(fmt.Sprintf("default config invalid: %v", err))
	}
	return cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// ToYAML renders the config back to YAML.
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

const defaultTemplate = `site:
  name: chaptergate
  pages:
    locked: /locked
    not_yet: /not-yet
    not_found: /not-found
    failed: /no-time-left
    act: /chapters/%s

cookie:
  name: chapIV_auth
  max_age: 86400
  secure: false

prerequisite:
  plaques: [fountain, lantern]

acts:
  I:
    title: "The Arrival"
  II:
    title: "The Orchard"
  III:
    title: "The Bell Tower"
  IV:
    title: "The Plaques"
  V:
    title: "The Long Night"
    timed: true
  VI:
    title: "The Ferry"
  VII:
    title: "The Archive"
    timed: true
  VIII:
    title: "The Choir"
  IX:
    title: "The Vigil"
    timed: true
  X:
    title: "The Return"

plaques:
  fountain:
    answer: fletchling
    message: "The water stills. Something below has been unlocked."
  lantern:
    answer: "ember tide"
    message: "The lantern flickers green."
  gate:
    answer: quietus
    message: "The gate remembers you."

puzzles:
  bell-tower:
    stages: [nine, copper, "low tide", vesper]
  ferry:
    stages: [oar, "north star"]

keywords: [aurora, basilisk, cinder, dovetail, ember, fathom]

buttons: [do-not-press, bell]

limits:
  answers_per_minute: 30
  answer_burst: 10
`
