package scraper

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// SourceConfig defines a CSS-selector scrape source loaded from a YAML file.
// The code-backed portals (ebilet, goingapp) are not configured this way;
// YAML sources cover plain HTML listing pages.
type SourceConfig struct {
	Name      string         `yaml:"name" validate:"required"`
	URL       string         `yaml:"url" validate:"required,url"`
	Enabled   bool           `yaml:"enabled"`
	MaxPages  int            `yaml:"max_pages" validate:"gte=0"`
	Category  string         `yaml:"category"`
	Notes     string         `yaml:"notes,omitempty"`
	Selectors SelectorConfig `yaml:"selectors"`
}

// SelectorConfig holds the CSS selectors applied to each listing page.
type SelectorConfig struct {
	EventList   string `yaml:"event_list" validate:"required"`
	Name        string `yaml:"name" validate:"required"`
	StartDate   string `yaml:"start_date"`
	EndDate     string `yaml:"end_date"`
	Location    string `yaml:"location"`
	Place       string `yaml:"place"`
	Description string `yaml:"description"`
	URL         string `yaml:"url"`
	Image       string `yaml:"image"`
	Artists     string `yaml:"artists"`
	Tags        string `yaml:"tags"`
	Pagination  string `yaml:"pagination"`
}

// DefaultSourceConfig returns a SourceConfig with defaults applied.
func DefaultSourceConfig() SourceConfig {
	return SourceConfig{
		Enabled:  true,
		MaxPages: 10,
	}
}

var sourceValidator = validator.New(validator.WithRequiredStructEnabled())

// ValidateConfig checks one SourceConfig. Recognized options are a fixed
// record; structural problems are reported with their field paths.
func ValidateConfig(cfg SourceConfig) error {
	if err := sourceValidator.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	return nil
}

// LoadSourceConfigs reads all *.yaml files from dir, skipping files starting
// with "_", and returns the parsed configs. Unknown YAML keys are rejected at
// load, as is any config failing validation. A non-existent directory yields
// an empty slice with no error.
func LoadSourceConfigs(dir string) ([]SourceConfig, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return []SourceConfig{}, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading source config dir %s: %w", dir, err)
	}

	var configs []SourceConfig
	var problems []string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, "_") {
			continue
		}
		if filepath.Ext(name) != ".yaml" {
			continue
		}

		filePath := filepath.Join(dir, name)
		cfg, err := LoadSourceConfig(filePath)
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		configs = append(configs, cfg)
	}

	if len(problems) > 0 {
		return configs, fmt.Errorf("invalid source configs:\n  %s", strings.Join(problems, "\n  "))
	}
	return configs, nil
}

// LoadSourceConfig reads a single YAML source config, applies defaults and
// validates it.
func LoadSourceConfig(path string) (SourceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SourceConfig{}, fmt.Errorf("loading %s: %w", path, err)
	}

	cfg := DefaultSourceConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return SourceConfig{}, fmt.Errorf("%s: parsing YAML: %w", path, err)
	}

	if cfg.MaxPages == 0 {
		cfg.MaxPages = 10
	}

	if err := ValidateConfig(cfg); err != nil {
		return SourceConfig{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}
