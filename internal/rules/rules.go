// Package rules loads, validates and holds the live trim rule configuration.
package rules

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/dgnsrekt/tabtrim/internal/trim"
	"gopkg.in/yaml.v3"
)

// Default returns the rule set used when no rules file is configured.
func Default() trim.RulesConfig {
	return trim.RulesConfig{
		Duplicates: trim.DuplicatesRule{IsActivated: true},
		Group:      trim.GroupRule{IsActivated: true, Type: trim.GroupFullDomain},
		Host:       trim.HostRule{IsActivated: false, MaxTabsAllowed: 5},
	}
}

// Load reads a YAML rules file. Keys missing from the file keep their
// Default values. An empty path returns Default.
func Load(path string) (trim.RulesConfig, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return trim.RulesConfig{}, fmt.Errorf("rules config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return trim.RulesConfig{}, fmt.Errorf("rules config: %w", err)
	}
	cfg.Group.Type = normalizeGroupType(cfg.Group.Type)
	if err := Validate(cfg); err != nil {
		return trim.RulesConfig{}, fmt.Errorf("rules config %s: %w", path, err)
	}
	return cfg, nil
}

// Marshal renders cfg in the rules file format.
func Marshal(cfg trim.RulesConfig) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// Validate checks the structural constraints of a rule set. The evaluator
// never calls it; callers accepting user input do.
func Validate(cfg trim.RulesConfig) error {
	var errs []error
	switch cfg.Group.Type {
	case trim.GroupFullDomain, trim.GroupHost:
	case "":
		if cfg.Group.IsActivated {
			errs = append(errs, errors.New("group.type is required when the group rule is activated"))
		}
	default:
		errs = append(errs, fmt.Errorf("group.type %q must be FULL_DOMAIN or HOST", cfg.Group.Type))
	}
	if cfg.Host.IsActivated && cfg.Host.MaxTabsAllowed < 1 {
		errs = append(errs, fmt.Errorf("host.max_tabs_allowed must be >= 1, got %d", cfg.Host.MaxTabsAllowed))
	}
	return errors.Join(errs...)
}

// ApplyEnv overrides cfg from TABTRIM_* variables. Unparseable values are
// reported, not ignored.
func ApplyEnv(cfg trim.RulesConfig, lookup func(string) (string, bool)) (trim.RulesConfig, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	var errs []error
	boolVar := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	boolVar("TABTRIM_DUPLICATES", &cfg.Duplicates.IsActivated)
	boolVar("TABTRIM_GROUP", &cfg.Group.IsActivated)
	boolVar("TABTRIM_HOST", &cfg.Host.IsActivated)
	if v, ok := lookup("TABTRIM_GROUP_TYPE"); ok && v != "" {
		cfg.Group.Type = normalizeGroupType(trim.GroupType(v))
	}
	if v, ok := lookup("TABTRIM_MAX_TABS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("TABTRIM_MAX_TABS: %w", err))
		} else {
			cfg.Host.MaxTabsAllowed = n
		}
	}
	if err := errors.Join(errs...); err != nil {
		return trim.RulesConfig{}, err
	}
	return cfg, nil
}

func normalizeGroupType(t trim.GroupType) trim.GroupType {
	return trim.GroupType(strings.ToUpper(strings.TrimSpace(string(t))))
}

// Store holds the live rule set. Each evaluation takes a copy, so updates
// never affect an evaluation already running.
type Store struct {
	mu  sync.RWMutex
	cfg trim.RulesConfig
	gen int64
}

func NewStore(cfg trim.RulesConfig) *Store {
	return &Store{cfg: cfg, gen: 1}
}

// Get returns the current rules and their generation.
func (s *Store) Get() (trim.RulesConfig, int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg, s.gen
}

// Set validates and swaps in cfg. Nothing is written to disk.
func (s *Store) Set(cfg trim.RulesConfig) (int64, error) {
	cfg.Group.Type = normalizeGroupType(cfg.Group.Type)
	if err := Validate(cfg); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.gen++
	return s.gen, nil
}
