package trim

import (
	"net/url"
	"strings"
)

// GroupKey derives the host-limit grouping key for rawURL. It returns false
// when the URL cannot be parsed or is not an http(s) URL.
//
// FULL_DOMAIN and HOST both key on the lowercased hostname. The type is kept
// in the config so the two modes can diverge later. An unknown type yields
// no key.
func GroupKey(rawURL string, cfg RulesConfig) (string, bool) {
	switch EffectiveGroupType(cfg) {
	case GroupFullDomain, GroupHost:
		return hostname(rawURL)
	default:
		return "", false
	}
}

// EffectiveGroupType returns the grouping mode used for cfg. A disabled
// group rule, or one without a type, groups by HOST.
func EffectiveGroupType(cfg RulesConfig) GroupType {
	if !cfg.Group.IsActivated || cfg.Group.Type == "" {
		return GroupHost
	}
	return cfg.Group.Type
}

func hostname(rawURL string) (string, bool) {
	if rawURL == "" {
		return "", false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", false
	}
	return host, true
}
