package protocol

import (
	"fmt"
	"net/url"
)

const (
	// BlankURL is the neutral navigation target used to tear a sandbox down
	BlankURL = "about:blank"

	// WildcardOrigin delivers a post regardless of the receiver's origin
	WildcardOrigin = "*"

	// ScriptParam is the query parameter naming the bootstrap script
	ScriptParam = "url"
)

// Target names the runner page and the bootstrap script for one environment
type Target struct {
	RunnerURL string `json:"runner_url" yaml:"runner_url" toml:"runner_url"`
	ScriptURL string `json:"script_url" yaml:"script_url" toml:"script_url"`
}

// URL computes the sandbox navigation target for t
func (t Target) URL() (string, error) {
	return BuildURL(t.RunnerURL, map[string]string{ScriptParam: t.ScriptURL})
}

// BuildURL appends params to base as query parameters, keeping any existing ones
func BuildURL(base string, params map[string]string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid runner url %q: %w", base, err)
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ScriptURL extracts the bootstrap script location from a sandbox URL
func ScriptURL(src string) (string, error) {
	u, err := url.Parse(src)
	if err != nil {
		return "", fmt.Errorf("invalid sandbox url %q: %w", src, err)
	}
	return u.Query().Get(ScriptParam), nil
}

// Origin returns scheme://host for src, or "" when src has no host
func Origin(src string) string {
	u, err := url.Parse(src)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// OriginMatches reports whether a post aimed at targetOrigin may be
// delivered to a context currently showing src.
func OriginMatches(targetOrigin, src string) bool {
	if targetOrigin == WildcardOrigin {
		return true
	}
	return targetOrigin != "" && targetOrigin == Origin(src)
}
