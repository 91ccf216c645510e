package gist

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

var ErrInvalidSource = errors.New("gist: source is neither a gist id nor an http(s) url")

var gistIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{20,}$`)

// IsGistID reports whether src names a GitHub gist rather than a url
func IsGistID(src string) bool {
	return gistIDPattern.MatchString(strings.TrimSpace(src))
}

// resolve returns the url to fetch for src and the gist id when src is one
func resolve(apiURL, src string) (endpoint, id string, err error) {
	src = strings.TrimSpace(src)
	if IsGistID(src) {
		return strings.TrimRight(apiURL, "/") + "/gists/" + src, src, nil
	}
	u, err := url.Parse(src)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", "", ErrInvalidSource
	}
	return u.String(), "", nil
}
