package browser

import (
	"net/url"
	"regexp"
)

// TokenFromURL returns the value of param in rawURL when rawURL matches
// pattern, or "".
func TokenFromURL(rawURL string, pattern *regexp.Regexp, param string) string {
	if !pattern.MatchString(rawURL) {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Query().Get(param)
}

// tileURL appends the token to the vector-layer endpoint.
func tileURL(apiURL, param, token string) (string, error) {
	u, err := url.Parse(apiURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(param, token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
