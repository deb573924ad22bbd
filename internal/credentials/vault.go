// Package credentials loads the optional cookie vault used to pre-authenticate
// browser sessions. Matching is best-effort: a miss means the agent simply
// starts logged out.
package credentials

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// SiteCredentials binds a set of session cookies to the site they belong to.
// Domain matches the start URL's host by the cookie suffix rule; Keywords
// match case-insensitively against the goal text and start URL.
type SiteCredentials struct {
	Domain   string           `json:"domain"`
	Keywords []string         `json:"keywords,omitempty"`
	Cookies  []schemas.Cookie `json:"cookies"`
}

// Vault is the parsed credential file. The zero value is an empty vault that
// never matches anything.
type Vault struct {
	Sites []SiteCredentials `json:"sites"`

	logger *zap.Logger
}

// Load reads the vault file at path. An empty path yields an empty vault; a
// named file that cannot be read or parsed is an error so a typo does not
// silently run sessions logged out.
func Load(path string, logger *zap.Logger) (*Vault, error) {
	log := logger.Named("credentials")
	if path == "" {
		log.Debug("No credential vault configured.")
		return &Vault{logger: log}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading credential vault: %w", err)
	}

	var v Vault
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parsing credential vault %s: %w", path, err)
	}
	v.logger = log

	log.Info("Credential vault loaded.", zap.Int("sites", len(v.Sites)))
	return &v, nil
}

// CookiesFor returns the cookies of every site entry matching the start URL
// or goal. Cookies without an explicit domain inherit their entry's domain.
func (v *Vault) CookiesFor(startURL, goal string) []schemas.Cookie {
	if v == nil || len(v.Sites) == 0 {
		return nil
	}

	host := hostOf(startURL)
	goalLower := strings.ToLower(goal)
	urlLower := strings.ToLower(startURL)

	var cookies []schemas.Cookie
	for _, site := range v.Sites {
		if !site.matches(host, goalLower, urlLower) {
			continue
		}
		for _, c := range site.Cookies {
			if c.Domain == "" {
				c.Domain = site.Domain
			}
			cookies = append(cookies, c)
		}
		if v.logger != nil {
			v.logger.Debug("Credential vault matched.",
				zap.String("domain", site.Domain),
				zap.Int("cookies", len(site.Cookies)))
		}
	}
	return cookies
}

func (s *SiteCredentials) matches(host, goalLower, urlLower string) bool {
	if domain := normalizeDomain(s.Domain); domain != "" && host != "" {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	for _, kw := range s.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if strings.Contains(goalLower, kw) || strings.Contains(urlLower, kw) {
			return true
		}
	}
	return false
}

func normalizeDomain(domain string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(domain), "."))
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return strings.ToLower(strings.TrimSpace(rawURL))
	}
	return strings.ToLower(u.Hostname())
}
