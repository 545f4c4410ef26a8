package recon

import (
	"sort"
	"strings"
	"time"
)

// Record schemas.
const (
	SchemaRecord = "recon-v1"
)

// Defaults for probing.
const (
	DefaultTimeout   = 4 * time.Second
	DefaultUserAgent = "ReconSnap/1.0"
	DefaultOutput    = "runs/recon.jsonl"

	// MaxRobotsSize caps the bytes read from robots.txt.
	MaxRobotsSize = 64 << 10
)

// Seeds are the subdomain prefixes probed under a root. The empty seed is the
// root itself.
var Seeds = []string{"", "www", "api", "dev", "staging"}

// WAFSignatures are header name or value fragments that suggest a WAF or CDN.
var WAFSignatures = []string{
	"cf-ray",
	"cloudflare",
	"x-sucuri-id",
	"akamai-",
	"x-akamai",
	"x-waf",
	"x-cdn",
	"x-edge",
	"x-amzn",
	"aws-alb",
	"fastly",
	"x-served-by",
	"x-cache",
	"x-varnish",
	"x-azure-ref",
	"x-ms-request-id",
}

// SensitiveHeaders are redacted before a record is persisted. A header is
// sensitive when its lowercased name starts with one of these.
var SensitiveHeaders = []string{
	"set-cookie",
	"authorization",
	"x-api-key",
	"x-auth-token",
	"cookie",
	"x-csrf-token",
}

// Candidates returns the sorted, de-duplicated hosts built from Seeds and
// root.
func Candidates(root string) []string {
	root = strings.Trim(strings.ToLower(strings.TrimSpace(root)), ".")
	if root == "" {
		return nil
	}
	seen := make(map[string]struct{}, len(Seeds))
	out := make([]string, 0, len(Seeds))
	for _, s := range Seeds {
		host := strings.Trim(s+"."+root, ".")
		if _, dup := seen[host]; dup {
			continue
		}
		seen[host] = struct{}{}
		out = append(out, host)
	}
	sort.Strings(out)
	return out
}
