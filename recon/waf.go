package recon

import "strings"

// ProviderUnknown is reported when signatures match but no provider claims
// them.
const ProviderUnknown = "unknown"

// providers is checked in order; the first provider owning a detected
// signature wins.
var providers = []struct {
	name string
	sigs []string
}{
	{"cloudflare", []string{"cf-ray", "cloudflare"}},
	{"akamai", []string{"akamai-", "x-akamai"}},
	{"aws", []string{"x-amzn", "aws-alb"}},
	{"fastly", []string{"fastly", "x-served-by"}},
	{"varnish", []string{"x-varnish"}},
	{"azure", []string{"x-azure-ref", "x-ms-request-id"}},
	{"sucuri", []string{"x-sucuri-id"}},
	{"generic_waf", []string{"x-waf"}},
	{"generic_cdn", []string{"x-cdn", "x-edge", "x-cache"}},
}

// DetectWAF returns the signatures found in header names or values, in
// WAFSignatures order. It is a hint, not a fingerprint, and errs towards
// false positives.
func DetectWAF(headers map[string]string) []string {
	var found []string
	for _, sig := range WAFSignatures {
		for k, v := range headers {
			if strings.Contains(strings.ToLower(k), sig) || strings.Contains(strings.ToLower(v), sig) {
				found = append(found, sig)
				break
			}
		}
	}
	return found
}

// InferWAF reports whether any WAF signature is present.
func InferWAF(headers map[string]string) bool {
	return len(DetectWAF(headers)) > 0
}

// ClassifyWAF names the likely provider and returns the matched signatures.
// The provider is empty when nothing matched.
func ClassifyWAF(headers map[string]string) (string, []string) {
	sigs := DetectWAF(headers)
	if len(sigs) == 0 {
		return "", nil
	}
	for _, p := range providers {
		for _, s := range sigs {
			for _, ps := range p.sigs {
				if s == ps {
					return p.name, sigs
				}
			}
		}
	}
	return ProviderUnknown, sigs
}
