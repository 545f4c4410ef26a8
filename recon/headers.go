package recon

import "strings"

// Redacted replaces the value of a sensitive header.
const Redacted = "[redacted]"

var fingerprintHeaders = []string{
	"server",
	"x-powered-by",
	"x-aspnet-version",
	"x-aspnetmvc-version",
	"x-generator",
	"x-drupal-cache",
	"x-varnish",
	"x-magento-",
	"x-shopify-",
	"x-wordpress-",
}

// SanitizeHeaders returns a copy of headers with the values of sensitive
// headers replaced by Redacted. Names are kept for fingerprinting.
func SanitizeHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if isSensitive(k) {
			v = Redacted
		}
		out[k] = v
	}
	return out
}

func isSensitive(name string) bool {
	name = strings.ToLower(name)
	for _, s := range SensitiveHeaders {
		if strings.HasPrefix(name, s) {
			return true
		}
	}
	return false
}

// FingerprintHeaders keeps only the headers that reveal the technology stack.
func FingerprintHeaders(headers map[string]string) map[string]string {
	out := map[string]string{}
	for k, v := range headers {
		lk := strings.ToLower(k)
		for _, fp := range fingerprintHeaders {
			if strings.HasPrefix(lk, fp) {
				out[k] = v
				break
			}
		}
	}
	return out
}
