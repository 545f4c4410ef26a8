package recon

import (
	"sort"
	"strconv"
	"strings"
)

// TLSInfo is what a handshake reveals without fetching content.
type TLSInfo struct {
	ALPN  []string `json:"alpn"`
	SAN   []string `json:"san"`
	Error string   `json:"error,omitempty"`
}

// Record is the recon-v1 result for one host.
type Record struct {
	Schema      string            `json:"schema"`
	Host        string            `json:"host"`
	A           []string          `json:"a"`
	CNAME       string            `json:"cname,omitempty"`
	Headers     map[string]string `json:"headers"`
	WAFHint     *bool             `json:"waf_hint"`
	WAFProvider string            `json:"waf_provider,omitempty"`
	TLS         *TLSInfo          `json:"tls,omitempty"`
	Notes       []string          `json:"notes"`
	TS          string            `json:"ts"`
}

// Resolved reports whether the host had at least one address.
func (r Record) Resolved() bool { return len(r.A) > 0 }

// WAF reports whether a WAF hint was raised.
func (r Record) WAF() bool { return r.WAFHint != nil && *r.WAFHint }

// Status returns the HTTP status from the "status:N" note, or 0.
func (r Record) Status() int {
	for _, n := range r.Notes {
		if v, ok := strings.CutPrefix(n, "status:"); ok {
			if code, err := strconv.Atoi(v); err == nil {
				return code
			}
		}
	}
	return 0
}

// Errors returns the "error:" notes.
func (r Record) Errors() []string {
	var out []string
	for _, n := range r.Notes {
		if strings.HasPrefix(n, "error:") || strings.HasPrefix(n, "robots:error:") {
			out = append(out, n)
		}
	}
	return out
}

// Finding converts the record into the raw finding shape consumed by the
// normalize stage.
func (r Record) Finding() map[string]any {
	headers := make(map[string]any, len(r.Headers))
	keys := make([]string, 0, len(r.Headers))
	for k := range r.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		headers[k] = r.Headers[k]
	}

	ip := ""
	if len(r.A) > 0 {
		ip = r.A[0]
	}
	addrs := make([]any, len(r.A))
	for i, a := range r.A {
		addrs[i] = a
	}
	notes := make([]any, len(r.Notes))
	for i, n := range r.Notes {
		notes[i] = n
	}

	f := map[string]any{
		"host":    r.Host,
		"ip":      ip,
		"a":       addrs,
		"status":  r.Status(),
		"headers": headers,
		"notes":   notes,
		"waf":     r.WAF(),
	}
	if r.WAFProvider != "" {
		f["waf_provider"] = r.WAFProvider
	}
	return f
}
