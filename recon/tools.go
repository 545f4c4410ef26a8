package recon

import (
	"context"
	"strings"

	"github.com/zero-day-ai/reconpipe/health"
	"github.com/zero-day-ai/reconpipe/scope"
	"github.com/zero-day-ai/reconpipe/tool"
	"github.com/zero-day-ai/reconpipe/toolerr"
)

// Tools exposes the prober to agents. When checker is non-nil, hosts outside
// it fail with a SCOPE_VIOLATION error before any network call.
func Tools(p *Prober, checker *scope.Checker) []tool.Tool {
	return []tool.Tool{
		hostTool(p, checker, "dns_resolve", "Resolves a hostname to its addresses and canonical name.",
			func(ctx context.Context, host string) map[string]any {
				ips, cname := p.Resolve(ctx, host)
				return map[string]any{"host": host, "a": strsToAny(ips), "cname": cname}
			}),
		hostTool(p, checker, "https_head", "Sends one HTTPS HEAD request and returns sanitized headers.",
			func(ctx context.Context, host string) map[string]any {
				raw, notes := p.Head(ctx, host)
				headers := map[string]any{}
				for k, v := range SanitizeHeaders(raw) {
					headers[k] = v
				}
				return map[string]any{"host": host, "headers": headers, "notes": strsToAny(notes)}
			}),
		hostTool(p, checker, "tls_peek", "Reports the negotiated ALPN protocol and certificate SANs.",
			func(ctx context.Context, host string) map[string]any {
				info := p.TLSPeek(ctx, host)
				out := map[string]any{
					"host":    host,
					"alpn":    strsToAny(info.ALPN),
					"san":     strsToAny(info.SAN),
					"related": strsToAny(RelatedHosts(host, info)),
				}
				if info.Error != "" {
					out["error"] = info.Error
				}
				return out
			}),
		WAFTool(),
	}
}

func hostTool(p *Prober, checker *scope.Checker, name, desc string,
	fn func(ctx context.Context, host string) map[string]any) tool.Tool {
	return tool.MustNew(tool.NewConfig().
		SetName(name).
		SetDescription(desc).
		SetInvokeFunc(func(ctx context.Context, in map[string]any) (map[string]any, error) {
			host, err := tool.RequireString(name, in, "host")
			if err != nil {
				return nil, err
			}
			host = strings.ToLower(strings.TrimSpace(host))
			if strings.ContainsAny(host, "/ \t:@") {
				return nil, toolerr.New(name, "validate", toolerr.ErrCodeInvalidInput,
					"host must be a bare hostname").WithCause(toolerr.ErrInvalidInput)
			}
			if checker != nil {
				if d := checker.Check(host); !d.Allowed {
					return nil, toolerr.New(name, "scope", toolerr.ErrCodeScopeViolation, d.Reason).
						WithDetails(map[string]any{"host": host})
				}
			}
			return fn(ctx, host), nil
		}).
		SetHealthFunc(func(context.Context) health.Status {
			return health.Healthy("prober ready, user agent " + p.UserAgent())
		}))
}

// WAFTool classifies a header map without any network call.
func WAFTool() tool.Tool {
	return tool.MustNew(tool.NewConfig().
		SetName("waf_detect").
		SetDescription("Detects WAF or CDN signatures in response headers.").
		SetInvokeFunc(func(_ context.Context, in map[string]any) (map[string]any, error) {
			raw, ok := in["headers"].(map[string]any)
			if !ok {
				return nil, toolerr.New("waf_detect", "validate", toolerr.ErrCodeInvalidInput,
					`field "headers" must be an object`).WithCause(toolerr.ErrInvalidInput)
			}
			headers := make(map[string]string, len(raw))
			for k, v := range raw {
				if s, ok := v.(string); ok {
					headers[k] = s
				}
			}
			provider, sigs := ClassifyWAF(headers)
			return map[string]any{
				"waf":        len(sigs) > 0,
				"provider":   provider,
				"signatures": strsToAny(sigs),
			}, nil
		}))
}

func strsToAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
