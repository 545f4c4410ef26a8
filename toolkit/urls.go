package toolkit

import (
	"context"
	"fmt"
	"regexp"

	"github.com/zero-day-ai/reconpipe/tool"
)

var urlPattern = regexp.MustCompile(`https?://[^\s]+`)

// FindURLs returns every http or https URL in text, in order.
func FindURLs(text string) []string {
	urls := urlPattern.FindAllString(text, -1)
	if urls == nil {
		urls = []string{}
	}
	return urls
}

// ExtractURLs takes {"text"} and returns {"urls"}.
func ExtractURLs() tool.Tool {
	return tool.MustNew(tool.NewConfig().
		SetName("extract_urls").
		SetDescription("Extracts HTTP/HTTPS URLs from text input").
		SetInvokeFunc(func(_ context.Context, in map[string]any) (map[string]any, error) {
			urls := FindURLs(tool.OptionalString(in, "text", ""))
			out := make([]any, len(urls))
			for i, u := range urls {
				out[i] = u
			}
			return map[string]any{"urls": out}, nil
		}))
}

// SummarizeURLs takes {"urls"} and returns {"count", "summary"}.
func SummarizeURLs() tool.Tool {
	return tool.MustNew(tool.NewConfig().
		SetName("summarize_urls").
		SetDescription("Generates a summary of extracted URLs").
		SetInvokeFunc(func(_ context.Context, in map[string]any) (map[string]any, error) {
			var urls []string
			if raw, ok := in["urls"]; ok && raw != nil {
				if err := decodeInput("summarize_urls", raw, &urls); err != nil {
					return nil, err
				}
			}
			return map[string]any{
				"count":   len(urls),
				"summary": fmt.Sprintf("Found %d URLs.", len(urls)),
			}, nil
		}))
}
