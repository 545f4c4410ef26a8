// Package toolkit holds the small built-in tools: URL extraction and
// summary, nmap text parsing, nmap triage and ping.
package toolkit

import (
	"encoding/json"

	"github.com/zero-day-ai/reconpipe/tool"
	"github.com/zero-day-ai/reconpipe/toolerr"
)

// All returns every built-in tool.
func All() []tool.Tool {
	return []tool.Tool{
		ExtractURLs(),
		SummarizeURLs(),
		ParseNmapTool(),
		AnalyzeTriageTool(),
		NewPing(),
	}
}

// NewSet returns All as a tool.Set.
func NewSet() (*tool.Set, error) {
	return tool.NewSet(All()...)
}

// decodeInput re-encodes a plain JSON value into v.
func decodeInput(toolName string, in any, v any) error {
	data, err := json.Marshal(in)
	if err == nil {
		err = json.Unmarshal(data, v)
	}
	if err != nil {
		return toolerr.New(toolName, "decode", toolerr.ErrCodeInvalidInput, "malformed input").
			WithCause(err)
	}
	return nil
}

// toJSON converts a typed value into maps and slices.
func toJSON(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}
