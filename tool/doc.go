// Package tool defines the capability contract shared by every pipeline tool.
//
// A Tool has one operation, Invoke, taking and returning plain JSON objects.
// Stages call tools through Observe so that each call is captured as an
// Observation before its result is folded into the stage's artifact.
//
// Concrete tools either implement the interface directly or are assembled
// with the builder:
//
//	upper, err := tool.New(tool.NewConfig().
//	    SetName("upper").
//	    SetDescription("upper-cases the text field").
//	    SetInvokeFunc(func(ctx context.Context, in map[string]any) (map[string]any, error) {
//	        s, err := tool.RequireString("upper", in, "text")
//	        if err != nil {
//	            return nil, err
//	        }
//	        return map[string]any{"text": strings.ToUpper(s)}, nil
//	    }))
//
//	obs := tool.Observe(ctx, upper, map[string]any{"text": "hi"})
//
// Unimplemented is the base form: embedding it satisfies the interface, and
// invoking it fails with ErrNotImplemented.
package tool
