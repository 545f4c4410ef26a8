// Package gate holds the safety checks evaluated before every pipeline stage.
//
// A Gate returns a Decision rather than an error: a block is an expected
// outcome that halts the run with a reason. Gates compose with All or
// Evaluate, which stop at the first block.
//
// The usual production set is a Safety gate (denylist, then operator
// confirmation) plus a Scope gate and optionally a TimeWindow:
//
//	checker, _ := scope.NewChecker(scope.Config{Allowed: []string{"*.example.com"}})
//	g := gate.All(
//	    gate.NewSafety(gate.NewDefaultProhibited(), gate.NewConfirm(gate.ReaderPrompt(os.Stdin, os.Stderr))),
//	    gate.NewScope(checker),
//	    gate.BusinessHours(),
//	)
package gate
