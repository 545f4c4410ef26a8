// Package artifact defines the record passed between pipeline stages and the
// append-only JSON Lines log that persists it.
//
// An Artifact is created by a stage at the end of its run, written once by a
// Logger and never modified afterwards. Artifacts chain: Next snapshots the
// previous stage's output as the new artifact's input and carries the run id
// forward.
//
//	logger, err := artifact.NewLogger("runs")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	a := artifact.Next(prev, "triage", map[string]any{"high_risk": []string{"admin.example.com"}})
//	if err := logger.WriteArtifact(a); err != nil {
//	    return err
//	}
//
// Only plain JSON values may appear in Input and Output. Callers reduce rich
// values to primitives before building an artifact; ValidateValue reports the
// first offending path.
package artifact
