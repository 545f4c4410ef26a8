// Package pipeline runs stages in a fixed order, passing each stage the
// artifact of the one before.
//
// Before every stage the orchestrator checks the kill switch and evaluates the
// configured gates. Stages run under a retry policy. Every artifact, success or
// failure, is appended to the run's artifact.Logger before the next step, so the
// log is a complete audit trail even when a run stops early.
//
// A run moves from NotStarted to Running and ends in exactly one of
// Completed, GateBlocked, Failed or Cancelled.
//
//	logger, err := artifact.NewLogger("runs")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	o := pipeline.New(logger, []stage.Stage{recon, normalize, triage},
//	    pipeline.WithGates(gate.NewProhibited(gate.DefaultProhibited...)),
//	    pipeline.WithRetry(resilience.DefaultPolicy()),
//	)
//	run, err := o.Run(ctx, nil)
package pipeline
