// Package scheduler runs a pipeline graph of throttled stages.
//
// Every stage owns a work queue fed by a backing source and spends tokens
// from its operation's bucket for each batch it hands to the work function.
// Stages run concurrently, one goroutine each. A stage finishes once its
// source and queue are both exhausted and all of its upstream stages have
// finished, then releases its own downstream stages through latches.
//
//	orch := scheduler.NewOrchestrator(throttle.DefaultTable(),
//		scheduler.WithTiming(cfg.Timing),
//		scheduler.WithRecorder(metrics),
//	)
//	orch.Bind("gmfe", scheduler.Operation{Work: fees.Fetch}, src)
//	report, err := orch.Run(ctx, graph)
package scheduler
