/*
Package bench implements the load generator used by `vsign bench`.

An Engine opens Config.Connections sessions, starts Config.WorkersPerConnection
workers on each and drives a Workload through them, either closed loop or at a
fixed total TargetRate. Every outcome goes into an Accumulator; when the run
ends the Accumulator is turned into a Report.

	engine, err := bench.NewEngine(cfg, func(i int) (bench.Session, error) {
		return client.NewManager(client.Dialer(cfg.Transport, opts), policy)
	}, workload)
	if err != nil {
		return err
	}
	report, err := engine.Run(ctx)

A session that drops during a run is not replaced. Its workers stop, and the
Report is flagged Degraded. A run without a single successful call is flagged
Inconclusive.

Reports render as a text summary (String), as JSON (WriteJSON) or as CSV
(WriteCSV, AppendCSV).
*/
package bench
