// Package process supervises the bridge's main run.
//
// When a run exits with an error the supervisor waits a cooldown and starts
// it again, up to a bounded number of runs (100 runs, 10s apart by
// default). Errors wrapped with Permanent stop it at once.
//
// Example usage:
//
//	sup := process.NewSupervisor(process.Config{
//	    Name:        "midea-bridge",
//	    MaxAttempts: cfg.Restart.MaxAttempts,
//	    Cooldown:    config.Seconds(cfg.Restart.Cooldown),
//	})
//	sup.SetLogger(logger)
//
//	if err := sup.Run(ctx, run); err != nil {
//	    os.Exit(1)
//	}
package process
