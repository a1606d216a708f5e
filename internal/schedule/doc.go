// Package schedule stores cron-triggered device actions and runs them.
//
// A Schedule pairs a five-field cron expression with a state patch for one
// device. The Scheduler keeps one trigger per enabled schedule, evaluated in
// a fixed timezone. Any change to the stored schedules takes effect only on
// Reload, which rebuilds the trigger set from the database.
//
//	sched := schedule.NewScheduler(repo, controller, loc, logger)
//	if err := sched.Start(ctx); err != nil {
//	    return err
//	}
//	defer sched.Stop()
package schedule
