// Package bootstrap runs a crossmatch command with a uniform lifecycle:
// validate config, start infrastructure components, run the task under a
// signal-cancelled context, then stop the components in reverse order.
//
//	app, err := bootstrap.NewApp(&cfg)
//	app.RegisterComponent(db)
//	err = app.RunTask(ctx, func(ctx context.Context) error { return runner.Run(ctx, name) })
package bootstrap
