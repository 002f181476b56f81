// Package bootstrap wires configuration, logging, the detection engine,
// the worker transport and the HTTP API into an App.
//
// Usage:
//
//	app, err := bootstrap.NewApp(bootstrap.Options{ConfigPath: path})
//	if err != nil {
//	    return err
//	}
//	defer app.Shutdown()
//
//	if err := app.InitAnalysis(ctx); err != nil {
//	    return err
//	}
//	if err := app.LoadRules(""); err != nil {
//	    return err
//	}
//	if err := app.Start(ctx); err != nil {
//	    return err
//	}
//
//	// Wait for shutdown signal
//	app.WaitForShutdown(ctx)
package bootstrap
