// Package shutdown coordinates graceful process termination.
//
// Hooks registered with OnShutdown run in reverse order of registration
// once SIGINT or SIGTERM arrives, the wait context ends, or Trigger is
// called. All hooks share one deadline.
//
//	h := shutdown.NewHandler(30 * time.Second)
//	h.OnShutdown("network", srv.Shutdown)
//	err := h.Wait(ctx)
package shutdown
