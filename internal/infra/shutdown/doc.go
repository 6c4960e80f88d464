// Package shutdown runs cleanup hooks when the process is asked to stop.
//
// Hooks run in reverse order of registration under one shared deadline,
// so the component started last is stopped first:
//
//	h := shutdown.NewHandler(30*time.Second, log)
//	h.OnShutdown("http", srv.Shutdown)
//	h.OnShutdown("sessions", manager.Close)
//	err := h.Wait(ctx)
package shutdown
