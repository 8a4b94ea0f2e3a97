// Package stdio implements the single-connection MCP transport over
// stdin/stdout. It is the default mode when the server is spawned as a
// subprocess by a desktop client.
//
// Characteristics
//
//	Connection model : 1 process <-> 1 client
//	Auth             : none; the parent process is trusted
//	Sessions         : one implicit session, never registered
//	Framing          : newline-delimited JSON-RPC
//
// Requests are handled concurrently and responses are written whole, one per
// line, in completion order. Logs belong on stderr.
//
// Example:
//
//	h := stdio.NewHandler(eng, stdio.WithLogger(logger))
//	if err := h.Serve(ctx); err != nil { os.Exit(1) }
package stdio
