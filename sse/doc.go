// Package sse implements the legacy MCP HTTP+SSE transport.
//
// A client opens GET /sse and receives an endpoint event naming the URL to
// POST messages to:
//
//	event: endpoint
//	data: /message?sessionId=5f0c...
//
// Each POST carries one JSON-RPC message. The POST is answered with 202 once
// the message has been processed; any JSON-RPC response travels back on the
// stream as an event named message. GET /health reports liveness and every
// response carries permissive CORS headers.
//
// Routes:
//
//	OPTIONS *            204, no authentication
//	GET     /health      {"status":"ok","transport":"sse"}
//	GET     /sse         open a session stream
//	POST    <endpoint>   deliver a message to ?sessionId= (or X-Session-Id)
//	*                    404 Not found
package sse
