// Package sessions tracks the live client sessions of the streaming
// transport.
//
// A Session moves through Connecting, Open and Closed. The Registry only hands
// out Open sessions, and closing a session removes it from the registry before
// any later lookup can observe it.
//
//	reg := sessions.NewRegistry()
//	sess := reg.Open("sse", stream)
//	defer sess.Close()
//	// announce sess.ID() to the client, then
//	sess.MarkOpen()
//
// A failed write closes the session; callers do not need to clean up after
// Send returns an error.
package sessions
