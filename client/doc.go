// Package client is the engine's top half: the request model, the
// connection manager, and the driver that turns a [Request] into a
// [Response]: applying cookies, following redirects, retrying stale
// pooled connections, and charging every blocking step against one time
// budget.
//
// The usual shape:
//
//	req, err := client.ParseURL("http://example.com/")
//	// handle err
//	m := client.NewManager(client.Settings{IdleTimeout: time.Minute})
//	defer m.Close()
//
//	res, err := m.Do(req) // body pre-read, connection already released
//
// Callers that want to stream use [Manager.WithResponse], or
// [Manager.Send] directly when they need to own the release point.
package client
