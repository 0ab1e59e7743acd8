// Package ws implements the WebSocket hub for dipscan-server.
//
// Hub manages a set of connected clients and fans batch progress events out
// to all of them as they happen.
//
// New() creates a Hub.
// Hub.Run(ctx) blocks until ctx is cancelled, then closes all active
// connections.
// Hub.Publish(event) broadcasts one progress event; it never blocks.
// Hub.ServeHTTP upgrades an HTTP connection to WebSocket and streams every
// subsequent Publish to the client.
//
// Message format sent to clients:
//
//	{
//	  "event": "progress",
//	  "data":  { "target_id": 8462852, "stage": "download", "file_index": 3, ... }
//	}
//
// The upgrader accepts all origins. Apply CORS restrictions at the reverse
// proxy level. WebSocket endpoint is mounted at /ws/progress by the server.
package ws
