// Package server implements the machinewatch HTTP API.
//
// The API is a gin router in front of the discovery reconciler and the
// device store. It keeps the routes and response shapes existing dashboard
// clients expect.
//
// # Routes
//
//	GET /                              health message
//	GET /api/db-check                  store connectivity check
//	GET /api/discover-devices          run one discovery cycle
//	GET /api/discovered-devices        list persisted devices
//	GET /api/discovered-devices/:ip    one persisted device
//	GET /api/discovery/stream          websocket feed of cycle results
//
// # Discovery Route
//
// /api/discover-devices accepts two optional query parameters:
//   - broadcastIp: the target address; detected from host interfaces if absent
//   - timeout: the collection window in milliseconds; absent or invalid
//     values use the configured default
//
// A successful cycle answers 200 with
//
//	{"success": true, "message": "...", "devices": [...]}
//
// whether or not any machine replied. A missing broadcast address or a
// failed cycle answers 500 with success false and the reason in message.
//
// # Stream
//
// Every websocket client receives each completed cycle result as a JSON
// text message of type "cycle". The server pings idle clients and drops
// those that stop answering.
package server
