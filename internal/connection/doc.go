// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Owns at most one outbound WebSocket connection at a time
//   - Reconnects with exponential backoff after errors and abnormal closes
//   - Stops for good after a clean close from the peer or a terminal Close
//   - Reports open, close, error, reconnect and message callbacks to a Handler
package connection
