// internal/handlers/ws_codes.go
package handlers

import "github.com/coder/websocket"

// Custom WebSocket close codes used by the game handlers. These give the
// client a more specific reason than the standard codes.
const (
	BadSubprotocolError   websocket.StatusCode = 3000 // unsupported subprotocol
	InvalidAuthTokenError websocket.StatusCode = 3001 // auth token invalid or expired
	InvalidGameIDError    websocket.StatusCode = 3003 // target game does not exist
)
