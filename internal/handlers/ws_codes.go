// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used by the game dispatcher. These provide
// more specific reasons for closure than standard codes.
const (
	BadSubprotocolError   = 3000 // Client connected with an unsupported subprotocol.
	InvalidAuthTokenError = 3001 // Provided auth token was invalid and no guest seat could be minted.
	InvalidUserIDError    = 3002 // User ID derived from token was malformed or invalid.
	InvalidSessionIDError = 3003 // Target session ID specified by the client does not exist or is invalid.
)
