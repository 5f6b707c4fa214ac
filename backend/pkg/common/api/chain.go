package api

import (
	"net/http"
	"strings"
)

// Chaincode failures arrive as "KIND: reason" strings through the gateway.
var kindStatus = map[string]int{
	"AUTHORIZATION":      http.StatusForbidden,
	"VALIDATION":         http.StatusBadRequest,
	"STATE":              http.StatusConflict,
	"LIQUIDITY":          http.StatusUnprocessableEntity,
	"INSUFFICIENT_FUNDS": http.StatusUnprocessableEntity,
	"TRANSFER":           http.StatusUnprocessableEntity,
}

// WriteChainError maps a chaincode error onto the standard error response.
// Unrecognized errors are reported as a plain upstream failure.
func WriteChainError(w http.ResponseWriter, err error, traceID string) {
	message := err.Error()
	for kind, status := range kindStatus {
		if idx := strings.Index(message, kind+":"); idx >= 0 {
			WriteError(w, status, kind, strings.TrimSpace(message[idx+len(kind)+1:]), traceID)
			return
		}
	}
	WriteError(w, http.StatusBadGateway, "chain_error", message, traceID)
}
