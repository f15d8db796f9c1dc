package server

import (
	"io"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
)

// Wrap adds access logging and panic recovery around h.
// Access logs use the Apache common log format.
func Wrap(h http.Handler, accessLog io.Writer) http.Handler {
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(log.Default()),
		handlers.PrintRecoveryStack(false),
	)
	return handlers.LoggingHandler(accessLog, recovery(h))
}
