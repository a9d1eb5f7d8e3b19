package main

import (
	"fmt"
	"log"
	"net/http"

	handler "canvas-notes-backend/api"
	"canvas-notes-backend/pkg/config"
)

// Local development entry point. Deployed environments route every
// request through api.Handler directly.
func main() {
	cfg := config.GetCached()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	addr := ":" + cfg.Port
	fmt.Printf("canvas-notes-backend listening on %s (env: %s)\n", addr, cfg.Environment)

	if err := http.ListenAndServe(addr, http.HandlerFunc(handler.Handler)); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
