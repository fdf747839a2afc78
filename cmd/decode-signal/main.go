package main

import (
	"log"
	"net/http"
	"os"

	"github.com/calebmer/decode-universe-sub001/internal/relay"
	"github.com/calebmer/decode-universe-sub001/internal/server"
)

func main() {
	// 1. Create the Hub
	hub := relay.NewHub()

	// 2. Run the Hub in a separate goroutine
	// This starts the hub's main event loop (the 'select' statement)
	go hub.Run()

	// 3. Register our handlers
	http.HandleFunc("/health", server.HealthHandler)
	http.HandleFunc("/ws", server.ServeWs(hub))

	// 4. Start the server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Printf("Starting signaling relay on http://localhost:%s", port)

	log.Fatal(http.ListenAndServe(":"+port, nil))
}
