package main

import (
	"fmt"
	"os"

	"github.com/mapleroute/quotebot-backend/internal/app"
)

func main() {
	a, err := app.New()
	if err != nil {
		fmt.Printf("Failed to start: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.Run(); err != nil {
		a.Log.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}
