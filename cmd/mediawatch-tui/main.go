package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mediawatch/backend/internal/tui/app"
	"github.com/mediawatch/backend/internal/tui/client"
)

func main() {
	wsURL := flag.String("url", "ws://127.0.0.1:8080/ws", "Websocket URL of the mediawatch daemon")
	token := flag.String("token", "", "Auth token (if the daemon requires it)")
	flag.Parse()

	conn := client.NewWSClient(*wsURL, *token)
	p := tea.NewProgram(app.New(conn), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
