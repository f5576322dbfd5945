package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/MikeSquared-Agency/casi/internal/client"
	"github.com/MikeSquared-Agency/casi/internal/tui"
)

func main() {
	_ = godotenv.Load()

	defaultURL := os.Getenv("CASI_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8760"
	}
	url := flag.String("url", defaultURL, "casi server base URL")
	maxWords := flag.Int("max-words", 120, "word budget per answer")
	timeout := flag.Duration("timeout", 60*time.Second, "per-request timeout")
	flag.Parse()

	c := client.New(*url, *timeout)
	p := tea.NewProgram(tui.New(c, *maxWords, *timeout), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "casi-chat:", err)
		os.Exit(1)
	}
}
