// Soundcheck terminal viewer — keeps a live link to the broadcast hub,
// prints analysis events as they arrive, and lets the operator send raw
// messages to the hub for echo testing.
package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/soundcheck-live/soundcheck/pkg/events"
	"github.com/soundcheck-live/soundcheck/pkg/logger"
	"github.com/soundcheck-live/soundcheck/pkg/viewer"
)

func main() {
	url := flag.String("url", "", "hub endpoint (default: SOUNDCHECK_WS_URL or "+viewer.DefaultEndpoint+")")
	flag.Parse()

	m := viewer.NewManager(viewer.Options{
		URL: *url,
		OnConnect: func() error {
			// Placeholder for session side effects (capture pipeline etc.);
			// the viewer itself has nothing to start.
			logger.InfoC("viewer", "Session ready")
			return nil
		},
	})

	m.On(events.TypeAnalysisTriggered, func(env events.Envelope) {
		marker := " "
		if env.Payload != nil && env.Payload.Flagged() {
			marker = "!"
		}
		fmt.Printf("[%s] %s\n", marker, env.Summary)
	})
	m.On(events.TypeEcho, func(env events.Envelope) {
		fmt.Println(env.Message)
	})

	m.Connect()

	rl, err := readline.New("soundcheck> ")
	if err != nil {
		fmt.Println("readline:", err)
		return
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt || err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case line == "/status":
			fmt.Println(m.State())
		case line == "/transcript":
			for _, entry := range m.Transcript() {
				marker := " "
				if entry.Flagged {
					marker = "!"
				}
				fmt.Printf("[%s] %s — %s (severity %s, confidence %s)\n",
					marker, entry.UserMessage, entry.Summary,
					entry.Severity, entry.Confidence)
			}
		case line == "/quit":
			m.Close()
			return
		default:
			m.SendMessage(map[string]interface{}{"content": line})
		}
	}

	m.Close()
}
