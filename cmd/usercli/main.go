// Package main provides the read-only user CLI entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/playq/internal/api/connect"
)

var (
	app    = kingpin.New("playq-usercli", "playq read-only client")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()

	// status command
	statusCmd = app.Command("status", "Show the playback status").Default()

	// queue command
	queueCmd = app.Command("queue", "List the queue")

	// subscribe command
	subscribeCmd = app.Command("subscribe", "Subscribe to notifications")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Create client
	client := apiconnect.NewClient(http.DefaultClient, *server, "")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch command {
	case statusCmd.FullCommand():
		err = status(ctx, client)
	case queueCmd.FullCommand():
		err = listQueue(ctx, client)
	case subscribeCmd.FullCommand():
		err = subscribe(ctx, client)
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func status(ctx context.Context, client *apiconnect.Client) error {
	s, err := client.GetStatus(ctx)
	if err != nil {
		return err
	}

	fmt.Println("\n=== CURRENT STATUS ===")
	fmt.Printf("Session: %s (%s)\n", s.SessionID, s.Phase)
	if started, err := time.Parse(time.RFC3339, s.StartedAt); err == nil && !started.IsZero() {
		fmt.Printf("Started: %s\n", humanize.Time(started))
	}
	fmt.Printf("Queue: %s [%s] (%d tracks)\n", s.Title, s.Label, len(s.Queue))
	fmt.Printf("State: %s\n", s.State)
	fmt.Printf("Shuffle: %s  Repeat: %s\n", s.Shuffle, s.Repeat)
	fmt.Printf("Listeners: %d\n", s.ListenerCount)

	if s.HasCurrent {
		fmt.Printf("\nCurrent Track: %d\n", s.CurrentID)
		printTrack(s.Track)
		fmt.Printf("  Position: %s", formatMs(s.PositionMs))
		if s.DurationMs > 0 {
			fmt.Printf(" / %s", formatMs(s.DurationMs))
		}
		fmt.Println()
	} else {
		fmt.Println("\nNo track selected")
	}
	fmt.Println()
	return nil
}

func listQueue(ctx context.Context, client *apiconnect.Client) error {
	s, err := client.GetStatus(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("%s (%s tracks)\n", s.Title, humanize.Comma(int64(len(s.Queue))))
	for i, id := range s.Queue {
		marker := " "
		if s.HasCurrent && i == s.CurrentIndex {
			marker = ">"
		}
		fmt.Printf("%s %3d  %d\n", marker, i, id)
	}
	return nil
}

func subscribe(ctx context.Context, client *apiconnect.Client) error {
	fmt.Println("Subscribed to notifications. Press Ctrl+C to exit.")
	err := client.Subscribe(ctx, func(n *apiconnect.NotificationMessage) error {
		printNotification(n)
		return nil
	})
	fmt.Println("\nUnsubscribed")
	return err
}

func printNotification(n *apiconnect.NotificationMessage) {
	// Print sequence number
	fmt.Printf("\n[Sequence: %d] ", n.SequenceNo)

	// Print event type header
	switch n.Type {
	case "initial":
		fmt.Println("=== INITIAL STATE ===")
		fmt.Printf("  Queue: %s %v\n", n.Title, n.Queue)
		fmt.Printf("  State: %s at %s\n", n.State, formatMs(n.PositionMs))
		fmt.Printf("  Shuffle: %s  Repeat: %s\n", n.Shuffle, n.Repeat)
		if n.HasCurrent {
			fmt.Printf("  Current Track: %d\n", n.CurrentID)
			printTrack(n.Track)
		}
	case "queue":
		fmt.Println("=== QUEUE CHANGED ===")
		fmt.Printf("  Queue: %v\n", n.Queue)
	case "title":
		fmt.Println("=== TITLE CHANGED ===")
		fmt.Printf("  Title: %s\n", n.Title)
	case "state":
		fmt.Println("=== STATE CHANGED ===")
		fmt.Printf("  State: %s at %s\n", n.State, formatMs(n.PositionMs))
	case "track":
		fmt.Println("=== TRACK CHANGED ===")
		if n.HasCurrent {
			fmt.Printf("  Current Track: %d\n", n.CurrentID)
			printTrack(n.Track)
		} else {
			fmt.Println("  No track selected")
		}
	case "mode":
		fmt.Println("=== MODE CHANGED ===")
		fmt.Printf("  Shuffle: %s  Repeat: %s\n", n.Shuffle, n.Repeat)
	default:
		fmt.Printf("=== UNKNOWN EVENT (%s) ===\n", n.Type)
	}
}

func printTrack(t *apiconnect.TrackInfo) {
	if t == nil {
		fmt.Println("  (no metadata)")
		return
	}
	fmt.Printf("  Title: %s\n", t.Title)
	if t.Artist != "" {
		fmt.Printf("  Artist: %s\n", t.Artist)
	}
	if t.Album != "" {
		fmt.Printf("  Album: %s\n", t.Album)
	}
	if t.DurationMs > 0 {
		fmt.Printf("  Duration: %s\n", formatMs(t.DurationMs))
	}
}

func formatMs(ms int64) string {
	return (time.Duration(ms) * time.Millisecond).Truncate(time.Second).String()
}
