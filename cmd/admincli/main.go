// Package main provides the admin CLI entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/playq/internal/api/connect"
	"github.com/osa030/playq/internal/domain/track"
)

var (
	app     = kingpin.New("playq-admincli", "playq admin client")
	server  = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token   = app.Flag("token", "Admin token (or set PLAYQ_ADMIN_TOKEN env)").Envar("PLAYQ_ADMIN_TOKEN").String()
	timeout = app.Flag("timeout", "Request timeout").Default("10s").Duration()

	// transport commands
	playCmd      = app.Command("play", "Start or resume playback")
	pauseCmd     = app.Command("pause", "Pause playback")
	stopCmd      = app.Command("stop", "Stop playback")
	nextCmd      = app.Command("next", "Skip to the next track")
	prevCmd      = app.Command("prev", "Go back a track or restart the current one").Alias("previous")
	completedCmd = app.Command("completed", "Report that the current track finished")
	shuffleCmd   = app.Command("shuffle", "Toggle shuffle")
	repeatCmd    = app.Command("repeat", "Cycle repeat (off, all, one)")

	seekCmd      = app.Command("seek", "Seek within the current track")
	seekPosition = seekCmd.Arg("position", "Position, e.g. 1m30s").Required().Duration()

	playTrackCmd = app.Command("play-track", "Play a queued track from the beginning")
	playTrackID  = playTrackCmd.Arg("track-id", "Track ID").Required().Int64()

	// queue commands
	setCmd   = app.Command("set", "Replace the queue")
	setTitle = setCmd.Flag("title", "Queue title").String()
	setIDs   = setCmd.Arg("track-ids", "Track IDs (comma or space separated)").Required().Strings()

	appendCmd = app.Command("append", "Append tracks to the queue").Alias("add")
	appendIDs = appendCmd.Arg("track-ids", "Track IDs (comma or space separated)").Required().Strings()

	playNextCmd = app.Command("play-next", "Move a track right after the current one")
	playNextID  = playNextCmd.Arg("track-id", "Track ID").Required().Int64()

	removeCmd = app.Command("remove", "Remove a track from the queue").Alias("rm")
	removeID  = removeCmd.Arg("track-id", "Track ID").Required().Int64()

	swapCmd  = app.Command("swap", "Move the track at one index to another")
	swapFrom = swapCmd.Arg("from", "Source index (0-based)").Required().Int()
	swapTo   = swapCmd.Arg("to", "Target index (0-based)").Required().Int()

	clearCmd = app.Command("clear", "Empty the queue")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Check admin token
	if *token == "" {
		fmt.Println("Error: admin token is required (use --token or PLAYQ_ADMIN_TOKEN env)")
		os.Exit(1)
	}

	// Create client
	client := apiconnect.NewClient(http.DefaultClient, *server, *token)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := execute(ctx, client, command); err != nil {
		fmt.Printf("Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

func execute(ctx context.Context, client *apiconnect.Client, command string) error {
	switch command {
	case playCmd.FullCommand():
		return done(client.Play(ctx), "Playing")
	case pauseCmd.FullCommand():
		return done(client.Pause(ctx), "Paused")
	case stopCmd.FullCommand():
		return done(client.Stop(ctx), "Stopped")
	case nextCmd.FullCommand():
		return done(client.SkipNext(ctx), "Skipped")
	case prevCmd.FullCommand():
		return done(client.SkipPrevious(ctx), "Went back")
	case completedCmd.FullCommand():
		return done(client.TrackCompleted(ctx), "Track completed")
	case seekCmd.FullCommand():
		return done(client.Seek(ctx, *seekPosition), "Seeked to "+seekPosition.String())
	case playTrackCmd.FullCommand():
		return done(client.PlayTrack(ctx, track.ID(*playTrackID)), "Playing track")
	case shuffleCmd.FullCommand():
		mode, err := client.ToggleShuffle(ctx)
		return done(err, "Shuffle: "+mode)
	case repeatCmd.FullCommand():
		mode, err := client.ToggleRepeat(ctx)
		return done(err, "Repeat: "+mode)

	case setCmd.FullCommand():
		ids, err := parseIDs(*setIDs)
		if err != nil {
			return err
		}
		res, err := client.SetQueue(ctx, ids, *setTitle)
		if err != nil {
			return err
		}
		printAdmit(res)
	case appendCmd.FullCommand():
		ids, err := parseIDs(*appendIDs)
		if err != nil {
			return err
		}
		res, err := client.Append(ctx, ids)
		if err != nil {
			return err
		}
		printAdmit(res)
	case playNextCmd.FullCommand():
		return done(client.PlayNext(ctx, track.ID(*playNextID)), "Moved")
	case removeCmd.FullCommand():
		return done(client.Remove(ctx, track.ID(*removeID)), "Removed")
	case swapCmd.FullCommand():
		return done(client.Swap(ctx, *swapFrom, *swapTo), "Moved")
	case clearCmd.FullCommand():
		return done(client.Clear(ctx), "Queue cleared")
	}
	return nil
}

func done(err error, message string) error {
	if err != nil {
		return err
	}
	fmt.Println(message)
	return nil
}

func parseIDs(args []string) ([]track.ID, error) {
	return track.ParseIDs(strings.Join(args, " "))
}

func printAdmit(res *apiconnect.AdmitMessage) {
	fmt.Printf("Accepted %d track(s)\n", len(res.Accepted))
	for _, r := range res.Rejected {
		fmt.Printf("  Rejected %d [%s]: %s\n", r.TrackID, r.Code, r.Message)
	}
}
