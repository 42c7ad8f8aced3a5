package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/kanbu/realtime/internal/auth"
	"github.com/kanbu/realtime/pkg/client"
	"github.com/kanbu/realtime/pkg/domain"
	"github.com/kanbu/realtime/pkg/wire"
)

const KanbuCtlVersion = "0.1.0"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime)
}

func main() {
	usage := `Kanbu board watcher.

Connects to a kanbud server, joins a project room and prints the live
presence roster and every event broadcast to the room.

Usage:
    kanbuctl watch --url=<url> --token=<token> <project_id>
    kanbuctl presence --url=<url> --token=<token> <project_id>

Options:
    -h --help          Show this screen.
    --version          Show version.
    --url=<url>        Websocket endpoint, e.g. ws://localhost:8080/ws.
    --token=<token>    Access token from /api/v1/auth/login.`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], KanbuCtlVersion)
	if err != nil {
		panic(err)
	}

	projectID, err := uuid.Parse(opts["<project_id>"].(string))
	if err != nil {
		Err.Fatalf("bad project id: %s", err)
	}
	url, _ := opts.String("--url")
	token, _ := opts.String("--token")

	if watch, _ := opts.Bool("watch"); watch {
		runWatch(url, token, projectID, true)
	} else if presenceOnly, _ := opts.Bool("presence"); presenceOnly {
		runWatch(url, token, projectID, false)
	}
}

// identityFromToken extracts the presence identity from the JWT without
// verifying it; only the server holds the signing secret.
func identityFromToken(token string) (domain.PresenceEntry, error) {
	var claims auth.Claims
	if _, _, err := gojwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return domain.PresenceEntry{}, fmt.Errorf("parsing token: %w", err)
	}
	return claims.Identity()
}

func runWatch(url, token string, projectID uuid.UUID, follow bool) {
	identity, err := identityFromToken(token)
	if err != nil {
		Err.Fatalf("%s", err)
	}

	c, err := client.New(client.Options{
		URL:      url,
		Token:    token,
		Identity: identity,
		OnStateChange: func(s client.State) {
			if s == client.StateConnected {
				Err.Printf("connected as %s", identity.Username)
			} else {
				Err.Printf("disconnected, retrying")
			}
		},
	})
	if err != nil {
		Err.Fatalf("%s", err)
	}
	defer c.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := c.Connect(ctx); err != nil {
		Err.Fatalf("%s", err)
	}

	room := domain.ProjectRoom(projectID)
	if err := c.Join(ctx, room); err != nil {
		Err.Fatalf("join %s: %s", room, err)
	}

	roster, err := c.Presence(ctx, room)
	if err != nil {
		Err.Fatalf("presence %s: %s", room, err)
	}
	printRoster(roster)

	if !follow {
		return
	}

	for _, typ := range watchedEvents() {
		c.On(string(typ), printEvent)
	}

	<-ctx.Done()
}

func printRoster(roster []domain.PresenceEntry) {
	names := make([]string, 0, len(roster))
	for _, m := range roster {
		names = append(names, m.Username)
	}
	Out.Printf("present (%d): %s", len(roster), strings.Join(names, ", "))
}

func printEvent(env wire.Envelope) {
	by := "server"
	if env.TriggeredBy != nil {
		by = env.TriggeredBy.Username
	}
	ts := env.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	Out.Printf("%s  %-18s %-12s %s", ts.Local().Format("15:04:05"), env.Type, by, string(env.Payload))
}

func watchedEvents() []domain.EventType {
	return []domain.EventType{
		domain.EventPresenceJoined, domain.EventPresenceLeft,
		domain.EventTaskCreated, domain.EventTaskUpdated, domain.EventTaskMoved, domain.EventTaskDeleted,
		domain.EventCommentCreated, domain.EventCommentUpdated, domain.EventCommentDeleted,
		domain.EventSubtaskCreated, domain.EventSubtaskUpdated, domain.EventSubtaskDeleted,
		domain.EventTagAdded, domain.EventTagRemoved,
		domain.EventEditingStart, domain.EventEditingStop,
		domain.EventTypingStart, domain.EventTypingStop,
		domain.EventCursorMove,
	}
}
