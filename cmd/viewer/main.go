// The viewer is a read-only debugging tool: it connects to the user
// endpoint, asks for the current group snapshot, renders it as a table,
// and exits. It never creates a session, so it receives no broadcasts.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"

	"musink/protocol"
)

type Config struct {
	ServerURL    string        `env:"MUSINK_USER_URL,default=ws://localhost:8080"`
	ReplyTimeout time.Duration `env:"VIEWER_REPLY_TIMEOUT,default=5s"`
}

func main() {
	// 1. Load config
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		log.Fatalf("Config error: %v", err)
	}

	// 2. Connect and request the snapshot
	conn, _, err := websocket.DefaultDialer.Dial(config.ServerURL, nil)
	if err != nil {
		log.Fatalf("Failed to connect to %s: %v", config.ServerURL, err)
	}
	defer conn.Close()

	request, err := json.Marshal(protocol.Message{Type: protocol.TypeGetAdvertisingGroups})
	if err != nil {
		log.Fatalf("Failed to encode request: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, request); err != nil {
		log.Fatalf("Failed to send request: %v", err)
	}

	// 3. Wait for the snapshot reply, skipping anything else
	_ = conn.SetReadDeadline(time.Now().Add(config.ReplyTimeout))
	var views []protocol.GroupView
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			log.Fatalf("No snapshot received: %v", err)
		}
		msg, err := protocol.Parse(raw)
		if err != nil || msg.Type != protocol.TypeAdvertisingGroups {
			continue
		}
		if err := json.Unmarshal(msg.Data, &views); err != nil {
			log.Fatalf("Malformed snapshot: %v", err)
		}
		break
	}

	// 4. Render
	if len(views) == 0 {
		color.Yellow.Println("No groups registered")
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Advertising", "Members"})
	for _, view := range views {
		table.Append([]string{
			strconv.Itoa(view.ID),
			fmt.Sprintf("%t", view.Advert),
			strings.Join(view.Clients, ", "),
		})
	}
	table.Render()
	color.Green.Printf("%d group(s), %d member(s) total\n", len(views), countMembers(views))
}

func countMembers(views []protocol.GroupView) int {
	total := 0
	for _, view := range views {
		total += len(view.Clients)
	}
	return total
}
