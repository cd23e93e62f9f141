package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// envelope mirrors the daemon's stream message format.
type envelope struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

func main() {
	var (
		wsURL = flag.String("ws", "ws://127.0.0.1:8080/ws", "argbd state stream URL")
		types = flag.String("types", "", "Comma-separated message types to show (default: all)")
		raw   = flag.Bool("raw", false, "Print raw JSON messages")
	)
	flag.Parse()

	// Parse websocket URL
	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}

	filter := map[string]bool{}
	for _, t := range strings.Split(*types, ",") {
		if t = strings.TrimSpace(t); t != "" {
			filter[t] = true
		}
	}

	// Handle shutdown
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	// Connect to websocket
	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("connected! (press Ctrl+C to exit)")

	// Mutex to protect concurrent writes to websocket
	var writeMu sync.Mutex

	// The daemon pings every 20s; extend the deadline on each pong/ping.
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
	})

	// Message reading loop
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))

			switch messageType {
			case websocket.TextMessage:
				handleTextMessage(message, filter, *raw)
			case websocket.BinaryMessage:
				fmt.Printf("[BINARY] %d bytes\n", len(message))
			}
		}
	}()

	// Wait for shutdown signal or connection close
	select {
	case <-sigc:
		log.Printf("shutting down...")
		// Clean close
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
}

// handleTextMessage prints one stream message.
func handleTextMessage(message []byte, filter map[string]bool, raw bool) {
	var env envelope
	if err := json.Unmarshal(message, &env); err != nil {
		fmt.Printf("[TEXT] %s\n", string(message))
		return
	}
	if len(filter) > 0 && !filter[env.Type] {
		return
	}
	if raw {
		fmt.Println(string(message))
		return
	}

	ts := ""
	if env.Ts != nil {
		ts = env.Ts.Local().Format("15:04:05.000") + " "
	}

	switch env.Type {
	case "chart":
		var d struct {
			Channels []struct {
				Key    string    `json:"key"`
				Values []float64 `json:"values"`
			} `json:"channels"`
			Brightness *struct {
				Current float64 `json:"current"`
				Min     float64 `json:"min"`
				Max     float64 `json:"max"`
				Avg     float64 `json:"avg"`
				Samples int     `json:"samples"`
			} `json:"brightness_stats"`
		}
		if err := json.Unmarshal(env.Data, &d); err != nil {
			break
		}
		parts := make([]string, 0, len(d.Channels))
		for _, ch := range d.Channels {
			parts = append(parts, fmt.Sprintf("%s(%d)", ch.Key, len(ch.Values)))
		}
		line := fmt.Sprintf("%s[CHART] %s", ts, strings.Join(parts, " "))
		if b := d.Brightness; b != nil {
			line += fmt.Sprintf(" | BR cur=%.0f min=%.0f max=%.0f avg=%.1f n=%d", b.Current, b.Min, b.Max, b.Avg, b.Samples)
		}
		fmt.Println(line)
		return

	case "samples":
		var d struct {
			Values map[string]float64 `json:"values"`
		}
		if err := json.Unmarshal(env.Data, &d); err != nil {
			break
		}
		keys := make([]string, 0, len(d.Values))
		for k := range d.Values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%g", k, d.Values[k]))
		}
		fmt.Printf("%s[SAMPLES] %s\n", ts, strings.Join(parts, " "))
		return

	case "status_text":
		var d struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(env.Data, &d); err != nil {
			break
		}
		fmt.Printf("%s[DEVICE] %s\n", ts, d.Text)
		return

	case "history":
		var d struct {
			Entry   string `json:"entry"`
			Cleared bool   `json:"cleared"`
		}
		if err := json.Unmarshal(env.Data, &d); err != nil {
			break
		}
		if d.Cleared {
			fmt.Printf("%s[HISTORY] cleared\n", ts)
		} else {
			fmt.Printf("%s[HISTORY] %s\n", ts, d.Entry)
		}
		return
	}

	// Pretty print everything else
	var data any
	if err := json.Unmarshal(env.Data, &data); err != nil {
		fmt.Printf("%s[%s]\n", ts, strings.ToUpper(env.Type))
		return
	}
	prettyJSON, _ := json.MarshalIndent(data, "", "  ")
	fmt.Printf("%s[%s]\n%s\n\n", ts, strings.ToUpper(env.Type), string(prettyJSON))
}
