// Command chattest is a load testing tool for the websocket endpoint. It
// logs in with one account, opens many concurrent sockets, and pushes
// message:send frames into a chat while counting what comes back.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

type metrics struct {
	ConnectionsAttempted int64
	ConnectionsSuccess   int64
	ConnectionsFailed    int64
	MessagesSent         int64
	FramesReceived       int64
	Errors               int64
}

var stats metrics

type frame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func main() {
	host := flag.String("host", "localhost:8460", "API server host")
	username := flag.String("username", "loadtest", "Test account username")
	password := flag.String("password", "password123", "Test account password")
	chatID := flag.Uint("chat", 0, "Chat to post into (0 = listen only)")
	clients := flag.Int("clients", 50, "Number of concurrent sockets")
	interval := flag.Duration("interval", 2*time.Second, "Delay between sends per socket")
	duration := flag.Duration("duration", 30*time.Second, "Test duration")
	flag.Parse()

	log.Printf("Starting chat socket test against %s (%d clients, %v)", *host, *clients, *duration)

	token, err := login(*host, *username, *password)
	if err != nil {
		log.Fatalf("login failed: %v", err)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < *clients; i++ {
		wg.Add(1)
		go runClient(*host, token, uint(*chatID), *interval, stop, &wg)
		time.Sleep(25 * time.Millisecond)
	}

	select {
	case <-time.After(*duration):
		log.Println("test duration reached")
	case <-interrupt:
		log.Println("interrupted")
	}

	close(stop)
	wg.Wait()
	printStats()
}

func login(host, username, password string) (string, error) {
	body, _ := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})

	resp, err := http.Post(fmt.Sprintf("http://%s/auth/login", host),
		"application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login failed with status %d", resp.StatusCode)
	}

	var result struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.AccessToken, nil
}

func runClient(host, token string, chatID uint, interval time.Duration, stop <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	atomic.AddInt64(&stats.ConnectionsAttempted, 1)

	u := url.URL{Scheme: "ws", Host: host, Path: "/ws"}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		atomic.AddInt64(&stats.ConnectionsFailed, 1)
		return
	}
	atomic.AddInt64(&stats.ConnectionsSuccess, 1)
	defer func() { _ = conn.Close() }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			atomic.AddInt64(&stats.FramesReceived, 1)
			if f.Event == "error" || f.Event == "message:error" {
				atomic.AddInt64(&stats.Errors, 1)
			}
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			select {
			case <-done:
			case <-time.After(2 * time.Second):
			}
			return
		case <-done:
			return
		case <-ticker.C:
			if chatID == 0 {
				continue
			}
			payload, _ := json.Marshal(map[string]any{
				"chatId":  chatID,
				"content": fmt.Sprintf("load test message %d", rand.Int63()),
			})
			if err := conn.WriteJSON(frame{Event: "message:send", Payload: payload}); err != nil {
				atomic.AddInt64(&stats.Errors, 1)
				return
			}
			atomic.AddInt64(&stats.MessagesSent, 1)
		}
	}
}

func printStats() {
	log.Println("--- results ---")
	log.Printf("connections: %d attempted, %d ok, %d failed",
		stats.ConnectionsAttempted, stats.ConnectionsSuccess, stats.ConnectionsFailed)
	log.Printf("messages sent: %d", stats.MessagesSent)
	log.Printf("frames received: %d", stats.FramesReceived)
	log.Printf("errors: %d", stats.Errors)
}
