// A small terminal client for poking at the chat core: logs in through the
// api service, connects to the gateway, and maps slash commands onto the wire
// protocol.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/etalonmax94/CareConnect-sub003/pkg/protocol"
)

type LoginResponse struct {
	Token string `json:"token"`
}

func login(apiAddr, userID string) (string, error) {
	reqBody, _ := json.Marshal(map[string]string{"user_id": userID})
	resp, err := http.Post(apiAddr+"/login", "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("login failed: %s", string(body))
	}

	var loginResp LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		return "", err
	}
	return loginResp.Token, nil
}

func render(frame protocol.Outbound) string {
	switch frame.Type {
	case protocol.KindMessage:
		if frame.Message == nil {
			return ""
		}
		edited := ""
		if frame.Message.IsEdited {
			edited = " (edited)"
		}
		return fmt.Sprintf("[%s] %s: %s%s", frame.RoomID, frame.Message.SenderName, frame.Message.Content, edited)
	case protocol.KindAck:
		if frame.Message == nil {
			return ""
		}
		return fmt.Sprintf("[%s] delivered (id=%d)", frame.RoomID, frame.Message.ID)
	case protocol.KindTyping:
		if frame.IsTyping != nil && *frame.IsTyping {
			return fmt.Sprintf("[%s] %s is typing...", frame.RoomID, frame.UserID)
		}
		return fmt.Sprintf("[%s] %s stopped typing", frame.RoomID, frame.UserID)
	case protocol.KindPresence:
		return fmt.Sprintf("* %s is now %s", frame.UserID, frame.Status)
	case protocol.KindRead:
		return fmt.Sprintf("[%s] %s read the room", frame.RoomID, frame.UserID)
	case protocol.KindError:
		return "! error: " + frame.Reason
	}
	return ""
}

func main() {
	serverAddr := flag.String("addr", "localhost:8080", "gateway service address")
	apiAddr := flag.String("api", "http://localhost:8081", "api service address")
	userID := flag.String("user", "user1", "user id")
	roomID := flag.String("room", "general", "room id")
	dmUser := flag.String("dm", "", "user id to dm (overrides -room)")
	flag.Parse()

	room := *roomID
	if *dmUser != "" {
		// Same derivation the api uses, so both peers land in the same room.
		u1, u2 := *userID, *dmUser
		if u1 > u2 {
			u1, u2 = u2, u1
		}
		room = fmt.Sprintf("dm:%s:%s", u1, u2)
	}

	log.Printf("Logging in as %s...", *userID)
	token, err := login(*apiAddr, *userID)
	if err != nil {
		log.Fatal("Login failed:", err)
	}

	u := url.URL{Scheme: "ws", Host: *serverAddr, Path: "/ws"}
	log.Printf("connecting to %s", u.String())

	header := http.Header{}
	header.Add("Authorization", "Bearer "+token)

	c, _, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer c.Close()

	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Println("read:", err)
				return
			}
			var frame protocol.Outbound
			if err := json.Unmarshal(message, &frame); err != nil {
				fmt.Printf("\rReceived raw: %s\n> ", message)
				continue
			}
			if line := render(frame); line != "" {
				fmt.Printf("\r%s\n> ", line)
			}
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	send := func(v any) bool {
		data, _ := json.Marshal(v)
		if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Println("write:", err)
			return false
		}
		return true
	}

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		fmt.Print("> ")
		for scanner.Scan() {
			text := scanner.Text()
			if text == "" {
				fmt.Print("> ")
				continue
			}

			switch {
			case text == "/quit":
				close(interrupt)
				return
			case text == "/typing":
				send(map[string]any{"type": protocol.KindTyping, "roomId": room, "isTyping": true})
			case text == "/stoptyping":
				send(map[string]any{"type": protocol.KindTyping, "roomId": room, "isTyping": false})
			case text == "/read":
				send(map[string]any{"type": protocol.KindRead, "roomId": room})
			case strings.HasPrefix(text, "/join "):
				room = strings.TrimSpace(strings.TrimPrefix(text, "/join "))
				fmt.Printf("\rnow talking in %s\n", room)
			default:
				// Token makes resends after a dropped connection safe.
				send(map[string]any{
					"type":    protocol.KindMessage,
					"roomId":  room,
					"content": text,
					"token":   fmt.Sprintf("%s-%d", *userID, time.Now().UnixNano()),
				})
			}
			fmt.Print("> ")
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("interrupt")

			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("write close:", err)
				return
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		}
	}
}
