// Smoke-tests the api service end to end: login, create a room, send a
// message over REST, read it back from history, mark the room read.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
)

const apiAddr = "http://localhost:8081"

var token string

func call(method, path string, body any) []byte {
	var buf io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		buf = bytes.NewBuffer(data)
	}
	req, _ := http.NewRequest(method, apiAddr+path, buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	out, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		log.Fatalf("%s %s returned %d: %s", method, path, resp.StatusCode, out)
	}
	return out
}

func main() {
	var loginResp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(call("POST", "/login", map[string]string{"user_id": "verify_user"}), &loginResp); err != nil {
		log.Fatal(err)
	}
	token = loginResp.Token
	fmt.Printf("Token: %s...\n", token[:10])

	var room struct {
		ID string `json:"id"`
	}
	body := call("POST", "/rooms", map[string]any{
		"type": "group",
		"name": "verify room",
	})
	if err := json.Unmarshal(body, &room); err != nil {
		log.Fatal(err)
	}
	log.Printf("Created room %s", room.ID)

	body = call("POST", "/rooms/"+room.ID+"/messages", map[string]string{"content": "hello from verify_api"})
	log.Printf("Sent: %s", body)

	body = call("GET", "/rooms/"+room.ID+"/messages?limit=10", nil)
	log.Printf("History: %s", body)

	body = call("POST", "/rooms/"+room.ID+"/read", nil)
	log.Printf("Read: %s", body)

	body = call("GET", "/presence", nil)
	log.Printf("Presence: %s", body)
}
