package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
)

// request performs one API call and returns the response body. Any failure
// terminates the process with the server's error message; a CLI invocation
// has nothing sensible to do with a half-failed call.
func request(method, path string, payload interface{}) []byte {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			log.Fatalf("Error encoding request: %v", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, serverAddr+path, body)
	if err != nil {
		log.Fatalf("Error building request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if t := token(); t != "" {
		req.Header.Set("Authorization", "Bearer "+t)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("Error calling memory service: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("Error reading response: %v", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Fatalf("Request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data
}

// printJSON pretty prints a JSON response body.
func printJSON(data []byte) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		fmt.Println(string(data))
		return
	}
	fmt.Println(pretty.String())
}
