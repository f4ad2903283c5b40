// Command connect-simulator plays the streaming provider against a running
// swabbrd instance: it reads the pool snapshot, picks reserved livestreams
// and fires connected (and optionally completed) callbacks at them.
//
// Typical loop while exercising the scheduler end to end:
//
//	connect-simulator -api http://localhost:8080 -watch
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"
)

type poolResponse struct {
	Resources []poolResource `json:"resources"`
}

type poolResource struct {
	LivestreamID string `json:"livestream_id"`
	State        string `json:"state"`
	ReservedFor  string `json:"reserved_for,omitempty"`
}

func main() {
	apiURL := flag.String("api", "http://localhost:8080", "swabbrd base URL")
	livestreamID := flag.String("livestream", "", "connect this livestream and exit")
	complete := flag.Bool("complete", false, "also send the completed callback")
	completeAfter := flag.Duration("complete-after", 2*time.Second, "delay before completed")
	watch := flag.Bool("watch", false, "poll the pool and connect every reserved livestream")
	interval := flag.Duration("interval", 5*time.Second, "poll interval in watch mode")
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}

	if *livestreamID != "" {
		if err := connect(client, *apiURL, *livestreamID, *complete, *completeAfter); err != nil {
			log.Fatalf("connect %s: %v", *livestreamID, err)
		}
		return
	}

	if !*watch {
		flag.Usage()
		os.Exit(2)
	}

	log.Printf("watching %s every %s", *apiURL, *interval)
	seen := map[string]bool{}
	for {
		resources, err := snapshot(client, *apiURL)
		if err != nil {
			log.Printf("pool snapshot: %v", err)
		}
		for _, r := range resources {
			if r.State != "reserved" || seen[r.LivestreamID] {
				continue
			}
			seen[r.LivestreamID] = true
			if err := connect(client, *apiURL, r.LivestreamID, *complete, *completeAfter); err != nil {
				log.Printf("connect %s: %v", r.LivestreamID, err)
				continue
			}
			log.Printf("connected %s (reserved for %s)", r.LivestreamID, r.ReservedFor)
		}
		time.Sleep(*interval)
	}
}

func snapshot(client *http.Client, apiURL string) ([]poolResource, error) {
	resp, err := client.Get(apiURL + "/pool")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var body poolResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.Resources, nil
}

func connect(client *http.Client, apiURL, livestreamID string, complete bool, after time.Duration) error {
	if err := fireEvent(client, apiURL, livestreamID, "connected"); err != nil {
		return err
	}
	if complete {
		time.Sleep(after)
		if err := fireEvent(client, apiURL, livestreamID, "completed"); err != nil {
			return fmt.Errorf("completed: %w", err)
		}
		log.Printf("completed %s", livestreamID)
	}
	return nil
}

func fireEvent(client *http.Client, apiURL, livestreamID, event string) error {
	url := fmt.Sprintf("%s/livestreams/%s/%s", apiURL, livestreamID, event)
	resp, err := client.Post(url, "application/json", bytes.NewReader(nil))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", event, resp.StatusCode)
	}
	return nil
}
