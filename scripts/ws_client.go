// Package main runs a demo WebSocket client for route events: it seeds a
// scenario, optimizes it, subscribes to the first route's event stream, then
// injects traffic and reroutes so a route.rerouted frame arrives.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Seed a small scenario
	var scenario struct {
		DepotID    int64   `json:"depot_id"`
		VehicleIDs []int64 `json:"vehicle_ids"`
		StopIDs    []int64 `json:"stop_ids"`
	}
	postJSON(base+"/simulation/start", map[string]any{"city": "nyc", "num_stops": 6, "num_vehicles": 2, "seed": 7}, &scenario)
	log.Printf("scenario: depot %d, %d vehicles, %d stops", scenario.DepotID, len(scenario.VehicleIDs), len(scenario.StopIDs))

	// Optimize and wait for the job
	var accepted struct {
		JobID string `json:"job_id"`
	}
	postJSON(base+"/routes/optimize", map[string]any{
		"depot_id":    scenario.DepotID,
		"vehicle_ids": scenario.VehicleIDs,
		"stop_ids":    scenario.StopIDs,
		"date":        time.Now().Format("2006-01-02"),
	}, &accepted)
	log.Printf("job: %s", accepted.JobID)

	var job struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
		Result *struct {
			RouteIDs []string `json:"route_ids"`
		} `json:"result"`
	}
	for {
		getJSON(base+"/routes/"+accepted.JobID+"/status", &job)
		if job.Status == "done" || job.Status == "failed" {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if job.Status != "done" || job.Result == nil || len(job.Result.RouteIDs) == 0 {
		log.Fatalf("job %s: %s (%s)", accepted.JobID, job.Status, job.Reason)
	}
	routeID := job.Result.RouteIDs[0]
	log.Printf("route: %s", routeID)

	// Subscribe to the route's event stream
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/routes/" + routeID + "/events"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var frame struct {
				Event string          `json:"event"`
				Route json.RawMessage `json:"route"`
			}
			if err := c.ReadJSON(&frame); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s: %s", frame.Event, string(frame.Route))
		}
	}()

	// Inject traffic and feed the suggested event back as a reroute
	var injected struct {
		Suggested map[string]any `json:"suggested_event"`
	}
	postJSON(base+"/simulation/inject-traffic", map[string]any{"route_id": routeID, "delay_factor": 4.0}, &injected)
	if injected.Suggested == nil {
		log.Fatal("no suggested event for route")
	}
	postJSON(base+"/routes/"+routeID+"/reroute", map[string]any{"traffic_events": []any{injected.Suggested}}, nil)

	select {
	case <-time.After(3 * time.Second):
	case <-done:
	}
}

func postJSON(url string, body any, out any) {
	b, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		log.Fatalf("POST %s: %s", url, resp.Status)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			log.Fatal(err)
		}
	}
}

func getJSON(url string, out any) {
	resp, err := http.Get(url)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		log.Fatal(err)
	}
}
