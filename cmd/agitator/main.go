// Package main - agitator
// Load generator for the overlay socket: many concurrent debug overlays
// spamming zone reports and harmless wire pulses.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Config for the agitator
type Config struct {
	ServerURL      string
	NumClients     int
	ActionInterval time.Duration
	TestDuration   time.Duration
	Grid           string
	Width, Height  int
	WireShare      float64
}

// Stats tracks performance metrics
type Stats struct {
	MessagesSent     int64
	MessagesReceived int64
	Replies          int64
	Errors           int64
	Latencies        []time.Duration
	mu               sync.Mutex
}

type request struct {
	Type      string  `json:"type"`
	RequestID string  `json:"request_id"`
	Actor     string  `json:"actor"`
	Grid      string  `json:"grid,omitempty"`
	Coords    []coord `json:"coords,omitempty"`
	Target    string  `json:"target,omitempty"`
	Wire      string  `json:"wire,omitempty"`
	Action    string  `json:"action,omitempty"`
}

type coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type reply struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Error     string `json:"error"`
}

func main() {
	serverURL := flag.String("url", "ws://localhost:8080/ws", "WebSocket server URL")
	numClients := flag.Int("clients", 50, "Number of concurrent overlays")
	interval := flag.Duration("interval", 100*time.Millisecond, "Request interval per client")
	duration := flag.Duration("duration", 60*time.Second, "Test duration")
	grid := flag.String("grid", "station", "Grid to report on")
	width := flag.Int("width", 21, "Grid width for random zones")
	height := flag.Int("height", 9, "Grid height for random zones")
	wireShare := flag.Float64("wire-share", 0.2, "Fraction of requests that are NETWORK wire pulses")
	flag.Parse()

	config := Config{
		ServerURL:      *serverURL,
		NumClients:     *numClients,
		ActionInterval: *interval,
		TestDuration:   *duration,
		Grid:           *grid,
		Width:          *width,
		Height:         *height,
		WireShare:      *wireShare,
	}

	fmt.Println("=========================================")
	fmt.Println("AGITATOR - overlay load generator")
	fmt.Println("=========================================")
	fmt.Printf("Server: %s\n", config.ServerURL)
	fmt.Printf("Clients: %d\n", config.NumClients)
	fmt.Printf("Interval: %v\n", config.ActionInterval)
	fmt.Printf("Duration: %v\n", config.TestDuration)
	fmt.Println("=========================================")

	ctx, cancel := context.WithTimeout(context.Background(), config.TestDuration)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		fmt.Println("\nInterrupt received, stopping...")
		cancel()
	}()

	devices := fetchDevices(config.ServerURL)
	fmt.Printf("Wire targets: %d devices\n", len(devices))

	stats := runStressTest(ctx, config, devices)
	printResults(stats, config)
}

// fetchDevices asks the REST API for wire targets. Failure just disables
// wire traffic.
func fetchDevices(wsURL string) []string {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil
	}
	u.Scheme = strings.Replace(u.Scheme, "ws", "http", 1)
	u.Path = "/api/devices"
	resp, err := http.Get(u.String())
	if err != nil {
		log.Printf("device list unavailable: %v", err)
		return nil
	}
	defer resp.Body.Close()
	var views []struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&views); err != nil {
		return nil
	}
	ids := make([]string, 0, len(views))
	for _, v := range views {
		ids = append(ids, v.ID)
	}
	return ids
}

func runStressTest(ctx context.Context, config Config, devices []string) *Stats {
	stats := &Stats{
		Latencies: make([]time.Duration, 0, 10000),
	}

	var wg sync.WaitGroup

	fmt.Println("\nStarting clients...")

	for i := 0; i < config.NumClients; i++ {
		wg.Add(1)
		go func(clientID int) {
			defer wg.Done()
			runClient(ctx, clientID, config, devices, stats)
		}(i)

		// Stagger client starts to avoid thundering herd
		time.Sleep(10 * time.Millisecond)
	}

	fmt.Printf("All %d clients started\n\n", config.NumClients)

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Printf("Progress: Sent=%d Replies=%d Recv=%d Errors=%d\n",
					atomic.LoadInt64(&stats.MessagesSent),
					atomic.LoadInt64(&stats.Replies),
					atomic.LoadInt64(&stats.MessagesReceived),
					atomic.LoadInt64(&stats.Errors))
			}
		}
	}()

	wg.Wait()
	return stats
}

func runClient(ctx context.Context, clientID int, config Config, devices []string, stats *Stats) {
	actor := fmt.Sprintf("OVERLAY_%03d", clientID)
	rng := rand.New(rand.NewSource(int64(clientID) + time.Now().UnixNano()))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, config.ServerURL, nil)
	if err != nil {
		log.Printf("Client %d: Connection failed: %v", clientID, err)
		atomic.AddInt64(&stats.Errors, 1)
		return
	}
	defer conn.Close()

	var pending sync.Map // request id -> send time

	go func() {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			// The hub batches queued messages with newlines.
			for _, line := range strings.Split(string(raw), "\n") {
				atomic.AddInt64(&stats.MessagesReceived, 1)
				var r reply
				if json.Unmarshal([]byte(line), &r) != nil || r.RequestID == "" {
					continue
				}
				if r.Type == "ERROR" {
					atomic.AddInt64(&stats.Errors, 1)
				}
				if sent, ok := pending.LoadAndDelete(r.RequestID); ok {
					atomic.AddInt64(&stats.Replies, 1)
					stats.mu.Lock()
					stats.Latencies = append(stats.Latencies, time.Since(sent.(time.Time)))
					stats.mu.Unlock()
				}
			}
		}
	}()

	ticker := time.NewTicker(config.ActionInterval)
	defer ticker.Stop()

	for seq := 0; ; seq++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			req := generateRequest(rng, actor, seq, config, devices)
			pending.Store(req.RequestID, time.Now())
			if err := conn.WriteJSON(req); err != nil {
				atomic.AddInt64(&stats.Errors, 1)
				return
			}
			atomic.AddInt64(&stats.MessagesSent, 1)
		}
	}
}

func generateRequest(rng *rand.Rand, actor string, seq int, config Config, devices []string) request {
	id := fmt.Sprintf("%s-%d", actor, seq)
	if len(devices) > 0 && rng.Float64() < config.WireShare {
		// NETWORK pulse is a no-op on the device, so load never changes the station.
		return request{
			Type: "WIRE", RequestID: id, Actor: actor,
			Target: devices[rng.Intn(len(devices))], Wire: "NETWORK", Action: "PULSE",
		}
	}

	n := 1 + rng.Intn(9)
	coords := make([]coord, 0, n)
	for i := 0; i < n; i++ {
		coords = append(coords, coord{X: rng.Intn(config.Width), Y: rng.Intn(config.Height)})
	}
	return request{Type: "ZONE_INFO", RequestID: id, Actor: actor, Grid: config.Grid, Coords: coords}
}

func printResults(stats *Stats, config Config) {
	fmt.Println("\n=========================================")
	fmt.Println("STRESS TEST RESULTS")
	fmt.Println("=========================================")

	sent := atomic.LoadInt64(&stats.MessagesSent)
	replies := atomic.LoadInt64(&stats.Replies)
	recv := atomic.LoadInt64(&stats.MessagesReceived)
	errs := atomic.LoadInt64(&stats.Errors)

	fmt.Printf("Requests Sent:     %d\n", sent)
	fmt.Printf("Replies:           %d\n", replies)
	fmt.Printf("Messages Received: %d\n", recv)
	fmt.Printf("Errors:            %d\n", errs)
	fmt.Printf("Error Rate:        %.2f%%\n", float64(errs)/float64(sent+1)*100)

	throughput := float64(sent) / config.TestDuration.Seconds()
	fmt.Printf("Throughput:        %.2f req/sec\n", throughput)

	var p50, p99 time.Duration
	stats.mu.Lock()
	if len(stats.Latencies) > 0 {
		sort.Slice(stats.Latencies, func(i, j int) bool { return stats.Latencies[i] < stats.Latencies[j] })
		p50 = stats.Latencies[len(stats.Latencies)/2]
		p99 = stats.Latencies[len(stats.Latencies)*99/100]
		fmt.Printf("\nRound trip:\n")
		fmt.Printf("  Min: %v\n", stats.Latencies[0])
		fmt.Printf("  P50: %v\n", p50)
		fmt.Printf("  P99: %v\n", p99)
		fmt.Printf("  Max: %v\n", stats.Latencies[len(stats.Latencies)-1])
	}
	stats.mu.Unlock()

	fmt.Println("\n-----------------------------------------")
	switch {
	case errs == 0 && replies >= sent*95/100:
		fmt.Println("TEST PASSED: System handled the load")
	case float64(errs)/float64(sent+1) < 0.05:
		fmt.Println("TEST WARNING: Some errors or dropped replies")
	default:
		fmt.Println("TEST FAILED: High error rate")
	}
	fmt.Println("=========================================")

	results := map[string]interface{}{
		"requests_sent":      sent,
		"replies":            replies,
		"messages_received":  recv,
		"errors":             errs,
		"throughput_per_sec": throughput,
		"p50_ms":             float64(p50) / 1e6,
		"p99_ms":             float64(p99) / 1e6,
		"config": map[string]interface{}{
			"clients":  config.NumClients,
			"interval": config.ActionInterval.String(),
			"duration": config.TestDuration.String(),
		},
	}

	jsonData, _ := json.MarshalIndent(results, "", "  ")
	os.WriteFile("stress_test_results.json", jsonData, 0644)
	fmt.Println("\nResults saved to stress_test_results.json")
}
