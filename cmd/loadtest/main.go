// Command loadtest drives the searchd HTTP API with concurrent search
// traffic and reports latency percentiles. With -ingest-mode=kafka it seeds
// documents through the Kafka ingest topic instead of the HTTP endpoint.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quiver-search/quiver/internal/server"
	"github.com/quiver-search/quiver/pkg/config"
	"github.com/quiver-search/quiver/pkg/kafka"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Queries     []string
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]*atomic.Int64
	statusCodesMu sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]*atomic.Int64),
	}
}

func (s *Stats) RecordRequest(duration time.Duration, statusCode int, err error) {
	s.totalRequests.Add(1)

	if err != nil {
		s.errorCount.Add(1)
		return
	}

	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
	} else {
		s.errorCount.Add(1)
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()

	s.statusCodesMu.Lock()
	if _, ok := s.statusCodes[statusCode]; !ok {
		s.statusCodes[statusCode] = &atomic.Int64{}
	}
	s.statusCodes[statusCode].Add(1)
	s.statusCodesMu.Unlock()
}

var seedDocs = []map[string]string{
	{"name": "iPhone 14", "description": "flagship smartphone with oled display"},
	{"name": "iPad Pro", "description": "tablet device for creative work"},
	{"name": "ThinkPad X1", "description": "business laptop with great keyboard"},
	{"name": "Galaxy S23", "description": "android smartphone with fast camera"},
	{"name": "Kindle Paperwhite", "description": "e-reader with warm backlight"},
	{"name": "Pixel Watch", "description": "wearable device with health tracking"},
	{"name": "MacBook Air", "description": "thin laptop with long battery life"},
	{"name": "Surface Studio", "description": "desktop workstation for designers"},
	{"name": "AirPods Pro", "description": "wireless earbuds with noise cancelling"},
	{"name": "Steam Deck", "description": "handheld gaming device running linux"},
}

var searchQueries = []string{
	"smartphone",
	"laptop battery",
	`"noise cancelling"`,
	"ip*",
	"tablet | smartphone",
	"device -gaming",
	"wearble&fuzzy=2",
	"keybord&fuzzy=1",
	`"health tracking"`,
	"work*",
	"display | camera",
	"laptop -business",
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of searchd")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	ingestMode := flag.String("ingest-mode", "http", "how to seed documents: http or kafka")
	brokers := flag.String("brokers", "localhost:9092", "kafka brokers for -ingest-mode=kafka")
	topic := flag.String("topic", "document-ingest", "kafka ingest topic")
	flag.Parse()

	cfg := Config{
		BaseURL:     *baseURL,
		Concurrency: *concurrency,
		Duration:    *duration,
		Queries:     searchQueries,
	}

	fmt.Println("=== Quiver Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Queries:     %d unique\n", len(cfg.Queries))
	fmt.Println()

	if err := seed(cfg.BaseURL, *ingestMode, *brokers, *topic); err != nil {
		fmt.Fprintf(os.Stderr, "seeding documents failed: %v\n", err)
		os.Exit(1)
	}

	stats := runLoadTest(cfg)
	printReport(stats, cfg.Duration)
}

// seed loads the sample corpus before the query phase so searches have
// something to hit.
func seed(baseURL, mode, brokers, topic string) error {
	switch mode {
	case "http":
		client := &http.Client{Timeout: 10 * time.Second}
		for i, fields := range seedDocs {
			body, err := json.Marshal(server.IngestRequest{Fields: fields})
			if err != nil {
				return err
			}
			docURL := fmt.Sprintf("%s/api/v1/documents/load-%d", baseURL, i+1)
			req, err := http.NewRequest(http.MethodPut, docURL, bytes.NewReader(body))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if resp.StatusCode >= 300 {
				return fmt.Errorf("seeding doc %d: status %d", i+1, resp.StatusCode)
			}
		}
	case "kafka":
		producer := kafka.NewProducer(config.KafkaConfig{Brokers: strings.Split(brokers, ",")}, topic)
		defer producer.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		events := make([]kafka.Event, 0, len(seedDocs))
		for i, fields := range seedDocs {
			events = append(events, kafka.Event{
				Key: fmt.Sprintf("load-%d", i+1),
				Value: server.DocumentEvent{
					DocumentID: fmt.Sprintf("load-%d", i+1),
					Fields:     fields,
					OccurredAt: time.Now().UTC(),
				},
			})
		}
		if err := producer.PublishBatch(ctx, events); err != nil {
			return err
		}
		// give the consumer a moment to drain the topic
		time.Sleep(2 * time.Second)
	default:
		return fmt.Errorf("unknown ingest mode %q", mode)
	}
	fmt.Printf("Seeded %d documents via %s\n\n", len(seedDocs), mode)
	return nil
}

func runLoadTest(cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")

	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			queryIdx := workerID

			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				query := cfg.Queries[queryIdx%len(cfg.Queries)]
				queryIdx++

				// queries may smuggle extra params after '&'
				q, extra, _ := strings.Cut(query, "&")
				searchURL := fmt.Sprintf("%s/api/v1/search?q=%s&limit=10",
					cfg.BaseURL, url.QueryEscape(q))
				if extra != "" {
					searchURL += "&" + extra
				}

				start := time.Now()
				resp, err := client.Do(mustNewRequest(ctx, searchURL))
				duration := time.Since(start)

				if err != nil {
					stats.RecordRequest(duration, 0, err)
					continue
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()

				stats.RecordRequest(duration, resp.StatusCode, nil)
			}
		}(w)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

func mustNewRequest(ctx context.Context, rawURL string) *http.Request {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		panic(fmt.Sprintf("creating request: %v", err))
	}
	return req
}

func printReport(stats *Stats, duration time.Duration) {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	errors := stats.errorCount.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", success)
	fmt.Printf("Errors:          %d\n", errors)

	if total > 0 {
		errorRate := float64(errors) / float64(total) * 100
		fmt.Printf("Error Rate:      %.2f%%\n", errorRate)
		rps := float64(total) / duration.Seconds()
		fmt.Printf("Requests/sec:    %.2f\n", rps)
	}

	stats.latenciesMu.Lock()
	latencies := make([]time.Duration, len(stats.latencies))
	copy(latencies, stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool {
			return latencies[i] < latencies[j]
		})

		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", avg)
		fmt.Printf("P50:    %s\n", percentile(latencies, 50))
		fmt.Printf("P90:    %s\n", percentile(latencies, 90))
		fmt.Printf("P95:    %s\n", percentile(latencies, 95))
		fmt.Printf("P99:    %s\n", percentile(latencies, 99))
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	stats.statusCodesMu.Lock()
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		count := stats.statusCodes[code].Load()
		fmt.Printf("  %d: %d\n", code, count)
	}
	stats.statusCodesMu.Unlock()

	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
