package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"sunsetdb/pkg/client"
)

func main() {
	httpAddr := flag.String("http", "http://localhost:8080", "HTTP API base URL, empty skips the HTTP run")
	tcpAddr := flag.String("tcp", "127.0.0.1:2600", "TCP server address")
	nReq := flag.Int("n", 2000, "Number of requests per run")
	workers := flag.Int("c", 8, "Concurrent TCP connections for the correlation run")
	flag.Parse()
	if *workers < 1 {
		*workers = 1
	}

	fmt.Printf("Sunset Protocol Benchmark (N=%d)\n", *nReq)
	fmt.Printf("  HTTP=%s  TCP=%s\n", *httpAddr, *tcpAddr)
	fmt.Println("---------------------------------------------------")

	var httpDuration time.Duration
	if *httpAddr != "" {
		fmt.Println(">> Starting HTTP Benchmark (JSON over HTTP 1.1)...")
		httpDuration = runHTTPBenchmark(*httpAddr, *nReq)
		fmt.Printf("   HTTP Time: %v | QPS: %.0f\n\n", httpDuration, float64(*nReq)/httpDuration.Seconds())
	}

	fmt.Println(">> Starting TCP Benchmark (Line Protocol)...")
	tcpDuration := runTCPBenchmark(*tcpAddr, *nReq)
	fmt.Printf("   TCP  Time: %v | QPS: %.0f\n\n", tcpDuration, float64(*nReq)/tcpDuration.Seconds())

	fmt.Printf(">> Starting concurrent correlation check (%d connections)...\n", *workers)
	d, mismatches := runConcurrent(*tcpAddr, *workers, *nReq / *workers)
	fmt.Printf("   Time: %v | mismatched replies: %d\n", d, mismatches)

	fmt.Println("---------------------------------------------------")
	if httpDuration > 0 {
		fmt.Printf("Conclusion: TCP is %.2fx faster than HTTP!\n", httpDuration.Seconds()/tcpDuration.Seconds())
	}
	if mismatches > 0 {
		log.Fatalf("%d replies were delivered to the wrong request", mismatches)
	}
}

func runHTTPBenchmark(httpAddr string, n int) time.Duration {
	start := time.Now()
	client := &http.Client{
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 100,
		},
	}

	for i := 0; i < n; i++ {
		data := map[string]interface{}{
			"key":   fmt.Sprintf("bench:%d", i),
			"value": "bench_data",
		}
		jsonData, _ := json.Marshal(data)

		resp, err := client.Post(httpAddr+"/api/put", "application/json", bytes.NewReader(jsonData))
		if err != nil {
			log.Fatalf("HTTP Req failed: %v", err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
	return time.Since(start)
}

func runTCPBenchmark(addr string, n int) time.Duration {
	start := time.Now()

	cli, err := client.Dial(addr)
	if err != nil {
		log.Fatalf("TCP Connect failed: %v", err)
	}
	defer cli.Close()

	val := []byte("bench_data")
	for i := 0; i < n; i++ {
		if err := cli.Put([]byte(fmt.Sprintf("bench:%d", i)), val); err != nil {
			log.Fatalf("TCP Put failed: %v", err)
		}
	}

	return time.Since(start)
}

// runConcurrent has every worker write and read back its own keys. A reply
// routed to the wrong connection shows up as a value mismatch.
func runConcurrent(addr string, workers, perWorker int) (time.Duration, int) {
	start := time.Now()
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		mismatches int
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			cli, err := client.Dial(addr)
			if err != nil {
				log.Printf("worker %d: %v", w, err)
				return
			}
			defer cli.Close()

			for i := 0; i < perWorker; i++ {
				key := []byte(fmt.Sprintf("w%d:%d", w, i))
				want := fmt.Sprintf("value-%d-%d", w, i)
				if err := cli.Put(key, []byte(want)); err != nil {
					log.Printf("worker %d put: %v", w, err)
					return
				}
				got, err := cli.Get(key)
				if err != nil || string(got) != want {
					mu.Lock()
					mismatches++
					mu.Unlock()
				}
			}
		}(w)
	}
	wg.Wait()
	return time.Since(start), mismatches
}
