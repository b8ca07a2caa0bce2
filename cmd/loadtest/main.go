package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/awmpietro/golang-typestate-order-check/internal/transport/checkdto"
)

const protocolDOT = `digraph ComplexOrder {
  entry [shape=point];
  q6 [shape=doublecircle];
  q7 [shape=doublecircle];
  entry -> q1;
  q1 -> q2 [label="cm.create()"];
  q2 -> q3 [label="cm.init()"];
  q3 -> q4 [label="cm.start()"];
  q4 -> q5 [label="ε"];
  q5 -> q5 [label="cm.process()"];
  q5 -> q6 [label="cm.finish()"];
  q6 -> q4 [label="cm.start()"];
  q6 -> q7 [label="cm.reset()"];
}`

const loopDOT = `digraph loop {
  n0 [label="var cm"];
  n1 [label="cm.create()"];
  n2 [label="cm.init()"];
  n3 [label="cm.start()"];
  n4 [label="cm.process()"];
  n5 [label="cm.finish()"];
  n6 [label="while (more)"];
  n7 [label="if (done)"];
  n8 [label="cm.reset()"];
  n9 [label="return"];
  n0 -> n1; n1 -> n2; n2 -> n3; n3 -> n4; n4 -> n5; n5 -> n6;
  n6 -> n3; n6 -> n7;
  n7 -> n8; n7 -> n9;
  n8 -> n9;
}`

const escapeDOT = `digraph escape {
  n0 [label="var cm"];
  n1 [label="cm.create()"];
  n2 [label="configure(cm)"];
  n3 [label="cm.start()"];
  n4 [label="cm.finish()"];
  n0 -> n1; n1 -> n2; n2 -> n3; n3 -> n4;
}`

type result struct {
	latency time.Duration
	status  int
	err     error
}

func main() {
	url := flag.String("url", "http://localhost:8080/check", "check endpoint URL")
	rps := flag.Int("rps", 50, "target requests per second")
	duration := flag.Duration("duration", 60*time.Second, "test duration")
	workers := flag.Int("workers", 50, "number of concurrent workers")
	timeout := flag.Duration("timeout", 5*time.Second, "HTTP client timeout")
	maxP90 := flag.Duration("max-p90", 30*time.Millisecond, "P90 latency target")
	flag.Parse()

	if *rps <= 0 || *duration <= 0 || *workers <= 0 {
		fmt.Fprintln(os.Stderr, "rps, duration and workers must be > 0")
		os.Exit(2)
	}

	payload := checkdto.CheckRequest{
		Protocol: protocolDOT,
		Functions: []checkdto.FunctionInput{
			{Graph: loopDOT},
			{Graph: escapeDOT},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal payload: %v\n", err)
		os.Exit(1)
	}

	client := &http.Client{Timeout: *timeout}
	jobs := make(chan struct{}, *workers)

	var wg sync.WaitGroup
	var mu sync.Mutex
	results := make([]result, 0, *rps*int(duration.Seconds())+1)
	record := func(r result) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	}

	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				start := time.Now()
				req, err := http.NewRequest(http.MethodPost, *url, bytes.NewReader(body))
				if err != nil {
					record(result{latency: time.Since(start), err: err})
					continue
				}
				req.Header.Set("Content-Type", "application/json")

				resp, err := client.Do(req)
				lat := time.Since(start)
				if err != nil {
					record(result{latency: lat, err: err})
					continue
				}

				_, _ = io.Copy(io.Discard, resp.Body)
				_ = resp.Body.Close()
				record(result{latency: lat, status: resp.StatusCode})
			}
		}()
	}

	ticker := time.NewTicker(time.Second / time.Duration(*rps))
	defer ticker.Stop()
	deadline := time.Now().Add(*duration)

	for now := range ticker.C {
		if now.After(deadline) {
			break
		}
		jobs <- struct{}{}
	}
	close(jobs)
	wg.Wait()

	latencies := make([]time.Duration, 0, len(results))
	success2xx, non2xx, errs := 0, 0, 0
	for _, r := range results {
		latencies = append(latencies, r.latency)
		switch {
		case r.err != nil:
			errs++
		case r.status >= 200 && r.status < 300:
			success2xx++
		default:
			non2xx++
		}
	}

	if len(latencies) == 0 {
		fmt.Fprintln(os.Stderr, "no requests executed")
		os.Exit(1)
	}

	slices.Sort(latencies)
	p50 := percentile(latencies, 50)
	p90 := percentile(latencies, 90)
	p99 := percentile(latencies, 99)
	achievedRPS := float64(len(latencies)) / duration.Seconds()

	fmt.Printf("Load test finished\n")
	fmt.Printf("- target_rps: %d\n", *rps)
	fmt.Printf("- achieved_rps: %.2f\n", achievedRPS)
	fmt.Printf("- duration: %s\n", duration.String())
	fmt.Printf("- requests: %d\n", len(latencies))
	fmt.Printf("- 2xx: %d\n", success2xx)
	fmt.Printf("- non_2xx: %d\n", non2xx)
	fmt.Printf("- errors: %d\n", errs)
	fmt.Printf("- avg_ms: %.3f\n", ms(average(latencies)))
	fmt.Printf("- p50_ms: %.3f\n", ms(p50))
	fmt.Printf("- p90_ms: %.3f\n", ms(p90))
	fmt.Printf("- p99_ms: %.3f\n", ms(p99))

	if achievedRPS >= float64(*rps)*0.98 && p90 < *maxP90 && errs == 0 && non2xx == 0 {
		fmt.Printf("PASS: meets %d RPS and P90 < %s\n", *rps, maxP90.String())
		return
	}

	fmt.Println("FAIL: does not meet target (or has request errors)")
	os.Exit(1)
}

func percentile(items []time.Duration, p int) time.Duration {
	if len(items) == 0 {
		return 0
	}
	return items[(len(items)-1)*p/100]
}

func average(items []time.Duration) time.Duration {
	if len(items) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range items {
		total += d
	}
	return total / time.Duration(len(items))
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}
