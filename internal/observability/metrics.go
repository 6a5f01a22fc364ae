package observability

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu            sync.Mutex
	requestCount  map[string]int64
	errorCount    map[string]int64
	totalDuration map[string]time.Duration
}

// RequestStat is one route/method/status bucket.
type RequestStat struct {
	Route      string  `json:"route"`
	Method     string  `json:"method"`
	Status     int     `json:"status"`
	Count      int64   `json:"count"`
	AvgLatency float64 `json:"avg_latency_ms"`
}

// ErrorStat counts failures by error code.
type ErrorStat struct {
	Route  string `json:"route"`
	Method string `json:"method"`
	Code   string `json:"code"`
	Count  int64  `json:"count"`
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Requests []RequestStat `json:"requests"`
	Errors   []ErrorStat   `json:"errors"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount:  make(map[string]int64),
		errorCount:    make(map[string]int64),
		totalDuration: make(map[string]time.Duration),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, strconv.Itoa(status))
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
	m.totalDuration[key] += duration
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := pathKey(path, method, code)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// Snapshot copies the counters, sorted by key.
func (m *Metrics) Snapshot() Snapshot {
	snap := Snapshot{Requests: []RequestStat{}, Errors: []ErrorStat{}}
	if m == nil {
		return snap
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range sortedKeys(m.requestCount) {
		route, method, rest := splitKey(key)
		status, _ := strconv.Atoi(rest)
		count := m.requestCount[key]
		snap.Requests = append(snap.Requests, RequestStat{
			Route:      route,
			Method:     method,
			Status:     status,
			Count:      count,
			AvgLatency: float64(m.totalDuration[key].Microseconds()) / float64(count) / 1000,
		})
	}
	for _, key := range sortedKeys(m.errorCount) {
		route, method, code := splitKey(key)
		snap.Errors = append(snap.Errors, ErrorStat{Route: route, Method: method, Code: code, Count: m.errorCount[key]})
	}
	return snap
}

func pathKey(path, method, suffix string) string {
	return path + "|" + method + "|" + suffix
}

func splitKey(key string) (string, string, string) {
	parts := strings.SplitN(key, "|", 3)
	for len(parts) < 3 {
		parts = append(parts, "")
	}
	return parts[0], parts[1], parts[2]
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
