package health

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"unitfund-backend/internal/middleware"

	"github.com/redis/go-redis/v9"
)

// DBPinger is satisfied by *sql.DB. If nil, database is reported as disconnected.
type DBPinger interface {
	PingContext(ctx context.Context) error
}

// Target is an external HTTP dependency probed on every collection.
type Target struct {
	Name string
	URL  string
}

// CollectResult is the body of /health/json and the data behind the dashboard.
type CollectResult struct {
	Status       string               `json:"status"`
	Runtime      RuntimeInfo          `json:"runtime"`
	Traffic      TrafficInfo          `json:"traffic"`
	Dependencies map[string]DepStatus `json:"dependencies"`
}

type RuntimeInfo struct {
	UptimeSeconds int64      `json:"uptimeSeconds"`
	Memory        MemoryInfo `json:"memory"`
	Goroutines    int        `json:"goroutines"`
	Platform      string     `json:"platform"`
	GoVersion     string     `json:"goVersion"`
}

type MemoryInfo struct {
	AllocMB  int `json:"allocMb"`
	HeapUsed int `json:"heapUsed"`
}

type TrafficInfo struct {
	TotalRequests   int                    `json:"totalRequests"`
	SuccessCount    int                    `json:"successCount"`
	FailedCount     int                    `json:"failedCount"`
	SuccessRate     string                 `json:"successRate"`
	AvgResponseTime string                 `json:"avgResponseTime"`
	LastRequest     map[string]interface{} `json:"lastRequest"`
}

type DepStatus struct {
	Status string `json:"status"`
	PingMs *int64 `json:"pingMs"`
}

// Checker collects health data. Rdb and DB may be nil.
type Checker struct {
	Rdb         *redis.Client
	DB          DBPinger
	Targets     []Target
	PingTimeout time.Duration
	// started is used for uptime when Redis is not available.
	started time.Time
}

func NewChecker(rdb *redis.Client, db DBPinger, targets ...Target) *Checker {
	return &Checker{Rdb: rdb, DB: db, Targets: targets, PingTimeout: 3 * time.Second, started: time.Now()}
}

// Collect gathers health data from the database, Redis and the configured targets.
// Overall status is "ok" when the database is connected and Redis, if configured,
// answers; otherwise "issue".
func (h *Checker) Collect(ctx context.Context) CollectResult {
	result := CollectResult{Dependencies: make(map[string]DepStatus)}

	dbDep := DepStatus{Status: "disconnected"}
	if h.DB != nil {
		start := time.Now()
		if err := h.DB.PingContext(ctx); err == nil {
			dbDep = DepStatus{Status: "connected", PingMs: since(start)}
		} else {
			dbDep.Status = "error"
		}
	}
	result.Dependencies["database"] = dbDep

	redisDep := DepStatus{Status: "disabled"}
	traffic := TrafficInfo{AvgResponseTime: "0", SuccessRate: "100"}
	startMs := h.started.UnixMilli()
	if h.Rdb != nil {
		start := time.Now()
		if err := h.Rdb.Ping(ctx).Err(); err == nil {
			redisDep = DepStatus{Status: "connected", PingMs: since(start)}
			startMs = h.readTraffic(ctx, &traffic, startMs)
		} else {
			redisDep.Status = "error"
		}
	}
	result.Dependencies["redis"] = redisDep
	result.Traffic = traffic

	for _, t := range h.Targets {
		dep := DepStatus{Status: "unreachable"}
		if ms := h.httpPing(ctx, t.URL); ms != nil {
			dep = DepStatus{Status: "reachable", PingMs: ms}
		}
		result.Dependencies[t.Name] = dep
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	uptime := (time.Now().UnixMilli() - startMs) / 1000
	if uptime < 0 {
		uptime = 0
	}
	result.Runtime = RuntimeInfo{
		UptimeSeconds: uptime,
		Memory:        MemoryInfo{AllocMB: int(m.Alloc / 1024 / 1024), HeapUsed: int(m.HeapInuse / 1024 / 1024)},
		Goroutines:    runtime.NumGoroutine(),
		Platform:      runtime.GOOS + " (" + runtime.GOARCH + ")",
		GoVersion:     runtime.Version(),
	}

	result.Status = "issue"
	if dbDep.Status == "connected" && redisDep.Status != "error" {
		result.Status = "ok"
	}
	return result
}

func (h *Checker) readTraffic(ctx context.Context, stats *TrafficInfo, startMs int64) int64 {
	rdb := h.Rdb
	totalReq, _ := rdb.Get(ctx, middleware.KeyReqTotal).Result()
	totalErr, _ := rdb.Get(ctx, middleware.KeyReqErrors).Result()
	totalTime, _ := rdb.Get(ctx, middleware.KeyResTime).Result()
	resCount, _ := rdb.Get(ctx, middleware.KeyResCount).Result()
	startStr, _ := rdb.Get(ctx, middleware.KeyStartTime).Result()
	lastReq, _ := rdb.Get(ctx, middleware.KeyLastReq).Result()

	if startStr != "" {
		if t, err := strconv.ParseInt(startStr, 10, 64); err == nil {
			startMs = t
		}
	} else {
		rdb.Set(ctx, middleware.KeyStartTime, startMs, 0)
	}

	stats.TotalRequests, _ = strconv.Atoi(totalReq)
	stats.FailedCount, _ = strconv.Atoi(totalErr)
	stats.SuccessCount = stats.TotalRequests - stats.FailedCount
	if stats.TotalRequests > 0 {
		stats.SuccessRate = strconv.FormatFloat(float64(stats.SuccessCount)/float64(stats.TotalRequests)*100, 'f', 1, 64)
	}
	timeSum, _ := strconv.ParseFloat(totalTime, 64)
	count, _ := strconv.Atoi(resCount)
	if count > 0 {
		stats.AvgResponseTime = strconv.FormatFloat(timeSum/float64(count), 'f', 2, 64)
	}
	if lastReq != "" {
		_ = json.Unmarshal([]byte(lastReq), &stats.LastRequest)
	}
	return startMs
}

func (h *Checker) httpPing(ctx context.Context, url string) *int64 {
	if url == "" {
		return nil
	}
	timeout := h.PingTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil
	}
	start := time.Now()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	return since(start)
}

func since(t time.Time) *int64 {
	ms := time.Since(t).Milliseconds()
	return &ms
}

// ErrorLog returns up to the last 50 recorded server errors, newest first.
func (h *Checker) ErrorLog(ctx context.Context) ([]map[string]interface{}, error) {
	out := []map[string]interface{}{}
	if h.Rdb == nil {
		return out, nil
	}
	entries, err := h.Rdb.LRange(ctx, middleware.KeyErrorLog, 0, 49).Result()
	if err != nil {
		return nil, err
	}
	for _, s := range entries {
		var m map[string]interface{}
		if json.Unmarshal([]byte(s), &m) == nil && m != nil {
			out = append(out, m)
		}
	}
	return out, nil
}

// Reset clears the traffic counters and restarts the uptime clock.
func (h *Checker) Reset(ctx context.Context) error {
	h.started = time.Now()
	if h.Rdb == nil {
		return nil
	}
	keys := []string{middleware.KeyReqTotal, middleware.KeyReqErrors, middleware.KeyResTime, middleware.KeyResCount, middleware.KeyStartTime, middleware.KeyLastReq, middleware.KeyErrorLog}
	if err := h.Rdb.Del(ctx, keys...).Err(); err != nil {
		return err
	}
	return h.Rdb.Set(ctx, middleware.KeyStartTime, strconv.FormatInt(h.started.UnixMilli(), 10), 0).Err()
}
