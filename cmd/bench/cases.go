// README: Bench cases: environment, schema, API auth, route publish/accept race and location load.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const (
	statusPass = "PASS"
	statusFail = "FAIL"
	statusSkip = "SKIP"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client
	// routeID is set by the publish case and used by later cases.
	routeID string
}

type Result struct {
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))
	for _, tc := range tests {
		res := tc.Run(ctx, r)
		results = append(results, res)
		fmt.Printf("%-5s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}
	return results
}

func (r *Runner) cases() []TestCase {
	base := r.cfg.BaseURL
	return []TestCase{
		{Name: "Env: Postgres connect", Run: func(ctx context.Context, r *Runner) Result {
			if r.db == nil {
				return Result{Status: statusFail, Note: "db not configured"}
			}
			ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			if err := r.db.Ping(ctx); err != nil {
				return Result{Status: statusFail, Note: err.Error()}
			}
			return Result{Status: statusPass}
		}},
		{Name: "Env: Redis connect", Run: func(ctx context.Context, r *Runner) Result {
			if r.redis == nil {
				return Result{Status: statusFail, Note: "redis not configured"}
			}
			ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			if err := r.redis.Ping(ctx).Err(); err != nil {
				return Result{Status: statusFail, Note: err.Error()}
			}
			return Result{Status: statusPass}
		}},
		{Name: "Migration: apply (optional)", Run: applyMigration},
		{Name: "Migration: tables exist", Run: tablesExist},
		{Name: "API: health", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodGet, base+"/health", "", nil, http.StatusOK)
		}},
		{Name: "API: unauthenticated -> 401", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodGet, base+"/api/drivers/routes", "", nil, http.StatusUnauthorized)
		}},
		{Name: "Dispatch: publish route", Run: publishRoute},
		{Name: "Drivers: list open routes", Run: func(ctx context.Context, r *Runner) Result {
			if r.cfg.DriverToken == "" {
				return Result{Status: statusSkip, Note: "no driver token"}
			}
			return r.expect(ctx, http.MethodGet, base+"/api/drivers/routes", r.cfg.DriverToken, nil, http.StatusOK)
		}},
		{Name: "Concurrency: repeated accept of one route", Run: concurrentAccept},
		{Name: "Settlement: unknown delivery -> 404", Run: func(ctx context.Context, r *Runner) Result {
			if r.cfg.DispatcherToken == "" {
				return Result{Status: statusSkip, Note: "no dispatcher token"}
			}
			return r.expect(ctx, http.MethodGet, base+"/api/deliveries/unknown/settlement", r.cfg.DispatcherToken, nil, http.StatusNotFound)
		}},
		{Name: "Perf: driver location update throughput", Run: locationLoad},
	}
}

func applyMigration(ctx context.Context, r *Runner) Result {
	if !r.cfg.ApplyMigration {
		return Result{Status: statusSkip, Note: "apply-migration=false"}
	}
	if r.db == nil {
		return Result{Status: statusFail, Note: "db not configured"}
	}
	sql, err := os.ReadFile(r.cfg.MigrationPath)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	for _, s := range splitSQL(string(sql)) {
		if _, err := r.db.Exec(ctx, s); err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
	}
	return Result{Status: statusPass}
}

func tablesExist(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusFail, Note: "db not configured"}
	}
	tables, err := extractTables(r.cfg.MigrationPath)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	for _, t := range tables {
		var exists bool
		err := r.db.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)", t,
		).Scan(&exists)
		if err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
		if !exists {
			return Result{Status: statusFail, Note: "missing table: " + t}
		}
	}
	return Result{Status: statusPass, Note: fmt.Sprintf("%d tables", len(tables))}
}

func publishRoute(ctx context.Context, r *Runner) Result {
	if r.cfg.DispatcherToken == "" {
		return Result{Status: statusSkip, Note: "no dispatcher token"}
	}
	body := map[string]any{
		"time_slot":  "bench",
		"start_time": time.Now().Add(3 * time.Hour).UTC().Format(time.RFC3339),
		"orders": []map[string]any{{
			"order_id":  fmt.Sprintf("bench-%d", time.Now().UnixNano()),
			"buyer_id":  "bench-buyer",
			"seller_id": "bench-seller",
			"mileage":   8,
			"pickup":    map[string]any{"address": "pickup", "lat": 40.7359, "lng": -73.9911},
			"dropoff":   map[string]any{"address": "dropoff", "lat": 40.7580, "lng": -73.9855},
		}},
	}
	start := time.Now()
	status, raw, err := r.call(ctx, http.MethodPost, r.cfg.BaseURL+"/api/dispatch/routes", r.cfg.DispatcherToken, body)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if status != http.StatusCreated {
		return Result{Status: statusFail, Latency: time.Since(start), Note: fmt.Sprintf("status=%d", status)}
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &out); err != nil || out.ID == "" {
		return Result{Status: statusFail, Note: "no route id in response"}
	}
	r.routeID = out.ID
	return Result{Status: statusPass, Latency: time.Since(start), Note: "route=" + out.ID}
}

// concurrentAccept fires the same accept many times; exactly one may win.
func concurrentAccept(ctx context.Context, r *Runner) Result {
	if r.routeID == "" || r.cfg.DriverToken == "" {
		return Result{Status: statusSkip, Note: "needs a published route and a driver token"}
	}
	url := r.cfg.BaseURL + "/api/drivers/routes/" + r.routeID + "/accept"
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succ      int
		conflicts int
	)
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, _, err := r.call(ctx, http.MethodPost, url, r.cfg.DriverToken, nil)
			if err != nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			switch {
			case status >= 200 && status < 300:
				succ++
			case status == http.StatusConflict:
				conflicts++
			}
		}()
	}
	wg.Wait()

	note := fmt.Sprintf("success=%d conflict=%d", succ, conflicts)
	if succ == 1 {
		return Result{Status: statusPass, Note: note}
	}
	return Result{Status: statusFail, Note: note}
}

func locationLoad(ctx context.Context, r *Runner) Result {
	if r.cfg.DriverToken == "" || r.cfg.DriverID == "" {
		return Result{Status: statusSkip, Note: "needs driver token and driver id"}
	}
	url := r.cfg.BaseURL + "/api/drivers/" + r.cfg.DriverID + "/location"
	payload := map[string]any{"lat": 40.7359, "lng": -73.9911}
	end := time.Now().Add(r.cfg.Duration)
	var (
		mu       sync.Mutex
		count    int64
		errCount int64
		wg       sync.WaitGroup
	)
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				status, _, err := r.call(ctx, http.MethodPut, url, r.cfg.DriverToken, payload)
				mu.Lock()
				if err != nil || status != http.StatusOK {
					errCount++
				} else {
					count++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if count == 0 {
		return Result{Status: statusFail, Note: fmt.Sprintf("no requests succeeded, errors=%d", errCount)}
	}
	rps := float64(count) / r.cfg.Duration.Seconds()
	return Result{Status: statusPass, Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount)}
}

func (r *Runner) expect(ctx context.Context, method, url, token string, body any, want int) Result {
	start := time.Now()
	status, _, err := r.call(ctx, method, url, token, body)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	res := Result{Latency: time.Since(start), Note: fmt.Sprintf("status=%d", status)}
	if status == want {
		res.Status = statusPass
	} else {
		res.Status = statusFail
	}
	return res
}

func (r *Runner) call(ctx context.Context, method, url, token string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = strings.NewReader(string(b))
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	return resp.StatusCode, raw, err
}

func extractTables(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	re := regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)
	matches := re.FindAllStringSubmatch(string(b), -1)
	tables := make([]string, 0, len(matches))
	for _, m := range matches {
		tables = append(tables, m[1])
	}
	return tables, nil
}

func splitSQL(sql string) []string {
	lines := strings.Split(sql, "\n")
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		l := strings.TrimSpace(line)
		if strings.HasPrefix(l, "--") || l == "" {
			continue
		}
		filtered = append(filtered, line)
	}
	parts := strings.Split(strings.Join(filtered, "\n"), ";")
	stmts := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
