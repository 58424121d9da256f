// README: Bench cases; environment, auth, booking-flow, fare, idempotency and load checks.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client

	// flowID is the session opened by the "Flow: start" case.
	flowID string
}

type Result struct {
	Name    string
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
		res.Name = tc.Name
		results = append(results, res)
		fmt.Printf("%-7s %s", res.Status, tc.Name)
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
	return []TestCase{
		{
			Name: "Env: Postgres connect",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "FAIL", Note: "db not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.db.Ping(ctx); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name: "Env: Redis connect",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: "FAIL", Note: "redis not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.redis.Ping(ctx).Err(); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name: "Migration: apply (optional)",
			Run: func(ctx context.Context, r *Runner) Result {
				if !r.cfg.ApplyMigration {
					return Result{Status: "SKIP", Note: "apply-migration=false"}
				}
				if r.db == nil {
					return Result{Status: "FAIL", Note: "db not configured"}
				}
				sql, err := os.ReadFile(r.cfg.MigrationPath)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				for _, s := range splitSQL(string(sql)) {
					if _, err := r.db.Exec(ctx, s); err != nil {
						return Result{Status: "FAIL", Note: err.Error()}
					}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name: "Migration: tables exist",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "FAIL", Note: "db not configured"}
				}
				tables, err := extractTables(r.cfg.MigrationPath)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				for _, t := range tables {
					var exists bool
					err := r.db.QueryRow(ctx,
						"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
						t,
					).Scan(&exists)
					if err != nil {
						return Result{Status: "FAIL", Note: err.Error()}
					}
					if !exists {
						return Result{Status: "FAIL", Note: "missing table: " + t}
					}
				}
				return Result{Status: "PASS"}
			},
		},

		httpCase("API: health", http.MethodGet, "/health", "", nil, http.StatusOK),
		httpCase("API: metrics exposed", http.MethodGet, "/metrics", "", nil, http.StatusOK),
		httpCase("Auth: missing token -> 401", http.MethodPost, "/api/flows", "", nil, http.StatusUnauthorized),
		httpCase("Auth: garbage token -> 401", http.MethodPost, "/api/flows", "not-a-jwt", nil, http.StatusUnauthorized),

		{
			Name: "Flow: start",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.cfg.Token == "" {
					return Result{Status: "SKIP", Note: "no token"}
				}
				var sess struct {
					ID    string `json:"id"`
					State string `json:"state"`
				}
				start := time.Now()
				code, _, err := r.do(ctx, http.MethodPost, "/api/flows", nil, nil, &sess)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				if code != http.StatusCreated || sess.ID == "" || sess.State != "selecting_places" {
					return Result{Status: "FAIL", Note: fmt.Sprintf("status=%d state=%q", code, sess.State)}
				}
				r.flowID = sess.ID
				return Result{Status: "PASS", Latency: time.Since(start), Note: "id=" + sess.ID}
			},
		},
		flowCase("Flow: get", http.MethodGet, "", nil, http.StatusOK),
		{
			Name: "Redis: session persisted",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.flowID == "" {
					return Result{Status: "SKIP", Note: "no flow"}
				}
				if r.redis == nil {
					return Result{Status: "FAIL", Note: "redis not configured"}
				}
				ttl, err := r.redis.TTL(ctx, "flow:session:"+r.flowID).Result()
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				if ttl <= 0 {
					return Result{Status: "FAIL", Note: "session key missing or without ttl (api may be using the memory store)"}
				}
				return Result{Status: "PASS", Note: fmt.Sprintf("ttl=%s", ttl.Round(time.Second))}
			},
		},
		flowCase("Flow: retry before submit -> 409", http.MethodPost, "/retry", nil, http.StatusConflict),
		flowCase("Flow: unknown place field -> 400", http.MethodGet, "/places/pickup?q=Kochi", nil, http.StatusBadRequest),
		flowCase("Flow: routes without places -> 400", http.MethodPost, "/routes", nil, http.StatusBadRequest),
		flowCase("Flow: submit without vehicle -> 409", http.MethodPost, "/submit", map[string]string{
			"phone": "9876543210",
			"date":  time.Now().AddDate(0, 0, 1).Format("2006-01-02"),
			"time":  "09:30",
		}, http.StatusConflict),

		{
			Name: "Fare: legacy quote 10km = 1474",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.cfg.Token == "" {
					return Result{Status: "SKIP", Note: "no token"}
				}
				var q struct {
					Fare  int64 `json:"fare"`
					Total int64 `json:"total"`
				}
				code, _, err := r.do(ctx, http.MethodGet, "/api/fares/quote?distance_m=10000", nil, nil, &q)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				if code != http.StatusOK || q.Fare != 1275 || q.Total != 1474 {
					return Result{Status: "FAIL", Note: fmt.Sprintf("status=%d fare=%d total=%d", code, q.Fare, q.Total)}
				}
				return Result{Status: "PASS"}
			},
		},
		authCase("Fare: negative distance -> 400", http.MethodGet, "/api/fares/quote?distance_m=-1", nil, http.StatusBadRequest),

		{
			Name: "Concurrency: resets keep version consistent",
			Run:  concurrentResets,
		},
		{
			Name: "Idempotency: repeated submit is replayed",
			Run:  idempotentSubmit,
		},
		{
			Name: "Perf: fare quote load",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.cfg.Token == "" {
					return Result{Status: "SKIP", Note: "no token"}
				}
				return perfLoad(ctx, r, "/api/fares/quote?distance_m=42000")
			},
		},
	}
}

// do sends one request with the configured token and decodes a JSON reply
// into out when out is non-nil.
func (r *Runner) do(ctx context.Context, method, path string, body any, header http.Header, out any) (int, http.Header, error) {
	return r.doWithToken(ctx, method, path, r.cfg.Token, body, header, out)
}

func (r *Runner) doWithToken(ctx context.Context, method, path, token string, body any, header http.Header, out any) (int, http.Header, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if out != nil && len(raw) > 0 {
		_ = json.Unmarshal(raw, out)
	}
	return resp.StatusCode, resp.Header, nil
}

// httpCase checks a status code using an explicit token, which may be empty.
func httpCase(name, method, path, token string, body any, okStatuses ...int) TestCase {
	return TestCase{
		Name: name,
		Run: func(ctx context.Context, r *Runner) Result {
			start := time.Now()
			code, _, err := r.doWithToken(ctx, method, path, token, body, nil, nil)
			latency := time.Since(start)
			if err != nil {
				return Result{Status: "FAIL", Note: err.Error()}
			}
			if slices.Contains(okStatuses, code) {
				return Result{Status: "PASS", Latency: latency, Note: fmt.Sprintf("status=%d", code)}
			}
			return Result{Status: "FAIL", Latency: latency, Note: fmt.Sprintf("status=%d", code)}
		},
	}
}

// authCase checks a status code using the configured token; skipped without one.
func authCase(name, method, path string, body any, okStatuses ...int) TestCase {
	return TestCase{
		Name: name,
		Run: func(ctx context.Context, r *Runner) Result {
			if r.cfg.Token == "" {
				return Result{Status: "SKIP", Note: "no token"}
			}
			return httpCase(name, method, path, r.cfg.Token, body, okStatuses...).Run(ctx, r)
		},
	}
}

// flowCase runs against the session opened by "Flow: start".
func flowCase(name, method, suffix string, body any, okStatuses ...int) TestCase {
	return TestCase{
		Name: name,
		Run: func(ctx context.Context, r *Runner) Result {
			if r.flowID == "" {
				return Result{Status: "SKIP", Note: "no flow"}
			}
			start := time.Now()
			code, _, err := r.do(ctx, method, "/api/flows/"+r.flowID+suffix, body, nil, nil)
			latency := time.Since(start)
			if err != nil {
				return Result{Status: "FAIL", Note: err.Error()}
			}
			if slices.Contains(okStatuses, code) {
				return Result{Status: "PASS", Latency: latency, Note: fmt.Sprintf("status=%d", code)}
			}
			return Result{Status: "FAIL", Latency: latency, Note: fmt.Sprintf("status=%d", code)}
		},
	}
}

// concurrentResets fires resets at one session. Every 200 must correspond to
// exactly one version bump; losers may only see 409.
func concurrentResets(ctx context.Context, r *Runner) Result {
	if r.flowID == "" {
		return Result{Status: "SKIP", Note: "no flow"}
	}
	path := "/api/flows/" + r.flowID

	var before struct {
		Version int64 `json:"version"`
	}
	if _, _, err := r.do(ctx, http.MethodGet, path, nil, nil, &before); err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}

	var mu sync.Mutex
	codes := map[int]int{}
	var wg sync.WaitGroup
	for range r.cfg.Concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			code, _, err := r.do(ctx, http.MethodPost, path+"/reset", nil, nil, nil)
			if err != nil {
				code = -1
			}
			mu.Lock()
			codes[code]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	var after struct {
		Version int64 `json:"version"`
	}
	if _, _, err := r.do(ctx, http.MethodGet, path, nil, nil, &after); err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}

	ok := codes[http.StatusOK]
	note := fmt.Sprintf("ok=%d conflict=%d other=%d versions=%d->%d",
		ok, codes[http.StatusConflict], r.cfg.Concurrency-ok-codes[http.StatusConflict], before.Version, after.Version)
	if ok+codes[http.StatusConflict] != r.cfg.Concurrency || after.Version-before.Version != int64(ok) {
		return Result{Status: "FAIL", Note: note}
	}
	return Result{Status: "PASS", Note: note}
}

// idempotentSubmit sends the same Idempotency-Key twice; the second reply
// must be the stored first one.
func idempotentSubmit(ctx context.Context, r *Runner) Result {
	if r.flowID == "" {
		return Result{Status: "SKIP", Note: "no flow"}
	}
	path := "/api/flows/" + r.flowID + "/submit"
	body := map[string]string{"phone": "9876543210", "date": "2099-01-01", "time": "09:30"}
	header := http.Header{"Idempotency-Key": []string{uuid.NewString()}}

	first, _, err := r.do(ctx, http.MethodPost, path, body, header, nil)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	second, h, err := r.do(ctx, http.MethodPost, path, body, header, nil)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	if h.Get("X-Idempotency-Hit") != "true" {
		return Result{Status: "FAIL", Note: fmt.Sprintf("not replayed (status %d then %d, api may run without redis)", first, second)}
	}
	if first != second {
		return Result{Status: "FAIL", Note: fmt.Sprintf("replayed status %d, first was %d", second, first)}
	}
	return Result{Status: "PASS", Note: fmt.Sprintf("status=%d", first)}
}

func perfLoad(ctx context.Context, r *Runner, path string) Result {
	end := time.Now().Add(r.cfg.Duration)
	var (
		mu        sync.Mutex
		latencies []time.Duration
		errCount  int
	)
	wg := sync.WaitGroup{}

	for range r.cfg.Concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				start := time.Now()
				code, _, err := r.do(ctx, http.MethodGet, path, nil, nil, nil)
				took := time.Since(start)
				mu.Lock()
				if err != nil || code != http.StatusOK {
					errCount++
				} else {
					latencies = append(latencies, took)
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(latencies) == 0 {
		return Result{Status: "FAIL", Note: "no requests completed"}
	}
	slices.Sort(latencies)
	p95 := latencies[len(latencies)*95/100]
	rps := float64(len(latencies)) / r.cfg.Duration.Seconds()
	return Result{Status: "PASS", Note: fmt.Sprintf("rps=%.1f p95=%s errors=%d", rps, p95, errCount)}
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
	cleaned := strings.Join(filtered, "\n")
	parts := strings.Split(cleaned, ";")
	stmts := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
