// Command webhook-replay подписывает уведомление checkout.session.completed и доставляет его
// в /payment-webhook много раз параллельно. После прогона у владельца должен быть ровно один
// заказ на сессию, что проверяется запросом GET /orders/{ownerId}.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/payment"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

const envWebhookSecret = "STOREFRONT_STRIPE_WEBHOOK_SECRET"

type config struct {
	baseURL        string
	secret         string
	sessionID      string
	ownerID        string
	email          string
	amountMinor    int64
	count          int
	concurrency    int
	timeout        time.Duration
	distinctEvents bool
	verifyOrders   bool
	outputPath     string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type report struct {
	StartedAt       time.Time        `json:"started_at"`
	DurationSeconds float64          `json:"duration_seconds"`
	SessionID       string           `json:"session_id"`
	Deliveries      int64            `json:"deliveries"`
	Acknowledged    int64            `json:"acknowledged"`
	Failed          int64            `json:"failed"`
	ErrorRate       float64          `json:"error_rate"`
	Statuses        map[string]int64 `json:"statuses"`
	LatencyMs       latencySummary   `json:"latency_ms"`
	// OrdersForSession — число заказов владельца с этим sourceSessionId; -1, если не проверялось.
	OrdersForSession int `json:"orders_for_session"`
}

type collector struct {
	mu        sync.Mutex
	calls     int64
	success   int64
	statuses  map[string]int64
	latencies []float64
}

func newCollector() *collector {
	return &collector{statuses: make(map[string]int64)}
}

// record учитывает доставку; status 0 означает сетевую ошибку.
func (c *collector) record(latency time.Duration, status int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls++
	if status >= 200 && status < 300 {
		c.success++
	}
	label := "network_error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	c.statuses[label]++
	c.latencies = append(c.latencies, float64(latency.Microseconds())/1000.0)
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration, sessionID string) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	statuses := make(map[string]int64, len(c.statuses))
	for k, v := range c.statuses {
		statuses[k] = v
	}
	return report{
		StartedAt:        startedAt.UTC(),
		DurationSeconds:  duration.Seconds(),
		SessionID:        sessionID,
		Deliveries:       c.calls,
		Acknowledged:     c.success,
		Failed:           c.calls - c.success,
		ErrorRate:        ratio(c.calls-c.success, c.calls),
		Statuses:         statuses,
		LatencyMs:        buildLatencySummary(c.latencies),
		OrdersForSession: -1,
	}
}

func parseConfig(args []string) (config, error) {
	var cfg config
	fs := flag.NewFlagSet("webhook-replay", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.baseURL, "url", "http://localhost:8080", "storefront-api base URL")
	fs.StringVar(&cfg.secret, "secret", "", "webhook signing secret (fallback: "+envWebhookSecret+")")
	fs.StringVar(&cfg.sessionID, "session", "", "checkout session id to complete")
	fs.StringVar(&cfg.ownerID, "user", "", "owner id stored in session metadata")
	fs.StringVar(&cfg.email, "email", "", "customer email")
	fs.Int64Var(&cfg.amountMinor, "amount-minor", 0, "session amount_total in minor units")
	fs.IntVar(&cfg.count, "count", 20, "number of deliveries")
	fs.IntVar(&cfg.concurrency, "concurrency", 10, "number of concurrent senders")
	fs.DurationVar(&cfg.timeout, "timeout", 10*time.Second, "per-request timeout")
	fs.BoolVar(&cfg.distinctEvents, "distinct-events", false, "use a new event id per delivery")
	fs.BoolVar(&cfg.verifyOrders, "verify", true, "check GET /orders/{user} after the run")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	if strings.TrimSpace(cfg.secret) == "" {
		cfg.secret = strings.TrimSpace(os.Getenv(envWebhookSecret))
	}

	switch {
	case cfg.secret == "":
		return cfg, fmt.Errorf("secret is required (-secret or %s)", envWebhookSecret)
	case strings.TrimSpace(cfg.sessionID) == "":
		return cfg, errors.New("session is required")
	case strings.TrimSpace(cfg.ownerID) == "":
		return cfg, errors.New("user is required")
	case cfg.amountMinor < 0:
		return cfg, errors.New("amount-minor must be >= 0")
	case cfg.count <= 0:
		return cfg, errors.New("count must be > 0")
	case cfg.concurrency <= 0:
		return cfg, errors.New("concurrency must be > 0")
	case cfg.timeout <= 0:
		return cfg, errors.New("timeout must be > 0")
	}
	cfg.baseURL = strings.TrimRight(cfg.baseURL, "/")
	return cfg, nil
}

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(2)
	}

	result, err := run(context.Background(), cfg, &http.Client{Timeout: cfg.timeout})
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "replay failed: %v\n", err)
		os.Exit(1)
	}

	printReport(os.Stdout, result)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.Failed > 0 || (cfg.verifyOrders && result.OrdersForSession != 1) {
		os.Exit(1)
	}
}

// delivery — одно подписанное уведомление.
type delivery struct {
	payload   []byte
	signature string
}

func buildDelivery(cfg config, eventID string, at time.Time) (delivery, error) {
	payload, err := payment.CompletedEventPayload(eventID, domain.CompletedSession{
		ID:          cfg.sessionID,
		Email:       cfg.email,
		AmountTotal: cfg.amountMinor,
		Metadata:    domain.OwnerID(cfg.ownerID).Metadata(),
	})
	if err != nil {
		return delivery{}, err
	}
	return delivery{payload: payload, signature: payment.SignPayload(payload, cfg.secret, at)}, nil
}

func newEventID() string {
	return "evt_replay_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func run(ctx context.Context, cfg config, client *http.Client) (report, error) {
	shared, err := buildDelivery(cfg, newEventID(), time.Now())
	if err != nil {
		return report{}, err
	}

	col := newCollector()
	jobs := make(chan int, cfg.concurrency*2)
	startedAt := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < cfg.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				d := shared
				if cfg.distinctEvents {
					var buildErr error
					if d, buildErr = buildDelivery(cfg, newEventID(), time.Now()); buildErr != nil {
						col.record(0, 0)
						continue
					}
				}
				start := time.Now()
				status := deliver(ctx, client, cfg.baseURL, d)
				col.record(time.Since(start), status)
			}
		}()
	}

	for i := 0; i < cfg.count; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	result := col.buildReport(startedAt, time.Since(startedAt), cfg.sessionID)
	if cfg.verifyOrders {
		n, err := countOrdersForSession(ctx, client, cfg)
		if err != nil {
			return result, fmt.Errorf("verify orders: %w", err)
		}
		result.OrdersForSession = n
	}
	return result, nil
}

// deliver отправляет уведомление и возвращает HTTP-статус; 0: сетевая ошибка.
func deliver(ctx context.Context, client *http.Client, baseURL string, d delivery) int {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/payment-webhook", bytes.NewReader(d.payload))
	if err != nil {
		return 0
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(payment.SignatureHeader, d.signature)
	req.Header.Set("User-Agent", version.UserAgent("webhook-replay"))

	resp, err := client.Do(req)
	if err != nil {
		return 0
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode
}

type orderSummary struct {
	SourceSessionID string `json:"sourceSessionId"`
}

func countOrdersForSession(ctx context.Context, client *http.Client, cfg config) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.baseURL+"/orders/"+cfg.ownerID, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("GET /orders/%s: status %d", cfg.ownerID, resp.StatusCode)
	}

	var orders []orderSummary
	if err := json.NewDecoder(resp.Body).Decode(&orders); err != nil {
		return 0, fmt.Errorf("decode orders: %w", err)
	}
	n := 0
	for _, o := range orders {
		if o.SourceSessionID == cfg.sessionID {
			n++
		}
	}
	return n, nil
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- path is an explicit CLI output parameter.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(w io.Writer, result report) {
	fmt.Fprintln(w, "Webhook replay summary")
	fmt.Fprintf(w, "session=%s deliveries=%d acknowledged=%d failed=%d error_rate=%.4f\n",
		result.SessionID, result.Deliveries, result.Acknowledged, result.Failed, result.ErrorRate)
	fmt.Fprintf(w, "duration=%.2fs latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		result.DurationSeconds,
		result.LatencyMs.Min,
		result.LatencyMs.Avg,
		result.LatencyMs.P50,
		result.LatencyMs.P95,
		result.LatencyMs.P99,
		result.LatencyMs.Max,
	)

	statuses := make([]string, 0, len(result.Statuses))
	for status := range result.Statuses {
		statuses = append(statuses, status)
	}
	sort.Strings(statuses)
	for _, status := range statuses {
		fmt.Fprintf(w, "status %s: %d\n", status, result.Statuses[status])
	}
	if result.OrdersForSession >= 0 {
		fmt.Fprintf(w, "orders for session: %d\n", result.OrdersForSession)
	}
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, value := range sorted {
		sum += value
	}

	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}

	weight := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
