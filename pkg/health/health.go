package health

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Checker is a function that checks the health of a dependency.
type Checker func(ctx context.Context) error

// Status represents the health status of a component.
type Status string

const (
	StatusUp   Status = "up"
	StatusDown Status = "down"
)

// Report is the aggregate result of running every registered check.
type Report struct {
	Status    Status        `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Checks    []CheckResult `json:"checks"`
}

// CheckResult is the result of a single health check.
type CheckResult struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Registry holds named dependency checks.
type Registry struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	timeout  time.Duration
}

// NewRegistry creates a registry whose checks each run under timeout.
func NewRegistry(timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Registry{
		checkers: make(map[string]Checker),
		timeout:  timeout,
	}
}

// Register adds a named health checker, replacing any previous one.
func (r *Registry) Register(name string, checker Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers[name] = checker
}

// Run executes all checks concurrently. Results are sorted by name.
func (r *Registry) Run(ctx context.Context) Report {
	r.mu.RLock()
	names := make([]string, 0, len(r.checkers))
	checkers := make(map[string]Checker, len(r.checkers))
	for k, v := range r.checkers {
		names = append(names, k)
		checkers[k] = v
	}
	r.mu.RUnlock()
	sort.Strings(names)

	results := make([]CheckResult, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string, check Checker) {
			defer wg.Done()
			results[i] = r.runOne(ctx, name, check)
		}(i, name, checkers[name])
	}
	wg.Wait()

	report := Report{
		Status:    StatusUp,
		Timestamp: time.Now().UTC(),
		Checks:    results,
	}
	for _, res := range results {
		if res.Status == StatusDown {
			report.Status = StatusDown
		}
	}
	return report
}

func (r *Registry) runOne(ctx context.Context, name string, check Checker) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	err := check(ctx)
	res := CheckResult{Name: name, Status: StatusUp, Duration: time.Since(start)}
	if err != nil {
		res.Status = StatusDown
		res.Error = err.Error()
	}
	return res
}
