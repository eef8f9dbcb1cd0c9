package exporter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Schedule is a recurring export: an export definition file run on a cron
// expression, written into OutDir.
type Schedule struct {
	Name         string `yaml:"name"`
	Organisation string `yaml:"organisation"`
	Cron         string `yaml:"cron"`
	Spec         string `yaml:"spec"`
	OutDir       string `yaml:"outDir"`
}

// ScopeFunc prepares ctx for work in an organisation. release is called when
// the run finishes.
type ScopeFunc func(ctx context.Context, organisation string) (scoped context.Context, release func(), err error)

// LoadSchedules reads a YAML list of schedules.
func LoadSchedules(path string) ([]Schedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read export schedules: %w", err)
	}
	var doc struct {
		Schedules []Schedule `yaml:"schedules"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode export schedules: %w", err)
	}
	for i, s := range doc.Schedules {
		if s.Name == "" || s.Cron == "" || s.Spec == "" {
			return nil, fmt.Errorf("export schedule %d: name, cron and spec are required", i)
		}
		if s.OutDir == "" {
			doc.Schedules[i].OutDir = "."
		}
	}
	return doc.Schedules, nil
}

// Scheduler runs schedules on a cron clock.
type Scheduler struct {
	job    *Job
	cron   *cron.Cron
	logger zerolog.Logger
	now    func() time.Time
	scope  ScopeFunc

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

func NewScheduler(job *Job, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		job:     job,
		cron:    cron.New(cron.WithSeconds()),
		logger:  logger.With().Str("component", "export-scheduler").Logger(),
		now:     time.Now,
		entries: make(map[string]cron.EntryID),
	}
}

// WithScope makes every run execute inside the schedule's organisation.
func (sc *Scheduler) WithScope(fn ScopeFunc) *Scheduler {
	sc.scope = fn
	return sc
}

// Add registers s. Five-field expressions run at second zero.
func (sc *Scheduler) Add(ctx context.Context, s Schedule) error {
	expr, err := normalizeCron(s.Cron)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", s.Name, err)
	}
	id, err := sc.cron.AddFunc(expr, func() {
		path, err := sc.RunOnce(ctx, s)
		if err != nil {
			sc.logger.Error().Err(err).Str("schedule", s.Name).Msg("scheduled export failed")
			return
		}
		sc.logger.Info().Str("schedule", s.Name).Str("file", path).Msg("scheduled export written")
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", s.Name, err)
	}
	sc.mu.Lock()
	sc.entries[s.Name] = id
	sc.mu.Unlock()
	return nil
}

// RunOnce runs s immediately and returns the file written.
func (sc *Scheduler) RunOnce(ctx context.Context, s Schedule) (string, error) {
	out, err := LoadOutput(s.Spec)
	if err != nil {
		return "", err
	}
	if sc.scope != nil {
		scoped, release, err := sc.scope(ctx, s.Organisation)
		if err != nil {
			return "", fmt.Errorf("schedule %s: %w", s.Name, err)
		}
		defer release()
		ctx = scoped
	}
	if err := os.MkdirAll(s.OutDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(s.OutDir, fmt.Sprintf("%s-%s.csv", s.Name, sc.now().UTC().Format("20060102T150405")))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()
	if _, err := sc.job.Run(ctx, out, f); err != nil {
		return path, err
	}
	return path, f.Close()
}

// Entries lists the registered schedule names.
func (sc *Scheduler) Entries() []string {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	names := make([]string, 0, len(sc.entries))
	for n := range sc.entries {
		names = append(names, n)
	}
	return names
}

func (sc *Scheduler) Start() {
	sc.cron.Start()
	sc.logger.Info().Int("schedules", len(sc.entries)).Msg("export scheduler started")
}

// Stop waits for running exports to finish.
func (sc *Scheduler) Stop() {
	<-sc.cron.Stop().Done()
	sc.logger.Info().Msg("export scheduler stopped")
}

func normalizeCron(expr string) (string, error) {
	expr = strings.TrimSpace(expr)
	switch len(strings.Fields(expr)) {
	case 6:
		parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		if _, err := parser.Parse(expr); err != nil {
			return "", fmt.Errorf("invalid cron expression: %w", err)
		}
		return expr, nil
	case 5:
		if _, err := cron.ParseStandard(expr); err != nil {
			return "", fmt.Errorf("invalid cron expression: %w", err)
		}
		return "0 " + expr, nil
	}
	if strings.HasPrefix(expr, "@") {
		return expr, nil
	}
	return "", fmt.Errorf("invalid cron expression %q", expr)
}
