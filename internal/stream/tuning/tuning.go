package tuning

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("tuning: invalid")

//go:embed tuning.schema.json
var schemaJSON string

var schema = jsonschema.MustCompileString("tuning.schema.json", schemaJSON)

type Tuning struct {
	TickRateHz int   `yaml:"tick_rate_hz" json:"tick_rate_hz"`
	Seed       int64 `yaml:"seed" json:"seed"`

	LoadRadius   int `yaml:"load_radius" json:"load_radius"`
	UnloadRadius int `yaml:"unload_radius" json:"unload_radius"`
	LayerMin     int `yaml:"layer_min" json:"layer_min"`
	Layers       int `yaml:"layers" json:"layers"`

	MaxAdmitPerCycle int    `yaml:"max_admit_per_cycle" json:"max_admit_per_cycle"`
	MaxRetries       int    `yaml:"max_retries" json:"max_retries"`
	DegradedBudgetMs int    `yaml:"degraded_budget_ms" json:"degraded_budget_ms"`
	IOBudgetMs       int    `yaml:"io_budget_ms" json:"io_budget_ms"`
	ShutdownPolicy   string `yaml:"shutdown_policy" json:"shutdown_policy"`

	WorkerPool  Pool        `yaml:"worker_pool" json:"worker_pool"`
	IOPool      Pool        `yaml:"io_pool" json:"io_pool"`
	Persistence Persistence `yaml:"persistence" json:"persistence"`
	Journal     Journal     `yaml:"journal" json:"journal"`
	Observer    Observer    `yaml:"observer" json:"observer"`
}

type Pool struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Workers <= 0 picks a size from the CPU count.
	Workers int `yaml:"workers" json:"workers"`
}

type Persistence struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

type Journal struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Dir     string `yaml:"dir" json:"dir"`
}

type Observer struct {
	Addr string `yaml:"addr" json:"addr"`
}

func Defaults() Tuning {
	return Tuning{
		TickRateHz:       20,
		Seed:             1337,
		LoadRadius:       8,
		UnloadRadius:     10,
		LayerMin:         0,
		Layers:           3,
		MaxAdmitPerCycle: 64,
		MaxRetries:       3,
		DegradedBudgetMs: 4,
		IOBudgetMs:       2,
		ShutdownPolicy:   "drain",
		WorkerPool:       Pool{Enabled: true},
		IOPool:           Pool{Enabled: true, Workers: 2},
		Persistence:      Persistence{Enabled: true, Path: "data/chunks.sqlite"},
		Journal:          Journal{Enabled: true, Dir: "data/journal"},
		Observer:         Observer{Addr: "127.0.0.1:8090"},
	}
}

// Load reads a yaml file over Defaults and validates the result. Keys missing
// from the file keep their default values.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, err
	}
	return t, nil
}

func (t Tuning) Validate() error {
	raw, err := json.Marshal(t)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return err
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if t.UnloadRadius < t.LoadRadius {
		return fmt.Errorf("%w: unload_radius %d < load_radius %d", ErrInvalid, t.UnloadRadius, t.LoadRadius)
	}
	return nil
}

func (t Tuning) TickInterval() time.Duration {
	return time.Second / time.Duration(t.TickRateHz)
}

func (t Tuning) DegradedBudget() time.Duration {
	return time.Duration(t.DegradedBudgetMs) * time.Millisecond
}

func (t Tuning) IOBudget() time.Duration {
	return time.Duration(t.IOBudgetMs) * time.Millisecond
}

// WorkerCount resolves the compute pool size: one worker per CPU, leaving a
// core for the coordinating goroutine.
func (p Pool) WorkerCount() int {
	if p.Workers > 0 {
		return p.Workers
	}
	n := runtime.NumCPU() - 1
	if n < 1 {
		n = 1
	}
	return n
}
