// Package pprof exposes runtime profiles of a running discussd, either as
// endpoints on the admin router or as files written around the process
// lifetime.
package pprof

import (
	"errors"
	"fmt"
	"net/http"
	netpprof "net/http/pprof"
	"os"
	"path/filepath"
	"runtime/pprof"
	"sync"

	"github.com/julienschmidt/httprouter"
)

// Register mounts the /debug/pprof endpoints on router.
func Register(router *httprouter.Router) {
	router.Handler(http.MethodGet, "/debug/pprof/", http.HandlerFunc(netpprof.Index))
	router.Handler(http.MethodGet, "/debug/pprof/cmdline", http.HandlerFunc(netpprof.Cmdline))
	router.Handler(http.MethodGet, "/debug/pprof/profile", http.HandlerFunc(netpprof.Profile))
	router.Handler(http.MethodGet, "/debug/pprof/symbol", http.HandlerFunc(netpprof.Symbol))
	router.Handler(http.MethodGet, "/debug/pprof/trace", http.HandlerFunc(netpprof.Trace))
	for _, name := range []string{"goroutine", "heap", "allocs", "block", "mutex", "threadcreate"} {
		router.Handler(http.MethodGet, "/debug/pprof/"+name, netpprof.Handler(name))
	}
}

// Files names the profiles to write. Empty paths are skipped.
type Files struct {
	CPUProfile  string // sampled from Start until Stop
	HeapProfile string // written at Stop
}

// Profiler writes file profiles.
type Profiler struct {
	files   Files
	cpuFile *os.File

	mu      sync.Mutex
	stopped bool
}

// NewProfiler creates a profiler for files.
func NewProfiler(files Files) *Profiler {
	return &Profiler{files: files}
}

// Start begins CPU profiling if configured.
func (p *Profiler) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.files.CPUProfile == "" {
		return nil
	}
	f, err := create(p.files.CPUProfile)
	if err != nil {
		return fmt.Errorf("failed to create CPU profile file: %w", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to start CPU profiling: %w", err)
	}
	p.cpuFile = f
	return nil
}

// Stop finishes the CPU profile and writes the heap profile. Later calls do
// nothing.
func (p *Profiler) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return nil
	}
	p.stopped = true

	var errs []error
	if p.cpuFile != nil {
		pprof.StopCPUProfile()
		if err := p.cpuFile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close CPU profile: %w", err))
		}
		p.cpuFile = nil
	}

	if p.files.HeapProfile != "" {
		if err := writeHeap(p.files.HeapProfile); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func writeHeap(path string) error {
	f, err := create(path)
	if err != nil {
		return fmt.Errorf("failed to create heap profile file: %w", err)
	}
	defer f.Close()
	if err := pprof.WriteHeapProfile(f); err != nil {
		return fmt.Errorf("failed to write heap profile: %w", err)
	}
	return nil
}

func create(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return os.Create(path)
}
