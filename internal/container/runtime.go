package container

import (
	"context"
	"sync"
	"time"

	"github.com/0xDracarys/lfs-builder/internal/models"
)

// Request describes one ISO generation run against a runtime.
type Request struct {
	BuildID     string
	SourceDir   string
	OutputPath  string
	VolumeLabel string
	Bootable    bool
	Bootloader  models.Bootloader
}

// Status is the live view of a runtime's current generation run.
type Status struct {
	Running     bool      `json:"running"`
	ContainerID string    `json:"container_id,omitempty"`
	Progress    int       `json:"progress"`
	Logs        []string  `json:"logs"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// LastLog returns the most recent log line, or an empty string.
func (s Status) LastLog() string {
	if len(s.Logs) == 0 {
		return ""
	}
	return s.Logs[len(s.Logs)-1]
}

// Runtime abstracts the local container runtime used for ISO generation.
// Generate blocks until the run finishes; progress and logs are published
// through the status feed so monitors react without polling the runtime.
type Runtime interface {
	// Available probes the runtime. Implementations cache a successful
	// probe for the process lifetime.
	Available(ctx context.Context) bool

	Generate(ctx context.Context, req Request) error

	// Status returns a snapshot of the current run.
	Status() Status

	// Subscribe registers a callback invoked on every status change and
	// returns a cancel function.
	Subscribe(fn func(Status)) func()
}

// feed implements the shared status bookkeeping for runtimes.
type feed struct {
	mu     sync.Mutex
	status Status
	subs   map[int]func(Status)
	nextID int
}

func (f *feed) Subscribe(fn func(Status)) func() {
	f.mu.Lock()
	if f.subs == nil {
		f.subs = make(map[int]func(Status))
	}
	id := f.nextID
	f.nextID++
	f.subs[id] = fn
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

func (f *feed) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

func (f *feed) snapshotLocked() Status {
	snapshot := f.status
	snapshot.Logs = make([]string, len(f.status.Logs))
	copy(snapshot.Logs, f.status.Logs)
	return snapshot
}

// update mutates the status under the lock and notifies subscribers with a
// snapshot.
func (f *feed) update(mutate func(*Status)) {
	f.mu.Lock()
	mutate(&f.status)
	f.status.UpdatedAt = time.Now()
	snapshot := f.snapshotLocked()
	subs := make([]func(Status), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()

	for _, fn := range subs {
		fn(snapshot)
	}
}

func (f *feed) begin(containerID string) {
	f.update(func(s *Status) {
		s.Running = true
		s.ContainerID = containerID
		s.Progress = 0
		s.Logs = nil
	})
}

func (f *feed) log(line string) {
	f.update(func(s *Status) {
		s.Logs = append(s.Logs, line)
	})
}

func (f *feed) progress(p int) {
	f.update(func(s *Status) {
		if p > s.Progress {
			s.Progress = p
		}
	})
}

func (f *feed) finish(progress int) {
	f.update(func(s *Status) {
		s.Running = false
		if progress > s.Progress {
			s.Progress = progress
		}
	})
}
