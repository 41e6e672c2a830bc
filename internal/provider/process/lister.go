package process

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Proc is one running process as seen by a poll.
type Proc struct {
	PID     int32
	Name    string
	CPUTime float64 // user+system seconds since start
	Created time.Time
}

// Lister enumerates running processes.
type Lister interface {
	List(ctx context.Context) ([]Proc, error)
}

// SystemLister lists processes through gopsutil.
type SystemLister struct{}

func (SystemLister) List(ctx context.Context) ([]Proc, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Proc, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			continue
		}
		pr := Proc{PID: p.Pid, Name: name}
		if times, err := p.TimesWithContext(ctx); err == nil {
			pr.CPUTime = times.User + times.System
		}
		if ms, err := p.CreateTimeWithContext(ctx); err == nil {
			pr.Created = time.UnixMilli(ms)
		}
		out = append(out, pr)
	}
	return out, nil
}

// normalizeName lowercases a process name and strips a Windows extension.
func normalizeName(name string) string {
	name = strings.ToLower(filepath.Base(name))
	return strings.TrimSuffix(name, ".exe")
}

type cpuSample struct {
	total float64
	at    time.Time
}

// cpuPercent converts the CPU time consumed between two samples into a
// percentage of one core.
func cpuPercent(prev, cur cpuSample) float64 {
	elapsed := cur.at.Sub(prev.at).Seconds()
	if elapsed <= 0 || cur.total < prev.total {
		return 0
	}
	return (cur.total - prev.total) / elapsed * 100
}
