package source

import (
	"context"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// DefaultSimulatorProcesses are the executable names of the simulator.
var DefaultSimulatorProcesses = []string{
	"iRacingSim64DX11.exe",
	"iRacingSim64.exe",
}

// ProcessProbe looks for a running process with one of Names.
type ProcessProbe struct {
	Names []string
}

func NewProcessProbe(names ...string) *ProcessProbe {
	if len(names) == 0 {
		names = DefaultSimulatorProcesses
	}
	return &ProcessProbe{Names: names}
}

func (p *ProcessProbe) Alive(ctx context.Context) bool {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return false
	}
	for _, proc := range procs {
		name, err := proc.NameWithContext(ctx)
		if err != nil {
			continue
		}
		if p.matches(name) {
			return true
		}
	}
	return false
}

func (p *ProcessProbe) matches(name string) bool {
	for _, want := range p.Names {
		if strings.EqualFold(name, want) {
			return true
		}
	}
	return false
}
