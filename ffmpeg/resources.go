package ffmpeg

import (
	"fmt"
	"log"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// CheckResources verifies the host has enough headroom to start another
// encode. The scheduler calls this before admitting a task when the
// throttle is enabled; a failed probe of any single metric is logged
// and skipped rather than blocking admission.
func (r *Runner) CheckResources() error {
	p, err := cpu.Percent(time.Second, false)
	if err != nil {
		log.Printf("Warning: could not get CPU usage: %v", err)
	} else if len(p) > 0 && p[0] > (100.0-r.cfg.ThrottleCPU) {
		return fmt.Errorf("not enough idle CPU: current usage %.2f%%, idle threshold %.2f%%", p[0], r.cfg.ThrottleCPU)
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		log.Printf("Warning: could not get memory usage: %v", err)
	} else if vm.Available < uint64(r.cfg.ThrottleFreeMem) {
		return fmt.Errorf("not enough free memory: available %d, required %d", vm.Available, r.cfg.ThrottleFreeMem)
	}

	d, err := disk.Usage(r.outputDir)
	if err != nil {
		log.Printf("Warning: could not get disk usage for %s: %v", r.outputDir, err)
	} else if d.Free < uint64(r.cfg.ThrottleFreeDisk) {
		return fmt.Errorf("not enough free disk space: available %d, required %d", d.Free, r.cfg.ThrottleFreeDisk)
	}

	return nil
}
