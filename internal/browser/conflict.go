package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v4/process"
)

// checkProfileConflict reports whether another browser process is already
// using the profile directory, with a short description of the offender.
// Per-process read errors are ignored; processes come and go during the
// scan.
func checkProfileConflict(ctx context.Context, profileDir string) (bool, string) {
	if profileDir == "" {
		return false, ""
	}

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		// Can't scan; assume no conflict rather than blocking every run.
		log.Warn().Err(err).Msg("process scan failed during conflict check")
		return false, ""
	}

	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || !strings.Contains(strings.ToLower(name), "chrom") {
			continue
		}
		cmdline, err := p.CmdlineWithContext(ctx)
		if err != nil {
			continue
		}
		if strings.Contains(cmdline, profileDir) {
			return true, fmt.Sprintf("%s (pid %d)", name, p.Pid)
		}
	}
	return false, ""
}
