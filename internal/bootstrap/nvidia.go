package bootstrap

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"voiced/internal/common/fsutil"
	"voiced/internal/common/procutil"
)

// NvidiaSMI is the accelerator utility looked up in PATH.
const NvidiaSMI = "nvidia-smi"

var nvidiaArgs = []string{"--query-gpu=index,name,memory.total", "--format=csv,noheader,nounits"}

// NvidiaProbe returns a ProbeFunc running bin (NvidiaSMI when empty).
func NvidiaProbe(bin string) ProbeFunc {
	if bin == "" {
		bin = NvidiaSMI
	}
	return func(ctx context.Context) (ProbeResult, error) {
		if strings.ContainsRune(bin, filepath.Separator) && !fsutil.PathExists(bin) {
			return ProbeResult{}, fmt.Errorf("%w: %s does not exist", ErrProbeUnavailable, bin)
		}
		path, err := exec.LookPath(bin)
		if err != nil {
			return ProbeResult{}, fmt.Errorf("%w: %v", ErrProbeUnavailable, err)
		}
		var out bytes.Buffer
		tail := &procutil.TailBuffer{Max: 1024}
		cmd := procutil.Cmd{Path: path, Args: nvidiaArgs, Stdout: &out, Stderr: tail, WaitDelay: time.Second}.Build(ctx)
		err = cmd.Run()
		if ctx.Err() != nil {
			return ProbeResult{}, fmt.Errorf("%w: %v", ErrProbeUnavailable, ctx.Err())
		}
		if err != nil {
			var ee *exec.ExitError
			if errors.As(err, &ee) {
				return ProbeResult{Ran: true, ExitCode: procutil.ExitCode(err), Output: tail.String()}, nil
			}
			return ProbeResult{}, fmt.Errorf("%w: %v", ErrProbeUnavailable, err)
		}
		return ProbeResult{Ran: true, GPUs: ParseNvidiaCSV(out.String()), Output: tail.String()}, nil
	}
}

// ParseNvidiaCSV parses "index, name, memory.total" rows. Rows that do not
// parse are skipped; the utility prints error text instead of rows for
// devices that do not respond.
func ParseNvidiaCSV(s string) []GPU {
	var gpus []GPU
	sc := bufio.NewScanner(strings.NewReader(s))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) < 3 {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			continue
		}
		memStr := strings.TrimSpace(parts[len(parts)-1])
		mem, err := strconv.Atoi(memStr)
		if err != nil {
			continue
		}
		name := strings.TrimSpace(strings.Join(parts[1:len(parts)-1], ","))
		gpus = append(gpus, GPU{Index: idx, Name: name, MemoryMB: mem})
	}
	return gpus
}
