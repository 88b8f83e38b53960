// Package envinfo describes the host a test job ran on and writes it as a
// result artifact.
package envinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/resultoor/pkg/result"
)

// ciVars are recorded when present in the environment.
var ciVars = []struct {
	key string
	env string
}{
	{key: "github_workflow", env: "GITHUB_WORKFLOW"},
	{key: "github_run_id", env: "GITHUB_RUN_ID"},
	{key: "github_run_number", env: "GITHUB_RUN_NUMBER"},
	{key: "github_job", env: "GITHUB_JOB"},
	{key: "runner_name", env: "RUNNER_NAME"},
}

// Info is a snapshot of host facts.
type Info struct {
	CollectedAt     time.Time
	System          string
	Platform        string
	PlatformVersion string
	KernelVersion   string
	Machine         string
	Architecture    string
	Hostname        string
	GoVersion       string
	CPUs            int
	MemoryTotal     uint64
	CI              [][2]string
}

// Collect gathers host facts. Probes that fail are logged and left empty;
// only a cancelled context is an error.
func Collect(ctx context.Context, log logrus.FieldLogger) (*Info, error) {
	log = log.WithField("component", "envinfo")

	info := &Info{
		CollectedAt:  time.Now().UTC().Truncate(time.Second),
		System:       systemName(runtime.GOOS),
		Architecture: runtime.GOARCH,
		GoVersion:    runtime.Version(),
		CPUs:         runtime.NumCPU(),
	}

	if hi, err := host.InfoWithContext(ctx); err != nil {
		log.WithError(err).Warn("Failed to read host info")
	} else {
		info.Hostname = hi.Hostname
		info.Platform = hi.Platform
		info.PlatformVersion = hi.PlatformVersion
		info.KernelVersion = hi.KernelVersion
		info.Machine = hi.KernelArch
	}

	if n, err := cpu.CountsWithContext(ctx, true); err != nil {
		log.WithError(err).Debug("Failed to count CPUs, using runtime value")
	} else if n > 0 {
		info.CPUs = n
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		log.WithError(err).Warn("Failed to read memory info")
	} else {
		info.MemoryTotal = vm.Total
	}

	for _, v := range ciVars {
		if val := os.Getenv(v.env); val != "" {
			info.CI = append(info.CI, [2]string{v.key, val})
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"system":   info.System,
		"platform": info.Platform,
		"arch":     info.Architecture,
	}).Debug("Collected environment info")

	return info, nil
}

// Details converts the snapshot into ordered result details. Empty values
// are omitted.
func (i *Info) Details() *result.Details {
	d := result.NewDetails()

	set := func(key, value string) {
		if value != "" {
			d.Set(key, value)
		}
	}

	if !i.CollectedAt.IsZero() {
		d.Set("timestamp", i.CollectedAt.UTC().Format(time.RFC3339))
	}

	set("system", i.System)
	set("platform", strings.TrimSpace(i.Platform+" "+i.PlatformVersion))
	set("kernel_version", i.KernelVersion)
	set("machine", i.Machine)
	set("architecture", i.Architecture)
	set("hostname", i.Hostname)
	set("go_version", i.GoVersion)

	if i.CPUs > 0 {
		d.Set("cpus", i.CPUs)
	}

	if i.MemoryTotal > 0 {
		d.Set("memory_total", units.BytesSize(float64(i.MemoryTotal)))
	}

	for _, kv := range i.CI {
		set(kv[0], kv[1])
	}

	return d
}

// Record builds an artifact document for one environment. Keys from extra
// override collected facts of the same name but never the environment or
// status fields.
func Record(label string, status result.Status, info *Info, extra *result.Details) ([]byte, error) {
	if strings.TrimSpace(label) == "" {
		return nil, fmt.Errorf("environment label is required")
	}

	doc := result.NewDetails()
	doc.Set("environment", label)
	doc.Set("status", string(status))

	merge := func(src *result.Details) {
		if src == nil {
			return
		}

		for pair := src.Oldest(); pair != nil; pair = pair.Next() {
			if pair.Key == "environment" || pair.Key == "status" {
				continue
			}

			doc.Set(pair.Key, pair.Value)
		}
	}

	if info != nil {
		merge(info.Details())
	}

	merge(extra)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding artifact: %w", err)
	}

	return append(data, '\n'), nil
}

// ParseExtra turns "key=value" pairs into ordered details.
func ParseExtra(pairs []string) (*result.Details, error) {
	d := result.NewDetails()

	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)

		if !ok || key == "" {
			return nil, fmt.Errorf("invalid detail %q (expected key=value)", p)
		}

		d.Set(key, value)
	}

	return d, nil
}

func systemName(goos string) string {
	switch goos {
	case "linux":
		return "Linux"
	case "darwin":
		return "Darwin"
	case "windows":
		return "Windows"
	case "freebsd":
		return "FreeBSD"
	default:
		return goos
	}
}
