package slurm

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bluegrid/rrm/internal/common/config"
	apperrors "github.com/bluegrid/rrm/internal/common/errors"
	"github.com/bluegrid/rrm/internal/scheduler"
)

var (
	submittedRe = regexp.MustCompile(`Submitted batch job (\d+)`)
	jobNumberRe = regexp.MustCompile(`-\[(\w+)\]`)
	jobStateRe  = regexp.MustCompile(`JobState=(\w+)`)
	batchHostRe = regexp.MustCompile(`BatchHost=(\w+)`)
)

// terminalStates are scontrol JobState values a job cannot leave.
var terminalStates = map[string]bool{
	"FAILED":        true,
	"CANCELLED":     true,
	"COMPLETED":     true,
	"TIMEOUT":       true,
	"NODE_FAIL":     true,
	"BOOT_FAIL":     true,
	"DEADLINE":      true,
	"OUT_OF_MEMORY": true,
	"PREEMPTED":     true,
}

// parseSubmission extracts the numeric job id from sbatch output.
func parseSubmission(output string) (string, error) {
	m := submittedRe.FindStringSubmatch(output)
	if m == nil {
		return "", apperrors.SchedulerFailure(
			fmt.Sprintf("unexpected sbatch output: %q", strings.TrimSpace(output)), nil)
	}
	return m[1], nil
}

// jobNumber extracts the cluster job number from an opaque job id of the form
// [<service_url>]-[<number>].
func jobNumber(jobID string) (string, error) {
	m := jobNumberRe.FindStringSubmatch(jobID)
	if m == nil {
		return "", apperrors.InternalError(fmt.Sprintf("malformed job id '%s'", jobID), nil)
	}
	return m[1], nil
}

// opaqueJobID builds the public job reference from the configured service URL
// and the cluster job number.
func opaqueJobID(serviceURL, number string) string {
	return fmt.Sprintf("[%s]-[%s]", serviceURL, number)
}

// parseJobState extracts the JobState field from scontrol show job output.
func parseJobState(output string) (string, error) {
	m := jobStateRe.FindStringSubmatch(output)
	if m == nil {
		return "", apperrors.SchedulerFailure(
			fmt.Sprintf("no job state in scontrol output: %q", strings.TrimSpace(output)), nil)
	}
	return m[1], nil
}

// parseBatchHost extracts the batch host from scontrol show job output and
// appends the cluster domain when the name is unqualified.
func parseBatchHost(output, domain string) (string, error) {
	m := batchHostRe.FindStringSubmatch(output)
	if m == nil {
		return "", apperrors.SchedulerFailure(
			fmt.Sprintf("no batch host in scontrol output: %q", strings.TrimSpace(output)), nil)
	}
	host := m[1]
	if domain != "" && !strings.Contains(host, domain) {
		host += domain
	}
	return host, nil
}

// buildBatchScript renders the sbatch submission script for a renderer.
func buildBatchScript(req *scheduler.SubmitRequest, cfg config.SlurmConfig) string {
	var b strings.Builder
	b.WriteString("#!/bin/bash\n")
	fmt.Fprintf(&b, "#SBATCH --job-name=%s%s\n", cfg.JobNamePrefix, req.Executable)
	b.WriteString("#SBATCH --exclusive\n")
	if cfg.Queue != "" {
		fmt.Fprintf(&b, "#SBATCH --partition=%s\n", cfg.Queue)
	}
	if cfg.Project != "" {
		fmt.Fprintf(&b, "#SBATCH --account=%s\n", cfg.Project)
	}
	fmt.Fprintf(&b, "#SBATCH --output=%s%s%s\n", cfg.OutputPrefix, req.Executable, cfg.OutFile)
	fmt.Fprintf(&b, "#SBATCH --error=%s%s%s\n", cfg.OutputPrefix, req.Executable, cfg.ErrFile)
	b.WriteString("#SBATCH --mem=2000\n")
	b.WriteString("\n")
	b.WriteString("module purge\n")
	if cfg.DefaultModule != "" {
		fmt.Fprintf(&b, "module load %s\n", cfg.DefaultModule)
	}
	for _, module := range req.Modules {
		fmt.Fprintf(&b, "module load %s\n", module)
	}
	for _, kv := range req.Environment {
		fmt.Fprintf(&b, "export %s\n", kv)
	}
	b.WriteString(req.Executable)
	if len(req.Arguments) > 0 {
		b.WriteString(" ")
		b.WriteString(strings.Join(req.Arguments, " "))
	}
	b.WriteString("\n")
	return b.String()
}
