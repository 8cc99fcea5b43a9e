package slurm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluegrid/rrm/internal/common/config"
	"github.com/bluegrid/rrm/internal/scheduler"
)

const scontrolRunning = `JobId=1447185 JobName=viz_rtneuron
   UserId=bbpuser(10000) GroupId=bbp(10000)
   Priority=4294901726 Nice=0 Account=proj3 QOS=normal
   JobState=RUNNING Reason=None Dependency=(null)
   Requeue=1 Restarts=0 BatchFlag=1 Reboot=0 ExitCode=0:0
   RunTime=00:01:05 TimeLimit=08:00:00 TimeMin=N/A
   Partition=interactive AllocNode:Sid=bbpviz1:12345
   NodeList=bbpviz123
   BatchHost=bbpviz123
   NumNodes=1 NumCPUs=16 CPUs/Task=1
`

const scontrolPending = `JobId=1447186 JobName=viz_livre
   JobState=PENDING Reason=Resources Dependency=(null)
   Partition=interactive
   NodeList=(null)
`

func TestParseSubmission(t *testing.T) {
	number, err := parseSubmission("Submitted batch job 1447185\n")
	require.NoError(t, err)
	assert.Equal(t, "1447185", number)
}

func TestParseSubmissionRejectsGarbage(t *testing.T) {
	_, err := parseSubmission("sbatch: error: invalid partition specified\n")
	assert.Error(t, err)
}

func TestJobNumberRoundTrip(t *testing.T) {
	jobID := opaqueJobID("slurm+ssh://bbpviz1.epfl.ch", "1447185")
	assert.Equal(t, "[slurm+ssh://bbpviz1.epfl.ch]-[1447185]", jobID)

	number, err := jobNumber(jobID)
	require.NoError(t, err)
	assert.Equal(t, "1447185", number)
}

func TestJobNumberMalformed(t *testing.T) {
	_, err := jobNumber("1447185")
	assert.Error(t, err)
}

func TestParseJobState(t *testing.T) {
	state, err := parseJobState(scontrolRunning)
	require.NoError(t, err)
	assert.Equal(t, "RUNNING", state)

	state, err = parseJobState(scontrolPending)
	require.NoError(t, err)
	assert.Equal(t, "PENDING", state)

	_, err = parseJobState("slurm_load_jobs error: Invalid job id specified")
	assert.Error(t, err)
}

func TestParseBatchHostAppendsDomain(t *testing.T) {
	host, err := parseBatchHost(scontrolRunning, ".bbp.epfl.ch")
	require.NoError(t, err)
	assert.Equal(t, "bbpviz123.bbp.epfl.ch", host)
}

func TestParseBatchHostNoDomain(t *testing.T) {
	host, err := parseBatchHost(scontrolRunning, "")
	require.NoError(t, err)
	assert.Equal(t, "bbpviz123", host)
}

func TestParseBatchHostMissing(t *testing.T) {
	_, err := parseBatchHost(scontrolPending, ".bbp.epfl.ch")
	assert.Error(t, err)
}

func TestTerminalStates(t *testing.T) {
	assert.True(t, terminalStates["FAILED"])
	assert.True(t, terminalStates["CANCELLED"])
	assert.True(t, terminalStates["COMPLETED"])
	assert.False(t, terminalStates["PENDING"])
	assert.False(t, terminalStates["RUNNING"])
	assert.False(t, terminalStates["COMPLETING"])
}

func TestBuildBatchScript(t *testing.T) {
	cfg := config.SlurmConfig{
		Queue:         "interactive",
		Project:       "proj3",
		DefaultModule: "BBP/viz/latest",
		JobNamePrefix: "viz_",
		OutputPrefix:  "/gpfs/bbp.cscs.ch/logs/%A_",
		OutFile:       ".out",
		ErrFile:       ".err",
	}
	req := &scheduler.SubmitRequest{
		SessionID:   "f3a1",
		Executable:  "rtneuron",
		Arguments:   []string{"--rest", "node1:3000", "--daemon"},
		Environment: []string{"DISPLAY=:0", "EQ_LOG_LEVEL=info"},
		Modules:     []string{"BBP/viz/rtneuron/latest"},
		Port:        3000,
	}

	script := buildBatchScript(req, cfg)
	expected := `#!/bin/bash
#SBATCH --job-name=viz_rtneuron
#SBATCH --exclusive
#SBATCH --partition=interactive
#SBATCH --account=proj3
#SBATCH --output=/gpfs/bbp.cscs.ch/logs/%A_rtneuron.out
#SBATCH --error=/gpfs/bbp.cscs.ch/logs/%A_rtneuron.err
#SBATCH --mem=2000

module purge
module load BBP/viz/latest
module load BBP/viz/rtneuron/latest
export DISPLAY=:0
export EQ_LOG_LEVEL=info
rtneuron --rest node1:3000 --daemon
`
	assert.Equal(t, expected, script)
}

func TestBuildBatchScriptMinimal(t *testing.T) {
	script := buildBatchScript(&scheduler.SubmitRequest{Executable: "livre"}, config.SlurmConfig{
		OutFile: ".out",
		ErrFile: ".err",
	})

	assert.NotContains(t, script, "--partition")
	assert.NotContains(t, script, "--account")
	assert.NotContains(t, script, "export")
	assert.Contains(t, script, "module purge\n")
	assert.Contains(t, script, "livre\n")
}
