package grace

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregate/coregate/internal/config"
	"github.com/coregate/coregate/internal/grace"
)

// withMemoryConfigLoader points ConfigLoader at the process-wide in-memory
// grace store under a per-test object name for the duration of a test,
// restoring whatever was set before.
func withMemoryConfigLoader(t *testing.T, objectName string) {
	t.Helper()
	prev := ConfigLoader
	ConfigLoader = func() (config.GraceConfig, error) {
		return config.GraceConfig{Backend: "memory", ObjectName: objectName}, nil
	}
	t.Cleanup(func() { ConfigLoader = prev })
}

func runCmd(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	Cmd.SetOut(&out)
	Cmd.SetErr(&out)
	Cmd.SetArgs(args)
	require.NoError(t, Cmd.Execute())
	return out.String()
}

func TestGraceStatusOnFreshObjectShowsNoGracePeriod(t *testing.T) {
	withMemoryConfigLoader(t, "test-grace-status")

	out := runCmd(t, "status")
	assert.Contains(t, out, "In grace period")
	assert.Contains(t, out, "false")
}

func TestGraceAddThenJoinStartsGracePeriod(t *testing.T) {
	withMemoryConfigLoader(t, "test-grace-add-join")

	out := runCmd(t, "add", "replica-2")
	assert.Contains(t, out, "replica-2")
	assert.Contains(t, out, "added")

	out = runCmd(t, "join", "replica-2", "--start")
	assert.Contains(t, out, "joined")

	out = runCmd(t, "status")
	assert.Contains(t, out, "true")
}

func TestGraceAddThenJoinMultipleMembersAtOnce(t *testing.T) {
	withMemoryConfigLoader(t, "test-grace-add-join-batch")

	out := runCmd(t, "add", "replica-a", "replica-b")
	assert.Contains(t, out, "replica-a")
	assert.Contains(t, out, "replica-b")

	out = runCmd(t, "join", "replica-a", "replica-b", "--start")
	assert.Contains(t, out, "joined")

	out = runCmd(t, "status")
	assert.Contains(t, out, "true")
}

func TestGraceLiftRequiresAtLeastOneMember(t *testing.T) {
	withMemoryConfigLoader(t, "test-grace-lift-args")

	Cmd.SetArgs([]string{"lift"})
	var out bytes.Buffer
	Cmd.SetOut(&out)
	Cmd.SetErr(&out)
	assert.Error(t, Cmd.Execute())
}

func TestGraceDumpPrintsGraceObject(t *testing.T) {
	withMemoryConfigLoader(t, "test-grace-dump-object")

	out := runCmd(t, "dump")
	assert.NotEmpty(t, out)
}

func TestWithCoordinatorPropagatesConfigLoaderError(t *testing.T) {
	prev := ConfigLoader
	t.Cleanup(func() { ConfigLoader = prev })
	ConfigLoader = func() (config.GraceConfig, error) {
		return config.GraceConfig{}, assert.AnError
	}

	err := withCoordinator(func(ctx context.Context, c *grace.Coordinator) error { return nil })
	assert.Error(t, err)
}
