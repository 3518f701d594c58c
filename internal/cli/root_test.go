package cli

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const classroomYAML = `- id: 1
  name: Ada
  rarity: ordinary
- id: 2
  name: Grace
  rarity: rare
- id: 3
  name: Alan
  rarity: super-rare
`

// testOptions returns root options with the environment defaults applied
// and logging quiet.
func testOptions(format string) *RootOptions {
	return &RootOptions{
		Format: format,
		Config: Config{Policy: "uniform", LogLevel: slog.LevelError},
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func writeClassroom(t *testing.T) string {
	t.Helper()
	return writeFile(t, t.TempDir(), "class.yaml", classroomYAML)
}

// execute runs cmd with args and returns what it wrote to stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "rollcall", cmd.Use)
	assert.Contains(t, cmd.Long, "without repeats")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"generate", "validate", "draw", "session", "history", "replay", "test"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestDrawCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"draw", "session"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)

			for _, flag := range []string{"policy", "weights", "seed", "db", "delay", "resume", "rarities"} {
				assert.NotNil(t, sub.Flags().Lookup(flag), "missing --%s", flag)
			}
		})
	}

	drawCmd, _, err := cmd.Find([]string{"draw"})
	require.NoError(t, err)
	countFlag := drawCmd.Flags().Lookup("count")
	require.NotNil(t, countFlag)
	assert.Equal(t, "n", countFlag.Shorthand)
	assert.Equal(t, "1", countFlag.DefValue)
}

func TestHistoryAndReplayCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"history", "replay"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		assert.NotNil(t, sub.Flags().Lookup("db"))
		assert.NotNil(t, sub.Flags().Lookup("session"))
	}
}

func TestTestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	testCmd, _, err := cmd.Find([]string{"test"})
	require.NoError(t, err)

	updateFlag := testCmd.Flags().Lookup("update")
	require.NotNil(t, updateFlag)
	assert.Equal(t, "false", updateFlag.DefValue)

	filterFlag := testCmd.Flags().Lookup("filter")
	require.NotNil(t, filterFlag)
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	_, err := execute(t, NewRootCommand(), "--format", "invalid", "validate", "class.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestEnvironmentDefaults(t *testing.T) {
	t.Setenv("ROLLCALL_POLICY", "sequential")
	t.Setenv("ROLLCALL_DB", "/tmp/journal.db")
	t.Setenv("ROLLCALL_DRAW_DELAY", "2s")

	cmd := NewRootCommand()
	drawCmd, _, err := cmd.Find([]string{"draw"})
	require.NoError(t, err)

	assert.Equal(t, "sequential", drawCmd.Flags().Lookup("policy").DefValue)
	assert.Equal(t, "/tmp/journal.db", drawCmd.Flags().Lookup("db").DefValue)
	assert.Equal(t, "2s", drawCmd.Flags().Lookup("delay").DefValue)
}

func TestInvalidEnvironmentIsCommandError(t *testing.T) {
	t.Setenv("ROLLCALL_SEED", "not-a-number")

	_, err := execute(t, NewRootCommand(), "validate", writeClassroom(t))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid environment")
}

func TestEndToEndSequentialDraw(t *testing.T) {
	out, err := execute(t, NewRootCommand(), "draw", writeClassroom(t), "--policy", "sequential", "-n", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Ada")
	assert.Contains(t, out, "Grace")
	assert.NotContains(t, out, "Alan")
	assert.Contains(t, out, "2 drawn, 1 remaining")
}
