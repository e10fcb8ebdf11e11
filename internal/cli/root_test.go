package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	_ "github.com/lacquerai/sentiment/internal/testhelper"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecute(t *testing.T) {
	// Create a minimal command for testing
	originalRootCmd := rootCmd

	testCmd := &cobra.Command{
		Use:   "sentiment",
		Short: "Test command",
		Run: func(cmd *cobra.Command, args []string) {
			// Do nothing
		},
	}

	testCmd.SetArgs([]string{})

	rootCmd = testCmd
	defer func() { rootCmd = originalRootCmd }()

	err := Execute()
	assert.NoError(t, err)
}

func TestGetVersion(t *testing.T) {
	version := getVersion()
	assert.Contains(t, version, "dev")
	assert.Contains(t, version, "unknown")
}

func TestInitLogging(t *testing.T) {
	require.NotPanics(t, func() {
		initLogging()
	})
}

func TestInitConfig(t *testing.T) {
	require.NotPanics(t, func() {
		initConfig()
	})
}

func TestConfigPaths(t *testing.T) {
	t.Setenv("HOME", "/home/ops")
	assert.Equal(t, []string{filepath.Join("/home/ops", ".sentiment"), ".", ".sentiment"}, configPaths())

	t.Setenv("HOME", "")
	assert.Equal(t, []string{".", ".sentiment"}, configPaths())
	require.NotPanics(t, func() {
		initConfig()
	})
}

func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	// Create a copy of the root command to avoid modifying the global one
	cmd := &cobra.Command{
		Use:   root.Use,
		Short: root.Short,
		Long:  root.Long,
		RunE:  root.RunE,
	}

	for _, subCmd := range root.Commands() {
		cmd.AddCommand(subCmd)
	}

	cmd.Flags().AddFlagSet(root.Flags())
	cmd.PersistentFlags().AddFlagSet(root.PersistentFlags())

	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)

	err = cmd.Execute()
	return buf.String(), err
}

func TestRootCommand(t *testing.T) {
	output, err := executeCommand(rootCmd, "--help")
	assert.NoError(t, err)
	assert.Contains(t, output, "Sentiment loads a star-rating classifier")
	assert.Contains(t, output, "Available Commands:")
}

func TestGlobalFlags(t *testing.T) {
	tests := []struct {
		name     string
		typ      string
		defValue string
	}{
		{name: "config", typ: "string", defValue: ""},
		{name: "log-level", typ: "string", defValue: "disabled"},
		{name: "output", typ: "string", defValue: "text"},
		{name: "quiet", typ: "bool", defValue: "false"},
		{name: "provider", typ: "string", defValue: "python"},
		{name: "model", typ: "string", defValue: ""},
		{name: "timeout", typ: "duration", defValue: "0s"},
		{name: "metrics-addr", typ: "string", defValue: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag := rootCmd.PersistentFlags().Lookup(tt.name)
			require.NotNil(t, flag)
			assert.Equal(t, tt.typ, flag.Value.Type())
			assert.Equal(t, tt.defValue, flag.DefValue)
		})
	}
}

func TestCommandAvailability(t *testing.T) {
	commands := []string{"serve", "classify", "models", "schema", "version"}

	for _, cmdName := range commands {
		cmd, _, err := rootCmd.Find([]string{cmdName})
		assert.NoError(t, err, "Command %s should be available", cmdName)
		assert.Equal(t, cmdName, cmd.Name(), "Command name should match")
	}
}
