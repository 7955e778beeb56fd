package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"serve", "generate", "manual", "runs", "leads", "migrate", "seed"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "leadgen", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestGenerateCommand_Flags(t *testing.T) {
	for _, name := range []string{"owner", "industry", "location", "limit"} {
		require.NotNil(t, generateCmd.Flags().Lookup(name), "generate should have --%s", name)
	}
	assert.Equal(t, "0", generateCmd.Flags().Lookup("limit").DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestLeadsCommand_Subcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range leadsCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["list"])
	assert.True(t, names["status"])

	assert.Error(t, leadsStatusCmd.Args(leadsStatusCmd, []string{"only-id"}))
	assert.NoError(t, leadsStatusCmd.Args(leadsStatusCmd, []string{"id", "contacted"}))
}

func TestRequireOwner(t *testing.T) {
	assert.Error(t, requireOwner(""))
	assert.NoError(t, requireOwner("owner-1"))
}
