package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandWiring(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, want := range []string{"version", "wallet", "send", "estimate", "journal"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestSendCommandFlags(t *testing.T) {
	flags := sendCmd.Flags()

	for _, name := range []string{"target", "value", "data", "paymaster", "journal-db"} {
		require.NotNil(t, flags.Lookup(name), "missing flag %s", name)
	}

	assert.Equal(t, "0", flags.Lookup("value").DefValue)
	assert.Equal(t, "0x", flags.Lookup("data").DefValue)
}

func TestJournalStatusValidation(t *testing.T) {
	journalStatus = "bogus"
	defer func() { journalStatus = "" }()

	// open a throwaway db so validation is reached
	dir := t.TempDir()
	old := journalDBPath
	journalDBPath = dir
	defer func() { journalDBPath = old }()

	err := runJournal()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown status")
}
