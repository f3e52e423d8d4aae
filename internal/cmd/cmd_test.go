package cmd

import (
	"bytes"
	"io"
	"testing"

	"github.com/raidmeter/encounters/internal/encounter"
	"github.com/stretchr/testify/require"
)

func TestRenderInfo(t *testing.T) {
	var out bytes.Buffer

	require.NoError(t, renderInfo(&out, "/data/encounters.db", 30, encounter.DBInfo{
		Size:                    "1.2 MB",
		SizeBytes:               1_200_000,
		FreeBytes:               5_000_000_000,
		TotalEncounters:         42,
		TotalEncountersFiltered: 17,
	}, 3))

	rendered := out.String()
	require.Contains(t, rendered, "/data/encounters.db")
	require.Contains(t, rendered, "1.2 MB")
	require.Contains(t, rendered, "5.0 GB")
	require.Contains(t, rendered, "42")
	require.Contains(t, rendered, "17")
}

func TestPruneRequiresSelection(t *testing.T) {
	command := pruneCmd()
	command.SetArgs([]string{"--keep-favorites=false"})
	command.SetOut(io.Discard)
	command.SetErr(io.Discard)

	require.ErrorIs(t, command.Execute(), ErrPruneSelection)
}
