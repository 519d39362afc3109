package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMissingFlagsNamesEachAbsentArgument(t *testing.T) {
	assert.Equal(t,
		[]string{"--sourcePath", "--outputPath", "--label"},
		missingFlags(options{}))

	assert.Equal(t,
		[]string{"--label"},
		missingFlags(options{sourcePath: "/stage", outputPath: "/out.iso"}))

	assert.Empty(t, missingFlags(options{sourcePath: "/stage", outputPath: "/out.iso", label: "LFS"}))
}

func TestRunRejectsMissingArguments(t *testing.T) {
	err := run(options{outputPath: "/out.iso"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required arguments")
	assert.Contains(t, err.Error(), "--sourcePath")
	assert.Contains(t, err.Error(), "--label")
	assert.NotContains(t, err.Error(), "--outputPath")
}

func TestRunRejectsUnknownBootloader(t *testing.T) {
	err := run(options{
		sourcePath: "/stage",
		outputPath: "/out.iso",
		label:      "LFS",
		bootloader: "lilo",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown bootloader")
}
