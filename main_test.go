//go:build linux

package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/cespare/xxhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) string {
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func Test_Cli_Sum_And_Cat(t *testing.T) {
	data := bytes.Repeat([]byte("mooooooo"), 3000)
	fp := filepath.Join(t.TempDir(), "cow.moo")
	require.NoError(t, os.WriteFile(fp, data, 0644))

	out := run(t, "sum", "--depth", "2", "--frames", "3", fp)
	assert.Equal(t, fmt.Sprintf("%016x  %s\n", xxhash.Sum64(data), fp), out)

	out = run(t, "cat", "--page-size", "1000", "--stats", fp)
	assert.Equal(t, string(data), out)
}

func Test_Cli_Env_Config(t *testing.T) {
	t.Setenv("MOORING_DEPTH", "0")
	fp := filepath.Join(t.TempDir(), "x")
	require.NoError(t, os.WriteFile(fp, []byte("x"), 0644))

	cmd := rootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{ "sum", fp })
	assert.Error(t, cmd.Execute(), "depth 0 from env should fail ring creation")
}

func Test_Cli_Missing_File(t *testing.T) {
	cmd := rootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{ "cat", filepath.Join(t.TempDir(), "nope") })
	assert.Error(t, cmd.Execute())
}
