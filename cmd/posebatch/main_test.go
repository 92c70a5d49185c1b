package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFixture lays out a ground truth of n clips in fold 0, each with
// frames[i] frames of a two-track pose file, and returns the CSV path.
func writeFixture(t *testing.T, frames []int) string {
	t.Helper()
	dir := t.TempDir()
	var gt strings.Builder
	gt.WriteString("clip_id,action,fold,path\n")
	for i, n := range frames {
		name := fmt.Sprintf("clip%d.csv", i+1)
		fmt.Fprintf(&gt, "%d,%d,0,%s\n", i+1, i%2, name)

		var pose strings.Builder
		pose.WriteString("a:x,a:y,b:x,b:y\n")
		for f := range n {
			fmt.Fprintf(&pose, "%d,%d,%d,%d\n", f, f, f, f)
		}
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(pose.String()), 0644))
	}
	path := filepath.Join(dir, "gt.csv")
	require.NoError(t, os.WriteFile(path, []byte(gt.String()), 0644))
	return path
}

func TestMappingCommand(t *testing.T) {
	gt := writeFixture(t, []int{10, 6})

	root := rootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"mapping",
		"--ground-truth", gt,
		"--subset", "validation",
		"--timesteps", "4",
		"--seq-step", "2",
		"--log-level", "error",
	})
	require.NoError(t, root.Execute())

	// 10 frames give windows at 0,2,4,6 and 6 frames at 0,2.
	assert.Contains(t, out.String(), "6 sequences")
	assert.FileExists(t, filepath.Join(filepath.Dir(gt), "seqs_mapping",
		"seqs_mapping-subset_validation-fold_0-timesteps_4-None-seq_step_2.csv"))
}

func TestInspectCommand(t *testing.T) {
	gt := writeFixture(t, []int{10, 6})

	root := rootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"inspect",
		"--ground-truth", gt,
		"--subset", "validation",
		"--timesteps", "4",
		"--seq-step", "2",
		"--batch-size", "4",
		"--mode", "all",
		"--prefetch", "2",
		"--clip-cache", "2",
		"--epochs", "2",
		"--metrics-addr", "127.0.0.1:0",
		"--log-level", "error",
	})
	require.NoError(t, root.Execute())

	assert.Equal(t, "epoch 0: 2 batches, 6 samples\nepoch 1: 2 batches, 6 samples\n", out.String())
	assert.FileExists(t, filepath.Join(filepath.Dir(gt), "seqs_mapping",
		"seqs_mapping-subset_validation-fold_0-timesteps_4-None-seq_step_2.csv"))
}

func TestInspectCommandUnknownMode(t *testing.T) {
	gt := writeFixture(t, []int{6})

	root := rootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"inspect",
		"--ground-truth", gt,
		"--subset", "validation",
		"--mode", "random",
		"--log-level", "error",
	})
	assert.ErrorContains(t, root.Execute(), `unknown mode "random"`)
}
