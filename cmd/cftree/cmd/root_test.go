package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const sampleCSV = `x,y,kind
0,0,a
0.1,0,a
0,0.1,a
10,10,b
10.1,10,b
10,10.1,b
`

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRoot_JSONFromStdin(t *testing.T) {
	out, err := execute(t, sampleCSV, "--euclidean", "--categorical", "kind", "--cases", "-")
	require.NoError(t, err)

	var r report
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	assert.Equal(t, 6, r.Rows)
	require.Len(t, r.SubClusters, 2)
	require.Len(t, r.Labels, 6)

	total := 0
	for _, s := range r.SubClusters {
		total += s.Size
		assert.Len(t, s.Cases, s.Size)
		assert.Contains(t, s.Means, "x")
		assert.Contains(t, s.Variances, "y")
		require.Contains(t, s.Categories, "kind")
		assert.InDelta(t, 1.0, s.Categories["kind"]["a"]+s.Categories["kind"]["b"], 1e-12)
	}
	assert.Equal(t, 6, total)
	assert.Equal(t, r.Labels[0], r.Labels[1])
	assert.NotEqual(t, r.Labels[0], r.Labels[3])
}

func TestRoot_YAMLToFile(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "data.csv")
	output := filepath.Join(dir, "out.yaml")
	require.NoError(t, os.WriteFile(input, []byte(sampleCSV), 0o644))

	stdout, err := execute(t, "", "-c", "kind", "--noise", "-f", "yaml", "-o", output, input)
	require.NoError(t, err)
	assert.Empty(t, stdout)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	var r report
	require.NoError(t, yaml.Unmarshal(data, &r))
	assert.Equal(t, 6, r.Rows)
	assert.NotEmpty(t, r.SubClusters)
	assert.Nil(t, r.Labels)
}

func TestRoot_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no args", nil},
		{"missing file", []string{filepath.Join(t.TempDir(), "missing.csv")}},
		{"bad format", []string{"-f", "xml", "-"}},
		{"unknown column", []string{"-c", "nope", "-"}},
		{"invalid branches", []string{"--max-branches", "1", "-c", "kind", "-"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, sampleCSV, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestWriteReport_UnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, writeReport(&buf, report{}, "toml"))
}
