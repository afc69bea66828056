package devseed

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSeed(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeSeed(t, "seed.yaml", `
limitBytes: 1024
files:
  - name: hello.txt
    content: hello
    acl: private
    uploadedAt: 1700000000000
  - name: logo.png
    key: fixedkey
    customId: logo
    base64: aGk=
`)
	seed, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(1024), seed.LimitBytes)
	require.Len(t, seed.Files, 2)

	first := seed.Files[0]
	assert.Equal(t, "hello.txt", first.Name)
	assert.Equal(t, "private", first.ACL)
	assert.Equal(t, int64(1700000000000), first.UploadedAt)
	data, err := first.Data()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	second := seed.Files[1]
	assert.Equal(t, "fixedkey", second.Key)
	assert.Equal(t, "logo", second.CustomID)
	data, err = second.Data()
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))
}

func TestLoadYAMLList(t *testing.T) {
	path := writeSeed(t, "seed.yml", "- name: a.txt\n  content: a\n- name: b.txt\n")
	seed, err := Load(path)
	require.NoError(t, err)
	require.Len(t, seed.Files, 2)
	assert.Equal(t, int64(0), seed.LimitBytes)
}

func TestLoadJSON(t *testing.T) {
	path := writeSeed(t, "seed.json", `{"limitBytes": 10, "files": [{"name": "a.txt", "content": "abc"}]}`)
	seed, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(10), seed.LimitBytes)
	require.Len(t, seed.Files, 1)

	path = writeSeed(t, "list.JSON", `[{"name": "b.txt", "base64": "Yg=="}]`)
	seed, err = Load(path)
	require.NoError(t, err)
	require.Len(t, seed.Files, 1)
	data, err := seed.Files[0].Data()
	require.NoError(t, err)
	assert.Equal(t, "b", string(data))
}

func TestLoadEmptyYAML(t *testing.T) {
	seed, err := Load(writeSeed(t, "empty.yaml", ""))
	require.NoError(t, err)
	assert.Empty(t, seed.Files)
}

func TestLoadErrors(t *testing.T) {
	cases := map[string]struct {
		name string
		body string
	}{
		"missing name":   {name: "a.yaml", body: "files:\n  - content: x\n"},
		"bad base64":     {name: "b.yaml", body: "files:\n  - name: x\n    base64: '***'\n"},
		"both payloads":  {name: "c.yaml", body: "files:\n  - name: x\n    content: a\n    base64: YQ==\n"},
		"negative limit": {name: "d.json", body: `{"limitBytes": -1}`},
		"bad json":       {name: "e.json", body: `{`},
		"bad yaml":       {name: "f.yaml", body: "files: [\n"},
	}
	for label, tc := range cases {
		t.Run(label, func(t *testing.T) {
			_, err := Load(writeSeed(t, tc.name, tc.body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
