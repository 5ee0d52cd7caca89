package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const reviewYAML = `name: review
version: v1
start: start
end: end
conditions:
  - name: start
  - name: end
tasks:
  - name: check
    inputs: [start]
    outputs: [end]
`

const orderYAML = `name: order
version: v1
start: start
end: end
conditions:
  - name: start
  - name: end
tasks:
  - name: review
    kind: composite
    workflow:
      name: review
    inputs: [start]
    outputs: [end]
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))

	return p
}

func Test_LoadRegistry_Directory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "order.yaml", orderYAML)
	writeFile(t, dir, "review.yml", reviewYAML)

	r, defs, err := loadRegistry([]string{dir})
	require.NoError(t, err)
	require.Len(t, defs, 2)

	v, err := r.Resolve("order", "")
	require.NoError(t, err)
	require.Equal(t, "v1", v.Version)
}

func Test_LoadRegistry_Files(t *testing.T) {
	dir := t.TempDir()
	order := writeFile(t, dir, "order.yaml", orderYAML)
	review := writeFile(t, dir, "review.yaml", reviewYAML)

	_, defs, err := loadRegistry([]string{review, order})
	require.NoError(t, err)
	require.Len(t, defs, 2)
}

func Test_LoadRegistry_UnresolvedSubWorkflow(t *testing.T) {
	dir := t.TempDir()
	order := writeFile(t, dir, "order.yaml", orderYAML)

	_, _, err := loadRegistry([]string{order})
	require.ErrorContains(t, err, `task "review"`)
}

func Test_LoadRegistry_DuplicateVersion(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.yaml", reviewYAML)
	b := writeFile(t, dir, "b.yaml", reviewYAML)

	_, _, err := loadRegistry([]string{a, b})
	require.Error(t, err)
}

func Test_LoadRegistry_MissingPath(t *testing.T) {
	_, _, err := loadRegistry([]string{filepath.Join(t.TempDir(), "missing.yaml")})
	require.Error(t, err)
}
