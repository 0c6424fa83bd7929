package signalregistry_test

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// allowedMonolithReferrers names the packages permitted to reference the
// question monolith path: the signal registry itself and the monolith
// loader it delegates to.
var allowedMonolithReferrers = map[string]bool{
	"signalregistry": true,
	"monolith":       true,
}

var monolithPathRe = regexp.MustCompile(`(?i)monolith[_.]?path|MonolithPath`)

// TestAccessDiscipline enforces the testable property "no source file
// outside the signal-registry loader and the factory references the
// monolith path": a static scan over internal/**/*.go, excluding the
// allowed packages, must find zero references.
func TestAccessDiscipline(t *testing.T) {
	root := findModuleRoot(t)
	internalDir := filepath.Join(root, "internal")

	violations := 0
	var offending []string

	err := filepath.Walk(internalDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".go") {
			return nil
		}

		rel, _ := filepath.Rel(internalDir, path)
		pkgDir := strings.Split(rel, string(filepath.Separator))[0]
		if allowedMonolithReferrers[pkgDir] {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if monolithPathRe.Match(data) {
			violations++
			offending = append(offending, rel)
		}
		return nil
	})
	require.NoError(t, err)
	require.Equalf(t, 0, violations, "monolith path referenced outside signalregistry/monolith: %v", offending)
}

func findModuleRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	require.NoError(t, err)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("module root not found")
		}
		dir = parent
	}
}
