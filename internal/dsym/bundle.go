package dsym

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

const dsymSuffix = ".dSYM"

// macOSXArtifactDir is created by the macOS archive utility when it zips a
// folder. Anything beneath it is metadata, not a real bundle.
const macOSXArtifactDir = "__MACOSX"

// discoverBundles collects the *.dSYM entries under root in a deterministic
// order. When root itself carries the bundle suffix it is the only candidate.
func (u *uploader) discoverBundles(root string) ([]string, error) {
	if strings.HasSuffix(filepath.Base(root), dsymSuffix) {
		return []string{root}, nil
	}

	matches, err := doublestar.Glob(os.DirFS(root), "**/*"+dsymSuffix, doublestar.WithNoFollow())
	if err != nil {
		return nil, fmt.Errorf("glob dSYM bundles: %w", err)
	}

	var bundles []string
	for _, match := range matches {
		if isArchiveUtilityArtifact(match) {
			continue
		}
		bundles = append(bundles, filepath.Join(root, match))
	}
	sort.Strings(bundles)

	return bundles, nil
}

func isArchiveUtilityArtifact(relPath string) bool {
	for _, segment := range strings.Split(filepath.ToSlash(relPath), "/") {
		if segment == macOSXArtifactDir {
			return true
		}
	}
	return false
}
