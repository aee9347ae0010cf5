package tracker

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/openmined/keshig/internal/utils"
	gitignore "github.com/sabhiram/go-gitignore"
)

var defaultIgnoreLines = []string{
	".git/",
	// editors and OS noise
	".DS_Store",
	"Thumbs.db",
	"*.swp",
	"*~",
}

// ignoreList answers whether check should skip a repository-relative path.
// It combines the root .gitignore with .git/info/exclude.
type ignoreList struct {
	ignore *gitignore.GitIgnore
}

func loadIgnoreList(root, controlDir string) *ignoreList {
	lines := append([]string(nil), defaultIgnoreLines...)
	for _, path := range []string{
		filepath.Join(root, ".gitignore"),
		filepath.Join(controlDir, "info", "exclude"),
	} {
		lines = append(lines, readIgnoreLines(path)...)
	}
	return &ignoreList{ignore: gitignore.CompileIgnoreLines(lines...)}
}

func readIgnoreLines(path string) []string {
	if !utils.FileExists(path) {
		return nil
	}

	file, err := os.Open(path)
	if err != nil {
		slog.Warn("failed to open ignore file", "path", path, "error", err)
		return nil
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		slog.Warn("error reading ignore file", "path", path, "error", err)
	}
	slog.Debug("loaded ignore file", "path", path, "rules", len(lines))
	return lines
}

func (l *ignoreList) ShouldIgnore(relPath string) bool {
	return l.ignore.MatchesPath(relPath)
}
