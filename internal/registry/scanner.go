package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"modelhost/pkg/types"
)

// Scanner is the discovery collaborator: it produces descriptors for the
// model files found in one directory. Scans may fail with a recoverable
// error (unreadable directory, unmounted volume).
type Scanner interface {
	Scan(dir string) ([]types.ModelDescriptor, error)
}

// DirScanner scans a directory for model files of known formats and builds
// descriptors from filenames. ID is the filename without extension; the
// declared memory requirement is the file size.
type DirScanner struct{}

var formatByExt = map[string]types.ModelFormat{
	".gguf":        types.FormatGGUF,
	".ggml":        types.FormatGGML,
	".bin":         types.FormatGGML,
	".safetensors": types.FormatSafetensors,
}

func (DirScanner) Scan(dir string) ([]types.ModelDescriptor, error) {
	base, err := expandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.ModelDescriptor
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := strings.ToLower(filepath.Ext(name))
		format, ok := formatByExt[ext]
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		id := strings.TrimSuffix(name, filepath.Ext(name))
		models = append(models, types.ModelDescriptor{
			ID:           id,
			Name:         id,
			Path:         filepath.Join(abs, name),
			Format:       format,
			MemoryBytes:  info.Size(),
			Priority:     1,
			Capabilities: capabilitiesFor(id),
		})
	}
	return models, nil
}

// capabilitiesFor guesses capability tags from the model name.
func capabilitiesFor(id string) []string {
	lower := strings.ToLower(id)
	var caps []string
	if strings.Contains(lower, "code") || strings.Contains(lower, "coder") {
		caps = append(caps, "code")
	}
	if strings.Contains(lower, "embed") {
		caps = append(caps, "embedding")
	}
	if len(caps) == 0 {
		caps = append(caps, "chat")
	}
	return caps
}

// expandHome expands a leading '~' to the user's home directory.
func expandHome(path string) (string, error) {
	if path == "" {
		return path, nil
	}
	if path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}
