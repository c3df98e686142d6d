package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	activeDir  = "rules"
	archiveDir = "archive"
)

// FSBackend keeps artifacts on the local filesystem. Active artifacts
// live under rules/, archives under archive/<ruleType>/. Writes go to a
// temp file in the destination directory followed by a rename, so the
// swap is atomic on POSIX filesystems.
type FSBackend struct {
	root string
}

func NewFSBackend(root string) (*FSBackend, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("artifact root is required")
	}
	for _, dir := range []string{filepath.Join(root, activeDir), filepath.Join(root, archiveDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create %s: %v", ErrStoreUnavailable, dir, err)
		}
	}
	return &FSBackend{root: root}, nil
}

type archiveFile struct {
	ArchiveEntry
	Content string `json:"content"`
}

func (b *FSBackend) activePath(ruleType string) string {
	return filepath.Join(b.root, activeDir, sanitizeName(ruleType)+".json")
}

func (b *FSBackend) archivePath(entry ArchiveEntry) string {
	name := fmt.Sprintf("%s_%d.json", sanitizeName(entry.Version), entry.ArchivedAt.UnixNano())
	return filepath.Join(b.root, archiveDir, sanitizeName(entry.RuleType), name)
}

func (b *FSBackend) ReadActive(_ context.Context, ruleType string) (Artifact, bool, error) {
	raw, err := os.ReadFile(b.activePath(ruleType))
	if os.IsNotExist(err) {
		return Artifact{}, false, nil
	}
	if err != nil {
		return Artifact{}, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	var artifact Artifact
	if err := json.Unmarshal(raw, &artifact); err != nil {
		return Artifact{}, false, fmt.Errorf("decode active %s: %w", ruleType, err)
	}
	return artifact, true, nil
}

func (b *FSBackend) WriteActive(_ context.Context, artifact Artifact) error {
	raw, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return err
	}
	return b.atomicWrite(b.activePath(artifact.RuleType), raw)
}

func (b *FSBackend) WriteArchive(_ context.Context, entry ArchiveEntry, content string) (string, error) {
	path := b.archivePath(entry)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	entry.Location = path
	raw, err := json.MarshalIndent(archiveFile{ArchiveEntry: entry, Content: content}, "", "  ")
	if err != nil {
		return "", err
	}
	if err := b.atomicWrite(path, raw); err != nil {
		return "", err
	}
	return path, nil
}

func (b *FSBackend) ReadArchive(_ context.Context, entry ArchiveEntry) (string, error) {
	raw, err := os.ReadFile(entry.Location)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	var file archiveFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return "", fmt.Errorf("decode archive %s: %w", entry.Location, err)
	}
	return file.Content, nil
}

func (b *FSBackend) ListArchives(_ context.Context, ruleType string) ([]ArchiveEntry, error) {
	dir := filepath.Join(b.root, archiveDir, sanitizeName(ruleType))
	names, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	entries := make([]ArchiveEntry, 0, len(names))
	for _, name := range names {
		if name.IsDir() || !strings.HasSuffix(name.Name(), ".json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, name.Name()))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		var file archiveFile
		if err := json.Unmarshal(raw, &file); err != nil {
			return nil, fmt.Errorf("decode archive %s: %w", name.Name(), err)
		}
		entries = append(entries, file.ArchiveEntry)
	}
	return entries, nil
}

func (b *FSBackend) DeleteArchive(_ context.Context, entry ArchiveEntry) error {
	err := os.Remove(entry.Location)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (b *FSBackend) ListRuleTypes(_ context.Context) ([]string, error) {
	seen := map[string]bool{}
	actives, err := os.ReadDir(filepath.Join(b.root, activeDir))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	for _, f := range actives {
		if !f.IsDir() && strings.HasSuffix(f.Name(), ".json") {
			seen[strings.TrimSuffix(f.Name(), ".json")] = true
		}
	}
	archived, err := os.ReadDir(filepath.Join(b.root, archiveDir))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	for _, f := range archived {
		if f.IsDir() {
			seen[f.Name()] = true
		}
	}
	out := make([]string, 0, len(seen))
	for rt := range seen {
		out = append(out, rt)
	}
	sort.Strings(out)
	return out, nil
}

func (b *FSBackend) atomicWrite(path string, raw []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func sanitizeName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		valid := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '.'
		if valid {
			out = append(out, r)
		} else {
			out = append(out, '_')
		}
	}
	return string(out)
}
