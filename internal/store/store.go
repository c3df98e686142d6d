package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrArchiveFailed    = errors.New("archive failed")
	ErrVersionNotFound  = errors.New("version not found")
)

const (
	ReasonScheduled      = "scheduled"
	ReasonEmergency      = "emergency"
	ReasonManualRollback = "manual-rollback"
)

type Artifact struct {
	RuleType   string    `json:"rule_type"`
	Version    string    `json:"version"`
	Content    string    `json:"content"`
	Checksum   string    `json:"checksum"`
	DeployedAt time.Time `json:"deployed_at"`
}

type ArchiveEntry struct {
	RuleType   string    `json:"rule_type"`
	Version    string    `json:"version"`
	ArchivedAt time.Time `json:"archived_at"`
	Location   string    `json:"location"`
	Reason     string    `json:"reason"`
}

// Backend is the durable medium underneath the store. Implementations
// must make WriteActive atomic (write-new-then-rename or equivalent) so
// a concurrent reader never observes a half-written artifact.
type Backend interface {
	ReadActive(ctx context.Context, ruleType string) (Artifact, bool, error)
	WriteActive(ctx context.Context, artifact Artifact) error
	WriteArchive(ctx context.Context, entry ArchiveEntry, content string) (string, error)
	ReadArchive(ctx context.Context, entry ArchiveEntry) (string, error)
	ListArchives(ctx context.Context, ruleType string) ([]ArchiveEntry, error)
	DeleteArchive(ctx context.Context, entry ArchiveEntry) error
	ListRuleTypes(ctx context.Context) ([]string, error)
}

// Store layers the archive-before-deploy ordering and per-ruleType
// serialization on top of a Backend.
type Store struct {
	backend Backend

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(backend Backend) *Store {
	return &Store{backend: backend, locks: make(map[string]*sync.Mutex)}
}

// Lock returns the mutual-exclusion token for a ruleType. Callers that
// need to hold the token across more than one store call (the job
// runner does, around deploy plus publish) lock it themselves; the
// store's own operations take it internally.
func (s *Store) Lock(ruleType string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[ruleType]
	if !ok {
		l = &sync.Mutex{}
		s.locks[ruleType] = l
	}
	return l
}

func Checksum(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func (s *Store) Active(ctx context.Context, ruleType string) (Artifact, bool, error) {
	return s.backend.ReadActive(ctx, ruleType)
}

// ArchiveThenDeploy retires the current active artifact for ruleType
// into an archive entry (reason taken from the caller), then deploys
// newContent as the new active artifact. If archiving fails the deploy
// does not run. The returned entry is nil on a first deploy.
func (s *Store) ArchiveThenDeploy(ctx context.Context, ruleType, newContent, version, reason string) (*ArchiveEntry, Artifact, error) {
	lock := s.Lock(ruleType)
	lock.Lock()
	defer lock.Unlock()
	return s.archiveThenDeployLocked(ctx, ruleType, newContent, version, reason)
}

// ArchiveThenDeployLocked is ArchiveThenDeploy for callers that already
// hold the ruleType token from Lock.
func (s *Store) ArchiveThenDeployLocked(ctx context.Context, ruleType, newContent, version, reason string) (*ArchiveEntry, Artifact, error) {
	return s.archiveThenDeployLocked(ctx, ruleType, newContent, version, reason)
}

func (s *Store) archiveThenDeployLocked(ctx context.Context, ruleType, newContent, version, reason string) (*ArchiveEntry, Artifact, error) {
	current, exists, err := s.backend.ReadActive(ctx, ruleType)
	if err != nil {
		return nil, Artifact{}, fmt.Errorf("read active %s: %w", ruleType, err)
	}
	var archived *ArchiveEntry
	if exists {
		entry := ArchiveEntry{
			RuleType:   ruleType,
			Version:    current.Version,
			ArchivedAt: time.Now().UTC(),
			Reason:     reason,
		}
		location, err := s.backend.WriteArchive(ctx, entry, current.Content)
		if err != nil {
			return nil, Artifact{}, fmt.Errorf("%w: %s %s: %v", ErrArchiveFailed, ruleType, current.Version, err)
		}
		entry.Location = location
		archived = &entry
	}
	artifact := Artifact{
		RuleType:   ruleType,
		Version:    version,
		Content:    newContent,
		Checksum:   Checksum(newContent),
		DeployedAt: time.Now().UTC(),
	}
	if err := s.backend.WriteActive(ctx, artifact); err != nil {
		return archived, Artifact{}, fmt.Errorf("deploy %s %s: %w", ruleType, version, err)
	}
	return archived, artifact, nil
}

// Rollback restores an archived version as the active artifact. The
// current active artifact is archived first under manual-rollback, so
// the rollback itself stays reversible.
func (s *Store) Rollback(ctx context.Context, ruleType, targetVersion string) (Artifact, error) {
	lock := s.Lock(ruleType)
	lock.Lock()
	defer lock.Unlock()

	entries, err := s.backend.ListArchives(ctx, ruleType)
	if err != nil {
		return Artifact{}, fmt.Errorf("list archives %s: %w", ruleType, err)
	}
	sortEntries(entries)
	var target *ArchiveEntry
	for i := range entries {
		if entries[i].Version == targetVersion {
			target = &entries[i]
			break
		}
	}
	if target == nil {
		return Artifact{}, fmt.Errorf("%w: %s %s", ErrVersionNotFound, ruleType, targetVersion)
	}
	content, err := s.backend.ReadArchive(ctx, *target)
	if err != nil {
		return Artifact{}, fmt.Errorf("read archive %s %s: %w", ruleType, targetVersion, err)
	}
	_, artifact, err := s.archiveThenDeployLocked(ctx, ruleType, content, targetVersion, ReasonManualRollback)
	return artifact, err
}

// History returns the archive entries for ruleType, most recent first.
func (s *Store) History(ctx context.Context, ruleType string) ([]ArchiveEntry, error) {
	entries, err := s.backend.ListArchives(ctx, ruleType)
	if err != nil {
		return nil, err
	}
	sortEntries(entries)
	return entries, nil
}

// CleanupOlderThan removes archive entries older than retention across
// all rule types. Idempotent; the active artifact is never touched.
func (s *Store) CleanupOlderThan(ctx context.Context, retention time.Duration) (int, error) {
	ruleTypes, err := s.backend.ListRuleTypes(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().UTC().Add(-retention)
	removed := 0
	for _, rt := range ruleTypes {
		lock := s.Lock(rt)
		lock.Lock()
		entries, err := s.backend.ListArchives(ctx, rt)
		if err != nil {
			lock.Unlock()
			return removed, err
		}
		for _, entry := range entries {
			if entry.ArchivedAt.After(cutoff) {
				continue
			}
			if err := s.backend.DeleteArchive(ctx, entry); err != nil {
				lock.Unlock()
				return removed, err
			}
			removed++
		}
		lock.Unlock()
	}
	return removed, nil
}

func sortEntries(entries []ArchiveEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].ArchivedAt.Equal(entries[j].ArchivedAt) {
			return entries[i].ArchivedAt.After(entries[j].ArchivedAt)
		}
		return entries[i].Location > entries[j].Location
	})
}
