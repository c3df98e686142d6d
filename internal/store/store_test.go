package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func newFSStore(t *testing.T) *Store {
	t.Helper()
	backend, err := NewFSBackend(t.TempDir())
	if err != nil {
		t.Fatalf("new fs backend: %v", err)
	}
	return New(backend)
}

func TestArchiveThenDeployKeepsOneEntryPerDeploy(t *testing.T) {
	s := newFSStore(t)
	ctx := context.Background()

	entry, artifact, err := s.ArchiveThenDeploy(ctx, "python-best-practices", "v1 content", "2025-01", ReasonScheduled)
	if err != nil {
		t.Fatalf("first deploy: %v", err)
	}
	if entry != nil {
		t.Fatalf("first deploy should not archive, got %+v", entry)
	}
	if artifact.Checksum != Checksum("v1 content") {
		t.Fatalf("checksum mismatch: %s", artifact.Checksum)
	}

	entry, _, err = s.ArchiveThenDeploy(ctx, "python-best-practices", "v2 content", "2025-07", ReasonScheduled)
	if err != nil {
		t.Fatalf("second deploy: %v", err)
	}
	if entry == nil || entry.Version != "2025-01" {
		t.Fatalf("expected archive of 2025-01, got %+v", entry)
	}

	history, err := s.History(ctx, "python-best-practices")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected one archive entry, got %d", len(history))
	}
	if history[0].Reason != ReasonScheduled {
		t.Fatalf("unexpected reason %s", history[0].Reason)
	}

	active, ok, err := s.Active(ctx, "python-best-practices")
	if err != nil || !ok {
		t.Fatalf("active read failed: ok=%v err=%v", ok, err)
	}
	if active.Version != "2025-07" || active.Content != "v2 content" {
		t.Fatalf("unexpected active artifact %+v", active)
	}
}

func TestRollbackRestoresArchivedVersion(t *testing.T) {
	s := newFSStore(t)
	ctx := context.Background()

	mustDeploy(t, s, "java-best-practices", "old content", "2024-07")
	mustDeploy(t, s, "java-best-practices", "new content", "2025-01")

	artifact, err := s.Rollback(ctx, "java-best-practices", "2024-07")
	if err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if artifact.Content != "old content" || artifact.Version != "2024-07" {
		t.Fatalf("unexpected rollback artifact %+v", artifact)
	}

	history, err := s.History(ctx, "java-best-practices")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected two archive entries, got %d", len(history))
	}
	if history[0].Reason != ReasonManualRollback || history[0].Version != "2025-01" {
		t.Fatalf("expected newest entry to archive 2025-01 under manual-rollback, got %+v", history[0])
	}
}

func TestRollbackUnknownVersionLeavesActiveUnchanged(t *testing.T) {
	s := newFSStore(t)
	ctx := context.Background()
	mustDeploy(t, s, "java-best-practices", "content", "2025-01")

	_, err := s.Rollback(ctx, "java-best-practices", "2024-07")
	if !errors.Is(err, ErrVersionNotFound) {
		t.Fatalf("expected ErrVersionNotFound, got %v", err)
	}
	active, ok, err := s.Active(ctx, "java-best-practices")
	if err != nil || !ok {
		t.Fatalf("active read failed: ok=%v err=%v", ok, err)
	}
	if active.Version != "2025-01" {
		t.Fatalf("active changed after failed rollback: %+v", active)
	}
	history, _ := s.History(ctx, "java-best-practices")
	if len(history) != 0 {
		t.Fatalf("failed rollback must not archive, got %d entries", len(history))
	}
}

func TestCleanupOlderThanIsIdempotentAndSparesActive(t *testing.T) {
	s := newFSStore(t)
	ctx := context.Background()
	mustDeploy(t, s, "git-best-practices", "v1", "2024-01")
	mustDeploy(t, s, "git-best-practices", "v2", "2024-07")
	mustDeploy(t, s, "git-best-practices", "v3", "2025-01")

	removed, err := s.CleanupOlderThan(ctx, 0)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	removed, err = s.CleanupOlderThan(ctx, 0)
	if err != nil {
		t.Fatalf("second cleanup: %v", err)
	}
	if removed != 0 {
		t.Fatalf("cleanup must be idempotent, removed %d", removed)
	}
	if _, ok, _ := s.Active(ctx, "git-best-practices"); !ok {
		t.Fatalf("cleanup removed the active artifact")
	}
}

func TestConcurrentDeploysSerializePerRuleType(t *testing.T) {
	s := newFSStore(t)
	ctx := context.Background()
	mustDeploy(t, s, "docker-best-practices", "base", "2024-01")

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			version := fmt.Sprintf("2025-0%d", n+1)
			if _, _, err := s.ArchiveThenDeploy(ctx, "docker-best-practices", "content "+version, version, ReasonScheduled); err != nil {
				t.Errorf("deploy %s: %v", version, err)
			}
		}(i)
	}
	wg.Wait()

	history, err := s.History(ctx, "docker-best-practices")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 archive entries after racing deploys, got %d", len(history))
	}
	active, ok, err := s.Active(ctx, "docker-best-practices")
	if err != nil || !ok {
		t.Fatalf("active read failed: ok=%v err=%v", ok, err)
	}
	if active.Checksum != Checksum(active.Content) {
		t.Fatalf("active checksum does not match content")
	}
}

func TestArchiveFailureAbortsDeploy(t *testing.T) {
	backend := &flakyBackend{FSBackend: mustBackend(t), failArchive: true}
	s := New(backend)
	ctx := context.Background()
	mustDeploy(t, s, "react-best-practices", "v1", "2024-07")

	_, _, err := s.ArchiveThenDeploy(ctx, "react-best-practices", "v2", "2025-01", ReasonScheduled)
	if !errors.Is(err, ErrArchiveFailed) {
		t.Fatalf("expected ErrArchiveFailed, got %v", err)
	}
	active, ok, _ := s.Active(ctx, "react-best-practices")
	if !ok || active.Version != "2024-07" {
		t.Fatalf("deploy must not run after archive failure, active=%+v", active)
	}
}

func mustBackend(t *testing.T) *FSBackend {
	t.Helper()
	backend, err := NewFSBackend(t.TempDir())
	if err != nil {
		t.Fatalf("new fs backend: %v", err)
	}
	return backend
}

func mustDeploy(t *testing.T, s *Store, ruleType, content, version string) {
	t.Helper()
	if _, _, err := s.ArchiveThenDeploy(context.Background(), ruleType, content, version, ReasonScheduled); err != nil {
		t.Fatalf("deploy %s %s: %v", ruleType, version, err)
	}
	// Distinct ArchivedAt nanos keep archive filenames unique in tests.
	time.Sleep(time.Millisecond)
}

type flakyBackend struct {
	*FSBackend
	failArchive bool
}

func (f *flakyBackend) WriteArchive(ctx context.Context, entry ArchiveEntry, content string) (string, error) {
	if f.failArchive {
		return "", errors.New("archive medium offline")
	}
	return f.FSBackend.WriteArchive(ctx, entry, content)
}
