// Package history keeps a git-backed change log of initiative
// snapshots, one repository per program, one JSON file per initiative,
// one commit per mutation.
package history

import (
	"crypto/sha1"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Snapshot is the recorded state of an initiative at one mutation.
type Snapshot struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	ImageURL      string   `json:"imageUrl"`
	ModesOfAction []string `json:"modesOfAction"`
	Metrics       any      `json:"metrics"`
}

// CommitInfo describes one entry in an initiative's change log.
type CommitInfo struct {
	Hash       string    `json:"hash"`
	Message    string    `json:"message"`
	Author     string    `json:"author"`
	RecordedAt time.Time `json:"recordedAt"`
}

const (
	authorName  = "impactboard-api"
	authorEmail = "impactboard@localhost"
)

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[int64]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[int64]*sync.Mutex),
	}
}

// RecordSnapshot writes the snapshot file for an initiative and commits it.
func (s *Service) RecordSnapshot(programID int64, initiativeName string, snapshot Snapshot, message string) error {
	lock := s.programLock(programID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.ensureRepo(programID)
	if err != nil {
		return err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}

	payload, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	file := snapshotFile(initiativeName)
	path := filepath.Join(worktree.Filesystem.Root(), file)
	if err := os.WriteFile(path, append(payload, '\n'), 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if _, err := worktree.Add(file); err != nil {
		return fmt.Errorf("git add snapshot: %w", err)
	}
	return s.commit(worktree, message)
}

// RecordRemoval removes the snapshot file and commits the deletion.
// A program without a history repo, or an initiative without a
// snapshot, is not an error.
func (s *Service) RecordRemoval(programID int64, initiativeName, message string) error {
	lock := s.programLock(programID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(programID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open history repo: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}

	file := snapshotFile(initiativeName)
	if _, err := os.Stat(filepath.Join(worktree.Filesystem.Root(), file)); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if _, err := worktree.Remove(file); err != nil {
		return fmt.Errorf("git remove snapshot: %w", err)
	}
	return s.commit(worktree, message)
}

// History lists the commits that touched an initiative's snapshot,
// newest first.
func (s *Service) History(programID int64, initiativeName string, limit int) ([]CommitInfo, error) {
	lock := s.programLock(programID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(programID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return []CommitInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open history repo: %w", err)
	}

	head, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return []CommitInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve head: %w", err)
	}

	file := snapshotFile(initiativeName)
	iter, err := repo.Log(&git.LogOptions{From: head.Hash(), FileName: &file})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]CommitInfo, 0, limit)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, CommitInfo{
			Hash:       commitObj.Hash.String(),
			Message:    strings.TrimSpace(commitObj.Message),
			Author:     commitObj.Author.Name,
			RecordedAt: commitObj.Author.When,
		})
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

func (s *Service) ensureRepo(programID int64) (*git.Repository, error) {
	path := s.repoPath(programID)
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open history repo: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	repo, err = git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init history repo: %w", err)
	}
	return repo, nil
}

func (s *Service) commit(worktree *git.Worktree, message string) error {
	_, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  authorName,
			Email: authorEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

func (s *Service) repoPath(programID int64) string {
	return filepath.Join(s.baseDir, fmt.Sprintf("program-%d", programID))
}

// programLock returns the mutex guarding one program's repository.
// Entries are never evicted; the map is bounded by the programs seen
// since startup.
func (s *Service) programLock(programID int64) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[programID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[programID] = lock
	return lock
}

// snapshotFile derives a stable file name from an initiative name. The
// hash suffix keeps distinct names distinct after slugging.
func snapshotFile(initiativeName string) string {
	sum := sha1.Sum([]byte(initiativeName))
	return fmt.Sprintf("%s-%x.json", slug(initiativeName), sum[:4])
}

func slug(name string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			sb.WriteRune('-')
		}
	}
	out := strings.Trim(sb.String(), "-")
	if out == "" {
		out = "initiative"
	}
	if len(out) > 60 {
		out = out[:60]
	}
	return out
}
