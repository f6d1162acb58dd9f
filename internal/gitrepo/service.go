// Package gitrepo mirrors submitted drafts into per-product git
// repositories. main holds the published product.json; each draft gets a
// drafts/<draftID> branch.
package gitrepo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"modelcards/api/internal/fieldpath"
)

const (
	MainBranch  = "main"
	productFile = "product.json"
	emailDomain = "modelcards.local"
)

type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// DraftBranch names the branch a draft is mirrored to.
func DraftBranch(draftID string) string {
	return "drafts/" + draftID
}

// EnsureProductRepo initializes the repository for productID with baseline
// on main. An existing repository is left as is.
func (s *Service) EnsureProductRepo(productID string, baseline fieldpath.Record, author string) error {
	lock := s.productLock(productID)
	lock.Lock()
	defer lock.Unlock()

	path := s.repoPath(productID)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat repo path: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create repo dir: %w", err)
	}
	repo, err := git.PlainInit(path, false)
	if err != nil {
		return fmt.Errorf("init repo: %w", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	if err := writeRecord(path, baseline); err != nil {
		return err
	}
	if _, err := worktree.Add(productFile); err != nil {
		return fmt.Errorf("git add baseline: %w", err)
	}
	hash, err := worktree.Commit("Import product baseline", &git.CommitOptions{Author: signature(author)})
	if err != nil {
		return fmt.Errorf("commit baseline: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName(MainBranch), hash)); err != nil {
		return fmt.Errorf("set main branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(MainBranch))); err != nil {
		return fmt.Errorf("set HEAD to main: %w", err)
	}
	return nil
}

// MirrorDraft commits data to the draft's branch, creating the branch from
// main on first use.
func (s *Service) MirrorDraft(productID, draftID string, data fieldpath.Record, author, message string) (CommitInfo, error) {
	lock := s.productLock(productID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(productID))
	if err != nil {
		return CommitInfo{}, fmt.Errorf("open repo: %w", err)
	}
	branch := DraftBranch(draftID)
	if err := ensureBranch(repo, branch, MainBranch); err != nil {
		return CommitInfo{}, err
	}
	hash, err := commitRecord(repo, branch, data, author, message)
	if err != nil {
		return CommitInfo{}, err
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return CommitInfo{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(commitObj), nil
}

func (s *Service) GetHeadRecord(productID, branchName string) (fieldpath.Record, CommitInfo, error) {
	lock := s.productLock(productID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(productID))
	if err != nil {
		return nil, CommitInfo{}, fmt.Errorf("open repo: %w", err)
	}
	commitObj, err := headCommit(repo, branchName)
	if err != nil {
		return nil, CommitInfo{}, err
	}
	rec, err := readRecordFromCommit(commitObj)
	if err != nil {
		return nil, CommitInfo{}, err
	}
	return rec, toCommitInfo(commitObj), nil
}

// ChangedFields diffs a branch head against main.
func (s *Service) ChangedFields(productID, branchName string) ([]string, error) {
	base, _, err := s.GetHeadRecord(productID, MainBranch)
	if err != nil {
		return nil, err
	}
	head, _, err := s.GetHeadRecord(productID, branchName)
	if err != nil {
		return nil, err
	}
	return fieldpath.Diff(base, head), nil
}

func (s *Service) History(productID, branchName string, limit int) ([]CommitInfo, error) {
	lock := s.productLock(productID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(productID))
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(branchName), true)
	if err != nil {
		return nil, fmt.Errorf("resolve branch %s: %w", branchName, err)
	}
	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]CommitInfo, 0)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
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

func (s *Service) repoPath(productID string) string {
	return filepath.Join(s.baseDir, productID)
}

func (s *Service) productLock(productID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[productID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[productID] = lock
	return lock
}

func ensureBranch(repo *git.Repository, branchName, fromBranch string) error {
	branchRef := plumbing.NewBranchReferenceName(branchName)
	if _, err := repo.Reference(branchRef, true); err == nil {
		return nil
	}
	fromRef, err := repo.Reference(plumbing.NewBranchReferenceName(fromBranch), true)
	if err != nil {
		return fmt.Errorf("read source branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(branchRef, fromRef.Hash())); err != nil {
		return fmt.Errorf("create branch ref: %w", err)
	}
	return nil
}

func commitRecord(repo *git.Repository, branchName string, data fieldpath.Record, author, message string) (plumbing.Hash, error) {
	worktree, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("open worktree: %w", err)
	}
	if err := worktree.Checkout(&git.CheckoutOptions{Branch: plumbing.NewBranchReferenceName(branchName), Force: true}); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("checkout branch %s: %w", branchName, err)
	}
	if err := writeRecord(worktree.Filesystem.Root(), data); err != nil {
		return plumbing.ZeroHash, err
	}
	if _, err := worktree.Add(productFile); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("git add product: %w", err)
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author:            signature(author),
	})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("commit product: %w", err)
	}
	return hash, nil
}

func writeRecord(root string, data fieldpath.Record) error {
	if data == nil {
		data = fieldpath.Record{}
	}
	payload, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal product: %w", err)
	}
	if err := os.WriteFile(filepath.Join(root, productFile), append(payload, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", productFile, err)
	}
	return nil
}

func headCommit(repo *git.Repository, branchName string) (*object.Commit, error) {
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(branchName), true)
	if err != nil {
		return nil, fmt.Errorf("resolve branch %s: %w", branchName, err)
	}
	commitObj, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("load commit object: %w", err)
	}
	return commitObj, nil
}

func readRecordFromCommit(commitObj *object.Commit) (fieldpath.Record, error) {
	file, err := commitObj.File(productFile)
	if err != nil {
		return nil, fmt.Errorf("load %s from commit: %w", productFile, err)
	}
	reader, err := file.Reader()
	if err != nil {
		return nil, fmt.Errorf("open product reader: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read product bytes: %w", err)
	}
	var rec fieldpath.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode commit product: %w", err)
	}
	return rec, nil
}

func toCommitInfo(commitObj *object.Commit) CommitInfo {
	return CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func signature(author string) *object.Signature {
	return &object.Signature{
		Name:  author,
		Email: fmt.Sprintf("%s@%s", sanitizeEmail(author), emailDomain),
		When:  time.Now(),
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}
