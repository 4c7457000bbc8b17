package luaforge

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"go.trai.ch/zerr"
)

// Hosts whose http(s) transport is known to support shallow fetches.
var shallowHTTPHosts = []string{
	"http://github.com/", "https://github.com/",
	"http://bitbucket.com/", "https://bitbucket.com/",
}

var gitVersionRe = regexp.MustCompile(`(\d+)\.(\d+)\.?(\d*)`)

// parseGitVersion extracts (major, minor, tiny) from `git --version` output.
func parseGitVersion(out string) ([3]int, bool) {
	m := gitVersionRe.FindStringSubmatch(out)
	if m == nil {
		return [3]int{}, false
	}
	var v [3]int
	for i := 0; i < 3; i++ {
		if m[i+1] == "" {
			continue
		}
		v[i], _ = strconv.Atoi(m[i+1])
	}
	return v, true
}

// branchAcceptsTags reports whether `git clone --branch` takes a tag, which
// git supports since 1.7.10.
func branchAcceptsTags(versionOutput string) bool {
	v, ok := parseGitVersion(versionOutput)
	if !ok {
		return false
	}
	want := [3]int{1, 7, 10}
	for i := range v {
		if v[i] != want[i] {
			return v[i] > want[i]
		}
	}
	return true
}

func isHex(s string) bool {
	for _, c := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return false
		}
	}
	return true
}

// CloneCommand picks how to clone repo for ref. It returns the git arguments
// (without repo and destination) and whether ref still has to be checked out.
// branchTags is only consulted when a shallow clone is possible.
func CloneCommand(repo, ref string, intoCache bool, branchTags func() bool) ([]string, bool) {
	full := []string{"git", "clone"}

	if intoCache {
		return full, true
	}

	// Dumb http transports do not understand --depth.
	if strings.HasPrefix(repo, "http://") || strings.HasPrefix(repo, "https://") {
		whitelisted := false
		for _, prefix := range shallowHTTPHosts {
			if strings.HasPrefix(repo, prefix) {
				whitelisted = true
				break
			}
		}
		if !whitelisted {
			return full, true
		}
	}

	// A shallow clone cannot reach an arbitrary commit.
	if isHex(ref) {
		return full, true
	}

	if branchTags() {
		return []string{"git", "clone", "--depth=1", "--branch=" + ref}, false
	}
	return []string{"git", "clone", "--depth=1"}, true
}

// gitBranchAcceptsTags queries the installed git once per run.
func (s *Sources) gitBranchAcceptsTags(ctx context.Context) bool {
	return remember(s.memo, "git:branch-tags", func() bool {
		out, err := s.runner.Query(ctx, "", "git", "--version")
		if err != nil {
			return false
		}
		return branchAcceptsTags(out)
	})
}

// stageGit makes ref of repo available locally and returns the checkout
// directory and whether it is the persistent cache checkout.
func (s *Sources) stageGit(ctx context.Context, v *Variant, repo, ref string) (string, bool, error) {
	message := "Cloning " + v.Title + " from " + repo + " @" + ref

	var repoPath string
	cached := repo == v.DefaultRepo && !s.opts.NoGitCache && s.opts.Downloads != ""
	if cached {
		if err := os.MkdirAll(s.opts.Downloads, 0o755); err != nil {
			return "", false, zerr.Wrap(err, "failed to create downloads directory")
		}
		repoPath = filepath.Join(s.opts.Downloads, v.Name)

		if s.memo.Exists(repoPath) {
			s.report.Step("%s (cached)", message)
			return repoPath, true, s.syncCachedRepo(ctx, repoPath, ref)
		}
	} else {
		repoPath = filepath.Join(s.scratch, v.Name)
	}

	s.report.Step("%s", message)
	args, needCheckout := CloneCommand(repo, ref, cached, func() bool {
		return s.gitBranchAcceptsTags(ctx)
	})
	args = append(args, repo, repoPath)
	if err := s.runner.Run(ctx, "", args...); err != nil {
		return "", false, err
	}
	if needCheckout && ref != defaultRef {
		if err := s.runner.Run(ctx, repoPath, "git", "checkout", ref); err != nil {
			return "", false, err
		}
	}
	return repoPath, cached, nil
}

// syncCachedRepo brings an existing cache checkout to ref, fetching when ref
// is unknown locally and rebasing when ref is a branch.
func (s *Sources) syncCachedRepo(ctx context.Context, repoPath, ref string) error {
	rev, err := s.runner.Query(ctx, repoPath, "git", "rev-parse", "--quiet", "--verify", ref)
	if err != nil {
		return err
	}
	if rev == "" {
		if err := s.runner.Run(ctx, repoPath, "git", "fetch"); err != nil {
			return err
		}
	}
	if err := s.runner.Run(ctx, repoPath, "git", "checkout", ref); err != nil {
		return err
	}

	head, err := s.runner.Query(ctx, repoPath, "git", "symbolic-ref", "-q", "HEAD")
	if err != nil {
		return err
	}
	if head != "" {
		return s.runner.Run(ctx, repoPath, "git", "pull", "--rebase")
	}
	return nil
}

// headCommit returns the full hash of HEAD in repoPath.
func (s *Sources) headCommit(ctx context.Context, repoPath string) (string, error) {
	commit, err := s.runner.Query(ctx, repoPath, "git", "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	if commit == "" {
		return "", zerr.With(zerr.Wrap(ErrNoCommit, "couldn't resolve HEAD in "+repoPath), "repo", repoPath)
	}
	return commit, nil
}
