package git

import (
	"errors"
	"fmt"
	"sort"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// BuildData is the SCM metadata recorded for a workspace that was pulled
// rather than pushed to: the remote URLs it was fetched from and the branches
// checked out in it.
type BuildData struct {
	RemoteURLs []string `json:"remote_urls"`
	Branches   []Branch `json:"branches"`
}

// ReadBuildData opens the git repository at workspaceDir and collects its remote
// URLs and the branch HEAD points at.
//
// remotes are enumerated sorted by remote name so "the first remote" is stable
// across calls (go-git returns them in map order). only the first URL of each
// remote is taken. an unborn HEAD (repository with no commits) yields no branches
// instead of an error, which RemoteImageFromPull then reports as ErrNoBranches.
func ReadBuildData(workspaceDir string) (BuildData, error) {
	repository, err := gogit.PlainOpen(workspaceDir)
	if err != nil {
		return BuildData{}, fmt.Errorf("failed to open git repository at %q: %w", workspaceDir, err)
	}

	remotes, err := repository.Remotes()
	if err != nil {
		return BuildData{}, fmt.Errorf("failed to list remotes of %q: %w", workspaceDir, err)
	}

	sort.Slice(remotes, func(i, j int) bool {
		return remotes[i].Config().Name < remotes[j].Config().Name
	})

	var buildData BuildData
	for _, remote := range remotes {
		urls := remote.Config().URLs
		if len(urls) == 0 {
			continue
		}
		buildData.RemoteURLs = append(buildData.RemoteURLs, urls[0])
	}

	headReference, err := repository.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return buildData, nil
	}
	if err != nil {
		return BuildData{}, fmt.Errorf("failed to resolve HEAD of %q: %w", workspaceDir, err)
	}

	branch, err := ParseBranch(headReference.Name().String(), headReference.Hash().String())
	if err != nil {
		return BuildData{}, fmt.Errorf("HEAD of %q is not a usable branch: %w", workspaceDir, err)
	}
	buildData.Branches = append(buildData.Branches, branch)

	return buildData, nil
}
