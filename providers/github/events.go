package github

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers"
)

// Extractors is the event table for GitHub deliveries keyed by X-GitHub-Event.
func Extractors() map[string]core.EventExtractor {
	return map[string]core.EventExtractor{
		"push":         extractPush,
		"release":      extractRelease,
		"repository":   extractRepository,
		"star":         extractStar,
		"issues":       extractIssues,
		"pull_request": extractPullRequest,
		"ping":         extractPing,
	}
}

func extractPush(payload core.Payload) (core.EventDraft, error) {
	repo, err := providers.RequireString(ProviderID, "push", payload, "repository", "full_name")
	if err != nil {
		return core.EventDraft{}, err
	}
	commits := payload.Objects("commits")
	count := len(commits)
	branch := providers.BranchFromRef(payload.String("ref"))
	pusher := providers.FirstNonEmpty(payload.String("pusher", "name"), payload.String("sender", "login"), "someone")

	messages := make([]string, 0, len(commits))
	for _, commit := range commits {
		if message := commit.String("message"); message != "" {
			messages = append(messages, firstLine(message))
		}
	}
	draft := core.EventDraft{
		Action:   "pushed",
		Resource: repo,
		Summary:  fmt.Sprintf("%s pushed %s to %s in %s", pusher, providers.Plural(count, "commit"), branch, repo),
		Details: map[string]any{
			"ref":      payload.String("ref"),
			"branch":   branch,
			"commits":  count,
			"pusher":   pusher,
			"compare":  payload.String("compare"),
			"forced":   payload.Bool("forced"),
			"messages": messages,
		},
		Priority: core.PriorityForChanges(count),
	}
	if at, ok := payload.Time("head_commit", "timestamp"); ok {
		draft.OccurredAt = at
	}
	return draft, nil
}

func extractRelease(payload core.Payload) (core.EventDraft, error) {
	repo, err := providers.RequireString(ProviderID, "release", payload, "repository", "full_name")
	if err != nil {
		return core.EventDraft{}, err
	}
	action := providers.FirstNonEmpty(payload.String("action"), "published")
	tag := providers.FirstNonEmpty(payload.String("release", "tag_name"), payload.String("release", "name"), "untagged")

	draft := core.EventDraft{
		Action:   action,
		Resource: repo,
		Summary:  fmt.Sprintf("Release %s %s in %s", tag, action, repo),
		Details: map[string]any{
			"tag":        tag,
			"name":       payload.String("release", "name"),
			"url":        payload.String("release", "html_url"),
			"prerelease": payload.Bool("release", "prerelease"),
		},
		Priority: core.PriorityHigh,
	}
	if at, ok := payload.Time("release", "published_at"); ok {
		draft.OccurredAt = at
	}
	return draft, nil
}

func extractRepository(payload core.Payload) (core.EventDraft, error) {
	repo, err := providers.RequireString(ProviderID, "repository", payload, "repository", "full_name")
	if err != nil {
		return core.EventDraft{}, err
	}
	action := providers.FirstNonEmpty(payload.String("action"), "updated")
	priority := core.PriorityLow
	switch action {
	case "deleted", "archived", "transferred":
		priority = core.PriorityMedium
	}
	return core.EventDraft{
		Action:   action,
		Resource: repo,
		Summary:  fmt.Sprintf("Repository %s was %s", repo, action),
		Details: map[string]any{
			"visibility":    payload.String("repository", "visibility"),
			"defaultBranch": payload.String("repository", "default_branch"),
			"metadataOnly":  priority == core.PriorityLow,
		},
		Priority: priority,
	}, nil
}

func extractStar(payload core.Payload) (core.EventDraft, error) {
	repo, err := providers.RequireString(ProviderID, "star", payload, "repository", "full_name")
	if err != nil {
		return core.EventDraft{}, err
	}
	action := providers.FirstNonEmpty(payload.String("action"), "created")
	sender := providers.FirstNonEmpty(payload.String("sender", "login"), "someone")
	verb := "starred"
	if action == "deleted" {
		verb = "unstarred"
	}
	return core.EventDraft{
		Action:   action,
		Resource: repo,
		Summary:  fmt.Sprintf("%s %s %s", sender, verb, repo),
		Details: map[string]any{
			"stars":        payload.Int("repository", "stargazers_count"),
			"metadataOnly": true,
		},
		Priority: core.PriorityLow,
	}, nil
}

func extractIssues(payload core.Payload) (core.EventDraft, error) {
	repo, err := providers.RequireString(ProviderID, "issues", payload, "repository", "full_name")
	if err != nil {
		return core.EventDraft{}, err
	}
	action := providers.FirstNonEmpty(payload.String("action"), "updated")
	number := payload.Int("issue", "number")
	priority := core.PriorityLow
	if action == "opened" || action == "reopened" {
		priority = core.PriorityMedium
	}
	return core.EventDraft{
		Action:   action,
		Resource: repo,
		Summary:  fmt.Sprintf("Issue #%d %s in %s: %s", number, action, repo, payload.String("issue", "title")),
		Details: map[string]any{
			"number": number,
			"title":  payload.String("issue", "title"),
			"url":    payload.String("issue", "html_url"),
			"author": payload.String("issue", "user", "login"),
		},
		Priority: priority,
	}, nil
}

func extractPullRequest(payload core.Payload) (core.EventDraft, error) {
	repo, err := providers.RequireString(ProviderID, "pull_request", payload, "repository", "full_name")
	if err != nil {
		return core.EventDraft{}, err
	}
	action := providers.FirstNonEmpty(payload.String("action"), "updated")
	merged := payload.Bool("pull_request", "merged")
	if action == "closed" && merged {
		action = "merged"
	}
	commits := int(payload.Int("pull_request", "commits"))
	priority := core.PriorityForChanges(commits)
	if merged {
		priority = core.PriorityHigh
	}
	number := payload.Int("pull_request", "number")
	return core.EventDraft{
		Action:   action,
		Resource: repo,
		Summary:  fmt.Sprintf("Pull request #%d %s in %s: %s", number, action, repo, payload.String("pull_request", "title")),
		Details: map[string]any{
			"number":       number,
			"title":        payload.String("pull_request", "title"),
			"url":          payload.String("pull_request", "html_url"),
			"commits":      commits,
			"changedFiles": payload.Int("pull_request", "changed_files"),
			"merged":       merged,
		},
		Priority: priority,
	}, nil
}

func extractPing(payload core.Payload) (core.EventDraft, error) {
	resource := providers.FirstNonEmpty(
		payload.String("repository", "full_name"),
		payload.String("organization", "login"),
		fmt.Sprintf("hook/%d", payload.Int("hook_id")),
	)
	return core.EventDraft{
		Action:   "ping",
		Resource: resource,
		Summary:  "Webhook ping: " + providers.FirstNonEmpty(payload.String("zen"), "configured"),
		Details:  map[string]any{"hookId": payload.Int("hook_id")},
		Priority: core.PriorityLow,
	}, nil
}

func firstLine(message string) string {
	if index := strings.IndexByte(message, '\n'); index >= 0 {
		return strings.TrimSpace(message[:index])
	}
	return strings.TrimSpace(message)
}
