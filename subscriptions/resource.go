package subscriptions

import (
	"net/url"
	"strings"
)

// CanonicalResource reduces the forms a resource can arrive in to one key:
// "https://github.com/Acme/API.git/", "github.com/acme/api" and "acme/api"
// all become "acme/api".
func CanonicalResource(resource string) string {
	value := strings.ToLower(strings.TrimSpace(resource))
	if value == "" {
		return ""
	}
	if strings.Contains(value, "://") {
		if parsed, err := url.Parse(value); err == nil && parsed.Host != "" {
			value = parsed.Host + parsed.Path
		}
	}
	if at := strings.Index(value, "@"); at >= 0 && strings.Contains(value[at:], ":") {
		// git@github.com:acme/api.git
		value = strings.Replace(value[at+1:], ":", "/", 1)
	}
	value = strings.Trim(value, "/")
	value = strings.TrimSuffix(value, ".git")
	value = strings.Trim(value, "/")

	segments := strings.Split(value, "/")
	if len(segments) > 1 && strings.Contains(segments[0], ".") {
		segments = segments[1:]
	}
	return strings.Join(segments, "/")
}

// matches reports whether a subscribed resource covers an event resource:
// equal canonical forms, or one being an owner/name suffix of the other.
func matches(subscribed string, event string) bool {
	if subscribed == "" || event == "" {
		return false
	}
	if subscribed == event {
		return true
	}
	return hasPathSuffix(subscribed, event) || hasPathSuffix(event, subscribed)
}

func hasPathSuffix(full string, suffix string) bool {
	if !strings.Contains(suffix, "/") {
		return false
	}
	return strings.HasSuffix(full, "/"+suffix)
}
