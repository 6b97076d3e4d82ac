// Package providers contains the shared OAuth2 token client used by the
// built-in platform packages.
package providers
