// Package gist loads gists for the editor, either by GitHub gist id through
// the gist API or from a url serving jsGist JSON.
//
// A load that fails is retried once with credentials dropped, since an
// expired token makes even public gists fail. Loads go through a circuit
// breaker and successful results are cached in ristretto for CacheTTL.
package gist
