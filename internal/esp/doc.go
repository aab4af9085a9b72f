// Package esp defines the uniform contract every transactional-email
// provider adapter satisfies, together with the provider-independent pieces
// built on top of it: the page walker, the analytics fetcher and the shared
// event normalization helpers.
//
// The rest of the product only ever talks to an Adapter. Provider variants
// (postmark, mailgun, sparkpost, ses) live in their own packages and are
// selected by configuration at startup.
package esp
