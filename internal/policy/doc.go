// Package policy decides which discovered URLs a mirror follows.
//
// A Policy is consulted exactly once per distinct URL, by the request that
// claimed it. Its verdict is final for the session: a filtered URL is never
// re-admitted, even if it is later reached through a different parent.
//
// Design decision: Checks run from cheapest to most expensive:
//  1. Depth and asset-depth limits (integer comparisons)
//  2. Same-site check (host or registrable domain)
//  3. Ignore/follow path patterns
//  4. robots.txt (may need a network fetch, cached per host)
//  5. Page budget (last, because admitting a page consumes it)
//
// Seeds skip the first three checks; the user named them explicitly.
// Ignore patterns apply to every URL, follow patterns only to navigation,
// so a follow list of "/blog/*" still lets pages load their stylesheets.
package policy
