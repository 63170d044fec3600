/*
Package gitsync advances an instance's git working copy to the tip of the
remote default branch.

The synchronizer operates on an explicit Repo handle carrying the checkout
path; it never changes the process working directory. Branch resolution is
a fallback chain (remote HEAD pointer, then a probe list, then a hardcoded
default), the update itself is fast-forward-only, and only when history has
diverged does it fall back to a hard reset, logged as a destructive-action
warning.
*/
package gitsync
