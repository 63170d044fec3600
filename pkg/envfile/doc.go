/*
Package envfile implements an ordered KEY=value configuration file model.

Instance configuration and its shipped template are line-oriented env files.
This package parses them into an ordered map that preserves comments, blank
lines, key order, and per-line formatting, so that a load/save round trip
with no mutations is byte-identical. That property is what makes the
configuration reconciler idempotent: re-running it against an unchanged
template rewrites nothing.

Values are stored as written, including any quoting; Unquote strips one
layer of matching quotes for comparisons such as the schema-version marker.
*/
package envfile
