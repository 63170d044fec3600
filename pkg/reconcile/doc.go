/*
Package reconcile decides whether an instance's env file survives an
update untouched or is regenerated from the new template.

# Decision

The template shipped with the code carries a schema-version marker
(ENV_CONFIG_VERSION by default). Reconciliation compares the marker in the
pre-update template backup against the freshly-synced one:

  - unchanged: the live env file is left byte-for-byte alone. This is the
    common case; most updates are code-only.
  - changed: the env file is rebuilt by starting from the new template and
    overlaying every key from the backed-up configuration, except an
    exclusion set that must always take the template's default (the
    version marker itself and packaged data-store locations). Keys the
    operator added that the template does not know are appended verbatim.

When neither template carries a marker the comparison falls back to a
content hash of the raw template bytes. A reformatted template therefore
triggers a refresh; the overlay makes that refresh value-preserving, so
the cost of a false positive is formatting churn, not data loss.

Two guard rails make the refresh safe: a missing template is a warning and
a no-op, and a missing backup of the prior configuration is a warning and
a no-op. The reconciler never regenerates over a file it cannot recover.

# Data file provisioning

A refreshed template may introduce a location-style key (DATABASE_URL and
friends) pointing at a file that does not exist yet. EnsureDataFiles
creates empty placeholders with parent directories so the application does
not fail its first open after the update. The step is idempotent and never
touches existing files.
*/
package reconcile
