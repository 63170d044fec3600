// Package migrate runs the schema/data migration entry point an instance
// ships, after configuration reconciliation and before the service
// restarts.
package migrate
