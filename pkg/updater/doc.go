/*
Package updater orchestrates the update pipeline across the instance
fleet.

One instance's update is a fixed sequence: snapshot, stop the service if
it was running, advance the working copy, refresh Python dependencies,
reconcile the env file against the new template, run migrations, then
restore the prior run state. Batch mode walks the fleet sequentially
with a pause between instances; a failed instance is recorded and the
batch keeps going. Every attempt, successful or not, produces an
UpdateRecord for the history store and the Prometheus counters.
*/
package updater
