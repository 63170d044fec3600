// Package run wraps host command execution behind a small Runner interface
// so that git, systemctl, and pip invocations can be faked in tests.
package run
