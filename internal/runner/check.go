// SPDX-License-Identifier: AGPL-3.0-or-later

package runner

import "context"

// Check is one unit of work in a cycle, typically one repository.
type Check interface {
	// ID returns the unique identifier, the repository ID.
	ID() string

	// Run performs the check. Failures are reported in the Result, not
	// as a separate error, so the runner can move on to the next check.
	Run(ctx context.Context) Result
}
