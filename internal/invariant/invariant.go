// Package invariant provides the single abort path for defects that must
// never happen in a correctly functioning process: an impossible state
// transition, destroying a resource with outstanding references, or
// finishing something no one owns. These are programmer errors, not
// recoverable runtime conditions, so they are not returned as errors.
package invariant

import (
	"os"

	"github.com/coregate/coregate/internal/logger"
)

// Violation logs msg at error level with args as structured fields and
// terminates the process. Call this only for conditions that indicate a
// logic defect in this process, never for conditions a caller could
// trigger through normal use (bad input, a closed peer connection, a
// backing-store error).
func Violation(msg string, args ...any) {
	logger.Error("invariant violation: "+msg, args...)
	os.Exit(1)
}
