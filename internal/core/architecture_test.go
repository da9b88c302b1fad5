package core

import (
	"testing"

	"mdtcore/testutil"
)

// The service works against domain.Engine and domain.SnapshotStore; drivers
// are chosen by the command layer.
func TestCoreDoesNotReachDrivers(t *testing.T) {
	testutil.AssertNoTransitiveDependency(t, testutil.Module+"/internal/core", testutil.InfraImportForbidden, "core must stay storage agnostic")
}
