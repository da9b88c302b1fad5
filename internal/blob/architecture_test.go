package blob

import (
	"testing"

	"mdtcore/testutil"
)

// Only this package may wrap the drivers; everything else depends on Store.
func TestOnlyBlobPackageImportsInfra(t *testing.T) {
	testutil.AssertOnlyImportedBy(t, testutil.Module+"/internal/infra/blob", testutil.Module+"/internal/blob")
}
