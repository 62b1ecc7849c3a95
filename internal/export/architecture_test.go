package export

import (
	"testing"

	"itemcore/testutil"
)

func TestExportUsesBlobFacadeOnly(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.AdapterImportForbidden, "exports reach storage through internal/blob")
}
