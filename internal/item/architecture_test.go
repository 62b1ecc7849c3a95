package item

import (
	"testing"

	"itemcore/testutil"
)

func TestItemCoreStaysTransportFree(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.AdapterImportForbidden, "item core must not reach adapters or backends")
	testutil.AssertNoDirectImports(t, ".", testutil.TransportImportForbidden, "item core is transport agnostic")
}

func TestItemCoreDependencyClosure(t *testing.T) {
	if testing.Short() {
		t.Skip("runs go list")
	}
	testutil.AssertNoTransitiveDependency(t, ".", testutil.TransportImportForbidden, "item core must not pull in HTTP or websocket stacks")
}
