package ports_test

import (
	"testing"

	"github.com/target/ledger-console/internal/mocks"
	fakes "github.com/target/ledger-console/internal/mocks/auth"
	"github.com/target/ledger-console/internal/ports"
)

// This test only verifies that our mocks conform to the ports at compile time.
func TestMocksImplementPorts(t *testing.T) {
	t.Helper()

	var _ ports.AuthBackend = (*mocks.MockAuthBackend)(nil)
	var _ ports.TokenStore = (*mocks.MockTokenStore)(nil)
	var _ ports.TokenVerifier = (*mocks.MockTokenVerifier)(nil)
	var _ ports.ActivitySink = (*mocks.MockActivitySink)(nil)

	var _ ports.AuthBackend = (*fakes.FakeAuthBackend)(nil)
	var _ ports.TokenStore = (*fakes.MemoryTokenStore)(nil)
	var _ ports.Clock = (*fakes.ManualClock)(nil)
}
