// Package mocks provides mock implementations of the console's ports for tests.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the port interfaces.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	backend := mocks.NewMockAuthBackend(ctrl)
//	backend.EXPECT().Login(gomock.Any(), "ana@x.com", "secret1").Return(creds, nil)
package mocks

// Generate mocks for the session ports in internal/ports:
// ActivitySink (Record), ApprovalQueue (ListPending, Approve), AuthBackend (Login, Register, ResolveToken, Revoke),
// TokenStore (Load, Save, Delete), TokenVerifier (Verify).
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=ports_mock.go github.com/target/ledger-console/internal/ports ActivitySink,ApprovalQueue,AuthBackend,TokenStore,TokenVerifier
