// Package transportmock mocks the transport.Transport capability.
package transportmock

//go:generate go tool mockgen -package transportmock -destination ./transportmock.gen.go github.com/stratadb/strata/internal/transport Transport
