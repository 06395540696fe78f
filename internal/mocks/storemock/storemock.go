// Package storemock mocks the store.Store capability.
package storemock

//go:generate go tool mockgen -package storemock -destination ./storemock.gen.go github.com/stratadb/strata/internal/store Store
