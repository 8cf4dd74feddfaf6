// Package mocks holds gomock doubles for the gateway's collaborator
// interfaces. Regenerate after an interface changes:
//
//	go generate ./internal/mocks
package mocks

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=store_mock.go BrowserUse-Gateway/internal/job Store
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=producer_mock.go BrowserUse-Gateway/internal/job Producer
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=engine_mock.go BrowserUse-Gateway/internal/automation Engine
