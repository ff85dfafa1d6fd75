// Package model defines the provider-agnostic chat model abstraction used by
// language engines.
//
// Core goals:
//   - Unify streaming and non-streaming generation behind a single interface
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Providers (OpenAI, Anthropic) live in sub-packages so engines stay
// decoupled from vendor SDKs.
package model
