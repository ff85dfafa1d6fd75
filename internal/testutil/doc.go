// Package testutil contains test doubles shared across package tests:
// scripted engines that record lifecycle calls and execute commands, and an
// event recorder that captures everything emitted on a pattern. They are not
// intended for production usage.
package testutil
