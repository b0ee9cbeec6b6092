//go:build debug

package kernel

const forceChecks = true
