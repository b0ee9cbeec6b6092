//go:build !tinygo

package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunReportsEveryCase(t *testing.T) {
	var out bytes.Buffer
	failed, err := run(context.Background(), &out, "^events/", "warning")
	require.NoError(t, err)
	if failed != 0 {
		t.Fatalf("expected no failures, got %d:\n%s", failed, out.String())
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if got := lines[len(lines)-1]; got != "ok (6 cases)" {
		t.Fatalf("expected summary %q, got %q", "ok (6 cases)", got)
	}
}

func TestRunRejectsBadInput(t *testing.T) {
	var out bytes.Buffer
	_, err := run(context.Background(), &out, "(", "warning")
	require.Error(t, err)
	_, err = run(context.Background(), &out, "", "loud")
	require.Error(t, err)
	_, err = run(context.Background(), &out, "^nothing$", "warning")
	require.Error(t, err)
}
