package main

import (
	"bytes"
	"testing"
)

// useBufferWriters redirects stdOut/stdErr to fresh buffers until the test ends
// and returns them for assertions on CLI output.
func useBufferWriters(t *testing.T) (out, errOut *bytes.Buffer) {
	t.Helper()

	out, errOut = &bytes.Buffer{}, &bytes.Buffer{}
	prevOut, prevErr := stdOut, stdErr
	stdOut, stdErr = out, errOut

	t.Cleanup(func() {
		stdOut, stdErr = prevOut, prevErr
	})
	return out, errOut
}
