package brokertrace

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStartFlow_WithNilTracerIsNoOp(t *testing.T) {
	t.Parallel()

	tr := New(nil)
	_, end := tr.StartFlow(context.Background(), "client_credentials", "exchange")
	assert.NotPanics(t, func() { end(nil) })
}

func TestStartFlow_RecordsErrorWithoutPanicking(t *testing.T) {
	t.Parallel()

	tr := New(nil)
	_, end := tr.StartFlow(context.Background(), "refresh_token", "exchange")
	assert.NotPanics(t, func() { end(errors.New("boom")) })
}
