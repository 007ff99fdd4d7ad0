package aocs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/aocs/internal/catalog"
	"github.com/hupe1980/aocs/internal/varblock"
)

func TestTranslateError(t *testing.T) {
	assert.NoError(t, translateError(nil))

	for _, tc := range []struct {
		in   error
		want error
	}{
		{fmt.Errorf("open: %w", catalog.ErrNotFound), ErrTableNotFound},
		{catalog.ErrInvalid, ErrInvalidArgument},
		{catalog.ErrCorrupt, ErrCorrupt},
		{fmt.Errorf("block 3: %w", varblock.ErrFormat), ErrCorrupt},
	} {
		got := translateError(tc.in)
		assert.ErrorIs(t, got, tc.want)
		assert.ErrorIs(t, got, tc.in)
	}

	other := errors.New("disk full")
	assert.Same(t, other, translateError(other))

	ce := &CorruptionError{SegNo: 1, Column: "note", Err: varblock.ErrFormat}
	assert.Same(t, ce, translateError(ce))
}
