package fault_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lightforgemedia/go-ezsockets/pkg/fault"
)

func TestClassification(t *testing.T) {
	base := errors.New("boom")

	ext := fault.Extension("text", base)
	assert.True(t, fault.IsExtension(ext))
	assert.False(t, fault.IsTransport(ext))
	assert.ErrorIs(t, ext, base)
	assert.EqualError(t, ext, "extension fault in text: boom")

	tr := fmt.Errorf("session 3: %w", fault.Transport("read", base))
	assert.True(t, fault.IsTransport(tr))
	assert.False(t, fault.IsExtension(tr))

	assert.NoError(t, fault.Extension("text", nil))
	assert.NoError(t, fault.Transport("read", nil))
	assert.False(t, fault.IsExtension(base))
}

func TestUnsupportedIsExtensionFault(t *testing.T) {
	err := fault.Extension("binary", fault.ErrUnsupported)
	assert.True(t, fault.IsExtension(err))
	assert.ErrorIs(t, err, fault.ErrUnsupported)
}
