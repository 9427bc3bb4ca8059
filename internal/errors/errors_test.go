package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOfTypedErrors(t *testing.T) {
	assert.Equal(t, CodeInvalidQuery, CodeOf(InvalidQuery("empty")))
	assert.Equal(t, CodeNotFound, CodeOf(NotFound("missing")))
	assert.Equal(t, CodeCancelled, CodeOf(Cancelled("index")))
	assert.Equal(t, CodeParse, CodeOf(NewParseError("rust", stderrors.New("boom"))))
	assert.Equal(t, CodeIO, CodeOf(NewFileError("read", "src/a.rs", stderrors.New("denied"))))
	assert.Equal(t, CodeIndexStale, CodeOf(&StaleError{Want: "2", Got: "1"}))
}

func TestCodeOfDefaultsToInternal(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(stderrors.New("plain")))
}

func TestCodeOfWrappedError(t *testing.T) {
	inner := InvalidQuery("no terms")
	wrapped := fmt.Errorf("while searching: %w", inner)
	assert.Equal(t, CodeInvalidQuery, CodeOf(wrapped))
}

func TestOpErrorUnwrap(t *testing.T) {
	underlying := stderrors.New("disk full")
	err := Wrap(CodeIO, underlying, "write manifest")
	assert.True(t, stderrors.Is(err, underlying))
	assert.Contains(t, err.Error(), "write manifest")
	assert.Contains(t, err.Error(), "disk full")
}

func TestIndexingErrorContext(t *testing.T) {
	err := NewIndexingError("parse", stderrors.New("boom")).WithFile("src/a.rs").WithRecoverable(true)
	assert.Contains(t, err.Error(), "src/a.rs")
	assert.True(t, err.Recoverable)

	var coded Coded
	assert.True(t, stderrors.As(err, &coded))
}

func TestFileErrorMessage(t *testing.T) {
	err := NewFileError("read", "src/b.rs", stderrors.New("permission denied"))
	assert.Contains(t, err.Error(), "read")
	assert.Contains(t, err.Error(), "src/b.rs")
}
