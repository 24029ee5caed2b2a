package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookErrorMessageFormat(t *testing.T) {
	err := New(CategoryValidation, SeverityFatal, "manifest references missing file")
	assert.Equal(t, "validation (fatal): manifest references missing file", err.Error())
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("open summary: no such file")
	err := Wrap(cause, CategoryFileSystem, SeverityError, "read manifest")
	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "no such file")
}

func TestIsCategoryUnwraps(t *testing.T) {
	inner := LinkError("dangling link ./missing.md")
	wrapped := fmt.Errorf("render chapter: %w", inner)
	assert.True(t, IsCategory(wrapped, CategoryLink))
	assert.False(t, IsCategory(wrapped, CategorySample))
}

func TestGetCategoryDefaultsToInternal(t *testing.T) {
	assert.Equal(t, CategoryInternal, GetCategory(fmt.Errorf("plain")))
	assert.Equal(t, CategoryPublish, GetCategory(PublishError("push rejected")))
}

func TestWithContext(t *testing.T) {
	err := SampleFailure("expected failure but sample succeeded").
		WithContext("chapter", "intro.md").
		WithContext("sample", 2)
	assert.Equal(t, "intro.md", err.Context["chapter"])
	assert.Equal(t, 2, err.Context["sample"])
}
