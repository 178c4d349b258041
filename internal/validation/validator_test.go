package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateRequired(t *testing.T) {
	v := NewValidator()

	type req struct {
		Name string `validate:"required"`
	}

	assert.NoError(t, v.Validate(req{Name: "blinds"}))
	assert.Error(t, v.Validate(req{}))
	assert.NoError(t, v.Validate(&req{Name: "blinds"}))
}

func TestValidateEmail(t *testing.T) {
	v := NewValidator()

	type req struct {
		Email string `validate:"required,email"`
	}

	assert.NoError(t, v.Validate(req{Email: "user@example.com"}))
	assert.Error(t, v.Validate(req{Email: "not-an-email"}))
}

func TestValidateBounds(t *testing.T) {
	v := NewValidator()

	type req struct {
		Name  string `validate:"min=3,max=10"`
		Count int    `validate:"min=0,max=100"`
	}

	assert.NoError(t, v.Validate(req{Name: "abcd", Count: 50}))
	assert.Error(t, v.Validate(req{Name: "ab", Count: 50}))
	assert.Error(t, v.Validate(req{Name: "abcdefghijk", Count: 50}))
	assert.Error(t, v.Validate(req{Name: "abcd", Count: -1}))
	assert.Error(t, v.Validate(req{Name: "abcd", Count: 101}))
}

func TestValidateNonStruct(t *testing.T) {
	v := NewValidator()
	assert.Error(t, v.Validate("not a struct"))
}

func TestValidateSkipsUntaggedFields(t *testing.T) {
	v := NewValidator()

	type req struct {
		Name  string `validate:"required"`
		Notes string
	}

	assert.NoError(t, v.Validate(req{Name: "x"}))
}
