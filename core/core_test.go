package core

import (
	"net/mail"
	"testing"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOrdering(t *testing.T) {
	allowed := []string{"week_number", "status"}
	tests := []struct {
		in   string
		want []DBOrdering
	}{
		{in: "", want: nil},
		{in: "week_number", want: []DBOrdering{{Field: "week_number", Ascending: true}}},
		{in: "-week_number, status", want: []DBOrdering{{Field: "week_number"}, {Field: "status", Ascending: true}}},
		{in: "password_hash,-status", want: []DBOrdering{{Field: "status"}}},
		{in: "lol", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseOrdering(tt.in, allowed...))
		})
	}
	assert.Equal(t, "week_number DESC", DBOrdering{Field: "week_number"}.String())
}

func TestCleanString(t *testing.T) {
	assert.Equal(t, "Alice Doe", CleanString("  Alice Doe \n"))
	assert.Equal(t, "alice", CleanString(" ALICE ", true))
}

func TestValidationError(t *testing.T) {
	cause := errors.New("username taken")
	err := NewValidationError(cause, FieldError{Field: "username", Error: "taken"})
	assert.EqualError(t, err, "username taken")
	assert.True(t, errors.Is(err, cause))

	assert.EqualError(t, NewValidationError(nil, FieldError{Field: "password", Error: "too short"}), "password: too short")
	assert.True(t, IsShutdown(errors.Wrap(NewShutdownError("integrity"), "ctx")))
	assert.False(t, IsShutdown(cause))
}

func TestFieldErrors(t *testing.T) {
	validate := validator.New()
	translator := NewTranslator()
	InitValidators(validate, translator)

	type form struct {
		Email string `json:"email" validate:"required,email"`
	}
	vErrs := validate.Struct(form{})
	taken := errors.New("username taken")

	tests := []struct {
		name       string
		err        error
		translator ut.Translator
		want       map[string]string
		wantDesc   string
	}{
		{
			name: "field errors", err: errors.Wrap(NewValidationError(nil, FieldError{Field: "b", Error: "bad"}, FieldError{Field: "a", Error: "worse"}), "ctx"),
			want: map[string]string{"a": "worse", "b": "bad"}, wantDesc: "a: worse; b: bad",
		},
		{name: "first message per field wins", err: NewValidationError(taken, FieldError{Field: "a", Error: "x"}, FieldError{Field: "a", Error: "y"}), want: map[string]string{"a": "x"}, wantDesc: "a: x"},
		{name: "no field", err: NewValidationError(taken), wantDesc: "username taken"},
		{name: "translated", err: vErrs, translator: translator, want: map[string]string{"email": requiredText}, wantDesc: "email: " + requiredText},
		{name: "untranslated", err: vErrs, wantDesc: vErrs.Error()},
		{name: "plain error", err: taken, wantDesc: "username taken"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FieldErrors(tt.err, tt.translator)
			assert.Equal(t, tt.want != nil, ok)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantDesc, DescribeError(tt.err, tt.translator))
		})
	}
}

func TestTranslateErrors(t *testing.T) {
	validate := validator.New()
	translator := NewTranslator()
	InitValidators(validate, translator)

	type form struct {
		Username string `json:"username" validate:"required,alphanum_"`
		Email    string `json:"email" validate:"required,email"`
	}
	err := validate.Struct(form{Username: "bad name", Email: ""})
	var verrs validator.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, map[string]string{
		"username": alphaNumUnderText,
		"email":    requiredText,
	}, TranslateErrors(verrs, translator))
}

func TestEmailMessage_Render(t *testing.T) {
	conf := NewTestConfig()

	msg := &EmailMessage{
		To:           []mail.Address{{Address: "prof@example.com"}},
		TemplateName: "log_verification",
		TemplateData: map[string]interface{}{
			"StudentName":  "Alice",
			"StudentEmail": "alice@example.com",
			"WeekNumber":   5,
			"Content":      "<b>shipped</b>",
			"ApproveURL":   "http://weeklog.test/verify?token=t&action=approved",
			"RejectURL":    "http://weeklog.test/verify?token=t&action=rejected",
		},
	}
	require.NoError(t, msg.Render(conf))
	assert.True(t, msg.HasRecipients())
	assert.True(t, msg.HasContent())
	assert.Contains(t, msg.TextContent, "Alice has submitted their log for Week 5.")
	assert.Contains(t, msg.TextContent, "Approve: http://weeklog.test/verify?token=t&action=approved")
	assert.Contains(t, msg.HTMLContent, "&lt;b&gt;shipped&lt;/b&gt;")

	// missing template data is an error, not an empty field
	msg = &EmailMessage{TemplateName: "log_verification", TemplateData: map[string]interface{}{}}
	assert.Error(t, msg.Render(conf))

	msg = &EmailMessage{TemplateName: "nope"}
	assert.Equal(t, ErrTemplateNotFound, errors.Cause(msg.Render(conf)))

	msg = &EmailMessage{BodyStr: "plain"}
	require.NoError(t, msg.Render(conf))
	assert.Equal(t, "plain", msg.TextContent)
	assert.Empty(t, msg.HTMLContent)
}
