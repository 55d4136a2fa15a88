package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type submission struct {
	LessonID int    `json:"lessonId" validate:"required,min=1"`
	Code     string `json:"codigo" validate:"max=8"`
}

func TestPlaygroundV10_Struct(t *testing.T) {
	v := NewValidator("en")

	assert.Nil(t, v.Struct(&submission{LessonID: 1, Code: "x"}))

	errs := v.Struct(&submission{Code: "demasiado largo"})
	require.Len(t, errs, 2)
	assert.Equal(t, "lessonId", errs[0].Domain)
	assert.Equal(t, "codigo", errs[1].Domain)
	assert.Contains(t, errs.Error(), "lessonId")
	assert.Contains(t, errs.Error(), "; ")
}

func TestPlaygroundV10_SpanishMessages(t *testing.T) {
	v := NewValidator("es")

	errs := v.Struct(&submission{})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Reason, "requerido")

	fe := v.AllEmpty([]string{"username", "email"}, "", "")
	require.NotNil(t, fe)
	assert.Equal(t, "username,email", fe.Domain)
	assert.Equal(t, "al menos uno de los campos es obligatorio", fe.Reason)
}

func TestPlaygroundV10_Var(t *testing.T) {
	v := NewValidator("en")

	assert.Nil(t, v.Var("id", 3, "min=1"))
	fe := v.Var("id", 0, "min=1")
	require.NotNil(t, fe)
	assert.Equal(t, "id", fe.Domain)
	assert.NotEmpty(t, fe.Reason)
}

func TestPlaygroundV10_AllEmpty(t *testing.T) {
	v := NewValidator("fr")

	assert.Nil(t, v.AllEmpty([]string{"username", "email"}, "", "roundy@roundy.dev"))
	assert.NotNil(t, v.AllEmpty([]string{"username", "email"}, "", ""))
	assert.Panics(t, func() { v.AllEmpty([]string{"username"}, "", "") })
}
