package view

import (
	"io/fs"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/members-only/internal/apperror"
	"github.com/sakif/members-only/internal/model"
)

func newTestTemplates(t *testing.T) *Templates {
	t.Helper()
	tmpl, err := New()
	require.NoError(t, err)
	return tmpl
}

func TestNew_ParsesEveryPage(t *testing.T) {
	tmpl := newTestTemplates(t)
	for _, name := range pages {
		assert.Contains(t, tmpl.pages, name)
	}
}

func TestRender_HomeForMember(t *testing.T) {
	tmpl := newTestTemplates(t)
	rec := httptest.NewRecorder()

	err := tmpl.Render(rec, http.StatusOK, PageHome, &Page{
		User: &model.User{FirstName: "Ada", LastName: "Lovelace", IsMember: true},
		Messages: []model.Message{{
			ID:              "m1",
			Title:           "Hello &lt;b&gt;",
			Text:            "first",
			Timestamp:       time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
			AuthorFirstName: "Charles",
			AuthorLastName:  "Babbage",
		}},
		CanSeeAuthors: true,
	})
	require.NoError(t, err)

	body := rec.Body.String()
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, body, "Charles Babbage")
	assert.Contains(t, body, "Mar 1, 2024")
	// Escaped exactly once.
	assert.Contains(t, body, "Hello &lt;b&gt;")
	assert.NotContains(t, body, "&amp;lt;")
	assert.NotContains(t, body, "/messages/m1/delete")
	assert.NotContains(t, body, `action="/log-in"`)
}

func TestRender_HomeForAnonymous(t *testing.T) {
	tmpl := newTestTemplates(t)
	rec := httptest.NewRecorder()

	err := tmpl.Render(rec, http.StatusOK, PageHome, &Page{
		Flash:    []string{"Incorrect password"},
		Messages: []model.Message{{ID: "m1", Title: "t", Text: "x"}},
	})
	require.NoError(t, err)

	body := rec.Body.String()
	assert.Contains(t, body, `action="/log-in"`)
	assert.Contains(t, body, "Incorrect password")
	assert.NotContains(t, body, "<time")
}

func TestRender_SignUpShowsFieldErrors(t *testing.T) {
	tmpl := newTestTemplates(t)
	rec := httptest.NewRecorder()

	var verrs apperror.ValidationErrors
	verrs.Add("pwdConfirm", "Passwords don't match")
	err := tmpl.Render(rec, http.StatusUnprocessableEntity, PageSignUp, &Page{
		Form:   map[string]string{"firstName": "Ada", "email": "ada@example.com"},
		Errors: &verrs,
	})
	require.NoError(t, err)

	body := rec.Body.String()
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, body, "Passwords don&#39;t match")
	assert.Contains(t, body, `value="Ada"`)
	assert.NotContains(t, body, "ada@example.com", "only the names are echoed")
}

func TestRender_NewMessageEchoesEscapedInputOnce(t *testing.T) {
	tmpl := newTestTemplates(t)
	rec := httptest.NewRecorder()

	// Form values hold the stored (escaped) form of what the user typed.
	err := tmpl.Render(rec, http.StatusUnprocessableEntity, PageNewMessage, &Page{
		Form: map[string]string{"title": "a &amp;lt; b", "text": "x &lt; y"},
	})
	require.NoError(t, err)

	body := rec.Body.String()
	assert.Contains(t, body, `value="a &amp;lt; b"`, "a typed &lt; stays literal")
	assert.Contains(t, body, "x &lt; y</textarea>")
}

func TestRender_UnknownPage(t *testing.T) {
	tmpl := newTestTemplates(t)
	rec := httptest.NewRecorder()

	err := tmpl.Render(rec, http.StatusOK, "nope", &Page{})
	assert.Error(t, err)
	assert.Zero(t, rec.Body.Len())
}

func TestStatic_ServesStylesheet(t *testing.T) {
	data, err := fs.ReadFile(Static(), "css/style.css")
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}
