package fetch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const progressPage = `<html><body>
<form name="ProgressForm" action="/SASJobExecution/progress" method="post">
  <input type="hidden" name="_token" value="abc123">
  <input type="hidden" name="_status" value="running">
  <textarea name="_state" value="s1"></textarea>
  <input type="hidden" value="orphan">
</form>
<script>document.ProgressForm.submit()</script>
</body></html>`

func TestParseProgressForm(t *testing.T) {
	form, err := ParseProgressForm(progressPage)
	require.NoError(t, err)
	require.NotNil(t, form)

	assert.Equal(t, "/SASJobExecution/progress", form.Action)
	assert.Equal(t, "abc123", form.Fields.Get("_token"))
	assert.Equal(t, "running", form.Fields.Get("_status"))
	assert.Equal(t, "s1", form.Fields.Get("_state"))
	assert.Len(t, form.Fields, 3)
}

func TestParseProgressForm_ByID(t *testing.T) {
	page := `<form id="ProgressForm"><input name="a" value="1"></form>`
	form, err := ParseProgressForm(page)
	require.NoError(t, err)
	require.NotNil(t, form)

	assert.Empty(t, form.Action)
	assert.Equal(t, "1", form.Fields.Get("a"))
}

func TestParseProgressForm_Absent(t *testing.T) {
	for name, page := range map[string]string{
		"finished report": `<html><body><a href="/files/files/x.xlsx">Download</a></body></html>`,
		"other form":      `<form name="LoginForm"><input name="user" value="u"></form>`,
		"empty":           ``,
	} {
		t.Run(name, func(t *testing.T) {
			form, err := ParseProgressForm(page)
			require.NoError(t, err)
			assert.Nil(t, form)
		})
	}
}

func TestParseProgressForm_IgnoresNestedText(t *testing.T) {
	page := `<form name="ProgressForm">
		<textarea name="log">progress text the server renders</textarea>
		<input name="_token" value="t">
	</form>`
	form, err := ParseProgressForm(page)
	require.NoError(t, err)
	require.NotNil(t, form)

	assert.Equal(t, "", form.Fields.Get("log"))
	assert.Equal(t, "t", form.Fields.Get("_token"))
}
