package mail

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDigest() *Digest {
	return &Digest{
		ToAddress:    "reader@example.org",
		Subject:      "ArXiv Digest",
		TemplateName: "digest",
		Name:         "Ada",
		Days: []DigestDay{
			{
				Label: "Monday, March 2",
				Articles: []DigestArticle{
					{
						ArticleID:   "2401.00001",
						Title:       "Attention & Retrieval",
						Authors:     []string{"A. Author", "B. Author"},
						Explanation: "matches your topic machine learning",
						ReadLink:    "http://localhost:8080/mail/read/1/2401.00001/trace-a",
						SaveLink:    "http://localhost:8080/mail/save/1/2401.00001/trace-b",
					},
				},
				DayIndex: 0,
			},
		},
		UnsubscribeLink: "http://localhost:8080/mail/unsubscribe/trace-c",
	}
}

func TestRenderDigest(t *testing.T) {
	r := NewRenderer()

	body, err := r.Render(sampleDigest())
	require.NoError(t, err)

	assert.Contains(t, body, "Hi Ada,")
	assert.Contains(t, body, "Monday, March 2")
	assert.Contains(t, body, `href="http://localhost:8080/mail/read/1/2401.00001/trace-a"`)
	assert.Contains(t, body, `href="http://localhost:8080/mail/save/1/2401.00001/trace-b"`)
	assert.Contains(t, body, `href="http://localhost:8080/mail/unsubscribe/trace-c"`)
	assert.Contains(t, body, "A. Author, B. Author")
	assert.Contains(t, body, "matches your topic machine learning")
}

func TestRenderEscapesTitles(t *testing.T) {
	r := NewRenderer()
	d := sampleDigest()
	d.Days[0].Articles[0].Title = `Bounds on <n> & "m"`

	body, err := r.Render(d)
	require.NoError(t, err)

	assert.NotContains(t, body, "<n>")
	assert.Contains(t, body, "&lt;n&gt;")
}

func TestRenderDefaultsMissingName(t *testing.T) {
	r := NewRenderer()
	d := sampleDigest()
	d.Name = ""

	body, err := r.Render(d)
	require.NoError(t, err)

	assert.Contains(t, body, "Hi there,")
}

func TestRenderUnknownTemplate(t *testing.T) {
	r := NewRenderer()
	d := sampleDigest()
	d.TemplateName = "does-not-exist"

	_, err := r.Render(d)
	assert.Error(t, err)
}
