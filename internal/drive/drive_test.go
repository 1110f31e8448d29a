package drive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "doctor_note_pdf", SanitizeFilename("doctor/note:pdf"))
	assert.Equal(t, "file", SanitizeFilename("???"))
	assert.Equal(t, "ok name", SanitizeFilename("ok name"))
}

func TestSanitizeTeacherName(t *testing.T) {
	assert.Equal(t, "Jane_Doe", sanitizeTeacherName("Jane Doe"))
	assert.Equal(t, "teacher", sanitizeTeacherName("***"))
}

type stubTokenSource struct {
	token string
	err   error
}

func (s stubTokenSource) GetTokenSilent(ctx context.Context, profile string) (string, error) {
	return s.token, s.err
}

func TestAuthorizedRequest_PropagatesTokenError(t *testing.T) {
	c := &Client{tokens: stubTokenSource{err: assert.AnError}, driveID: "d1"}
	_, err := c.authorizedRequest(context.Background(), "GET", "https://example.invalid", nil)
	assert.Error(t, err)
}
