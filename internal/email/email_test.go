package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTaskCompletedTemplate(t *testing.T) {
	s := NewService(Config{BaseURL: "https://halftone.example"})

	html, err := s.renderTemplate(taskCompletedTemplate, TaskCompletedData{
		EmailData: EmailData{RecipientName: "Sam", BaseURL: "https://halftone.example", Year: 2026},
		TaskID:    "abc-123",
		Filename:  "vacation.jpg",
		TaskURL:   "https://halftone.example/tasks/abc-123",
	})
	require.NoError(t, err)
	assert.Contains(t, html, "Hi Sam,")
	assert.Contains(t, html, "abc-123")
	assert.Contains(t, html, "vacation.jpg")
	assert.Contains(t, html, "https://halftone.example/tasks/abc-123")
}

func TestRenderTaskFailedTemplateEscapesReason(t *testing.T) {
	s := NewService(Config{})

	html, err := s.renderTemplate(taskFailedTemplate, TaskFailedData{
		EmailData: EmailData{RecipientName: "Sam", Year: 2026},
		TaskID:    "abc-123",
		Reason:    "<script>alert(1)</script>",
	})
	require.NoError(t, err)
	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, "&lt;script&gt;")
}
