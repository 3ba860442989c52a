package generator

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"social-orchestrator/internal/domain"
)

func TestTemplateTwitterFitsLimit(t *testing.T) {
	g := NewTemplate()
	text, err := g.GenerateText(context.Background(), domain.TextPrompt{Topic: strings.Repeat("длинная тема ", 40), Platform: domain.PlatformTwitter})
	require.NoError(t, err)
	require.LessOrEqual(t, utf8.RuneCountInString(text), 280)
}

func TestTemplateBrainstormExactCount(t *testing.T) {
	g := NewTemplate()
	ideas, err := g.Brainstorm(context.Background(), domain.BrainstormRequest{Platform: domain.PlatformFacebook, Count: 7, Topics: []string{"coffee"}})
	require.NoError(t, err)
	require.Len(t, ideas, 7)
}

func TestPlaceholderImages(t *testing.T) {
	p := NewPlaceholder("https://placehold.co/")
	urls, err := p.GenerateImage(context.Background(), domain.ImagePrompt{Prompt: "a cat", Width: 256, Height: 256, Count: 2})
	require.NoError(t, err)
	require.Len(t, urls, 2)
	require.Equal(t, "https://placehold.co/256x256?text=a+cat", urls[0])
}
