package generator

import (
	"context"
	"testing"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"social-orchestrator/internal/domain"
)

type fakeImages struct {
	calls []goopenai.ImageRequest
}

func (f *fakeImages) CreateImage(_ context.Context, req goopenai.ImageRequest) (goopenai.ImageResponse, error) {
	f.calls = append(f.calls, req)
	data := make([]goopenai.ImageResponseDataInner, 0, req.N)
	for i := 0; i < req.N; i++ {
		data = append(data, goopenai.ImageResponseDataInner{URL: "https://img/" + req.Size})
	}
	return goopenai.ImageResponse{Data: data}, nil
}

func TestOpenAIImagesDallE3OnePerCall(t *testing.T) {
	fake := &fakeImages{}
	g := NewOpenAIImages(fake, "")
	urls, err := g.GenerateImage(context.Background(), domain.ImagePrompt{Prompt: "sunset", Width: 1024, Height: 1024, Count: 2})
	require.NoError(t, err)
	require.Len(t, urls, 2)
	require.Len(t, fake.calls, 2)
	require.Equal(t, 1, fake.calls[0].N)
	require.Equal(t, "1024x1024", fake.calls[0].Size)
}

func TestOpenAIImagesBatchModel(t *testing.T) {
	fake := &fakeImages{}
	g := NewOpenAIImages(fake, goopenai.CreateImageModelDallE2)
	urls, err := g.GenerateImage(context.Background(), domain.ImagePrompt{Prompt: "sunset", Width: 512, Height: 512, Count: 3})
	require.NoError(t, err)
	require.Len(t, urls, 3)
	require.Len(t, fake.calls, 1)
}
