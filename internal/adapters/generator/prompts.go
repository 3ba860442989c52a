package generator

import (
	"fmt"
	"strings"

	"social-orchestrator/internal/domain"
)

const defaultTone = "Professional and engaging"

var platformGuidance = map[domain.Platform]string{
	domain.PlatformTwitter: `Create a Twitter post that is:
- Concise (under 280 characters)
- Engaging with a strong hook
- Uses relevant hashtags (2-3 max)
- Includes a call-to-action when appropriate`,
	domain.PlatformInstagram: `Create an Instagram post that is:
- Visual and descriptive
- Includes engaging caption (100-300 words)
- Uses relevant hashtags (5-10)
- Includes emojis for engagement
- Has a strong opening line`,
	domain.PlatformLinkedIn: `Create a LinkedIn post that is:
- Professional and informative
- 100-300 words
- Provides value to professionals
- Uses relevant hashtags (3-5)
- Includes a question or call-to-action`,
	domain.PlatformFacebook: `Create a Facebook post that is:
- Conversational and engaging
- 100-300 words
- Includes relevant hashtags (2-4)
- Encourages interaction`,
}

func guidanceFor(p domain.Platform) string {
	if g, ok := platformGuidance[p]; ok {
		return g
	}
	return platformGuidance[domain.PlatformTwitter]
}

func toneOrDefault(tone string) string {
	if strings.TrimSpace(tone) == "" {
		return defaultTone
	}
	return tone
}

func textSystemPrompt(p domain.TextPrompt) string {
	brand := strings.TrimSpace(p.BrandContext)
	if brand == "" {
		brand = "No specific brand context provided."
	}
	return fmt.Sprintf(`You are an expert social media content creator.
%s

Brand context:
%s

Tone: %s`, guidanceFor(p.Platform), clipRunes(brand, 4000), toneOrDefault(p.Tone))
}

func textUserPrompt(p domain.TextPrompt) string {
	length := "Appropriate for the platform"
	if p.Length > 0 {
		length = fmt.Sprintf("about %d words", p.Length)
	}
	return fmt.Sprintf(`Create a social media post about: %s

Requirements:
- Platform: %s
- Length: %s
- Tone: %s

Return only the post text.`, p.Topic, p.Platform, length, toneOrDefault(p.Tone))
}

func brainstormUserPrompt(req domain.BrainstormRequest) string {
	topics := "any topic relevant to the audience"
	if len(req.Topics) > 0 {
		topics = strings.Join(req.Topics, ", ")
	}
	var trends strings.Builder
	for _, trend := range req.Trends {
		fmt.Fprintf(&trends, "- %s (score: %.0f)\n", trend.Keyword, trend.TrendScore)
	}
	trending := "none available"
	if trends.Len() > 0 {
		trending = "\n" + strings.TrimRight(trends.String(), "\n")
	}
	return fmt.Sprintf(`Generate exactly %d content ideas for %s.
Topics: %s
Trending now: %s
Return JSON of the form {"ideas": [{"title": "...", "hook": "...", "hashtags": ["#..."]}]} without explanations.`,
		req.Count, req.Platform, topics, trending)
}

func clipRunes(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

func filterValues(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
