package pipeline

import (
	"fmt"
	"strings"
)

const (
	extractSystem = "You are an English vocabulary tutor. Answer with JSON only."
	enrichSystem  = "You are a bilingual lexicographer. Answer with a single JSON object only."

	// maxArticleRunes keeps prompts within provider context limits.
	maxArticleRunes = 20000
)

func extractPrompt(level, article string) string {
	if r := []rune(article); len(r) > maxArticleRunes {
		article = string(r[:maxArticleRunes])
	}
	return fmt.Sprintf(`Here is an article. Pick out every word that belongs to the %s vocabulary level.
Return them only as a JSON array of strings, without any other text or explanation.

Article:
%s`, level, article)
}

// enrichFields are the keys every enrich-word result carries.
var enrichFields = []string{
	"phonetic", "meaning", "definition", "examples", "etymology",
	"affixes", "history", "forms", "memory_aid", "trending_story",
}

func enrichPrompt(word, languages string) string {
	from, to := languagePair(languages)
	var b strings.Builder
	fmt.Fprintf(&b, "Describe the word %q from the angles below and return one JSON object.\n", word)
	fmt.Fprintf(&b, "Every angle is an object {\"icon\", %q, %q} where icon is a lucide-react icon name matching the content.\n", from, to)
	b.WriteString(`1. "phonetic": the American IPA transcription.
2. "meaning": a concise meaning used as a subtitle.
3. "definition": the definition.
4. "examples": three example sentences, both languages as arrays.
5. "etymology": the origin of the word.
6. "affixes": prefix, root and suffix analysis.
7. "history": history and cultural background.
8. "forms": inflections and derived forms.
9. "memory_aid": a silly story or letter mnemonic that makes the word stick.
10. "trending_story": a short story tied to current events that uses the word.
Return the JSON object only, without markdown fences or explanation.`)
	return b.String()
}

func imagePrompt(word, style string) string {
	prompt := fmt.Sprintf("You are a senior creative artist. Create an eye-catching image that illustrates the meaning of the word %q so that it is easy to remember.", word)
	if style = strings.TrimSpace(style); style != "" && !strings.EqualFold(style, "default") {
		prompt += " Style: " + style + "."
	}
	return prompt + " Return only the image."
}

// languagePair splits "en-zh" style subtypes. Anything else explains in English and Chinese.
func languagePair(languages string) (string, string) {
	parts := strings.FieldsFunc(strings.ToLower(languages), func(r rune) bool {
		return r == '-' || r == '_' || r == '/' || r == ','
	})
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "en", "zh"
}
