package agent

import (
	"fmt"
	"strings"

	"github.com/poiesic/lectern/core"
)

// legalSystemPrompt frames the assistant as a legal-document expert
// answering strictly from the provided context.
const legalSystemPrompt = `Ты — ассистент по юридическим документам. Отвечай на вопросы, опираясь исключительно на приведённый контекст из базы документов.

Правила:
- Используй только информацию из контекста.
- Если в контексте нет ответа, прямо скажи, что в предоставленных документах нет нужной информации.
- Ссылайся на источники по их номерам, например: (Источник 1).
- Не выдумывай статьи законов и реквизиты документов.
- Отвечай на русском языке, кратко и по существу.`

// conversationalSystemPrompt handles greetings and smalltalk without
// touching the document base.
const conversationalSystemPrompt = `Ты — вежливый ассистент юридической справочной системы. Ответь на реплику пользователя коротко и дружелюбно, на русском языке. Если уместно, предложи задать вопрос по документам из базы.`

// ragPromptTemplate wraps the retrieved context and the question.
const ragPromptTemplate = `Контекст из базы документов:

%s

Вопрос: %s

Ответь на вопрос, используя только приведённый контекст.`

// NoInfoAnswer is returned verbatim when retrieval finds nothing for a
// domain question.
const NoInfoAnswer = "В базе не найдено релевантной информации."

// truncationMarker is appended whenever fragment text is cut; text is
// never shortened silently.
const truncationMarker = "\n[...текст обрезан]"

// noInfoPhrases mark a model answer that admits the context held no
// information. Sources are suppressed for such answers.
var noInfoPhrases = []string{
	"не найдено релевантной информации",
	"нет нужной информации",
	"нет информации",
	"не содержит информации",
	"не содержится информации",
	"нет ответа на этот вопрос",
}

// formatPrompt fills the RAG template with context and question.
func formatPrompt(context, question string) string {
	return fmt.Sprintf(ragPromptTemplate, context, question)
}

// formatContext renders retrieved fragments as numbered источники.
// Fragment text beyond maxLen characters is truncated with a marker.
func formatContext(hits []core.SearchHit, maxLen int) string {
	parts := make([]string, 0, len(hits))
	for i, hit := range hits {
		header := fmt.Sprintf("[Источник %d: %s", i+1, displayFilename(hit.Chunk.Metadata))
		if hit.Chunk.Metadata.Page > 0 {
			header += fmt.Sprintf(", стр. %d", hit.Chunk.Metadata.Page)
		}
		header += "]"
		parts = append(parts, header+"\n"+truncateFragment(hit.Chunk.Text, maxLen))
	}
	return strings.Join(parts, "\n\n---\n\n")
}

func displayFilename(m core.ChunkMetadata) string {
	if m.Filename == "" {
		return "неизвестный файл"
	}
	if m.ArchiveSource != "" {
		return m.ArchiveSource + "/" + m.Filename
	}
	return m.Filename
}

// truncateFragment cuts text to maxLen runes, never splitting a rune,
// and appends the truncation marker.
func truncateFragment(text string, maxLen int) string {
	if maxLen <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen]) + truncationMarker
}

// declaresNoInfo reports whether the model's answer admits the context
// held nothing relevant.
func declaresNoInfo(answer string) bool {
	lower := strings.ToLower(answer)
	for _, phrase := range noInfoPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
