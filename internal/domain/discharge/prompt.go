package discharge

import (
	"strings"

	"github.com/icu/isbar/internal/platform/textgen"
)

const systemPrompt = "You are an ICU discharge-summary assistant. Produce concise, clinically useful summaries " +
	"from de-identified inputs only. Do not invent data. Do not include names, MRN, DOB, or exact calendar dates. " +
	"Refer only to care-day index (D1, D2, etc.)."

var instructionLines = []string{
	"Generate a discharge/transfer summary with these exact section headings:",
	"1) Clinical Course",
	"2) Key Interventions",
	"3) Response and Current Status",
	"4) Ongoing Concerns",
	"5) Follow-up Plan",
	"",
	"Rules:",
	"- Keep it de-identified.",
	"- Use bullet points under each section.",
	"- Mention care-day progression where relevant.",
	"- If information is missing, say 'Not documented'.",
	"",
	"Structured patient timeline:",
}

func buildPrompt(p Payload) textgen.Prompt {
	return textgen.Prompt{
		System:      systemPrompt,
		Instruction: strings.Join(instructionLines, "\n"),
		Payload:     p,
	}
}
