package llm

import "strings"

const systemPrompt = `You are an extraction engine. Follow these rules, no exceptions:
- OUTPUT MUST MATCH THE JSON SCHEMA EXACTLY.
- NEVER GUESS. If a field is not explicitly present in pdfText, set it to null.
- Use only characters that appear in pdfText (ignore formatting like spaces and dashes).
- Dates must be YYYY-MM-DD if present, else null.
- Vehicle Reg must match Indian formats like KA01AB1234 or with spaces/dashes found in pdfText.
- If multiple candidates exist, pick the one closest to the labels listed below.
- If confidence < 0.6, return null.

Label hints:
- Policy Number: near "Policy No", "Policy Number"
- Registration Number: near "Registration No", "Regn No"
- Issue Date: near "Issue Date", "Date of Issue"
- Expiry Date: near "Expiry Date", "Valid up to"
- Total Premium: near "Gross/Final/Total Premium", "Total Payable"
- Net OD: near "Net Own Damage Premium", "Net OD"
- IDV: near "Insured Declared Value", "IDV"`

const (
	documentIntro   = "pdfText (first 4 pages) follows between <pdf> tags"
	documentClosing = "Extract strictly per schema. If not explicitly found in <pdf>, return null."
)

// SystemPrompt returns the extraction instructions, with a line naming the
// insurer when it is already known.
func SystemPrompt(insurerHint string) string {
	if insurerHint == "" {
		return systemPrompt
	}
	return systemPrompt + "\n\nInsurer hint: " + insurerHint
}

// documentMessages splits the document into the user turns sent after the
// system prompt.
func documentMessages(doc string) []string {
	return []string{
		documentIntro,
		"<pdf>\n" + doc + "\n</pdf>",
		documentClosing,
	}
}

// cleanJSON strips a surrounding markdown code fence. Anything else around
// the object is left in place so it fails to decode.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}
	return strings.TrimSpace(text)
}
