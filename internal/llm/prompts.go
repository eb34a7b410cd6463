package llm

// Prompt identifiers of the built-in catalog
const (
	PromptRefine           = "refine"
	PromptIncidentType     = "incident_type"
	PromptUrgency          = "urgency"
	PromptKeyword          = "keyword"
	PromptTopic            = "topic"
	PromptLocationExtract  = "location_extract"
	PromptLocationValidate = "location_validate"
)

// Prompt is a system instruction plus the task description prepended to the JSON input
type Prompt struct {
	System      string
	Instruction string
}

const analystSystem = "You are a news analyst for a Korean regional news service. " +
	"You read one article at a time and answer strictly in the JSON shape requested. " +
	"Never invent facts that are not in the article."

// DefaultPrompts returns the built-in prompt catalog
func DefaultPrompts() map[string]Prompt {
	return map[string]Prompt{
		PromptRefine: {
			System: analystSystem,
			Instruction: `Clean up the article below. Remove reporter bylines, advertisements, photo captions and
boilerplate, keep every fact. Write a summary of at most three sentences.
Answer as {"title": string, "content": string, "summary": string}.`,
		},
		PromptIncidentType: {
			System: analystSystem,
			Instruction: `Classify the article into the incident types it reports. Choose only names from "candidates";
an article may match several types or none.
Answer as {"incidentTypes": [string]}.`,
		},
		PromptUrgency: {
			System: analystSystem,
			Instruction: `Rate how urgent the reported situation is for residents of the affected area. Choose exactly one
name from "levels" (a higher level is more urgent).
Answer as {"urgency": string}.`,
		},
		PromptKeyword: {
			System: analystSystem,
			Instruction: `Extract up to ten search keywords from the article. Priority 1 is the most important.
Answer as {"keywords": [{"keyword": string, "priority": number}]}.`,
		},
		PromptTopic: {
			System: analystSystem,
			Instruction: `Name the single topic of the article in a short noun phrase (at most ten words).
Answer as {"topic": string}.`,
		},
		PromptLocationExtract: {
			System: analystSystem,
			Instruction: `List every place where the reported events happen. For each place give the name as written
and a type: "ADDRESS" for a road or administrative address, "LANDMARK" for a named building, station,
park or facility, "UNRESOLVABLE" for places too vague to geocode (for example "nationwide" or "a nearby road").
Answer as {"locations": [{"name": string, "type": "ADDRESS" | "LANDMARK" | "UNRESOLVABLE"}]}.`,
		},
		PromptLocationValidate: {
			System: analystSystem,
			Instruction: `Check the "candidates" against the article text. Drop places the article does not support and
duplicates, normalize names to their most complete written form (add the city or district when the article
states it) and correct the type when needed.
Answer as {"locations": [{"name": string, "type": "ADDRESS" | "LANDMARK" | "UNRESOLVABLE"}]}.`,
		},
	}
}
