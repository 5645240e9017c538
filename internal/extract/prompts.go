package extract

import "fmt"

const picoSystemPrompt = "You are a biomedical research expert specializing in extracting PICO elements from research papers."

const entitySystemPrompt = "You are a biomedical NLP expert specializing in named entity recognition for medical research."

// buildPICOPrompt renders the PICO extraction request for the given text.
func buildPICOPrompt(text string) string {
	return fmt.Sprintf(`Analyze the following biomedical research text and extract PICO elements.

PICO stands for:
- Population: The patient group or subjects being studied
- Intervention: The treatment or exposure being investigated
- Comparison: The alternative treatment or control group
- Outcome: The measured results or endpoints

Text:
%s

Provide the extracted PICO elements and confidence scores (0.0 to 1.0) in JSON format:
{
  "population": "extracted text or null",
  "intervention": "extracted text or null",
  "comparison": "extracted text or null",
  "outcome": "extracted text or null",
  "populationConfidence": 0.0-1.0,
  "interventionConfidence": 0.0-1.0,
  "comparisonConfidence": 0.0-1.0,
  "outcomeConfidence": 0.0-1.0
}`, text)
}

// buildEntityPrompt renders the entity extraction request. The input is
// truncated to entityInputLimit here, at prompt build time.
func buildEntityPrompt(text string) string {
	if len(text) > entityInputLimit {
		text = text[:entityInputLimit]
	}
	return fmt.Sprintf(`Extract biomedical entities from the following research text.

Identify and list:
- Diseases/Conditions
- Drugs/Medications
- Proteins
- Genes

Text:
%s

Provide the entities in JSON format:
{
  "diseases": ["entity1", "entity2"],
  "drugs": ["entity1", "entity2"],
  "proteins": ["entity1", "entity2"],
  "genes": ["entity1", "entity2"]
}`, text)
}
