package prompt

// ResponseSchema is the reply contract sent with every prompt and enforced by
// the reply parser. Every field is required; nothing is defaulted.
const ResponseSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "required": ["sentiment", "themes", "emotions", "summary", "recommendations", "confidence"],
  "properties": {
    "sentiment": {
      "type": "object",
      "additionalProperties": false,
      "required": ["positive", "neutral", "negative"],
      "properties": {
        "positive": {"type": "integer", "minimum": 0},
        "neutral":  {"type": "integer", "minimum": 0},
        "negative": {"type": "integer", "minimum": 0}
      }
    },
    "themes": {
      "type": "object",
      "additionalProperties": {"type": "number", "minimum": 0}
    },
    "emotions": {
      "type": "object",
      "additionalProperties": {"type": "number", "minimum": 0, "maximum": 10}
    },
    "summary": {"type": "string", "minLength": 1},
    "recommendations": {
      "type": "array",
      "items": {"type": "string"}
    },
    "confidence": {"type": "number", "minimum": 0, "maximum": 1}
  }
}`
