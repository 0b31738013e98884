package webhook

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Payload shapes are validated with JSON Schema before any field is
// trusted; a mismatch is a 400 with no side effects. Only the fields the
// pipeline actually reads are required here.

const repoSchema = `{
	"type": "object",
	"required": ["id", "full_name"],
	"properties": {
		"id": {"type": "integer"},
		"full_name": {"type": "string"}
	}
}`

const installationSchema = `{
	"type": "object",
	"required": ["id"],
	"properties": {"id": {"type": "integer"}}
}`

var eventSchemas = map[string]string{
	"pull_request": `{
		"type": "object",
		"required": ["action", "pull_request", "repository", "installation"],
		"properties": {
			"action": {"type": "string"},
			"pull_request": {
				"type": "object",
				"required": ["number", "head", "diff_url"],
				"properties": {
					"number": {"type": "integer"},
					"diff_url": {"type": "string"},
					"head": {
						"type": "object",
						"required": ["ref"],
						"properties": {"ref": {"type": "string"}}
					}
				}
			},
			"repository": ` + repoSchema + `,
			"installation": ` + installationSchema + `
		}
	}`,
	"issues": `{
		"type": "object",
		"required": ["action", "issue", "repository", "installation"],
		"properties": {
			"action": {"type": "string"},
			"issue": {
				"type": "object",
				"required": ["number", "title"],
				"properties": {
					"number": {"type": "integer"},
					"title": {"type": "string"}
				}
			},
			"repository": ` + repoSchema + `,
			"installation": ` + installationSchema + `
		}
	}`,
	"issue_comment": `{
		"type": "object",
		"required": ["action", "comment", "issue", "repository", "installation"],
		"properties": {
			"action": {"type": "string"},
			"comment": {
				"type": "object",
				"required": ["body", "user"],
				"properties": {
					"body": {"type": "string"},
					"user": {
						"type": "object",
						"required": ["login"],
						"properties": {"login": {"type": "string"}}
					}
				}
			},
			"issue": {
				"type": "object",
				"required": ["number"],
				"properties": {"number": {"type": "integer"}}
			},
			"repository": ` + repoSchema + `,
			"installation": ` + installationSchema + `
		}
	}`,
	"push": `{
		"type": "object",
		"required": ["ref", "repository", "installation"],
		"properties": {
			"ref": {"type": "string"},
			"repository": ` + repoSchema + `,
			"installation": ` + installationSchema + `
		}
	}`,
	"repository": `{
		"type": "object",
		"required": ["action", "repository", "installation"],
		"properties": {
			"action": {"type": "string"},
			"repository": ` + repoSchema + `,
			"installation": ` + installationSchema + `
		}
	}`,
	"installation": `{
		"type": "object",
		"required": ["action", "installation"],
		"properties": {
			"action": {"type": "string"},
			"installation": ` + installationSchema + `
		}
	}`,
	"installation_repositories": `{
		"type": "object",
		"required": ["action", "installation"],
		"properties": {
			"action": {"type": "string"},
			"installation": ` + installationSchema + `
		}
	}`,
}

var compiledSchemas = map[string]*gojsonschema.Schema{}

func init() {
	for event, raw := range eventSchemas {
		s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
		if err != nil {
			panic(fmt.Sprintf("webhook: bad schema for %s: %v", event, err))
		}
		compiledSchemas[event] = s
	}
}

// ValidatePayload checks a raw event body against the schema for its event
// type. Unknown event types pass; they are dropped later by the dispatcher.
func ValidatePayload(event string, body []byte) error {
	schema, ok := compiledSchemas[event]
	if !ok {
		return nil
	}
	res, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("payload is not valid JSON: %w", err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("payload schema mismatch: %s", strings.Join(msgs, "; "))
	}
	return nil
}
