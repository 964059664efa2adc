package providers

// CleanSchemaForProvider adapts a tool's JSON schema to vendor-specific
// quirks. Anthropic and Bedrock reject a bare "additionalProperties" key at
// the top level of input_schema; OpenAI-compatible vendors are tolerant and
// pass through unchanged.
func CleanSchemaForProvider(provider string, params map[string]interface{}) map[string]interface{} {
	if params == nil {
		return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	}
	switch provider {
	case "anthropic", "sigv4", "jwt_service_account":
		cleaned := make(map[string]interface{}, len(params))
		for k, v := range params {
			if k == "additionalProperties" {
				continue
			}
			cleaned[k] = v
		}
		return cleaned
	default:
		return params
	}
}
