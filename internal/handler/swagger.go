package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/soukly/soukly-backend/docs"
	"github.com/swaggo/swag"
)

// OpenAPI3Spec is the subset of an OpenAPI 3.0 document we emit.
type OpenAPI3Spec struct {
	OpenAPI    string                 `json:"openapi"`
	Info       map[string]interface{} `json:"info"`
	Servers    []Server               `json:"servers"`
	Paths      map[string]interface{} `json:"paths"`
	Components map[string]interface{} `json:"components,omitempty"`
}

// Server is an OpenAPI 3.0 server entry.
type Server struct {
	URL         string `json:"url"`
	Description string `json:"description"`
}

// convertRefs walks the document rewriting #/definitions/ refs to
// #/components/schemas/ and upgrading Swagger 2.0 parameter objects.
func convertRefs(node interface{}) interface{} {
	switch v := node.(type) {
	case map[string]interface{}:
		// Parameter objects carry both "in" and "name".
		if _, hasIn := v["in"]; hasIn {
			if _, hasName := v["name"]; hasName {
				return convertParameter(v)
			}
		}

		out := make(map[string]interface{}, len(v))
		for key, value := range v {
			if key == "$ref" {
				if ref, ok := value.(string); ok {
					out[key] = strings.Replace(ref, "#/definitions/", "#/components/schemas/", 1)
					continue
				}
			}
			out[key] = convertRefs(value)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = convertRefs(item)
		}
		return out
	default:
		return node
	}
}

// convertParameter lifts a Swagger 2.0 parameter's type fields into an
// OpenAPI 3.0 schema object. Body parameters pass through untouched.
func convertParameter(param map[string]interface{}) map[string]interface{} {
	if param["in"] == "body" {
		return param
	}

	out := make(map[string]interface{})
	for _, field := range []string{"name", "in", "description", "required"} {
		if val, ok := param[field]; ok {
			out[field] = val
		}
	}

	schema := make(map[string]interface{})
	for _, field := range []string{"type", "format", "enum", "default", "minimum", "maximum", "items"} {
		if val, ok := param[field]; ok {
			if field == "items" {
				schema[field] = convertRefs(val)
			} else {
				schema[field] = val
			}
		}
	}
	if len(schema) > 0 {
		out["schema"] = schema
	}

	return out
}

// ServeOpenAPI3Spec serves the generated Swagger 2.0 document upgraded to
// OpenAPI 3.0 with the known server URLs attached.
func ServeOpenAPI3Spec(c echo.Context) error {
	doc, err := swag.ReadDoc(docs.SwaggerInfo.InstanceName())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to read swagger doc"})
	}

	var swagger2 map[string]interface{}
	if err := json.Unmarshal([]byte(doc), &swagger2); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to parse swagger doc"})
	}

	info, _ := swagger2["info"].(map[string]interface{})
	paths, _ := swagger2["paths"].(map[string]interface{})

	components := make(map[string]interface{})
	if secDefs, ok := swagger2["securityDefinitions"].(map[string]interface{}); ok {
		components["securitySchemes"] = secDefs
	}
	if definitions, ok := swagger2["definitions"].(map[string]interface{}); ok {
		components["schemas"] = convertRefs(definitions)
	}

	openapi3 := OpenAPI3Spec{
		OpenAPI: "3.0.3",
		Info:    info,
		Servers: []Server{
			{
				URL:         "http://localhost:18080/api/v1",
				Description: "Local Development",
			},
			{
				URL:         "https://api.soukly.app/api/v1",
				Description: "Production",
			},
		},
		Paths:      convertRefs(paths).(map[string]interface{}),
		Components: components,
	}

	return c.JSON(http.StatusOK, openapi3)
}
