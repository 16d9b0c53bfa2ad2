// Package classify tags usage rows with the product surface that generated
// them. Classification is signal-based: an explicit api-key mapping wins,
// then the known code-assistant workspace, then the generic API default.
package classify

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tokenledger/tokenledger/internal/models"
)

// Mapping is the manually maintained classification file. It is expected to
// drift; unknown keys fall through to the workspace check.
type Mapping struct {
	// APIKeys maps api_key_id to a surface.
	APIKeys map[string]models.Surface `yaml:"api_keys"`
	// CodeWorkspaceID is the workspace the code assistant bills against.
	CodeWorkspaceID string `yaml:"code_workspace_id"`
}

// Classifier applies the mapping to usage rows.
type Classifier struct {
	mapping Mapping
}

// New creates a classifier from an in-memory mapping.
func New(mapping Mapping) *Classifier {
	return &Classifier{mapping: mapping}
}

// LoadFromFile reads the mapping YAML. A missing file yields an empty mapping
// (everything classifies as API); fallbackWorkspaceID fills CodeWorkspaceID
// when the file does not set one.
func LoadFromFile(path, fallbackWorkspaceID string) (*Classifier, error) {
	var mapping Mapping

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read surface mapping %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, &mapping); err != nil {
		return nil, fmt.Errorf("failed to parse surface mapping %s: %w", path, err)
	}

	if mapping.CodeWorkspaceID == "" {
		mapping.CodeWorkspaceID = fallbackWorkspaceID
	}

	return New(mapping), nil
}

// Classify returns the surface for a usage row: mapped api key first, then
// code-assistant workspace, then the API default.
func (c *Classifier) Classify(apiKeyID string, workspaceID *string) models.Surface {
	if surface, ok := c.mapping.APIKeys[apiKeyID]; ok {
		return surface
	}
	if workspaceID != nil && c.mapping.CodeWorkspaceID != "" && *workspaceID == c.mapping.CodeWorkspaceID {
		return models.SurfaceCode
	}
	return models.SurfaceAPI
}
