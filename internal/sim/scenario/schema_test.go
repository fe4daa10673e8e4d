package scenario

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// TestSchema_ValidatesAssets checks the shipped scenarios.yaml and the test
// sample against the published schema, so authored assets and the schema
// file cannot drift apart unnoticed.
func TestSchema_ValidatesAssets(t *testing.T) {
	schema, err := jsonschema.Compile(filepath.Join("..", "..", "..", "schemas", "scenarios.schema.json"))
	if err != nil {
		t.Fatalf("compile schema: %v", err)
	}

	validate := func(name string, raw []byte) {
		t.Helper()
		var v any
		if err := yaml.Unmarshal(raw, &v); err != nil {
			t.Fatalf("%s: unmarshal: %v", name, err)
		}
		if err := schema.Validate(v); err != nil {
			t.Fatalf("%s: validate: %v", name, err)
		}
	}

	validate("sample", []byte(sampleYAML))

	shipped, err := os.ReadFile(filepath.Join("..", "..", "..", "configs", "scenarios.yaml"))
	if err != nil {
		t.Fatalf("read shipped asset: %v", err)
	}
	validate("configs/scenarios.yaml", shipped)
}
