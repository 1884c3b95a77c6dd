package feeders

import (
	"os"
	"testing"
)

func TestYamlFeeder_Feed_BasicStructure(t *testing.T) {
	tempFile, err := os.CreateTemp("", "test-*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	defer os.Remove(tempFile.Name())

	yamlContent := `
app:
  name: TestApp
  version: "1.0"
  debug: true
`
	if _, err := tempFile.Write([]byte(yamlContent)); err != nil {
		t.Fatalf("Failed to write to temp file: %v", err)
	}
	tempFile.Close()

	type Config struct {
		App struct {
			Name    string `yaml:"name"`
			Version string `yaml:"version"`
			Debug   bool   `yaml:"debug"`
		} `yaml:"app"`
	}

	var config Config
	feeder := NewYamlFeeder(tempFile.Name())
	err = feeder.Feed(&config)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if config.App.Name != "TestApp" {
		t.Errorf("Expected Name to be 'TestApp', got '%s'", config.App.Name)
	}
	if config.App.Version != "1.0" {
		t.Errorf("Expected Version to be '1.0', got '%s'", config.App.Version)
	}
	if !config.App.Debug {
		t.Errorf("Expected Debug to be true, got false")
	}
}

func TestYamlFeeder_FeedKey(t *testing.T) {
	tempFile, err := os.CreateTemp("", "test-*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	defer os.Remove(tempFile.Name())

	yamlContent := `
app:
  name: TestApp
other:
  name: Unrelated
`
	if _, err := tempFile.Write([]byte(yamlContent)); err != nil {
		t.Fatalf("Failed to write to temp file: %v", err)
	}
	tempFile.Close()

	type App struct {
		Name string `yaml:"name"`
	}

	var app App
	feeder := NewYamlFeeder(tempFile.Name())
	if err := feeder.FeedKey("app", &app); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if app.Name != "TestApp" {
		t.Errorf("Expected Name to be 'TestApp', got '%s'", app.Name)
	}
}

func TestYamlFeeder_FeedKey_NotFound(t *testing.T) {
	tempFile, err := os.CreateTemp("", "test-*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	defer os.Remove(tempFile.Name())

	if _, err := tempFile.Write([]byte("app:\n  name: TestApp\n")); err != nil {
		t.Fatalf("Failed to write to temp file: %v", err)
	}
	tempFile.Close()

	var target struct{}
	feeder := NewYamlFeeder(tempFile.Name())
	if err := feeder.FeedKey("notfound", &target); err != nil {
		t.Fatalf("Expected no error for missing key, got %v", err)
	}
}

func TestNewYamlFeeder(t *testing.T) {
	filePath := "/tmp/config.yaml"
	feeder := NewYamlFeeder(filePath)
	if feeder.Path != filePath {
		t.Errorf("Expected path to be '%s', got '%s'", filePath, feeder.Path)
	}
}
