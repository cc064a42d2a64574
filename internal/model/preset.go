package model

// Preset is a named prompt template from the catalog.
type Preset struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Category    string `yaml:"category" json:"category"`
	Description string `yaml:"description" json:"description"`
	Template    string `yaml:"template" json:"-"`
}
