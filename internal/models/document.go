package models

import "encoding/base64"

// Category groups pages for display. Source pages cycle through the four
// journal categories; the synthetic index page is always an introduction.
type Category string

const (
	CategoryIntroduction  Category = "introduction"
	CategoryPrompts       Category = "prompts"
	CategoryExercises     Category = "exercises"
	CategoryReflections   Category = "reflections"
	CategoryIntroductions Category = "introductions"
)

// PageDescriptor is one entry of the page catalog. It is built once per
// document load and never mutated afterwards.
type PageDescriptor struct {
	ID          string   `json:"id"`
	PageNumber  int      `json:"pageNumber"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Content     string   `json:"content"`
	Excerpt     string   `json:"excerpt,omitempty"`
	Category    Category `json:"category"`
	StaticImage string   `json:"staticImage,omitempty"` // only set on the index page
}

// Raster is an encoded page image.
type Raster struct {
	Data     []byte `json:"-"`
	MIMEType string `json:"mimeType"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// DataURL returns the raster as an inline data URL.
func (r Raster) DataURL() string {
	return "data:" + r.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(r.Data)
}

// Cover is a selectable front cover design.
type Cover struct {
	ID        string `json:"id" yaml:"id"`
	Title     string `json:"title" yaml:"title"`
	Color     string `json:"color,omitempty" yaml:"color"`
	Texture   string `json:"texture,omitempty" yaml:"texture"`
	ImageRef  string `json:"imageRef,omitempty" yaml:"image_ref"`
	IsDefault bool   `json:"isDefault" yaml:"is_default"`
}
