package models

import "time"

// Recognized block types. The type field is an open string tag: unknown
// values are accepted and their content treated as opaque JSON.
const (
	BlockTypeText = "text"
	BlockTypeLink = "link"
)

// Default block size at creation. Size is not independently editable
// post-creation in the current scope.
const (
	DefaultBlockWidth  = 200.0
	DefaultBlockHeight = 100.0
)

// Position is a block's location on the canvas.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is a block's visual extent.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Block is a positioned content unit on a canvas. CanvasID is immutable
// after creation; position, content and notes are mutable by the owner only.
type Block struct {
	ID        string                 `json:"id" db:"id"`
	CanvasID  string                 `json:"canvas_id" db:"canvas_id"`
	UserID    string                 `json:"user_id" db:"user_id"`
	Type      string                 `json:"type" db:"type"`
	Content   map[string]interface{} `json:"content" db:"content"`
	Position  Position               `json:"position"`
	Size      Size                   `json:"size"`
	Notes     string                 `json:"notes,omitempty" db:"notes"`
	CreatedAt time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt time.Time              `json:"updated_at" db:"updated_at"`
}

// BlockContent is the tagged union behind a block's free-form content,
// discriminated by the block's type field.
type BlockContent interface {
	isBlockContent()
}

// TextContent is the recognized shape for type "text".
type TextContent struct {
	Text string `json:"text"`
}

// LinkContent is the recognized shape for type "link".
type LinkContent struct {
	URL string `json:"url"`
}

// OpaqueContent carries content for unrecognized block types unchanged,
// preserving round-trip fidelity.
type OpaqueContent map[string]interface{}

func (TextContent) isBlockContent()   {}
func (LinkContent) isBlockContent()   {}
func (OpaqueContent) isBlockContent() {}

// TypedContent decodes the raw content map into the shape implied by the
// block's type. Content that does not match the recognized shape for its
// type falls back to OpaqueContent.
func (b *Block) TypedContent() BlockContent {
	switch b.Type {
	case BlockTypeText:
		if text, ok := b.Content["text"].(string); ok {
			return TextContent{Text: text}
		}
	case BlockTypeLink:
		if url, ok := b.Content["url"].(string); ok {
			return LinkContent{URL: url}
		}
	}
	return OpaqueContent(b.Content)
}

// DisplayLabel derives the label a graph node shows for this block.
func (b *Block) DisplayLabel() string {
	switch c := b.TypedContent().(type) {
	case TextContent:
		return c.Text
	case LinkContent:
		return c.URL
	default:
		return b.Type
	}
}
