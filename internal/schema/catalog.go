// Package schema holds the static operation catalog and validates tool
// arguments against it. Operations are data: adding one means adding a
// table entry, not code.
package schema

import "net/http"

// Kind describes the upstream response shape.
type Kind int

const (
	// KindSyncResult responses carry the final result directly.
	KindSyncResult Kind = iota

	// KindAsyncTask responses carry {task_id, status, ...} for later
	// task_status lookups.
	KindAsyncTask

	// KindArbitraryJSON responses are passed through without expectations.
	KindArbitraryJSON
)

// Encoding selects the request body encoding.
type Encoding int

const (
	EncodingNone Encoding = iota
	EncodingJSON
	EncodingMultipart
)

// FieldType is the declared argument type. Coercion is strict: a string is
// never silently promoted to a number.
type FieldType int

const (
	TypeString FieldType = iota
	TypeInt
	TypeNumber
	TypeBool
	TypeFile
	TypeMap
	TypeMessages
)

// Field declares one argument's validation rules.
type Field struct {
	Name     string
	Type     FieldType
	Required bool

	// String bounds. MaxLen of 0 means unbounded.
	MinLen int
	MaxLen int

	// Numeric bounds, inclusive.
	Min *float64
	Max *float64

	// UUID requires the string to parse as a UUID.
	UUID bool

	Description string
}

// Spec is one operation's catalog entry: the single source of truth for
// dispatch, validation, and the schema exposed over MCP.
type Spec struct {
	Name        string
	Description string
	Path        string
	Method      string
	Encoding    Encoding
	Response    Kind
	Stream      bool
	Fields      []Field

	// PathParams names fields substituted into Path instead of the body.
	PathParams []string

	// CrossCheck validates relations between fields after per-field
	// checks pass.
	CrossCheck func(args map[string]any) []Issue
}

func f64(v float64) *float64 { return &v }

// Catalog maps operation name to its spec.
var Catalog = buildCatalog()

// Operations lists catalog entries in a stable order for tool registration.
var Operations = []string{
	"text_to_image",
	"image_to_image",
	"inpainting",
	"replace_background",
	"text_to_speech",
	"chat",
	"stream_chat",
	"store_vector_db",
	"task_status",
	"pricing",
}

func buildCatalog() map[string]*Spec {
	specs := []*Spec{
		{
			Name:        "text_to_image",
			Description: "Generate an image from a text prompt. Returns a task id to poll with task_status.",
			Path:        "text-to-image",
			Method:      http.MethodPost,
			Encoding:    EncodingJSON,
			Response:    KindAsyncTask,
			Fields: []Field{
				{Name: "prompt", Type: TypeString, Required: true, MinLen: 1, MaxLen: 4000, Description: "Text prompt describing the image"},
				{Name: "model", Type: TypeString, Description: "Model identifier"},
				{Name: "width", Type: TypeInt, Min: f64(64), Max: f64(4096), Description: "Image width in pixels"},
				{Name: "height", Type: TypeInt, Min: f64(64), Max: f64(4096), Description: "Image height in pixels"},
				{Name: "steps", Type: TypeInt, Min: f64(1), Max: f64(150), Description: "Diffusion steps"},
				{Name: "guidance_scale", Type: TypeNumber, Min: f64(0), Max: f64(50), Description: "Prompt adherence strength"},
				{Name: "seed", Type: TypeInt, Description: "Random seed"},
				{Name: "negative_prompt", Type: TypeString, Description: "What the image must not contain"},
			},
		},
		{
			Name:        "image_to_image",
			Description: "Transform an input image guided by a text prompt.",
			Path:        "image-to-image",
			Method:      http.MethodPost,
			Encoding:    EncodingMultipart,
			Response:    KindAsyncTask,
			Fields: []Field{
				{Name: "image", Type: TypeFile, Required: true, Description: "Source image, base64-encoded"},
				{Name: "prompt", Type: TypeString, Required: true, MinLen: 1, MaxLen: 4000, Description: "Text prompt guiding the transformation"},
				{Name: "strength", Type: TypeNumber, Min: f64(0), Max: f64(1), Description: "Transformation strength"},
				{Name: "guidance_scale", Type: TypeNumber, Min: f64(0), Max: f64(50)},
				{Name: "steps", Type: TypeInt, Min: f64(1), Max: f64(150)},
				{Name: "seed", Type: TypeInt},
			},
		},
		{
			Name:        "inpainting",
			Description: "Repaint the masked region of an image from a text prompt.",
			Path:        "inpainting",
			Method:      http.MethodPost,
			Encoding:    EncodingMultipart,
			Response:    KindAsyncTask,
			Fields: []Field{
				{Name: "image", Type: TypeFile, Required: true, Description: "Source image, base64-encoded"},
				{Name: "mask", Type: TypeFile, Required: true, Description: "Mask image; white pixels are repainted"},
				{Name: "prompt", Type: TypeString, Required: true, MinLen: 1, MaxLen: 4000},
				{Name: "guidance_scale", Type: TypeNumber, Min: f64(0), Max: f64(50)},
				{Name: "steps", Type: TypeInt, Min: f64(1), Max: f64(150)},
				{Name: "seed", Type: TypeInt},
			},
		},
		{
			Name:        "replace_background",
			Description: "Replace the background of an image with a generated or provided one.",
			Path:        "replace-background",
			Method:      http.MethodPost,
			Encoding:    EncodingMultipart,
			Response:    KindAsyncTask,
			Fields: []Field{
				{Name: "image", Type: TypeFile, Required: true, Description: "Source image, base64-encoded"},
				{Name: "background_prompt", Type: TypeString, Description: "Prompt describing the new background"},
				{Name: "background_image", Type: TypeFile, Description: "Replacement background image, base64-encoded"},
				{Name: "mask_threshold", Type: TypeNumber, Min: f64(0), Max: f64(1), Description: "Foreground separation threshold"},
			},
		},
		{
			Name:        "text_to_speech",
			Description: "Synthesize speech audio from text.",
			Path:        "text-to-speech",
			Method:      http.MethodPost,
			Encoding:    EncodingJSON,
			Response:    KindAsyncTask,
			Fields: []Field{
				{Name: "text", Type: TypeString, Required: true, MinLen: 1, MaxLen: 10000, Description: "Text to speak"},
				{Name: "voice", Type: TypeString, Description: "Voice identifier"},
				{Name: "language", Type: TypeString, Description: "Language code"},
				{Name: "speed", Type: TypeNumber, Min: f64(0.25), Max: f64(4), Description: "Playback speed multiplier"},
				{Name: "pitch", Type: TypeNumber, Description: "Pitch adjustment"},
			},
		},
		{
			Name:        "chat",
			Description: "Run a chat completion and return the full reply.",
			Path:        "chat",
			Method:      http.MethodPost,
			Encoding:    EncodingJSON,
			Response:    KindSyncResult,
			Fields: []Field{
				{Name: "messages", Type: TypeMessages, Required: true, Description: "Conversation messages, oldest first"},
				{Name: "model", Type: TypeString, Description: "Model identifier"},
				{Name: "temperature", Type: TypeNumber, Min: f64(0), Max: f64(2), Description: "Sampling temperature"},
				{Name: "max_tokens", Type: TypeInt, Min: f64(1), Description: "Maximum tokens to generate"},
			},
		},
		{
			Name:        "stream_chat",
			Description: "Run a streaming chat completion; the stream is aggregated into one reply.",
			Path:        "streamchat",
			Method:      http.MethodPost,
			Encoding:    EncodingJSON,
			Response:    KindSyncResult,
			Stream:      true,
			Fields: []Field{
				{Name: "messages", Type: TypeMessages, Required: true, Description: "Conversation messages, oldest first"},
				{Name: "model", Type: TypeString, Description: "Model identifier"},
				{Name: "temperature", Type: TypeNumber, Min: f64(0), Max: f64(2), Description: "Sampling temperature"},
				{Name: "max_tokens", Type: TypeInt, Min: f64(1), Description: "Maximum tokens to generate"},
			},
		},
		{
			Name:        "store_vector_db",
			Description: "Chunk a document and store its embeddings in a vector database collection.",
			Path:        "store-file-in-vector-database",
			Method:      http.MethodPost,
			Encoding:    EncodingMultipart,
			Response:    KindSyncResult,
			Fields: []Field{
				{Name: "file", Type: TypeFile, Required: true, Description: "Document to ingest, base64-encoded"},
				{Name: "collection_name", Type: TypeString, Required: true, MinLen: 1, Description: "Target collection"},
				{Name: "metadata", Type: TypeMap, Description: "Metadata stored with each chunk"},
				{Name: "chunk_size", Type: TypeInt, Min: f64(1), Description: "Characters per chunk"},
				{Name: "overlap", Type: TypeInt, Min: f64(0), Description: "Characters shared between adjacent chunks"},
			},
			CrossCheck: func(args map[string]any) []Issue {
				overlap, hasOverlap := args["overlap"].(int64)
				size, hasSize := args["chunk_size"].(int64)
				if hasOverlap && hasSize && overlap >= size {
					return []Issue{{Path: "overlap", Message: "must be less than chunk_size", Code: "max"}}
				}
				return nil
			},
		},
		{
			Name:        "task_status",
			Description: "Look up the status of a previously submitted task.",
			Path:        "task-status/{task_id}",
			Method:      http.MethodGet,
			Encoding:    EncodingNone,
			Response:    KindSyncResult,
			PathParams:  []string{"task_id"},
			Fields: []Field{
				{Name: "task_id", Type: TypeString, Required: true, UUID: true, Description: "Task identifier returned by a generation operation"},
			},
		},
		{
			Name:        "pricing",
			Description: "Fetch the current pricing table.",
			Path:        "pricing",
			Method:      http.MethodGet,
			Encoding:    EncodingNone,
			Response:    KindSyncResult,
		},
	}

	catalog := make(map[string]*Spec, len(specs))
	for _, s := range specs {
		catalog[s.Name] = s
	}
	return catalog
}

// Lookup resolves an operation name, returning nil when unknown.
func Lookup(name string) *Spec {
	return Catalog[name]
}
