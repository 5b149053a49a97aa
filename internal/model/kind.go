package model

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// KindClass is the top-level tag of a NodeKind.
type KindClass string

const (
	KindRender    KindClass = "render"
	KindLabel     KindClass = "label"
	KindContainer KindClass = "container"
)

// RenderStyle is the payload of a render node.
type RenderStyle string

const (
	RenderMarkdown RenderStyle = "markdown"
	RenderGraph    RenderStyle = "graph"
	RenderTabular  RenderStyle = "tabular"
)

// ContainerFormat is the payload of a container node.
type ContainerFormat string

const (
	ContainerFormatted ContainerFormat = "formatted"
	ContainerMimeType  ContainerFormat = "mime"
	ContainerSchema    ContainerFormat = "schema"
	ContainerConcrete  ContainerFormat = "concrete"
)

// NodeKind is a tagged union over render, label and container nodes.
// Only the field matching Class is meaningful.
type NodeKind struct {
	Class     KindClass       `json:"class"`
	Render    RenderStyle     `json:"render,omitempty"`
	Container ContainerFormat `json:"container,omitempty"`
	MimeType  string          `json:"mime_type,omitempty"`
}

// RenderKind returns a render NodeKind.
func RenderKind(style RenderStyle) NodeKind {
	return NodeKind{Class: KindRender, Render: style}
}

// LabelKind returns the label NodeKind.
func LabelKind() NodeKind {
	return NodeKind{Class: KindLabel}
}

// ContainerKind returns a container NodeKind.
func ContainerKind(format ContainerFormat) NodeKind {
	return NodeKind{Class: KindContainer, Container: format}
}

// MimeKind returns a container NodeKind holding content of the given MIME type.
func MimeKind(mime string) NodeKind {
	return NodeKind{Class: KindContainer, Container: ContainerMimeType, MimeType: mime}
}

// IsLabel reports whether the kind is a label.
func (k NodeKind) IsLabel() bool { return k.Class == KindLabel }

// Validate checks that exactly the fields for Class are set.
func (k NodeKind) Validate() error {
	switch k.Class {
	case KindLabel:
		if k.Render != "" || k.Container != "" || k.MimeType != "" {
			return fmt.Errorf("label kind carries no payload")
		}
	case KindRender:
		switch k.Render {
		case RenderMarkdown, RenderGraph, RenderTabular:
		default:
			return fmt.Errorf("unknown render style %q", k.Render)
		}
		if k.Container != "" || k.MimeType != "" {
			return fmt.Errorf("render kind carries container fields")
		}
	case KindContainer:
		switch k.Container {
		case ContainerMimeType:
			if k.MimeType == "" {
				return fmt.Errorf("mime container requires mime_type")
			}
		case ContainerFormatted, ContainerSchema, ContainerConcrete:
			if k.MimeType != "" {
				return fmt.Errorf("container %q carries no mime_type", k.Container)
			}
		default:
			return fmt.Errorf("unknown container format %q", k.Container)
		}
		if k.Render != "" {
			return fmt.Errorf("container kind carries render style")
		}
	default:
		return fmt.Errorf("unknown node kind %q", k.Class)
	}
	return nil
}

func (k NodeKind) String() string {
	switch k.Class {
	case KindRender:
		return "render/" + string(k.Render)
	case KindContainer:
		if k.Container == ContainerMimeType {
			return "container/mime:" + k.MimeType
		}
		return "container/" + string(k.Container)
	}
	return string(k.Class)
}

// ParseNodeKind reads the String form of a kind. The class prefix may be
// dropped for render styles and container formats, so "markdown" and
// "mime:text/plain" are accepted as well as "render/markdown".
func ParseNodeKind(s string) (NodeKind, error) {
	class, rest, ok := strings.Cut(s, "/")
	if !ok {
		rest = s
		switch {
		case s == string(KindLabel):
			return LabelKind(), nil
		case strings.HasPrefix(s, string(ContainerMimeType)+":"):
			class = string(KindContainer)
		default:
			switch RenderStyle(s) {
			case RenderMarkdown, RenderGraph, RenderTabular:
				class = string(KindRender)
			default:
				class = string(KindContainer)
			}
		}
	}
	var k NodeKind
	switch KindClass(class) {
	case KindRender:
		k = RenderKind(RenderStyle(rest))
	case KindContainer:
		if mime, ok := strings.CutPrefix(rest, string(ContainerMimeType)+":"); ok {
			k = MimeKind(mime)
		} else {
			k = ContainerKind(ContainerFormat(rest))
		}
	default:
		return NodeKind{}, fmt.Errorf("unknown node kind %q", s)
	}
	if err := k.Validate(); err != nil {
		return NodeKind{}, err
	}
	return k, nil
}

// EdgeKind is the relationship an Edge expresses.
type EdgeKind string

const (
	// EdgeEquality links nodes considered aliases of one logical entity.
	EdgeEquality EdgeKind = "equality"
	// EdgeDefinition points from an object to a label.
	EdgeDefinition EdgeKind = "definition"
	// EdgeUsing points from a client to an object it uses.
	EdgeUsing EdgeKind = "using"
	// EdgeContains points from a container to an object.
	EdgeContains EdgeKind = "contains"
)

// Validate rejects unknown edge kinds.
func (k EdgeKind) Validate() error {
	switch k {
	case EdgeEquality, EdgeDefinition, EdgeUsing, EdgeContains:
		return nil
	}
	return fmt.Errorf("unknown edge kind %q", k)
}

// ValidityType tags a Validity.
type ValidityType string

const (
	ValidFrom   ValidityType = "from"
	ValidTo     ValidityType = "to"
	ValidPeriod ValidityType = "period"
)

// Validity is the temporal span during which an Edge holds.
// From(t) activates at t. To(t) expires at t. Period(s, e) holds in [s, e).
type Validity struct {
	Type  ValidityType `json:"type"`
	Start Timestamp    `json:"start,omitempty"`
	End   Timestamp    `json:"end,omitempty"`
}

// From returns a validity that activates at ts and never expires.
func From(ts Timestamp) Validity { return Validity{Type: ValidFrom, Start: ts} }

// To returns a validity that holds until ts.
func To(ts Timestamp) Validity { return Validity{Type: ValidTo, End: ts} }

// Period returns a validity that holds from start until end.
func Period(start, end Timestamp) Validity {
	return Validity{Type: ValidPeriod, Start: start, End: end}
}

// Validate checks the tag and, for periods, that start <= end.
func (v Validity) Validate() error {
	switch v.Type {
	case ValidFrom:
		if v.End != 0 {
			return fmt.Errorf("from validity carries an end")
		}
	case ValidTo:
		if v.Start != 0 {
			return fmt.Errorf("to validity carries a start")
		}
	case ValidPeriod:
		if v.Start > v.End {
			return fmt.Errorf("period start %d is after end %d", v.Start, v.End)
		}
	default:
		return fmt.Errorf("unknown validity %q", v.Type)
	}
	return nil
}

// ActiveAt reports whether ts falls inside the validity span.
func (v Validity) ActiveAt(ts Timestamp) bool {
	switch v.Type {
	case ValidFrom:
		return ts >= v.Start
	case ValidTo:
		return ts < v.End
	case ValidPeriod:
		return ts >= v.Start && ts < v.End
	}
	return false
}

// DataHash is a node payload: inline bytes or a reference to externally
// stored content. Exactly one variant is set; a nil Hash means inline.
type DataHash struct {
	Inline []byte
	Hash   *U256
}

// InlineData wraps bytes as an inline payload.
func InlineData(b []byte) DataHash {
	return DataHash{Inline: append([]byte(nil), b...)}
}

// HashRef references content stored outside the log.
func HashRef(h U256) DataHash {
	return DataHash{Hash: &h}
}

// IsHash reports whether the payload is an external reference.
func (d DataHash) IsHash() bool { return d.Hash != nil }

// Equal compares two payloads by variant and content.
func (d DataHash) Equal(o DataHash) bool {
	if d.IsHash() != o.IsHash() {
		return false
	}
	if d.IsHash() {
		return *d.Hash == *o.Hash
	}
	return string(d.Inline) == string(o.Inline)
}

// Clone returns a deep copy.
func (d DataHash) Clone() DataHash {
	if d.IsHash() {
		return HashRef(*d.Hash)
	}
	if d.Inline == nil {
		return DataHash{}
	}
	return InlineData(d.Inline)
}

type dataHashJSON struct {
	Bytes *string `json:"bytes,omitempty"`
	Hash  *U256   `json:"hash,omitempty"`
}

// MarshalJSON encodes {"bytes": base64} or {"hash": hex}.
func (d DataHash) MarshalJSON() ([]byte, error) {
	if d.IsHash() {
		return json.Marshal(dataHashJSON{Hash: d.Hash})
	}
	enc := base64.StdEncoding.EncodeToString(d.Inline)
	return json.Marshal(dataHashJSON{Bytes: &enc})
}

// UnmarshalJSON decodes either variant and rejects both or neither.
func (d *DataHash) UnmarshalJSON(data []byte) error {
	var raw dataHashJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch {
	case raw.Bytes != nil && raw.Hash != nil:
		return fmt.Errorf("data: both bytes and hash set")
	case raw.Hash != nil:
		*d = HashRef(*raw.Hash)
	case raw.Bytes != nil:
		b, err := base64.StdEncoding.DecodeString(*raw.Bytes)
		if err != nil {
			return fmt.Errorf("data: %w", err)
		}
		*d = DataHash{Inline: b}
	default:
		return fmt.Errorf("data: neither bytes nor hash set")
	}
	return nil
}
