package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/datahog/internal/model"
)

// TxFile is a YAML document holding transactions to import.
type TxFile struct {
	Transactions []TxSpec `yaml:"transactions"`
}

// TxSpec is the YAML form of one transaction.
type TxSpec struct {
	// Timestamp in nanoseconds. Omitted means the builder's clock.
	Timestamp *int64 `yaml:"ts,omitempty"`

	// Source names the originating source. Omitted means the builder's
	// default source.
	Source string `yaml:"source,omitempty"`

	Records []RecordSpec `yaml:"records"`
}

// RecordSpec is the YAML form of a record. Exactly one field is set.
type RecordSpec struct {
	CreateNode *NodeSpec       `yaml:"create_node,omitempty"`
	UpdateNode *NodeUpdateSpec `yaml:"update_node,omitempty"`
	DeleteNode string          `yaml:"delete_node,omitempty"`
	CreateEdge *EdgeSpec       `yaml:"create_edge,omitempty"`
	UpdateEdge *EdgeUpdateSpec `yaml:"update_edge,omitempty"`
	DeleteEdge string          `yaml:"delete_edge,omitempty"`
}

// NodeSpec creates a node. Text is stored inline; Hash references content
// held elsewhere. At most one of them is set.
type NodeSpec struct {
	ID      string `yaml:"id"`
	Kind    string `yaml:"kind"`
	Label   string `yaml:"label,omitempty"`
	Text    string `yaml:"text,omitempty"`
	Hash    string `yaml:"hash,omitempty"`
	Version uint32 `yaml:"version,omitempty"`
}

// NodeUpdateSpec updates a node. With Migrate set, the label and text
// changes are applied under the new version.
type NodeUpdateSpec struct {
	ID      string  `yaml:"id"`
	Label   *string `yaml:"label,omitempty"`
	Text    *string `yaml:"text,omitempty"`
	Migrate *uint32 `yaml:"migrate,omitempty"`
}

// EdgeSpec creates an edge. A missing validity means valid from the
// transaction's timestamp.
type EdgeSpec struct {
	ID       string        `yaml:"id"`
	Kind     string        `yaml:"kind"`
	From     string        `yaml:"from"`
	To       string        `yaml:"to"`
	Validity *ValiditySpec `yaml:"validity,omitempty"`
}

// EdgeUpdateSpec updates an edge. From and To move it and must be given
// together.
type EdgeUpdateSpec struct {
	ID       string        `yaml:"id"`
	Kind     string        `yaml:"kind,omitempty"`
	From     string        `yaml:"from,omitempty"`
	To       string        `yaml:"to,omitempty"`
	Validity *ValiditySpec `yaml:"validity,omitempty"`
}

// ValiditySpec is From, To or, with both bounds, a Period.
type ValiditySpec struct {
	From *int64 `yaml:"from,omitempty"`
	To   *int64 `yaml:"to,omitempty"`
}

func (v ValiditySpec) build() (model.Validity, error) {
	switch {
	case v.From != nil && v.To != nil:
		return model.Period(model.Timestamp(*v.From), model.Timestamp(*v.To)), nil
	case v.From != nil:
		return model.From(model.Timestamp(*v.From)), nil
	case v.To != nil:
		return model.To(model.Timestamp(*v.To)), nil
	}
	return model.Validity{}, fmt.Errorf("validity needs from, to or both")
}

// ParseTxFile decodes a transaction file. Unknown fields are rejected.
func ParseTxFile(data []byte) (*TxFile, error) {
	var f TxFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(f.Transactions) == 0 {
		return nil, fmt.Errorf("transactions list is required and must be non-empty")
	}
	return &f, nil
}

// LoadTxFile reads and decodes a transaction file.
func LoadTxFile(path string) (*TxFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read transaction file: %w", err)
	}
	return ParseTxFile(data)
}

// Builder turns TxSpecs into transactions.
type Builder struct {
	Names *Names

	// Source is used for specs that name none.
	Source model.SourceID

	// Clock stamps specs without a timestamp. Nil means model.DefaultClock.
	Clock model.Clock
}

// NewBuilder returns a builder with fresh names and the given default
// source.
func NewBuilder(src model.SourceID) *Builder {
	return &Builder{Names: NewNames(), Source: src}
}

// Build converts one spec. The result is not validated: an empty record
// list yields an empty transaction, which the world view rejects as
// malformed.
func (b *Builder) Build(spec TxSpec) (model.Transaction, error) {
	tx := model.Transaction{Source: b.Source, Records: []model.Record{}}
	if spec.Timestamp != nil {
		tx.Timestamp = model.Timestamp(*spec.Timestamp)
	} else {
		clock := b.Clock
		if clock == nil {
			clock = model.DefaultClock
		}
		tx.Timestamp = clock.Now()
	}
	if spec.Source != "" {
		src, err := b.Names.Source(spec.Source)
		if err != nil {
			return model.Transaction{}, err
		}
		tx.Source = src
	}
	for i, rs := range spec.Records {
		r, err := b.record(tx.Timestamp, rs)
		if err != nil {
			return model.Transaction{}, fmt.Errorf("record[%d]: %w", i, err)
		}
		tx.Records = append(tx.Records, r)
	}
	return tx, nil
}

// BuildAll converts specs in file order.
func (b *Builder) BuildAll(specs []TxSpec) ([]model.Transaction, error) {
	out := make([]model.Transaction, 0, len(specs))
	for i, spec := range specs {
		tx, err := b.Build(spec)
		if err != nil {
			return nil, fmt.Errorf("transaction[%d]: %w", i, err)
		}
		out = append(out, tx)
	}
	return out, nil
}

func (b *Builder) record(ts model.Timestamp, rs RecordSpec) (model.Record, error) {
	set := 0
	for _, ok := range []bool{
		rs.CreateNode != nil, rs.UpdateNode != nil, rs.DeleteNode != "",
		rs.CreateEdge != nil, rs.UpdateEdge != nil, rs.DeleteEdge != "",
	} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return model.Record{}, fmt.Errorf("exactly one operation per record, got %d", set)
	}

	switch {
	case rs.CreateNode != nil:
		return b.createNode(*rs.CreateNode)
	case rs.UpdateNode != nil:
		return b.updateNode(*rs.UpdateNode)
	case rs.DeleteNode != "":
		id, err := b.Names.Node(rs.DeleteNode)
		if err != nil {
			return model.Record{}, err
		}
		return model.DeleteNode(id), nil
	case rs.CreateEdge != nil:
		return b.createEdge(ts, *rs.CreateEdge)
	case rs.UpdateEdge != nil:
		return b.updateEdge(*rs.UpdateEdge)
	default:
		id, err := b.Names.Edge(rs.DeleteEdge)
		if err != nil {
			return model.Record{}, err
		}
		return model.DeleteEdge(id), nil
	}
}

func (b *Builder) createNode(s NodeSpec) (model.Record, error) {
	id, err := b.Names.Node(s.ID)
	if err != nil {
		return model.Record{}, err
	}
	kind, err := model.ParseNodeKind(s.Kind)
	if err != nil {
		return model.Record{}, fmt.Errorf("node %s: %w", s.ID, err)
	}
	data, err := nodeData(s.Text, s.Hash)
	if err != nil {
		return model.Record{}, fmt.Errorf("node %s: %w", s.ID, err)
	}
	n := model.NewNode(id, kind, s.Label, data)
	n.OpVersion = model.OpVersion(s.Version)
	return model.CreateNode(n), nil
}

func nodeData(text, hash string) (model.DataHash, error) {
	switch {
	case text != "" && hash != "":
		return model.DataHash{}, fmt.Errorf("text and hash are mutually exclusive")
	case hash != "":
		h, err := model.ParseU256(hash)
		if err != nil {
			return model.DataHash{}, fmt.Errorf("hash: %w", err)
		}
		return model.HashRef(h), nil
	case text != "":
		return model.InlineData([]byte(text)), nil
	}
	return model.DataHash{}, nil
}

func (b *Builder) updateNode(s NodeUpdateSpec) (model.Record, error) {
	id, err := b.Names.Node(s.ID)
	if err != nil {
		return model.Record{}, err
	}
	var updates []model.NodeUpdate
	if s.Label != nil {
		updates = append(updates, model.SetLabel(*s.Label))
	}
	if s.Text != nil {
		updates = append(updates, model.SetData(model.InlineData([]byte(*s.Text))))
	}
	if s.Migrate != nil {
		updates = []model.NodeUpdate{model.Migrate(model.OpVersion(*s.Migrate), updates...)}
	}
	if len(updates) == 0 {
		return model.Record{}, fmt.Errorf("node %s: update has no changes", s.ID)
	}
	return model.UpdateNode(id, updates...), nil
}

func (b *Builder) createEdge(ts model.Timestamp, s EdgeSpec) (model.Record, error) {
	id, err := b.Names.Edge(s.ID)
	if err != nil {
		return model.Record{}, err
	}
	from, err := b.Names.Node(s.From)
	if err != nil {
		return model.Record{}, fmt.Errorf("edge %s: from: %w", s.ID, err)
	}
	to, err := b.Names.Node(s.To)
	if err != nil {
		return model.Record{}, fmt.Errorf("edge %s: to: %w", s.ID, err)
	}
	validity := model.From(ts)
	if s.Validity != nil {
		if validity, err = s.Validity.build(); err != nil {
			return model.Record{}, fmt.Errorf("edge %s: %w", s.ID, err)
		}
	}
	return model.CreateEdge(model.NewEdge(id, model.EdgeKind(s.Kind), from, to, validity)), nil
}

func (b *Builder) updateEdge(s EdgeUpdateSpec) (model.Record, error) {
	id, err := b.Names.Edge(s.ID)
	if err != nil {
		return model.Record{}, err
	}
	var updates []model.EdgeUpdate
	switch {
	case s.From != "" && s.To != "":
		from, err := b.Names.Node(s.From)
		if err != nil {
			return model.Record{}, err
		}
		to, err := b.Names.Node(s.To)
		if err != nil {
			return model.Record{}, err
		}
		updates = append(updates, model.MoveEdge(from, to))
	case s.From != "" || s.To != "":
		return model.Record{}, fmt.Errorf("edge %s: from and to must be given together", s.ID)
	}
	if s.Kind != "" {
		updates = append(updates, model.SetEdgeKind(model.EdgeKind(s.Kind)))
	}
	if s.Validity != nil {
		v, err := s.Validity.build()
		if err != nil {
			return model.Record{}, fmt.Errorf("edge %s: %w", s.ID, err)
		}
		updates = append(updates, model.SetValidity(v))
	}
	if len(updates) == 0 {
		return model.Record{}, fmt.Errorf("edge %s: update has no changes", s.ID)
	}
	return model.UpdateEdge(id, updates...), nil
}

