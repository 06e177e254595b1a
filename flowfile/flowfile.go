// Package flowfile reads flows authored as YAML (or JSON) documents.
//
//	start: welcome
//	nodes:
//	  - id: welcome
//	    type: text
//	    content: {text: "Hi!"}
//	    next: policy
//	  - id: policy
//	    type: data_policy
//	    next: email
//	  - id: email
//	    type: email
//	    variable_key: email
//	    next: bye
//	  - id: bye
//	    type: text
//	    end: true
package flowfile

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/meikuraledutech/flow"
)

// Document is a decoded flow file. Node ids are file-local and become
// temporary ids when the document is saved.
type Document struct {
	Start string
	Nodes []flow.Node
}

type fileDoc struct {
	Start string     `yaml:"start"`
	Nodes []fileNode `yaml:"nodes"`
}

type fileNode struct {
	ID          string             `yaml:"id"`
	Type        string             `yaml:"type"`
	Content     any                `yaml:"content"`
	VariableKey string             `yaml:"variable_key"`
	Options     []fileOption       `yaml:"options"`
	Next        string             `yaml:"next"`
	End         bool               `yaml:"end"`
	AllowLoop   bool               `yaml:"allow_loop"`
	TypingTime  int                `yaml:"typing_time"`
	Link        *flow.LinkAction   `yaml:"link"`
	Policy      *flow.PolicyLabels `yaml:"policy"`
	Notify      *flow.NotifyMeta   `yaml:"notify"`
}

type fileOption struct {
	Label string `yaml:"label"`
	Value string `yaml:"value"`
	Next  string `yaml:"next"`
}

// Decode parses a flow document. Unknown keys are rejected.
func Decode(r io.Reader) (*Document, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var fd fileDoc
	if err := dec.Decode(&fd); err != nil {
		return nil, fmt.Errorf("flowfile: decode: %w", err)
	}

	doc := &Document{Start: fd.Start, Nodes: make([]flow.Node, 0, len(fd.Nodes))}
	for i, fn := range fd.Nodes {
		n := flow.Node{
			ID:              fn.ID,
			Type:            flow.NodeType(fn.Type),
			Order:           i,
			VariableKey:     fn.VariableKey,
			NextNodeID:      fn.Next,
			EndConversation: fn.End,
			AllowLoop:       fn.AllowLoop,
			TypingTime:      fn.TypingTime,
			Link:            fn.Link,
			Policy:          fn.Policy,
			Notify:          fn.Notify,
		}
		if fn.Content != nil {
			raw, err := json.Marshal(fn.Content)
			if err != nil {
				return nil, fmt.Errorf("flowfile: node %s content: %w", fn.ID, err)
			}
			n.Content = raw
		}
		for _, o := range fn.Options {
			n.Options = append(n.Options, flow.Option{Label: o.Label, Value: o.Value, NextNodeID: o.Next})
		}
		doc.Nodes = append(doc.Nodes, n)
	}
	return doc, nil
}

// Validate runs the graph validator over the document.
func (d *Document) Validate(strict bool) error {
	return flow.Validate(d.Nodes, d.Start, strict)
}
