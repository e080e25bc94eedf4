package spec

import (
	"bytes"
	"encoding/json"
)

// Version is the OpenRPC specification version documents are emitted under.
const Version = "1.3.2"

// Document is the root object of an OpenRPC description.
type Document struct {
	OpenRPC      string        `json:"openrpc"`
	Info         Info          `json:"info"`
	Servers      []Server      `json:"servers,omitempty"`
	Methods      []Method      `json:"methods"`
	Components   *Components   `json:"components,omitempty"`
	ExternalDocs *ExternalDocs `json:"externalDocs,omitempty"`
}

// NewDocument returns an empty document for the given service info.
func NewDocument(info Info) Document {
	return Document{
		OpenRPC: Version,
		Info:    info,
		Methods: []Method{},
	}
}

// Method looks up a method by name.
func (d Document) Method(name string) (Method, bool) {
	for _, m := range d.Methods {
		if m.Name == name {
			return m, true
		}
	}
	return Method{}, false
}

// String returns the document as indented JSON.
func (d Document) String() string {
	b, err := d.Encode(FormatJSON)
	if err != nil {
		return "spec: " + err.Error()
	}
	return string(bytes.TrimRight(b, "\n"))
}

// Info carries service metadata. Title and Version are required.
type Info struct {
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	TermsOfService string   `json:"termsOfService,omitempty"`
	Contact        *Contact `json:"contact,omitempty"`
	License        *License `json:"license,omitempty"`
	Version        string   `json:"version"`
}

// NewInfo returns Info with the required fields set.
func NewInfo(title, version string) Info {
	return Info{Title: title, Version: version}
}

type Contact struct {
	Name  string `json:"name,omitempty"`
	URL   string `json:"url,omitempty"`
	Email string `json:"email,omitempty"`
}

type License struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// Server describes a location the methods can be called at.
type Server struct {
	Name        string                    `json:"name,omitempty"`
	URL         string                    `json:"url"`
	Summary     string                    `json:"summary,omitempty"`
	Description string                    `json:"description,omitempty"`
	Variables   map[string]ServerVariable `json:"variables,omitempty"`
}

type ServerVariable struct {
	Enum        []string `json:"enum,omitempty"`
	Default     string   `json:"default"`
	Description string   `json:"description,omitempty"`
}

// ParamStructure declares how a method accepts its params.
type ParamStructure string

const (
	ByName     ParamStructure = "by-name"
	ByPosition ParamStructure = "by-position"
	Either     ParamStructure = "either"
)

// Method describes one callable method.
//
// Deprecated is always emitted so consumers never have to guess the
// default.
type Method struct {
	Name           string              `json:"name"`
	Tags           []Tag               `json:"tags,omitempty"`
	Summary        string              `json:"summary,omitempty"`
	Description    string              `json:"description,omitempty"`
	ExternalDocs   *ExternalDocs       `json:"externalDocs,omitempty"`
	Params         []ContentDescriptor `json:"params"`
	Result         *ContentDescriptor  `json:"result,omitempty"`
	Deprecated     bool                `json:"deprecated"`
	Servers        []Server            `json:"servers,omitempty"`
	Errors         []Error             `json:"errors,omitempty"`
	Links          []Link              `json:"links,omitempty"`
	ParamStructure ParamStructure      `json:"paramStructure,omitempty"`
	Examples       []ExamplePairing    `json:"examples,omitempty"`
}

// ContentDescriptor describes a parameter or a result.
type ContentDescriptor struct {
	Name        string `json:"name"`
	Summary     string `json:"summary,omitempty"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
	Schema      Schema `json:"schema"`
	Deprecated  bool   `json:"deprecated"`
}

// Error documents an application error a method may return.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type Tag struct {
	Name         string        `json:"name"`
	Summary      string        `json:"summary,omitempty"`
	Description  string        `json:"description,omitempty"`
	ExternalDocs *ExternalDocs `json:"externalDocs,omitempty"`
}

type ExternalDocs struct {
	Description string `json:"description,omitempty"`
	URL         string `json:"url"`
}

type Example struct {
	Name          string `json:"name,omitempty"`
	Summary       string `json:"summary,omitempty"`
	Description   string `json:"description,omitempty"`
	Value         any    `json:"value,omitempty"`
	ExternalValue string `json:"externalValue,omitempty"`
}

// ExamplePairing ties example params to an example result.
type ExamplePairing struct {
	Name        string    `json:"name"`
	Summary     string    `json:"summary,omitempty"`
	Description string    `json:"description,omitempty"`
	Params      []Example `json:"params"`
	Result      *Example  `json:"result,omitempty"`
}

type Link struct {
	Name        string          `json:"name"`
	Summary     string          `json:"summary,omitempty"`
	Description string          `json:"description,omitempty"`
	Method      string          `json:"method,omitempty"`
	Params      json.RawMessage `json:"params,omitempty"`
	Server      *Server         `json:"server,omitempty"`
}

// Components holds reusable objects referenced from methods.
type Components struct {
	ContentDescriptors    map[string]ContentDescriptor `json:"contentDescriptors,omitempty"`
	Schemas               map[string]Schema            `json:"schemas,omitempty"`
	Examples              map[string]Example           `json:"examples,omitempty"`
	Links                 map[string]Link              `json:"links,omitempty"`
	Errors                map[string]Error             `json:"errors,omitempty"`
	ExamplePairingObjects map[string]ExamplePairing    `json:"examplePairingObjects,omitempty"`
	Tags                  map[string]Tag               `json:"tags,omitempty"`
}
