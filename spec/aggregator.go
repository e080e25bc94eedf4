package spec

import (
	"strings"
	"unicode"
)

// Aggregator collects method specs in the order they are added. It does not
// sort or de-duplicate; the registry in front of it guarantees unique names.
type Aggregator struct {
	methods    []Method
	servers    []Server
	components *Components
}

func (a *Aggregator) Add(m Method) {
	a.methods = append(a.methods, m)
}

func (a *Aggregator) Len() int {
	return len(a.methods)
}

// AddServer appends a server entry to every document produced afterwards.
func (a *Aggregator) AddServer(s Server) {
	a.servers = append(a.servers, s)
}

// SetComponents attaches reusable components to produced documents.
func (a *Aggregator) SetComponents(c *Components) {
	a.components = c
}

// Document assembles the collected methods under info. The returned
// document does not share slices with the aggregator.
func (a *Aggregator) Document(info Info) Document {
	doc := NewDocument(info)
	doc.Methods = append(doc.Methods, a.methods...)
	if len(a.servers) > 0 {
		doc.Servers = append([]Server(nil), a.servers...)
	}
	doc.Components = a.components
	return doc
}

// JoinDoc joins documentation lines into a description. Leading whitespace
// is trimmed from each line; no lines yields "".
func JoinDoc(lines ...string) string {
	if len(lines) == 0 {
		return ""
	}
	trimmed := make([]string, len(lines))
	for i, l := range lines {
		trimmed[i] = strings.TrimLeftFunc(l, unicode.IsSpace)
	}
	return strings.Join(trimmed, "\n")
}

// ResultName returns the result descriptor name for a method:
// "get_user" becomes "GetUserResponse".
func ResultName(method string) string {
	return UpperCamel(method) + "Response"
}

// UpperCamel converts snake_case, kebab-case, dotted and lowerCamel names
// to UpperCamelCase.
func UpperCamel(s string) string {
	var b strings.Builder
	upper := true
	for _, r := range s {
		switch {
		case r == '_' || r == '-' || r == '.' || unicode.IsSpace(r):
			upper = true
		case upper:
			b.WriteRune(unicode.ToUpper(r))
			upper = false
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
