package email

// Header names used to carry metadata extensions through MIME headers.
const (
	CategoryHeader         = "X-Category"
	TemplateIDHeader       = "X-Template-UUID"
	CustomVariablePrefix   = "X-Custom-Variable-"
	TemplateVariablePrefix = "X-Template-Variable-"
)

// Header is one entry of a message's header collection. The set of
// implementations is closed: GenericHeader, CustomVariable, Category,
// TemplateID and TemplateVariable.
type Header interface {
	// HeaderName returns the MIME header name the entry travels under.
	HeaderName() string

	header()
}

// GenericHeader is an arbitrary MIME header.
type GenericHeader struct {
	Name  string
	Value string
}

// CustomVariable is a key/value pair echoed back by the sending API in
// webhooks. Name is the logical key without CustomVariablePrefix.
type CustomVariable struct {
	Name  string
	Value string
}

// Category tags a message for the API's statistics. A message carries at
// most one.
type Category struct {
	Value string
}

// TemplateID references a stored template by UUID. A message carries at
// most one.
type TemplateID struct {
	Value string
}

// TemplateVariable is a value substituted into the referenced template.
// Value is any JSON value and is sent as is.
type TemplateVariable struct {
	Name  string
	Value any
}

func (h GenericHeader) HeaderName() string { return h.Name }
func (h CustomVariable) HeaderName() string { return CustomVariablePrefix + h.Name }
func (Category) HeaderName() string { return CategoryHeader }
func (TemplateID) HeaderName() string { return TemplateIDHeader }
func (h TemplateVariable) HeaderName() string { return TemplateVariablePrefix + h.Name }

func (GenericHeader) header() {}
func (CustomVariable) header() {}
func (Category) header() {}
func (TemplateID) header() {}
func (TemplateVariable) header() {}
