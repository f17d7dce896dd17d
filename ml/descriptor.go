package ml

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Descriptor is the static identity of a model type. Its fields cannot be
// changed after construction; declare one package-level Descriptor per model
// type and embed it in the model struct.
type Descriptor struct {
	name          string
	qualifiedName string
	description   string
	major         int
	minor         int
}

type descriptorFields struct {
	Name          string `json:"name" validate:"required"`
	QualifiedName string `json:"qualified_name" validate:"required,qualifiedname"`
	Description   string `json:"description" validate:"required"`
	MajorVersion  int    `json:"major_version" validate:"gte=0"`
	MinorVersion  int    `json:"minor_version" validate:"gte=0"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("qualifiedname", func(fl validator.FieldLevel) bool {
		return IsQualifiedName(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

// NewDescriptor validates and builds a Descriptor.
func NewDescriptor(name, qualifiedName, description string, major, minor int) (Descriptor, error) {
	fields := descriptorFields{
		Name:          name,
		QualifiedName: qualifiedName,
		Description:   description,
		MajorVersion:  major,
		MinorVersion:  minor,
	}
	if err := validate.Struct(fields); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok {
			msgs := make([]string, 0, len(errs))
			for _, e := range errs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", e.Field(), e.Tag()))
			}
			return Descriptor{}, fmt.Errorf("invalid descriptor %q: %s", qualifiedName, strings.Join(msgs, ", "))
		}
		return Descriptor{}, fmt.Errorf("invalid descriptor %q: %w", qualifiedName, err)
	}
	return Descriptor{
		name:          name,
		qualifiedName: qualifiedName,
		description:   description,
		major:         major,
		minor:         minor,
	}, nil
}

// MustDescriptor is like NewDescriptor but panics on invalid metadata.
func MustDescriptor(name, qualifiedName, description string, major, minor int) Descriptor {
	d, err := NewDescriptor(name, qualifiedName, description, major, minor)
	if err != nil {
		panic(err)
	}
	return d
}

// DescriptorOf reads the metadata accessors of m.
func DescriptorOf(m Model) Descriptor {
	return Descriptor{
		name:          m.Name(),
		qualifiedName: m.QualifiedName(),
		description:   m.Description(),
		major:         m.MajorVersion(),
		minor:         m.MinorVersion(),
	}
}

func (d Descriptor) Name() string          { return d.name }
func (d Descriptor) QualifiedName() string { return d.qualifiedName }
func (d Descriptor) Description() string   { return d.description }
func (d Descriptor) MajorVersion() int     { return d.major }
func (d Descriptor) MinorVersion() int     { return d.minor }

// Version formats the version as "major.minor".
func (d Descriptor) Version() string {
	return fmt.Sprintf("%d.%d", d.major, d.minor)
}

func (d Descriptor) String() string {
	return d.qualifiedName + "@" + d.Version()
}

func (d Descriptor) MarshalJSON() ([]byte, error) {
	return json.Marshal(descriptorFields{
		Name:          d.name,
		QualifiedName: d.qualifiedName,
		Description:   d.description,
		MajorVersion:  d.major,
		MinorVersion:  d.minor,
	})
}

// Compatible reports whether callers written against a can use b: same model
// and same major version.
func Compatible(a, b Descriptor) bool {
	return a.qualifiedName == b.qualifiedName && a.major == b.major
}

// SchemaID is the stable document URI under which a model schema is exported.
func SchemaID(base string, m Model, d Direction) string {
	return fmt.Sprintf("%s/%s/%d.%d/%s.json",
		strings.TrimRight(base, "/"), m.QualifiedName(), m.MajorVersion(), m.MinorVersion(), d)
}

// Slugify folds s into the URL-safe form used for qualified names: accents
// stripped, lower case, and any run of other characters replaced by a single
// separator.
func Slugify(s string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		folded = s
	}
	folded = cases.Lower(language.Und).String(folded)

	var b strings.Builder
	pendingSep := rune(0)
	for _, r := range folded {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if pendingSep != 0 && b.Len() > 0 {
				b.WriteRune(pendingSep)
			}
			pendingSep = 0
			b.WriteRune(r)
		case r == '-' || r == '.' || r == '_':
			if pendingSep == 0 {
				pendingSep = r
			}
		default:
			if pendingSep == 0 {
				pendingSep = '_'
			}
		}
	}
	return b.String()
}

// IsQualifiedName reports whether s is a non-empty slug.
func IsQualifiedName(s string) bool {
	return s != "" && Slugify(s) == s
}
