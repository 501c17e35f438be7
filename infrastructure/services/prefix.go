package services

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	ErrInvalidPrefix = errors.New("invalid service prefix")

	prefixIDPattern   = regexp.MustCompile(`^[a-z][a-z0-9]*-$`)
	prefixNamePattern = regexp.MustCompile(`^[A-Z][A-Za-z0-9]*$`)
)

// ServicePrefix namespaces every resource of one subsystem.
//
// ID is the short lowercase prefix used for Pulumi logical names and AWS
// identifiers ("ee-"), Name is the CamelCase prefix used for display names ("Ee").
type ServicePrefix struct {
	ID   string
	Name string
}

// NewServicePrefix validates and returns a ServicePrefix.
func NewServicePrefix(id, name string) (ServicePrefix, error) {
	if !prefixIDPattern.MatchString(id) {
		return ServicePrefix{}, fmt.Errorf("%w: id %q must be lowercase and end with '-'", ErrInvalidPrefix, id)
	}
	if !prefixNamePattern.MatchString(name) {
		return ServicePrefix{}, fmt.Errorf("%w: name %q must be CamelCase", ErrInvalidPrefix, name)
	}
	return ServicePrefix{ID: id, Name: name}, nil
}

// ResourceID returns the deployment identifier for a component-local suffix.
func (p ServicePrefix) ResourceID(suffix string) string {
	return p.ID + suffix
}

// ResourceName returns the display name for a component-local suffix.
func (p ServicePrefix) ResourceName(suffix string) string {
	return p.Name + suffix
}

// CamelCase turns a local id such as "rds-mysql" into "RdsMysql".
func CamelCase(id string) string {
	title := cases.Title(language.Und)
	words := strings.FieldsFunc(id, func(r rune) bool {
		return r == '-' || r == '_' || r == ' ' || r == '.'
	})

	var b strings.Builder
	for _, w := range words {
		b.WriteString(title.String(w))
	}
	return b.String()
}

// nameOrDerived returns name, or the CamelCase form of id when name is empty.
func nameOrDerived(name, id string) string {
	if name != "" {
		return name
	}
	return CamelCase(id)
}

func nameTags(name string) pulumi.StringMap {
	return pulumi.StringMap{
		"Name": pulumi.String(name),
	}
}
