package prefixer

// Prefixer interface describes a handle for a specific tenant by its owner
// name and a specific and unique database prefix.
type Prefixer interface {
	DBPrefix() string
	DomainName() string
}

type prefixer struct {
	domain string
	prefix string
}

func (p *prefixer) DBPrefix() string   { return p.prefix }
func (p *prefixer) DomainName() string { return p.domain }

// NewPrefixer returns a prefixer with the specified domain and prefix values.
func NewPrefixer(domain, prefix string) Prefixer {
	return &prefixer{
		domain: domain,
		prefix: prefix,
	}
}

// GlobalPrefixer returns a prefixer for stack-scoped databases, like the
// filespace registry.
func GlobalPrefixer() Prefixer {
	return &prefixer{domain: "global", prefix: "global"}
}
