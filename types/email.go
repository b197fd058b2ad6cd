package types

import (
	"errors"
	"strings"

	"golang.org/x/net/idna"
)

var (
	ErrInvalidEmailAddress = errors.New("invalid e-mail address, address is missing @")
)

func NewEmailParts(emailAddress string) (EmailParts, error) {
	p, err := splitLocalAndDomain(emailAddress)
	if err != nil {
		return EmailParts{}, err
	}

	return p, nil
}

func NewEmailFromParts(local, domain string) EmailParts {
	return EmailParts{
		Address: local + `@` + domain,
		Local:   local,
		Domain:  strings.ToLower(domain),
	}
}

type EmailParts struct {
	Address string
	Local   string
	Domain  string
}

// ASCII returns the address with an internationalized domain converted to its
// ASCII-compatible (ACE) form, the form DNS and SMTP servers expect on the wire.
func (p EmailParts) ASCII() (EmailParts, error) {

	// Domain literals ("john@[10.0.0.1]") have no IDNA representation
	if strings.HasPrefix(p.Domain, "[") && strings.HasSuffix(p.Domain, "]") {
		return p, nil
	}

	domain, err := idna.Lookup.ToASCII(p.Domain)
	if err != nil {
		return EmailParts{}, err
	}

	return EmailParts{
		Address: p.Local + `@` + domain,
		Local:   p.Local,
		Domain:  domain,
	}, nil
}

func splitLocalAndDomain(input string) (EmailParts, error) {
	i := strings.LastIndex(input, "@")
	if 0 >= i || i >= len(input)-1 {
		return EmailParts{}, ErrInvalidEmailAddress
	}

	return EmailParts{
		Address: input,
		Local:   input[:i],
		Domain:  strings.ToLower(input[i+1:]),
	}, nil
}
