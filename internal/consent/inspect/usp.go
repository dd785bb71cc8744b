package inspect

import (
	"strings"

	dErrors "cmpbridge/pkg/domain-errors"
)

// USP flag values. A dash means the field does not apply.
const (
	FlagYes           = "Y"
	FlagNo            = "N"
	FlagNotApplicable = "-"
)

// USPString is a decoded IAB CCPA (us_privacy) string such as "1YNN".
type USPString struct {
	Version         int    `json:"version" yaml:"version"`
	Notice          string `json:"notice" yaml:"notice"`
	OptOutSale      string `json:"optOutSale" yaml:"optOutSale"`
	LSPACovered     string `json:"lspaCovered" yaml:"lspaCovered"`
	OptedOutOfSales bool   `json:"optedOutOfSales" yaml:"optedOutOfSales"`
}

// ParseUSPString decodes a version 1 us_privacy string.
//
// Errors: CodeInvalidInput when s is not four characters of version "1"
// followed by Y, N or - flags.
func ParseUSPString(s string) (*USPString, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != 4 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "us_privacy string must be 4 characters")
	}
	if s[0] != '1' {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unsupported us_privacy version "+s[:1])
	}
	flags := make([]string, 3)
	for i := range flags {
		f := s[i+1 : i+2]
		switch f {
		case FlagYes, FlagNo, FlagNotApplicable:
			flags[i] = f
		default:
			return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid us_privacy flag "+f)
		}
	}
	return &USPString{
		Version:         1,
		Notice:          flags[0],
		OptOutSale:      flags[1],
		LSPACovered:     flags[2],
		OptedOutOfSales: flags[1] == FlagYes,
	}, nil
}
