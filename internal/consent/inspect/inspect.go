// Package inspect decodes consent strings for reporting. Decoding is purely
// diagnostic: the engine never looks inside a consent string.
package inspect

import (
	"strings"
	"time"

	"github.com/prebid/go-gdpr/api"
	"github.com/prebid/go-gdpr/consentconstants"
	"github.com/prebid/go-gdpr/vendorconsent"

	dErrors "cmpbridge/pkg/domain-errors"
)

// maxPurpose is the highest TCF purpose id reported.
const maxPurpose = 10

// TCString is the metadata carried in a TCF v1 or v2 consent string.
type TCString struct {
	Version           uint8     `json:"version" yaml:"version"`
	CmpID             uint16    `json:"cmpId" yaml:"cmpId"`
	CmpVersion        uint16    `json:"cmpVersion" yaml:"cmpVersion"`
	VendorListVersion uint16    `json:"vendorListVersion" yaml:"vendorListVersion"`
	ConsentLanguage   string    `json:"consentLanguage,omitempty" yaml:"consentLanguage,omitempty"`
	Created           time.Time `json:"created" yaml:"created"`
	LastUpdated       time.Time `json:"lastUpdated" yaml:"lastUpdated"`
	MaxVendorID       uint16    `json:"maxVendorId" yaml:"maxVendorId"`
	Purposes          []int     `json:"purposes,omitempty" yaml:"purposes,omitempty"`
}

// ParseTCString decodes a TCF consent string of either version.
//
// Errors: CodeInvalidInput when s is empty or not a TCF consent string.
func ParseTCString(s string) (*TCString, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "consent string is empty")
	}
	vc, err := vendorconsent.ParseString(s)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid TCF consent string")
	}
	return fromVendorConsents(vc), nil
}

func fromVendorConsents(vc api.VendorConsents) *TCString {
	out := &TCString{
		Version:           vc.Version(),
		CmpID:             vc.CmpID(),
		CmpVersion:        vc.CmpVersion(),
		VendorListVersion: vc.VendorListVersion(),
		ConsentLanguage:   vc.ConsentLanguage(),
		Created:           vc.Created().UTC(),
		LastUpdated:       vc.LastUpdated().UTC(),
		MaxVendorID:       vc.MaxVendorID(),
	}
	for p := 1; p <= maxPurpose; p++ {
		if vc.PurposeAllowed(consentconstants.Purpose(p)) {
			out.Purposes = append(out.Purposes, p)
		}
	}
	return out
}
