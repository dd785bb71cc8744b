package regime

import (
	"slices"

	"cmpbridge/internal/consent/models"
	dErrors "cmpbridge/pkg/domain-errors"
)

// Regime names.
const (
	NameGDPR  = "gdpr"
	NameTCFv2 = "tcfv2"
	NameUSP   = "usp"
)

// Retriever id suffixes; ids are "<regime>.<suffix>".
const (
	SourceCustom = "custom"
	SourceWindow = "window"
	SourceFrame  = "frame"
	SourceEvent  = "event"
)

// EventListener describes the event-driven variant of the window channel.
type EventListener struct {
	Command string
}

// Definition is the published CMP API of one regime expressed as configuration.
type Definition struct {
	Name        string
	GlobalFunc  string
	GetCommand  string
	Parameter   any
	Version     int
	CallKey     string
	ReturnKey   string
	LocatorName string
	// VersionedCall selects the (command, version, callback, parameter)
	// calling convention instead of (command, parameter, callback).
	VersionedCall bool
	// EventListener, when set, adds a listener channel that retires the get
	// channel once it delivers consent.
	EventListener *EventListener
	Fields        []models.FieldSpec
}

// Validate checks that every piece of wiring is present.
func (d Definition) Validate() error {
	required := []struct{ field, value string }{
		{"name", d.Name},
		{"global func", d.GlobalFunc},
		{"get command", d.GetCommand},
		{"call key", d.CallKey},
		{"return key", d.ReturnKey},
		{"locator name", d.LocatorName},
	}
	for _, r := range required {
		if r.value == "" {
			return dErrors.New(dErrors.CodeInvalidInput, "regime definition: "+r.field+" is required")
		}
	}
	if d.EventListener != nil && d.EventListener.Command == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "regime definition: event listener command is required")
	}
	return nil
}

// DataModel builds the regime's data model.
func (d Definition) DataModel() (*models.DataModel, error) {
	return models.NewDataModel(models.FieldConsentString, d.Fields...)
}

func (d Definition) sourceID(suffix string) string {
	return d.Name + "." + suffix
}

// GDPR is the TCF v1 __cmp API.
var GDPR = Definition{
	Name:        NameGDPR,
	GlobalFunc:  "__cmp",
	GetCommand:  "getConsentData",
	Version:     1,
	CallKey:     "__cmpCall",
	ReturnKey:   "__cmpReturn",
	LocatorName: "__cmpLocator",
	Fields: []models.FieldSpec{
		{Name: models.FieldApplies, Kind: models.KindBoolean, Default: false, Aliases: []string{"gdprApplies", "isUserInEu"}},
		{Name: models.FieldConsentString, Kind: models.KindString, Default: "", Aliases: []string{"consentData", "consentString"}},
		{Name: models.FieldVersion, Kind: models.KindNumber, Default: float64(1), Aliases: []string{"version"}},
	},
}

// TCFv2 is the TCF v2 __tcfapi API.
var TCFv2 = Definition{
	Name:          NameTCFv2,
	GlobalFunc:    "__tcfapi",
	GetCommand:    "getTCData",
	Version:       2,
	CallKey:       "__tcfapiCall",
	ReturnKey:     "__tcfapiReturn",
	LocatorName:   "__tcfapiLocator",
	VersionedCall: true,
	EventListener: &EventListener{Command: "addEventListener"},
	Fields: []models.FieldSpec{
		{Name: models.FieldApplies, Kind: models.KindBoolean, Default: false, Aliases: []string{"gdprApplies", "isUserInEu"}},
		{Name: models.FieldConsentString, Kind: models.KindString, Default: "", Aliases: []string{"tcString", "consentData"}},
		{Name: models.FieldVersion, Kind: models.KindNumber, Default: float64(2), Aliases: []string{"tcfPolicyVersion"}},
	},
}

// USP is the CCPA __uspapi API.
var USP = Definition{
	Name:        NameUSP,
	GlobalFunc:  "__uspapi",
	GetCommand:  "getUSPData",
	Version:     1,
	CallKey:     "__uspapiCall",
	ReturnKey:   "__uspapiReturn",
	LocatorName: "__uspapiLocator",
	Fields: []models.FieldSpec{
		{Name: models.FieldApplies, Kind: models.KindBoolean, Default: false},
		{Name: models.FieldConsentString, Kind: models.KindString, Default: "", Aliases: []string{"uspString"}},
		{Name: models.FieldVersion, Kind: models.KindNumber, Default: float64(1), Aliases: []string{"version"}},
	},
}

var builtin = map[string]Definition{
	NameGDPR:  GDPR,
	NameTCFv2: TCFv2,
	NameUSP:   USP,
}

// Lookup returns the built-in definition for name.
func Lookup(name string) (Definition, bool) {
	d, ok := builtin[name]
	return d, ok
}

// Names returns the built-in regime names, sorted.
func Names() []string {
	names := make([]string, 0, len(builtin))
	for name := range builtin {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
