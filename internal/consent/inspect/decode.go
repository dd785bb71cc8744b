package inspect

import "cmpbridge/internal/consent/regime"

// Decoded is the inspection result attached to a probe report. Exactly one of
// TCF, USP or Error is set.
type Decoded struct {
	TCF   *TCString  `json:"tcf,omitempty" yaml:"tcf,omitempty"`
	USP   *USPString `json:"usp,omitempty" yaml:"usp,omitempty"`
	Error string     `json:"error,omitempty" yaml:"error,omitempty"`
}

// Decode inspects a consent string obtained under regimeName. It returns nil
// for an empty string or a regime with no known string format.
func Decode(regimeName, consent string) *Decoded {
	if consent == "" {
		return nil
	}
	switch regimeName {
	case regime.NameGDPR, regime.NameTCFv2:
		tc, err := ParseTCString(consent)
		if err != nil {
			return &Decoded{Error: err.Error()}
		}
		return &Decoded{TCF: tc}
	case regime.NameUSP:
		usp, err := ParseUSPString(consent)
		if err != nil {
			return &Decoded{Error: err.Error()}
		}
		return &Decoded{USP: usp}
	}
	return nil
}
