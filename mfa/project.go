package mfa

import "github.com/getkayan/walletkit/api"

// nextActionPriority ranks factor kinds for the single default
// suggestion. A flow may list several eligible factors at once; the
// first present in this order wins.
var nextActionPriority = []FactorName{
	FactorPasskeyAuth,
	FactorPasskeyTx,
	FactorOTPSMS,
	FactorOTPEmail,
	FactorExternal,
	FactorPasskeyReg,
}

func projectFactors(next []api.Factor) []RemainingFactor {
	out := make([]RemainingFactor, 0, len(next))
	for _, f := range next {
		name := FactorName(f.Action.Name)
		rf := RemainingFactor{
			Type:        f.Action.Name,
			Label:       f.Action.Label,
			Description: f.Action.Desc,
		}
		switch {
		case isOTP(name):
			// Only labelled destinations are exposed.
			for _, o := range f.Options {
				if o.Label != "" {
					rf.Options = append(rf.Options, o.Label)
				}
			}
		case isPasskey(name):
			// The first option with a value is the challenge blob the
			// caller eventually hands back as the payload.
			for _, o := range f.Options {
				if len(o.Value) > 0 {
					rf.Value = o.Value
					break
				}
			}
		}
		out = append(out, rf)
	}
	return out
}

func nextAction(next []api.Factor) string {
	for _, candidate := range nextActionPriority {
		for _, f := range next {
			if FactorName(f.Action.Name) == candidate {
				return f.Action.Name
			}
		}
	}
	return ""
}

func findFactor(next []api.Factor, name FactorName) *api.Factor {
	for i := range next {
		if FactorName(next[i].Action.Name) == name {
			return &next[i]
		}
	}
	return nil
}
