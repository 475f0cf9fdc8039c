package match

import "github.com/ppiankov/trialmatch/internal/model"

// Tier aggregates verdicts:
//  1. any EXCLUSION verdict FAIL                          -> LIKELY_INELIGIBLE (hard veto)
//  2. no verdicts, UNKNOWN share > threshold, or an
//     INCLUSION verdict on a central field is UNKNOWN     -> INSUFFICIENT_DATA
//  3. every verdict PASS                                  -> LIKELY_ELIGIBLE
//  4. otherwise                                           -> POSSIBLY_ELIGIBLE
func (p Policy) Tier(verdicts []model.MatchVerdict) model.Tier {
	for _, v := range verdicts {
		if v.Rule.Polarity == model.Exclusion && v.Outcome == model.OutcomeFail {
			return model.TierLikelyIneligible
		}
	}

	if len(verdicts) == 0 {
		return model.TierInsufficientData
	}

	unknown, pass := 0, 0
	for _, v := range verdicts {
		switch v.Outcome {
		case model.OutcomeUnknown:
			unknown++
			if v.Rule.Polarity == model.Inclusion && p.central(v.Rule.Field) {
				return model.TierInsufficientData
			}
		case model.OutcomePass:
			pass++
		}
	}

	if float64(unknown)/float64(len(verdicts)) > p.UnknownThreshold {
		return model.TierInsufficientData
	}
	if pass == len(verdicts) {
		return model.TierLikelyEligible
	}
	return model.TierPossiblyEligible
}

func (p Policy) central(f model.Field) bool {
	for _, c := range p.CentralFields {
		if c == f {
			return true
		}
	}
	return false
}
