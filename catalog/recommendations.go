package catalog

import (
	"github.com/tidemark-health/guidepost/engine"
	"github.com/tidemark-health/guidepost/internal/util"
)

// OMOP concept identifiers used by the DigiPOD plans. Standard concepts keep
// their vocabulary ids; DigiPOD-local concepts live in the custom range.
const (
	conceptInpatientVisit    int64 = 9201
	conceptDementia          int64 = 4182210
	conceptGeneralAnesthesia int64 = 4174669
	conceptDexmedetomidine   int64 = 19059528

	conceptDeliriumScreeningProcedure int64 = 2000000711
	conceptDeliriumScreeningScore     int64 = 2000000721
	conceptSecondaryScreeningScore    int64 = 2000000722
	conceptRiskFactorAssessment       int64 = 2000000741
	conceptFrailtyScore               int64 = 2000000751
	conceptGeriatricAssessment        int64 = 2000000752
	conceptRiskFactorsShared          int64 = 2000000761
	conceptReorientationMeasures      int64 = 2000000771
	conceptSleepHygieneProtocol       int64 = 2000000772
)

// digipodRecommendations is the code-defined DigiPOD set covering
// postoperative delirium prevention, in evaluation order. The numbering
// follows the guideline chapters.
var digipodRecommendations = []*engine.Recommendation{
	{
		ID:      digipodBaseURL + "PlanDefinition/RecCollPreoperativeDeliriumScreening",
		Name:    "digipod-0.1-preoperative-delirium-screening",
		Title:   "Preoperative delirium screening in adult surgical patients",
		Version: digipodPackageVersion,
		Plan: engine.Plan{Criteria: []engine.Criterion{
			{Name: "inpatient-stay", Kind: engine.KindTimeFromEvent, Domain: "visit", ConceptID: conceptInpatientVisit},
			{Name: "delirium-screening-performed", Kind: engine.KindAction, Domain: "procedure", ConceptID: conceptDeliriumScreeningProcedure},
		}},
	},
	{
		ID:      digipodBaseURL + "PlanDefinition/RecCollDeliriumScreeningPostoperativelySingle",
		Name:    "digipod-0.2-postoperative-delirium-screening-single",
		Title:   "Postoperative delirium screening, one validated instrument per shift",
		Version: digipodPackageVersion,
		Plan: engine.Plan{Criteria: []engine.Criterion{
			{Name: "postoperative-period", Kind: engine.KindTimeFromEvent, Domain: "procedure", ConceptID: conceptGeneralAnesthesia},
			{Name: "delirium-screening-score", Kind: engine.KindCharacteristic, Domain: "observation", ConceptID: conceptDeliriumScreeningScore},
		}},
	},
	{
		ID:      digipodBaseURL + "PlanDefinition/RecCollDeliriumScreeningPostoperativelyDouble",
		Name:    "digipod-0.2-postoperative-delirium-screening-double",
		Title:   "Postoperative delirium screening, two validated instruments per shift",
		Version: digipodPackageVersion,
		Plan: engine.Plan{Criteria: []engine.Criterion{
			{Name: "postoperative-period", Kind: engine.KindTimeFromEvent, Domain: "procedure", ConceptID: conceptGeneralAnesthesia},
			{Name: "delirium-screening-score", Kind: engine.KindCharacteristic, Domain: "observation", ConceptID: conceptDeliriumScreeningScore},
			{Name: "secondary-screening-score", Kind: engine.KindCharacteristic, Domain: "observation", ConceptID: conceptSecondaryScreeningScore},
		}},
	},
	{
		ID:      digipodBaseURL + "PlanDefinition/RecCollCheckRFAdultSurgicalPatientsPreoperatively",
		Name:    "digipod-2.1-preoperative-risk-factor-check",
		Title:   "Check delirium risk factors in adult surgical patients preoperatively",
		Version: digipodPackageVersion,
		Plan: engine.Plan{Criteria: []engine.Criterion{
			{Name: "existing-dementia", Kind: engine.KindCharacteristic, Domain: "condition", ConceptID: conceptDementia},
			{Name: "risk-factor-assessment-documented", Kind: engine.KindAction, Domain: "procedure", ConceptID: conceptRiskFactorAssessment},
		}},
	},
	{
		ID:      digipodBaseURL + "PlanDefinition/RecCollProphylacticDexAdministrationAfterBalancingBenefitsVSSE",
		Name:    "digipod-3.2-prophylactic-dexmedetomidine",
		Title:   "Prophylactic dexmedetomidine after balancing benefits against side effects",
		Version: digipodPackageVersion,
		Plan: engine.Plan{Criteria: []engine.Criterion{
			{Name: "postoperative-period", Kind: engine.KindTimeFromEvent, Domain: "procedure", ConceptID: conceptGeneralAnesthesia},
			// threshold in µg/kg/h; administrations below it do not count as prophylaxis
			{Name: "dexmedetomidine-prophylaxis", Kind: engine.KindAction, Domain: "drug", ConceptID: conceptDexmedetomidine, Threshold: util.Ptr(0.1)},
		}},
	},
	{
		ID:      digipodBaseURL + "PlanDefinition/RecCollPreoperativeRFAssessmentAndOptimization",
		Name:    "digipod-4.1-preoperative-risk-assessment",
		Title:   "Preoperative risk factor assessment and optimization",
		Version: digipodPackageVersion,
		Plan: engine.Plan{Criteria: []engine.Criterion{
			{Name: "frailty-score", Kind: engine.KindCharacteristic, Domain: "measurement", ConceptID: conceptFrailtyScore, Threshold: util.Ptr(3.0)},
			{Name: "geriatric-assessment-performed", Kind: engine.KindAction, Domain: "procedure", ConceptID: conceptGeriatricAssessment},
		}},
	},
	{
		ID:      digipodBaseURL + "PlanDefinition/RecCollShareRFOfOlderAdultsPreOPAndRegisterPreventiveStrategies",
		Name:    "digipod-4.2-share-risk-factors",
		Title:   "Share risk factors of older adults preoperatively and register preventive strategies",
		Version: digipodPackageVersion,
		Plan: engine.Plan{Criteria: []engine.Criterion{
			{Name: "risk-factors-shared", Kind: engine.KindCharacteristic, Domain: "observation", ConceptID: conceptRiskFactorsShared},
			{Name: "inpatient-stay", Kind: engine.KindTimeFromEvent, Domain: "visit", ConceptID: conceptInpatientVisit},
		}},
	},
	{
		ID:      digipodBaseURL + "PlanDefinition/RecCollBundleOfNonPharmaMeasuresPostOPInAdultsAtRiskForPOD",
		Name:    "digipod-4.3-non-pharmacological-bundle",
		Title:   "Bundle of non-pharmacological measures postoperatively in adults at risk",
		Version: digipodPackageVersion,
		Plan: engine.Plan{Criteria: []engine.Criterion{
			{Name: "postoperative-period", Kind: engine.KindTimeFromEvent, Domain: "procedure", ConceptID: conceptGeneralAnesthesia},
			{Name: "reorientation-measures", Kind: engine.KindAction, Domain: "procedure", ConceptID: conceptReorientationMeasures},
			{Name: "sleep-hygiene-protocol", Kind: engine.KindAction, Domain: "procedure", ConceptID: conceptSleepHygieneProtocol},
		}},
	},
}
