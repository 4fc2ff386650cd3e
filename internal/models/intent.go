// internal/models/intent.go
package models

type Intent string

const (
	IntentInformation Intent = "information"
	IntentAction      Intent = "action"
	IntentAnalysis    Intent = "analysis"
	IntentSeasonality Intent = "seasonality"
	IntentSimulation  Intent = "simulation"
)

type BusinessCategory string

const (
	CategoryCampaignPerformance BusinessCategory = "campaign_performance"
	CategoryInventory           BusinessCategory = "inventory"
	CategoryPricing             BusinessCategory = "pricing"
	CategoryAudience            BusinessCategory = "audience"
	CategoryBudget              BusinessCategory = "budget"
	CategoryGeneral             BusinessCategory = "general"
)

// JourneyHint is the decision-journey stage the query belongs to.
type JourneyHint string

const (
	JourneyDiscernment JourneyHint = "discernment"
	JourneyAnalysis    JourneyHint = "analysis"
	JourneyDecision    JourneyHint = "decision"
	JourneyAction      JourneyHint = "action"
)

// IntentResult is the classifier output. Confidence is always within [0,1].
type IntentResult struct {
	Intent              Intent                 `json:"intent"`
	Confidence          float64                `json:"confidence"`
	BusinessCategory    BusinessCategory       `json:"businessCategory,omitempty"`
	JourneyHint         JourneyHint            `json:"journeyHint,omitempty"`
	ExtractedParameters map[string]interface{} `json:"extractedParameters,omitempty"`
	Explanation         string                 `json:"explanation"`
}
