package risk

import (
	"math"
	"time"

	"github.com/knowton/marketplace/internal/ipnft"
)

// Rating is a credit-style grade for an IP asset.
type Rating string

const (
	RatingAAA Rating = "AAA"
	RatingAA  Rating = "AA"
	RatingA   Rating = "A"
	RatingBBB Rating = "BBB"
	RatingBB  Rating = "BB"
	RatingB   Rating = "B"
	RatingCCC Rating = "CCC"
)

// Metadata is the input to an assessment: the token's registry data plus the
// engagement figures reported by the content platform.
type Metadata struct {
	Category  ipnft.Category
	CreatedAt time.Time
	Views     int64
	Likes     int64
	Tags      []string
}

// Assessment is the engine's verdict on one IP asset.
type Assessment struct {
	ValuationUSD       float64
	ConfidenceScore    float64
	Rating             Rating
	DefaultProbability float64
	RecommendedLTV     float64
	RiskFactors        []string
	AssessedAt         time.Time
}

// Engine scores IP assets. The model is deliberately simple: engagement and
// track record drive the score, the category sets the value multiplier.
type Engine struct {
	now func() time.Time
}

func NewEngine() *Engine {
	return &Engine{now: time.Now}
}

// Assess produces a full assessment for one token.
func (e *Engine) Assess(meta Metadata) Assessment {
	factors := e.riskFactors(meta)
	rating := e.rating(meta, factors)
	defaultProb := e.defaultProbability(rating, meta)
	return Assessment{
		ValuationUSD:       e.valuation(meta),
		ConfidenceScore:    e.confidence(meta),
		Rating:             rating,
		DefaultProbability: defaultProb,
		RecommendedLTV:     e.recommendedLTV(rating, defaultProb),
		RiskFactors:        factors,
		AssessedAt:         e.now().UTC(),
	}
}

var categoryMultipliers = map[ipnft.Category]float64{
	ipnft.CategoryPatent:      2.5,
	ipnft.CategoryCopyright:   1.5,
	ipnft.CategoryTrademark:   1.8,
	ipnft.CategoryTradeSecret: 2.0,
	ipnft.CategoryRoyalty:     1.3,
}

func (e *Engine) valuation(meta Metadata) float64 {
	multiplier, ok := categoryMultipliers[meta.Category]
	if !ok {
		multiplier = 1.0
	}

	engagement := float64(meta.Views)*0.1 + float64(meta.Likes)*1.0
	creatorScore := 1000.0

	// value depreciates 20% per year, floored at half
	ageYears := e.ageDays(meta) / 365.0
	ageFactor := math.Max(0.5, 1.0-ageYears*0.2)

	value := (engagement + creatorScore) * multiplier * ageFactor
	return math.Max(100, value)
}

func (e *Engine) riskFactors(meta Metadata) []string {
	var factors []string
	if meta.Views < 100 {
		factors = append(factors, "low view count")
	}
	if e.ageDays(meta) < 30 {
		factors = append(factors, "limited track record")
	}
	if meta.Likes < 10 {
		factors = append(factors, "limited social validation")
	}
	if meta.Category == ipnft.CategoryPatent {
		factors = append(factors, "technology obsolescence risk")
	}
	return factors
}

func (e *Engine) rating(meta Metadata, factors []string) Rating {
	score := 100.0
	score -= float64(len(factors)) * 10.0
	if meta.Views > 10_000 {
		score += 10.0
	}
	if meta.Likes > 1_000 {
		score += 10.0
	}
	if e.ageDays(meta) > 365 {
		score += 15.0
	}
	score = math.Max(0, math.Min(100, score))

	switch {
	case score >= 90:
		return RatingAAA
	case score >= 80:
		return RatingAA
	case score >= 70:
		return RatingA
	case score >= 60:
		return RatingBBB
	case score >= 50:
		return RatingBB
	case score >= 40:
		return RatingB
	default:
		return RatingCCC
	}
}

var baseDefaultProbability = map[Rating]float64{
	RatingAAA: 0.01,
	RatingAA:  0.02,
	RatingA:   0.05,
	RatingBBB: 0.10,
	RatingBB:  0.20,
	RatingB:   0.35,
	RatingCCC: 0.50,
}

func (e *Engine) defaultProbability(rating Rating, meta Metadata) float64 {
	prob := baseDefaultProbability[rating]
	if e.ageDays(meta) < 30 {
		prob *= 1.5
	}
	return math.Min(0.99, prob)
}

var baseLTV = map[Rating]float64{
	RatingAAA: 0.70,
	RatingAA:  0.65,
	RatingA:   0.60,
	RatingBBB: 0.50,
	RatingBB:  0.40,
	RatingB:   0.30,
	RatingCCC: 0.20,
}

func (e *Engine) recommendedLTV(rating Rating, defaultProb float64) float64 {
	ltv := baseLTV[rating] * (1.0 - defaultProb*0.5)
	return math.Max(0.1, math.Min(0.8, ltv))
}

func (e *Engine) confidence(meta Metadata) float64 {
	confidence := 0.5
	if meta.Views > 1_000 {
		confidence += 0.1
	}
	if meta.Likes > 100 {
		confidence += 0.1
	}
	switch age := e.ageDays(meta); {
	case age > 180:
		confidence += 0.2
	case age > 90:
		confidence += 0.1
	}
	if len(meta.Tags) > 5 {
		confidence += 0.1
	}
	return math.Min(0.95, confidence)
}

func (e *Engine) ageDays(meta Metadata) float64 {
	return e.now().Sub(meta.CreatedAt).Hours() / 24
}
