package valuation

import "time"

// Config groups the settings of every model in the suite
type Config struct {
	AVM       AVMConfig
	TTS       TTSConfig
	Yield     YieldConfig
	Seismic   SeismicConfig
	Condition ConditionConfig
}

// AVMConfig controls the price band
type AVMConfig struct {
	DefaultEurPerM2   float64
	Baselines         map[string]float64 // area slug -> EUR/m² when no area stats exist
	ConfidenceK       float64            // comps needed for 0.5 confidence
	NoStatsConfidence float64
	MaxSpread         float64 // band half-width at zero confidence
	MinSpread         float64 // band half-width at full confidence
}

// TTSConfig controls the time-to-sell bucket
type TTSConfig struct {
	HighSeasonMonths []time.Month
	DeltaWeight      float64
	DemandWeight     float64
	SeasonBonus      float64
}

// YieldConfig controls rent estimation and the yield verdict
type YieldConfig struct {
	FallbackRentPerM2 float64
	AnnualCostFixed   float64
	AnnualCostPerM2   float64
	NetThreshold      float64
}

// BBox is a lat/lng rectangle
type BBox struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// Contains reports whether the point lies inside the box, edges included
func (b BBox) Contains(lat, lng float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}

// SeismicConfig controls the structural risk score
type SeismicConfig struct {
	Central     BBox
	CentralBase float64
	OuterBase   float64
}

// ConditionConfig holds the condition bucket thresholds
type ConditionConfig struct {
	RenovationBelow float64
	ModernFrom      float64
}

// DefaultConfig returns the default model settings
func DefaultConfig() Config {
	return Config{
		AVM: AVMConfig{
			DefaultEurPerM2:   1800,
			ConfidenceK:       10,
			NoStatsConfidence: 0.2,
			MaxSpread:         0.20,
			MinSpread:         0.10,
		},
		TTS: TTSConfig{
			HighSeasonMonths: []time.Month{time.March, time.April, time.May, time.September, time.October},
			DeltaWeight:      4,
			DemandWeight:     2,
			SeasonBonus:      0.25,
		},
		Yield: YieldConfig{
			FallbackRentPerM2: 9,
			AnnualCostPerM2:   15,
			NetThreshold:      0.05,
		},
		Seismic: SeismicConfig{
			Central:     BBox{MinLat: 44.40, MaxLat: 44.47, MinLng: 26.05, MaxLng: 26.15},
			CentralBase: 0.5,
			OuterBase:   0.3,
		},
		Condition: ConditionConfig{
			RenovationBelow: 0.35,
			ModernFrom:      0.75,
		},
	}
}
