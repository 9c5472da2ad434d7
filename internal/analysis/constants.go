package analysis

// Feature extraction. Tuning values live here as named constants rather
// than inline literals so they can be adjusted in one place.
const (
	WindowSize = 8192 // frames per analysis window
	HopSize    = 4096 // frame step between windows (50% overlap)
)

// Similarity matrix distance weights.
const (
	WeightRMS      = 1.5
	WeightCentroid = 1.0
	WeightFlux     = 3.0
	WeightZCR      = 0.5
)

// Section detection.
const (
	SectionHalfWindow      = 4   // w in the change-point test
	FluxChangeThreshold    = 0.5 // raw boundary: relative flux delta
	RMSChangeThreshold     = 0.4 // raw boundary: relative RMS delta
	PhraseFluxThreshold    = 0.3 // phrase-boundary seed: relative flux delta
	PhraseRMSThreshold     = 0.3 // phrase-boundary seed: relative RMS delta
	MinSectionDuration     = 2.0 // seconds
	SectionDefaultConf     = 0.7
	MinFeaturesForForceSplit = 20
)

// Transition scoring.
const (
	TransitionWindow    = 4096   // W, frames on either side of the candidate boundary
	ZeroThreshold       = 0.01   // |sample| below this counts as "at zero"
	VolumeWeight        = 0.15
	PhaseWeight         = 0.20
	SpectralWeight      = 0.25
	HarmonicWeight      = 0.25
	EnvelopeWeight      = 0.15
	ZeroBothBonus       = 1.0
	EnvelopeSubWindow   = 128 // frames per sub-envelope RMS bucket
	EnvelopeSubCount    = 3   // number of trailing/leading sub-envelopes compared
)

// Candidate search.
const (
	SeedEdgeGuardSeconds   = 1.0   // exclude this much from each end of the track for section-boundary seeds
	ZeroCrossingSearchSec  = 0.1   // ±100ms window searched for a zero-crossing near a seed
	MaxCandidatePairs      = 1000
	MinQualityToKeep       = 3.0
	MaxCandidatesRetained  = 10
	StructuralBoundaryTolSec = 0.1 // ±100ms coincidence tolerance for re-ranking bonuses
	StructuralBoundaryBonus  = 1.0
	StructuralLengthBonusMax = 2.0
	StructuralLengthMin      = 0.2 // r ramps from 0 at (e-s)/duration=0.2
	StructuralLengthMax      = 0.6 // to 1 at 0.2+0.4=0.6
	StructuralLongPenaltyFrac = 0.7
	StructuralLongPenalty     = 2.0
	MaxLoopFractionOfDuration = 0.8
	YieldEveryNPairs          = 50
)

// Fade-out guard.
const (
	FadeGuardTailFraction   = 0.15 // only engages when proposed end is in the last 15% of the track
	FadeGuardScanFraction   = 0.30 // trailing 30% of features considered
	FadeGuardSplitFraction  = 0.75 // split point within that tail
	FadeGuardDecayThreshold = 0.9  // μ2 < 0.9·μ1 triggers the guard
	FadeGuardReviveFactor   = 1.5  // revive threshold: RMS > 1.5·μ2
	FadeGuardFallbackFrac   = 0.8  // fallback: 0.8·duration
)

// Cooperative cancellation: analysis must yield at least once per this
// many windows processed.
const YieldEveryNWindows = 10
