package trigger

import (
	"math"
	"strings"

	"github.com/uber/assist-lsp/src/alsp/entity"
	"github.com/uber/assist-lsp/src/alsp/internal/diff"
)

const (
	_classifierThreshold = 0.53
	_classifierIntercept = -0.2782
	// Accept ratio assumed before any decision history exists.
	_coldStartAR = 0.3
)

// Logistic-regression coefficients fitted offline.
var _keywordCoefficients = map[string]float64{
	"get": 1.171, "const": -0.7697, "try": 0.7182, "number": 0.6706,
	"this": 0.6271, "return": -0.3991, "from": -0.3515, "None": -0.3409,
	"True": -0.3653, "true": -0.2502, "async": -0.3212, "false": 0.3478,
	"else": 0.3154, "type": -0.2662, "null": -0.1576, "if": -0.1276,
	"in": -0.0905, "void": 0.1712, "any": 0.1663, "as": 0.139,
	"import": 0.1424, "for": 0.0252, "is": 0.1023, "string": 0.0691,
}

var _lastCharCoefficients = map[string]float64{
	"a": 0.0773, "c": 0.1191, "d": -0.0938, "e": -0.1517, "f": 0.4246,
	"i": 0.154, "l": 0.2188, "m": -0.3026, "n": -0.0324, "o": 0.196,
	"p": -0.2283, "Q": -0.0205, "r": 0.1418, "s": 0.0387, "S": 0.3369,
	"t": 0.1863, "u": 0.3599, "y": 0.0456,
	"0": 0.0415, "1": -0.1826, "2": -0.1085,
	"(": 0.0539, ")": 0.0996, "{": 0.2644, "}": 0.1122, ";": 0.2225,
	"/": -0.0745, ">": -0.0378, ".": 0.0244, ",": -0.0274,
	"\n": 0.1023, " ": -0.066, "_": 0.0781, "'": -0.036, "\"": 0.0629,
}

var _languageCoefficients = map[string]float64{
	"c": 0.1013, "cpp": -0.1371, "sql": -0.1509, "java": 0.0564,
	"javascript": 0.1183, "json": 0.0811, "kotlin": -0.3022,
	"python": 0.0914, "rust": -0.1024, "scala": 0.1648, "shell": 0.1292,
	"tf": -0.3823, "typescript": 0.0928, "yaml": -0.2578,
}

const (
	_leftContextLte25Coef = -0.0417
	_changedCharsNormCoef = 0.0194
	_linesDeletedNormCoef = -0.084
	_linesAddedNormCoef   = 0.0594
	_lastLineLte4Coef     = 0.0293
	_lastLineGte5Lte12    = -0.0012
	_arPrevious5Coef      = 0.4723
)

// Min-max bounds observed in the training data.
const (
	_trainingCharsChangedMax = 261.0
	_trainingLinesAddedMax   = 7.0
	_trainingLinesDeletedMax = 6.0
)

// ClassifierInput is the editor state the classifier scores.
type ClassifierInput struct {
	LeftContextAtCurLine string
	LeftFileContent      string
	RightFileContent     string
	Language             string
	// RecentEditDiffs are supplemental contexts, newest-first; the oldest
	// diff contributes the edit-history features.
	RecentEditDiffs []diff.ContextItem
	// RecentDecisions are the latest session-level trigger decisions.
	RecentDecisions []entity.TriggerDecision
}

// ClassifierResult carries a scoring outcome.
type ClassifierResult struct {
	ShouldTrigger bool
	Score         float64
	Threshold     float64
}

// Classify scores the editor state with a logistic regression and compares
// against the fitted threshold.
func Classify(input ClassifierInput) ClassifierResult {
	score := score(input)
	return ClassifierResult{
		ShouldTrigger: score > _classifierThreshold,
		Score:         score,
		Threshold:     _classifierThreshold,
	}
}

func score(input ClassifierInput) float64 {
	logit := _classifierIntercept

	if len(input.LeftContextAtCurLine) > 0 {
		lastChar := string(input.LeftContextAtCurLine[len(input.LeftContextAtCurLine)-1])
		logit += _lastCharCoefficients[lastChar]
	}

	lastLineLength := len(input.LeftContextAtCurLine)
	if lastLineLength <= 4 {
		logit += _lastLineLte4Coef
	} else if lastLineLength <= 12 {
		logit += _lastLineGte5Lte12
	}

	if strings.Count(input.LeftFileContent, "\n")+1 <= 25 {
		logit += _leftContextLte25Coef
	}

	if len(input.RecentEditDiffs) > 0 {
		oldest := input.RecentEditDiffs[len(input.RecentEditDiffs)-1]
		added, deleted := diff.AddedAndDeletedLines(oldest.Content)
		changed := diff.Levenshtein(strings.Join(deleted, "\n"), strings.Join(added, "\n"))

		logit += float64(changed) / _trainingCharsChangedMax * _changedCharsNormCoef
		logit += float64(len(added)) / _trainingLinesAddedMax * _linesAddedNormCoef
		logit += float64(len(deleted)) / _trainingLinesDeletedMax * _linesDeletedNormCoef
	}

	logit += _languageCoefficients[input.Language]

	tokens := strings.Split(strings.TrimSpace(input.LeftContextAtCurLine), " ")
	if len(tokens) > 0 {
		logit += _keywordCoefficients[tokens[len(tokens)-1]]
	}

	logit += _arPrevious5Coef * acceptRatio(input.RecentDecisions)

	return sigmoid(logit)
}

// acceptRatio is accepts over the last five decisions, with a cold-start
// prior when no history exists.
func acceptRatio(decisions []entity.TriggerDecision) float64 {
	if len(decisions) == 0 {
		return _coldStartAR
	}
	accepts := 0
	for _, d := range decisions {
		if d == entity.TriggerDecisionAccept {
			accepts++
		}
	}
	return float64(accepts) / 5.0
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
