package scoring

// ReviewPolicy grades static code reviews that never ran the program.
type ReviewPolicy struct {
	LanguagePenalties     map[string]int `yaml:"languagePenalties"`
	LogicalMistakePenalty int            `yaml:"logicalMistakePenalty"`
	SyntaxPenalty         int            `yaml:"syntaxPenalty"`
	OtherPenalty          int            `yaml:"otherPenalty"`
}

// DefaultReviewPolicy returns the review defaults.
func DefaultReviewPolicy() ReviewPolicy {
	return ReviewPolicy{
		LanguagePenalties: map[string]int{
			"c":          0,
			"java":       3,
			"python":     10,
			"javascript": 10,
		},
		LogicalMistakePenalty: 40,
		SyntaxPenalty:         3,
		OtherPenalty:          5,
	}
}

// Score grades a review against basePoints.
func (p ReviewPolicy) Score(basePoints int, language string, r Review) Result {
	penalty := p.LanguagePenalties[language]
	res := Result{
		Language:          language,
		LanguageDeduction: penalty,
		AdjustedMax:       max(0, basePoints-penalty),
		ErrorType:         ErrorTypeAccepted,
		Breakdown: Breakdown{
			SyntaxPenaltyPerError:  p.SyntaxPenalty,
			RuntimePenaltyPerError: p.OtherPenalty,
			LogicalPenaltyPerError: p.LogicalMistakePenalty,
		},
	}
	if r.FeedbackLine != "" {
		res.add(r.FeedbackLine)
	}
	if penalty > 0 {
		res.addf("Language penalty: -%d pts (%s).", penalty, language)
	} else {
		res.addf("No language penalty for %s.", language)
	}

	if !r.HasLogic {
		res.ErrorType = ErrorTypeIrrelevant
		res.add("Score is 0 because the logic is absent or irrelevant to the problem.")
		return res
	}

	score := basePoints - penalty
	if r.LogicalMistakes {
		score -= p.LogicalMistakePenalty
		res.Breakdown.LogicalErrors = 1
		res.Breakdown.LogicalPenalty = p.LogicalMistakePenalty
		res.ErrorType = ErrorTypeWrongAnswer
		res.addf("Logical mistake penalty: -%d pts.", p.LogicalMistakePenalty)
	}
	if r.OtherErrorCount > 0 {
		other := r.OtherErrorCount * p.OtherPenalty
		score -= other
		res.Breakdown.RuntimeErrors = r.OtherErrorCount
		res.Breakdown.RuntimePenalty = other
		res.ErrorType = ErrorTypeRuntimeError
		res.addf("Other/runtime error penalty: -%d pts (%d errors).", other, r.OtherErrorCount)
	}
	if r.SyntaxErrorCount > 0 {
		syntax := r.SyntaxErrorCount * p.SyntaxPenalty
		score -= syntax
		res.Breakdown.SyntaxErrors = r.SyntaxErrorCount
		res.Breakdown.SyntaxPenalty = syntax
		res.ErrorType = ErrorTypeSyntaxError
		res.addf("Syntax error penalty: -%d pts (%d errors).", syntax, r.SyntaxErrorCount)
	}
	res.Score = max(0, score)
	return res
}
